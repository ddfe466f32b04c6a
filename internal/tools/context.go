package tools

import "context"

type userIDKey struct{}

// WithUserID 返回携带当前用户 ID 的子 context，供需要按用户读写数据的工具使用。
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey{}, userID)
}

// UserIDFromContext 取出当前用户 ID，不存在或为空时返回 false。
func UserIDFromContext(ctx context.Context) (string, bool) {
	s, ok := ctx.Value(userIDKey{}).(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}
