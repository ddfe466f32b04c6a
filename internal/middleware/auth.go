// Package middleware 提供了处理 HTTP 请求的中间件。
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"jotium-go/pkg/log"
	"jotium-go/pkg/token"
)

// 上下文中存放认证信息的 key。
const (
	ClaimsKey = "claims"
	UserIDKey = "userID"
)

// AuthMiddleware 创建一个 Gin 中间件，用于 JWT 认证。
// required 为 false 时，没有 Authorization 头的请求会直接放行，用户 ID 由请求参数决定；
// 一旦携带了 token，就必须是有效的。
func AuthMiddleware(jwtManager *token.JWTManager, required bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			if required {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "请求未包含授权头", "data": nil})
				return
			}
			c.Next()
			return
		}

		const bearerPrefix = "Bearer "
		if !strings.HasPrefix(authHeader, bearerPrefix) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "无效的授权头格式", "data": nil})
			return
		}

		claims, err := jwtManager.VerifyToken(strings.TrimPrefix(authHeader, bearerPrefix))
		if err != nil {
			log.Warnf("token 校验失败, path: %s, error: %v", c.Request.URL.Path, err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "无效或已过期的 token", "data": nil})
			return
		}

		c.Set(ClaimsKey, claims)
		c.Set(UserIDKey, claims.UserID)
		c.Next()
	}
}

// AuthenticatedUserID 返回经过认证的用户 ID，未认证时返回空字符串。
func AuthenticatedUserID(c *gin.Context) string {
	return c.GetString(UserIDKey)
}
