// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"jotium-go/internal/middleware"
	"jotium-go/internal/service"
	"jotium-go/pkg/token"
)

func respondOK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": data})
}

func respondError(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"code": status, "message": message, "data": nil})
}

// respondServiceError 把业务层错误映射为 HTTP 状态码。
func respondServiceError(c *gin.Context, err error) {
	if errors.Is(err, service.ErrInvalidInput) {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}
	respondError(c, http.StatusInternalServerError, err.Error())
}

// authorizeUser 检查已认证用户是否可以访问路径中的 userId。
// 未启用 JWT 时请求不带用户身份，直接放行；管理员可以访问任何用户。
func authorizeUser(c *gin.Context, userID string) bool {
	authed := middleware.AuthenticatedUserID(c)
	if authed == "" || authed == userID {
		return true
	}
	if v, ok := c.Get(middleware.ClaimsKey); ok {
		if claims, ok := v.(*token.CustomClaims); ok && claims.Role == token.RoleAdmin {
			return true
		}
	}
	respondError(c, http.StatusForbidden, "无权访问其他用户的数据")
	return false
}
