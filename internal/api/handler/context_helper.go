package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"tempora/backend/internal/api/middleware"
	"tempora/backend/internal/service"
	"tempora/backend/internal/tracking"
	"tempora/backend/pkg/response"
)

// MustGetUserID 从 Gin 上下文中安全提取 user_id。
// 如果 JWT 中间件未正确注入 user_id，返回 false 并写入 401 响应。
// 调用方应在 ok=false 时直接 return。
func MustGetUserID(c *gin.Context) (string, bool) {
	return mustGetString(c, middleware.CtxUserID)
}

// MustGetRole 从 Gin 上下文中安全提取 role。
func MustGetRole(c *gin.Context) (string, bool) {
	return mustGetString(c, middleware.CtxRole)
}

// MustGetOrganizationID 从 Gin 上下文中安全提取 organization_id。
func MustGetOrganizationID(c *gin.Context) (string, bool) {
	return mustGetString(c, middleware.CtxOrganizationID)
}

func mustGetString(c *gin.Context, key string) (string, bool) {
	v, exists := c.Get(key)
	if !exists {
		response.Unauthorized(c, response.CodeUnauthorized, "未认证")
		return "", false
	}
	s, ok := v.(string)
	if !ok || s == "" {
		response.Unauthorized(c, response.CodeUnauthorized, "未认证")
		return "", false
	}
	return s, true
}

// callerFrom 组装组织内接口的调用方身份
func callerFrom(c *gin.Context) (service.Caller, bool) {
	userID, ok := MustGetUserID(c)
	if !ok {
		return service.Caller{}, false
	}
	role, ok := MustGetRole(c)
	if !ok {
		return service.Caller{}, false
	}
	orgID, ok := MustGetOrganizationID(c)
	if !ok {
		return service.Caller{}, false
	}
	return service.Caller{UserID: userID, OrganizationID: orgID, Role: role}, true
}

// sessionFrom 组装计时会话；组织缺失时交由计时器返回 ErrContextMissing
func sessionFrom(c *gin.Context) (tracking.Session, bool) {
	userID, ok := MustGetUserID(c)
	if !ok {
		return tracking.Session{}, false
	}
	return tracking.Session{
		UserID:         userID,
		OrganizationID: c.GetString(middleware.CtxOrganizationID),
	}, true
}

// tokenFrom 当前 Access Token 的 jti 与过期时间（登出拉黑用）
func tokenFrom(c *gin.Context) (string, time.Time) {
	jti := c.GetString(middleware.CtxTokenID)
	exp := c.GetTime(middleware.CtxTokenExpiresAt)
	return jti, exp
}
