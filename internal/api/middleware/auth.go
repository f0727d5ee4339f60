package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"tempora/backend/pkg/jwt"
	"tempora/backend/pkg/response"
)

// 注入 gin.Context 的认证信息键
const (
	CtxUserID         = "user_id"
	CtxRole           = "role"
	CtxOrganizationID = "organization_id"
	CtxTokenID        = "token_jti"
	CtxTokenExpiresAt = "token_exp"
)

// TokenChecker Token 黑名单查询（pkg/redis.Client 实现）
type TokenChecker interface {
	IsBlacklisted(ctx context.Context, jti string) (bool, error)
}

// JWTAuth JWT 认证中间件
// 从 Authorization: Bearer <token> 中提取并验证 Access Token；
// SSE 连接（EventSource 无法设置请求头）可改用 access_token 查询参数。
// checker 为 nil 时跳过黑名单检查（Redis 不可用时降级）
func JWTAuth(jwtMgr *jwt.Manager, checker TokenChecker, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			response.Unauthorized(c, response.CodeUnauthorized, "缺少认证信息")
			c.Abort()
			return
		}

		claims, err := jwtMgr.ParseToken(token)
		if err != nil {
			response.Unauthorized(c, response.CodeUnauthorized, "Token 无效或已过期")
			c.Abort()
			return
		}

		if claims.TokenType != jwt.TokenTypeAccess {
			response.Unauthorized(c, response.CodeUnauthorized, "Token 类型无效")
			c.Abort()
			return
		}

		if checker != nil {
			revoked, err := checker.IsBlacklisted(c.Request.Context(), claims.ID)
			if err != nil {
				logger.Warn("查询 Token 黑名单失败，放行", zap.Error(err))
			} else if revoked {
				response.Unauthorized(c, response.CodeUnauthorized, "Token 已注销")
				c.Abort()
				return
			}
		}

		// 将用户信息注入上下文
		c.Set(CtxUserID, claims.UserID)
		c.Set(CtxRole, claims.Role)
		c.Set(CtxOrganizationID, claims.OrganizationID)
		c.Set(CtxTokenID, claims.ID)
		if claims.ExpiresAt != nil {
			c.Set(CtxTokenExpiresAt, claims.ExpiresAt.Time)
		}

		c.Next()
	}
}

func bearerToken(c *gin.Context) (string, bool) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		if t := c.Query("access_token"); t != "" {
			return t, true
		}
		return "", false
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// RoleAuth 角色权限中间件
// 检查当前用户在所选组织内是否具有指定角色之一
func RoleAuth(allowedRoles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role, exists := c.Get(CtxRole)
		if !exists {
			response.Unauthorized(c, response.CodeUnauthorized, "未认证")
			c.Abort()
			return
		}

		userRole, _ := role.(string)
		for _, r := range allowedRoles {
			if userRole == r {
				c.Next()
				return
			}
		}

		response.Forbidden(c, response.CodeForbidden, "无权限访问")
		c.Abort()
	}
}
