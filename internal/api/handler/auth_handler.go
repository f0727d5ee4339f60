package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"tempora/backend/internal/dto"
	"tempora/backend/internal/service"
	"tempora/backend/pkg/response"
)

// AuthHandler 认证模块 HTTP 处理器
type AuthHandler struct {
	authSvc service.AuthService
}

// NewAuthHandler 创建 AuthHandler
func NewAuthHandler(authSvc service.AuthService) *AuthHandler {
	return &AuthHandler{authSvc: authSvc}
}

// Login 用户登录
// POST /api/v1/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req dto.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, response.CodeInvalidParams, "参数校验失败")
		return
	}

	result, err := h.authSvc.Login(c.Request.Context(), &req)
	if err != nil {
		h.handleAuthError(c, err)
		return
	}

	response.OK(c, result)
}

// RefreshToken 刷新 Token
// POST /api/v1/auth/refresh
func (h *AuthHandler) RefreshToken(c *gin.Context) {
	var req dto.RefreshTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, response.CodeInvalidParams, "参数校验失败")
		return
	}

	result, err := h.authSvc.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		h.handleAuthError(c, err)
		return
	}

	response.OK(c, result)
}

// Logout 用户登出
// POST /api/v1/auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	userID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	jti, exp := tokenFrom(c)
	if err := h.authSvc.Logout(c.Request.Context(), userID, jti, exp); err != nil {
		response.InternalError(c)
		return
	}

	response.OK(c, nil)
}

// GetCurrentUser 获取当前用户信息
// GET /api/v1/auth/me
func (h *AuthHandler) GetCurrentUser(c *gin.Context) {
	userID, ok := MustGetUserID(c)
	if !ok {
		return
	}
	orgID, ok := MustGetOrganizationID(c)
	if !ok {
		return
	}

	user, err := h.authSvc.Me(c.Request.Context(), userID, orgID)
	if err != nil {
		h.handleAuthError(c, err)
		return
	}

	response.OK(c, user)
}

// handleAuthError 统一处理认证模块业务错误
func (h *AuthHandler) handleAuthError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidCredentials):
		response.Error(c, http.StatusUnauthorized, 11001, "邮箱或密码错误")
	case errors.Is(err, service.ErrNotMember):
		response.Forbidden(c, 11002, "不是该组织成员")
	case errors.Is(err, service.ErrNoOrganization):
		response.Forbidden(c, 11003, "尚未加入任何组织")
	case errors.Is(err, service.ErrInvalidToken):
		response.Unauthorized(c, 11004, "登录已失效，请重新登录")
	case errors.Is(err, service.ErrUserNotFound):
		response.NotFound(c, 11005, "用户不存在")
	default:
		response.InternalError(c)
	}
}
