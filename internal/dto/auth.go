package dto

// ── 认证模块 DTO ──

// LoginRequest 登录请求
// OrganizationID 为空时使用最早加入的组织
type LoginRequest struct {
	Email          string `json:"email"           binding:"required,email"`
	Password       string `json:"password"        binding:"required"`
	OrganizationID string `json:"organization_id" binding:"omitempty,uuid"`
}

// RefreshTokenRequest 刷新 Token 请求
type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}
