package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"tempora/backend/internal/dto"
	"tempora/backend/internal/model"
	"tempora/backend/internal/repository"
	"tempora/backend/internal/tracking"
	"tempora/backend/pkg/jwt"
)

var (
	ErrInvalidCredentials = errors.New("邮箱或密码错误")
	ErrUserNotFound       = errors.New("用户不存在")
	ErrNotMember          = errors.New("不是该组织成员")
	ErrNoOrganization     = errors.New("尚未加入任何组织")
	ErrInvalidToken       = errors.New("登录已失效，请重新登录")
)

// AuthService 认证业务接口
type AuthService interface {
	Login(ctx context.Context, req *dto.LoginRequest) (*dto.TokenResponse, error)
	Refresh(ctx context.Context, refreshToken string) (*dto.TokenResponse, error)
	// Logout 拉黑当前 Access Token 并释放该用户的计时器
	Logout(ctx context.Context, userID, jti string, expiresAt time.Time) error
	Me(ctx context.Context, userID, organizationID string) (*dto.UserResponse, error)
}

type authService struct {
	repo     *repository.Repository
	jwtMgr   *jwt.Manager
	tokens   TokenStore
	registry *tracking.Registry
	logger   *zap.Logger
}

// NewAuthService 创建 AuthService 实例
// tokens 为 nil 时登出不做黑名单（Redis 不可用）
func NewAuthService(
	repo *repository.Repository,
	jwtMgr *jwt.Manager,
	tokens TokenStore,
	registry *tracking.Registry,
	logger *zap.Logger,
) AuthService {
	return &authService{
		repo:     repo,
		jwtMgr:   jwtMgr,
		tokens:   tokens,
		registry: registry,
		logger:   logger,
	}
}

func (s *authService) Login(ctx context.Context, req *dto.LoginRequest) (*dto.TokenResponse, error) {
	// 1. 查询用户
	user, err := s.repo.User.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		s.logger.Error("查询用户失败", zap.Error(err))
		return nil, err
	}

	// 2. 验证密码 (bcrypt)
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	// 3. 确定本次登录的组织
	member, err := s.resolveMembership(ctx, user.UserID, req.OrganizationID)
	if err != nil {
		return nil, err
	}

	// 4. 生成 Token 对
	return s.issueTokens(user, member)
}

func (s *authService) Refresh(ctx context.Context, refreshToken string) (*dto.TokenResponse, error) {
	claims, err := s.jwtMgr.ParseToken(refreshToken)
	if err != nil || claims.TokenType != jwt.TokenTypeRefresh {
		return nil, ErrInvalidToken
	}

	if s.tokens != nil {
		revoked, err := s.tokens.IsBlacklisted(ctx, claims.ID)
		if err != nil {
			s.logger.Warn("查询 Token 黑名单失败，放行", zap.Error(err))
		} else if revoked {
			return nil, ErrInvalidToken
		}
	}

	user, err := s.repo.User.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidToken
		}
		s.logger.Error("查询用户失败", zap.Error(err))
		return nil, err
	}

	// 角色可能已变更，以库中成员关系为准
	member, err := s.resolveMembership(ctx, user.UserID, claims.OrganizationID)
	if err != nil {
		if errors.Is(err, ErrNotMember) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}

	resp, err := s.issueTokens(user, member)
	if err != nil {
		return nil, err
	}

	// 旧 Refresh Token 作废（轮换）
	if s.tokens != nil && claims.ExpiresAt != nil {
		if err := s.tokens.BlacklistToken(ctx, claims.ID, time.Until(claims.ExpiresAt.Time)); err != nil {
			s.logger.Warn("旧 RefreshToken 加入黑名单失败", zap.Error(err))
		}
	}
	return resp, nil
}

func (s *authService) Logout(ctx context.Context, userID, jti string, expiresAt time.Time) error {
	if s.tokens != nil && jti != "" {
		if err := s.tokens.BlacklistToken(ctx, jti, time.Until(expiresAt)); err != nil {
			s.logger.Error("Token 加入黑名单失败", zap.String("user_id", userID), zap.Error(err))
			return err
		}
	}

	if s.registry != nil {
		s.registry.Release(userID)
	}
	s.logger.Info("用户登出", zap.String("user_id", userID))
	return nil
}

func (s *authService) Me(ctx context.Context, userID, organizationID string) (*dto.UserResponse, error) {
	user, err := s.repo.User.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	member, err := s.resolveMembership(ctx, userID, organizationID)
	if err != nil {
		return nil, err
	}

	resp := toUserResponse(user, member)
	return &resp, nil
}

// resolveMembership 指定组织时校验成员关系，否则取最早加入的组织
func (s *authService) resolveMembership(ctx context.Context, userID, organizationID string) (*model.OrganizationMember, error) {
	if organizationID != "" {
		member, err := s.repo.Organization.GetMembership(ctx, organizationID, userID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, ErrNotMember
			}
			s.logger.Error("查询组织成员关系失败", zap.Error(err))
			return nil, err
		}
		return member, nil
	}

	members, err := s.repo.Organization.ListMemberships(ctx, userID)
	if err != nil {
		s.logger.Error("查询组织成员关系失败", zap.Error(err))
		return nil, err
	}
	if len(members) == 0 {
		return nil, ErrNoOrganization
	}
	return &members[0], nil
}

func (s *authService) issueTokens(user *model.User, member *model.OrganizationMember) (*dto.TokenResponse, error) {
	accessToken, err := s.jwtMgr.GenerateAccessToken(user.UserID, member.Role, member.OrganizationID)
	if err != nil {
		s.logger.Error("生成 AccessToken 失败", zap.Error(err))
		return nil, err
	}

	refreshToken, err := s.jwtMgr.GenerateRefreshToken(user.UserID, member.Role, member.OrganizationID)
	if err != nil {
		s.logger.Error("生成 RefreshToken 失败", zap.Error(err))
		return nil, err
	}

	return &dto.TokenResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int(s.jwtMgr.AccessTokenTTL().Seconds()),
		User:         toUserResponse(user, member),
	}, nil
}

func toUserResponse(user *model.User, member *model.OrganizationMember) dto.UserResponse {
	resp := dto.UserResponse{
		ID:       user.UserID,
		Email:    user.Email,
		FullName: user.FullName,
		Role:     member.Role,
	}
	if user.AvatarURL != nil {
		resp.AvatarURL = *user.AvatarURL
	}
	if member.Organization != nil {
		resp.Organization = &dto.OrganizationResponse{
			ID:   member.Organization.OrganizationID,
			Name: member.Organization.Name,
			Slug: member.Organization.Slug,
		}
	} else {
		resp.Organization = &dto.OrganizationResponse{ID: member.OrganizationID}
	}
	return resp
}
