package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"tempora/backend/config"
	"tempora/backend/internal/dto"
	"tempora/backend/internal/model"
	"tempora/backend/internal/repository"
	"tempora/backend/internal/tracking"
	"tempora/backend/pkg/jwt"
)

// ── 测试辅助 ──

type authFixture struct {
	svc      AuthService
	jwtMgr   *jwt.Manager
	tokens   *mockTokenStore
	registry *tracking.Registry
}

func setupTestAuthService(t *testing.T) *authFixture {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte("correct-horse"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("生成密码哈希失败: %v", err)
	}

	users := newMockUserRepo()
	users.add(&model.User{
		UserID:       "user-1",
		Email:        "ana@example.com",
		FullName:     "Ana",
		PasswordHash: string(hash),
	})
	users.add(&model.User{
		UserID:       "user-lonely",
		Email:        "lonely@example.com",
		FullName:     "Lonely",
		PasswordHash: string(hash),
	})

	orgs := &mockOrgRepo{members: []model.OrganizationMember{
		{
			OrganizationID: "org-1", UserID: "user-1", Role: model.RoleOwner,
			Organization: &model.Organization{OrganizationID: "org-1", Name: "Acme", Slug: "acme"},
		},
		{OrganizationID: "org-2", UserID: "user-1", Role: model.RoleMember},
	}}

	entries := newMockTimeEntryRepo()
	repo := &repository.Repository{
		User:         users,
		Organization: orgs,
		TimeEntry:    entries,
		Pause:        mockPauseRepo{},
	}

	jwtMgr := jwt.NewManager(&config.AuthConfig{
		JWTSecret:       "test-secret-at-least-16",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 24 * time.Hour,
	})
	registry := tracking.NewRegistry(tracking.Deps{
		Entries: entries,
		Pauses:  mockPauseRepo{},
		Logger:  zap.NewNop(),
	}, tracking.Options{TickInterval: time.Hour})
	t.Cleanup(registry.Close)

	tokens := newMockTokenStore()
	return &authFixture{
		svc:      NewAuthService(repo, jwtMgr, tokens, registry, zap.NewNop()),
		jwtMgr:   jwtMgr,
		tokens:   tokens,
		registry: registry,
	}
}

// ── Login 测试 ──

func TestAuthService_Login_DefaultOrganization(t *testing.T) {
	f := setupTestAuthService(t)

	result, err := f.svc.Login(context.Background(), &dto.LoginRequest{
		Email:    "ANA@example.com",
		Password: "correct-horse",
	})
	if err != nil {
		t.Fatalf("Login 应成功: %v", err)
	}
	if result.User.Role != model.RoleOwner {
		t.Errorf("期望角色 owner，实际 %s", result.User.Role)
	}
	if result.User.Organization == nil || result.User.Organization.Name != "Acme" {
		t.Errorf("默认应选择最早加入的组织，实际 %+v", result.User.Organization)
	}
	if result.ExpiresIn != 900 {
		t.Errorf("期望 ExpiresIn=900，实际 %d", result.ExpiresIn)
	}

	claims, err := f.jwtMgr.ParseToken(result.AccessToken)
	if err != nil {
		t.Fatalf("AccessToken 应可解析: %v", err)
	}
	if claims.OrganizationID != "org-1" || claims.TokenType != jwt.TokenTypeAccess {
		t.Errorf("Token 声明错误: %+v", claims)
	}
}

func TestAuthService_Login_ExplicitOrganization(t *testing.T) {
	f := setupTestAuthService(t)

	result, err := f.svc.Login(context.Background(), &dto.LoginRequest{
		Email:          "ana@example.com",
		Password:       "correct-horse",
		OrganizationID: "org-2",
	})
	if err != nil {
		t.Fatalf("Login 应成功: %v", err)
	}
	if result.User.Role != model.RoleMember {
		t.Errorf("期望角色 member，实际 %s", result.User.Role)
	}
}

func TestAuthService_Login_Failures(t *testing.T) {
	f := setupTestAuthService(t)

	tests := []struct {
		name string
		req  dto.LoginRequest
		want error
	}{
		{"密码错误", dto.LoginRequest{Email: "ana@example.com", Password: "wrong"}, ErrInvalidCredentials},
		{"用户不存在", dto.LoginRequest{Email: "nobody@example.com", Password: "x"}, ErrInvalidCredentials},
		{"非组织成员", dto.LoginRequest{Email: "ana@example.com", Password: "correct-horse", OrganizationID: "org-9"}, ErrNotMember},
		{"未加入组织", dto.LoginRequest{Email: "lonely@example.com", Password: "correct-horse"}, ErrNoOrganization},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Login(context.Background(), &tt.req)
			if !errors.Is(err, tt.want) {
				t.Errorf("期望 %v，实际 %v", tt.want, err)
			}
		})
	}
}

// ── Refresh 测试 ──

func TestAuthService_Refresh_RotatesToken(t *testing.T) {
	f := setupTestAuthService(t)
	ctx := context.Background()

	login, _ := f.svc.Login(ctx, &dto.LoginRequest{Email: "ana@example.com", Password: "correct-horse"})

	refreshed, err := f.svc.Refresh(ctx, login.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh 应成功: %v", err)
	}
	if refreshed.AccessToken == "" || refreshed.RefreshToken == login.RefreshToken {
		t.Error("应签发新的 Token 对")
	}

	if _, err := f.svc.Refresh(ctx, login.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("旧 RefreshToken 不应再可用，实际 %v", err)
	}
}

func TestAuthService_Refresh_RejectsAccessToken(t *testing.T) {
	f := setupTestAuthService(t)
	ctx := context.Background()

	login, _ := f.svc.Login(ctx, &dto.LoginRequest{Email: "ana@example.com", Password: "correct-horse"})

	if _, err := f.svc.Refresh(ctx, login.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("AccessToken 不能用于刷新，实际 %v", err)
	}
	if _, err := f.svc.Refresh(ctx, "garbage"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("无效 Token 应返回 ErrInvalidToken，实际 %v", err)
	}
}

// ── Logout / Me 测试 ──

func TestAuthService_Logout_BlacklistsAndReleases(t *testing.T) {
	f := setupTestAuthService(t)
	ctx := context.Background()

	if _, err := f.registry.Acquire(ctx, tracking.Session{UserID: "user-1", OrganizationID: "org-1"}); err != nil {
		t.Fatalf("前置条件失败: %v", err)
	}

	if err := f.svc.Logout(ctx, "user-1", "jti-1", time.Now().Add(10*time.Minute)); err != nil {
		t.Fatalf("Logout 应成功: %v", err)
	}

	if ttl, ok := f.tokens.revoked["jti-1"]; !ok || ttl <= 0 {
		t.Error("AccessToken 应以剩余有效期加入黑名单")
	}
	if _, ok := f.registry.Lookup("user-1"); ok {
		t.Error("登出后计时器应被释放")
	}
}

func TestAuthService_Me(t *testing.T) {
	f := setupTestAuthService(t)

	me, err := f.svc.Me(context.Background(), "user-1", "org-1")
	if err != nil {
		t.Fatalf("Me 应成功: %v", err)
	}
	if me.FullName != "Ana" || me.Role != model.RoleOwner {
		t.Errorf("用户信息错误: %+v", me)
	}

	if _, err := f.svc.Me(context.Background(), "ghost", "org-1"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("期望 ErrUserNotFound，实际 %v", err)
	}
}
