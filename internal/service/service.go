package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"tempora/backend/internal/repository"
	"tempora/backend/internal/tracking"
	"tempora/backend/pkg/jwt"
)

// TokenStore Token 黑名单存储（pkg/redis.Client 实现，Redis 不可用时为 nil）
type TokenStore interface {
	BlacklistToken(ctx context.Context, jti string, ttl time.Duration) error
	IsBlacklisted(ctx context.Context, jti string) (bool, error)
}

// EventSource 实时事件订阅来源（notify.Hub 实现）
type EventSource interface {
	Subscribe(userID string) (<-chan tracking.Event, func())
}

// Service 所有 Service 的聚合入口
type Service struct {
	Auth      AuthService
	Timer     TimerService
	TimeEntry TimeEntryService
	Project   ProjectService
	Report    ReportService
}

// Deps Service 层依赖
type Deps struct {
	Repo     *repository.Repository
	JWT      *jwt.Manager
	Registry *tracking.Registry
	Tokens   TokenStore
	Events   EventSource
	Location *time.Location // 报表自然日边界
	Logger   *zap.Logger
}

// NewService 创建 Service 聚合
func NewService(d Deps) *Service {
	return &Service{
		Auth:      NewAuthService(d.Repo, d.JWT, d.Tokens, d.Registry, d.Logger),
		Timer:     NewTimerService(d.Registry, d.Repo.Project, d.Events, d.Logger),
		TimeEntry: NewTimeEntryService(d.Repo, d.Logger),
		Project:   NewProjectService(d.Repo, d.Logger),
		Report:    NewReportService(d.Repo, d.Location, d.Logger),
	}
}
