package handler

import (
	"go.uber.org/zap"

	"tempora/backend/internal/service"
)

// Handler 所有 Handler 的聚合入口
type Handler struct {
	Auth      *AuthHandler
	Timer     *TimerHandler
	TimeEntry *TimeEntryHandler
	Project   *ProjectHandler
	Report    *ReportHandler
}

// NewHandler 创建 Handler 聚合
func NewHandler(svc *service.Service, logger *zap.Logger) *Handler {
	return &Handler{
		Auth:      NewAuthHandler(svc.Auth),
		Timer:     NewTimerHandler(svc.Timer, logger),
		TimeEntry: NewTimeEntryHandler(svc.TimeEntry),
		Project:   NewProjectHandler(svc.Project),
		Report:    NewReportHandler(svc.Report),
	}
}
