package service

import (
	"context"

	"go.uber.org/zap"

	"tempora/backend/internal/dto"
	"tempora/backend/internal/repository"
)

// TimeEntryService 计时记录查询接口
type TimeEntryService interface {
	// List 当前用户的历史记录，按开始时间倒序分页
	List(ctx context.Context, userID string, page *dto.PaginationRequest) ([]dto.TimeEntryResponse, int64, error)
}

type timeEntryService struct {
	repo   *repository.Repository
	logger *zap.Logger
}

// NewTimeEntryService 创建 TimeEntryService 实例
func NewTimeEntryService(repo *repository.Repository, logger *zap.Logger) TimeEntryService {
	return &timeEntryService{repo: repo, logger: logger}
}

func (s *timeEntryService) List(ctx context.Context, userID string, page *dto.PaginationRequest) ([]dto.TimeEntryResponse, int64, error) {
	entries, total, err := s.repo.TimeEntry.ListByUser(ctx, userID, page.GetOffset(), page.GetPageSize())
	if err != nil {
		s.logger.Error("查询计时记录失败", zap.String("user_id", userID), zap.Error(err))
		return nil, 0, err
	}

	list := make([]dto.TimeEntryResponse, 0, len(entries))
	for i := range entries {
		list = append(list, toTimeEntryResponse(&entries[i]))
	}
	return list, total, nil
}
