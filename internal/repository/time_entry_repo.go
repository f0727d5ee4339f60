package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"tempora/backend/internal/model"
	pkgerrors "tempora/backend/pkg/errors"
)

// TimeEntryRepository 计时记录数据访问接口
type TimeEntryRepository interface {
	// GetOpenByUser 查询用户 active/paused 记录（期望 0 或 1 行）
	// 无记录返回 gorm.ErrRecordNotFound，多于一行返回 ErrMultipleRows
	GetOpenByUser(ctx context.Context, userID string) (*model.TimeEntry, error)
	// ListOpenByUser 清扫用：仅取 id 与 clock_in
	ListOpenByUser(ctx context.Context, userID string) ([]model.TimeEntry, error)
	Create(ctx context.Context, entry *model.TimeEntry) error
	// Complete 结束计时：写入 clock_out、status=completed、total_hours
	Complete(ctx context.Context, id string, clockOut time.Time, totalHours float64) error
	// UpdateStatus 切换 active/paused，返回库中最新记录
	UpdateStatus(ctx context.Context, id, status string) (*model.TimeEntry, error)
	ListByUser(ctx context.Context, userID string, offset, limit int) ([]model.TimeEntry, int64, error)
	ListForReport(ctx context.Context, filter ReportFilter) ([]model.TimeEntry, error)
}

// ReportFilter 报表查询条件（组织内）
type ReportFilter struct {
	OrganizationID string
	From           *time.Time // clock_in >= From
	To             *time.Time // clock_in <= To
	ProjectID      string
	UserID         string
	TaskID         string
}

type timeEntryRepo struct {
	db *gorm.DB
}

// NewTimeEntryRepo 创建 TimeEntryRepository 实例
func NewTimeEntryRepo(db *gorm.DB) TimeEntryRepository {
	return &timeEntryRepo{db: db}
}

func (r *timeEntryRepo) GetOpenByUser(ctx context.Context, userID string) (*model.TimeEntry, error) {
	var entries []model.TimeEntry
	err := r.db.WithContext(ctx).
		Preload("Project").
		Where("user_id = ? AND status IN ?", userID, model.OpenStatuses()).
		Order("clock_in DESC").
		Limit(2).
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	switch len(entries) {
	case 0:
		return nil, gorm.ErrRecordNotFound
	case 1:
		return &entries[0], nil
	default:
		return nil, pkgerrors.ErrMultipleRows
	}
}

func (r *timeEntryRepo) ListOpenByUser(ctx context.Context, userID string) ([]model.TimeEntry, error) {
	var entries []model.TimeEntry
	err := r.db.WithContext(ctx).
		Select("id", "clock_in").
		Where("user_id = ? AND status IN ?", userID, model.OpenStatuses()).
		Find(&entries).Error
	return entries, err
}

func (r *timeEntryRepo) Create(ctx context.Context, entry *model.TimeEntry) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(entry).Error
}

func (r *timeEntryRepo) Complete(ctx context.Context, id string, clockOut time.Time, totalHours float64) error {
	result := r.db.WithContext(ctx).
		Model(&model.TimeEntry{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"clock_out":   clockOut,
			"status":      model.TimeEntryStatusCompleted,
			"total_hours": totalHours,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return pkgerrors.ErrNoRowsAffected
	}
	return nil
}

func (r *timeEntryRepo) UpdateStatus(ctx context.Context, id, status string) (*model.TimeEntry, error) {
	var entry model.TimeEntry
	result := r.db.WithContext(ctx).
		Model(&entry).
		Clauses(clause.Returning{}).
		Where("id = ?", id).
		Update("status", status)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, pkgerrors.ErrNoRowsAffected
	}
	return &entry, nil
}

func (r *timeEntryRepo) ListByUser(ctx context.Context, userID string, offset, limit int) ([]model.TimeEntry, int64, error) {
	var entries []model.TimeEntry
	var total int64

	db := r.db.WithContext(ctx).Model(&model.TimeEntry{}).
		Where("user_id = ?", userID)

	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := db.Preload("Project").Preload("Task").
		Offset(offset).Limit(limit).
		Order("clock_in DESC").
		Find(&entries).Error
	return entries, total, err
}

func (r *timeEntryRepo) ListForReport(ctx context.Context, filter ReportFilter) ([]model.TimeEntry, error) {
	db := r.db.WithContext(ctx).
		Preload("Project").Preload("Task").Preload("User").
		Where("organization_id = ?", filter.OrganizationID)

	if filter.From != nil {
		db = db.Where("clock_in >= ?", *filter.From)
	}
	if filter.To != nil {
		db = db.Where("clock_in <= ?", *filter.To)
	}
	if filter.ProjectID != "" {
		db = db.Where("project_id = ?", filter.ProjectID)
	}
	if filter.UserID != "" {
		db = db.Where("user_id = ?", filter.UserID)
	}
	if filter.TaskID != "" {
		db = db.Where("task_id = ?", filter.TaskID)
	}

	var entries []model.TimeEntry
	err := db.Order("clock_in DESC").Find(&entries).Error
	return entries, err
}
