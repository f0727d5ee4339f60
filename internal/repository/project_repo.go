package repository

import (
	"context"

	"gorm.io/gorm"

	"tempora/backend/internal/model"
)

// ProjectRepository 项目与任务数据访问接口
// 所有查询都限定在组织内，跨组织的 ID 按不存在处理
type ProjectRepository interface {
	// GetInOrganization 不属于该组织时返回 gorm.ErrRecordNotFound
	GetInOrganization(ctx context.Context, organizationID, projectID string) (*model.Project, error)
	List(ctx context.Context, organizationID string, includeArchived bool) ([]model.Project, error)
	Create(ctx context.Context, project *model.Project) error
	Update(ctx context.Context, project *model.Project) error
	// TaskStats 按项目汇总任务数量与预估工时
	TaskStats(ctx context.Context, projectIDs []string) (map[string]TaskStats, error)

	// GetTaskInProject 任务不属于该项目时返回 gorm.ErrRecordNotFound
	GetTaskInProject(ctx context.Context, projectID, taskID string) (*model.Task, error)
	ListTasks(ctx context.Context, projectID string) ([]model.Task, error)
	CreateTask(ctx context.Context, task *model.Task) error
	UpdateTask(ctx context.Context, task *model.Task) error
}

// TaskStats 单个项目的任务统计
type TaskStats struct {
	ProjectID      string
	TotalTasks     int64
	CompletedTasks int64
	EstimatedHours float64
}

type projectRepo struct {
	db *gorm.DB
}

// NewProjectRepo 创建 ProjectRepository 实例
func NewProjectRepo(db *gorm.DB) ProjectRepository {
	return &projectRepo{db: db}
}

func (r *projectRepo) GetInOrganization(ctx context.Context, organizationID, projectID string) (*model.Project, error) {
	var project model.Project
	err := r.db.WithContext(ctx).
		Where("project_id = ? AND organization_id = ?", projectID, organizationID).
		First(&project).Error
	if err != nil {
		return nil, err
	}
	return &project, nil
}

func (r *projectRepo) List(ctx context.Context, organizationID string, includeArchived bool) ([]model.Project, error) {
	var projects []model.Project
	db := r.db.WithContext(ctx).Where("organization_id = ?", organizationID)

	if !includeArchived {
		db = db.Where("status = ?", model.ProjectStatusActive)
	}

	err := db.Order("name ASC").Find(&projects).Error
	return projects, err
}

func (r *projectRepo) Create(ctx context.Context, project *model.Project) error {
	return r.db.WithContext(ctx).Create(project).Error
}

func (r *projectRepo) Update(ctx context.Context, project *model.Project) error {
	return r.db.WithContext(ctx).Save(project).Error
}

func (r *projectRepo) TaskStats(ctx context.Context, projectIDs []string) (map[string]TaskStats, error) {
	stats := make(map[string]TaskStats, len(projectIDs))
	if len(projectIDs) == 0 {
		return stats, nil
	}

	var rows []TaskStats
	err := r.db.WithContext(ctx).
		Model(&model.Task{}).
		Select(`project_id,
			COUNT(*) AS total_tasks,
			COUNT(*) FILTER (WHERE status = ?) AS completed_tasks,
			COALESCE(SUM(estimated_hours), 0) AS estimated_hours`, model.TaskStatusCompleted).
		Where("project_id IN ?", projectIDs).
		Group("project_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		stats[row.ProjectID] = row
	}
	return stats, nil
}

func (r *projectRepo) GetTaskInProject(ctx context.Context, projectID, taskID string) (*model.Task, error) {
	var task model.Task
	err := r.db.WithContext(ctx).
		Where("task_id = ? AND project_id = ?", taskID, projectID).
		First(&task).Error
	if err != nil {
		return nil, err
	}
	return &task, nil
}

// ListTasks 按创建时间倒序
func (r *projectRepo) ListTasks(ctx context.Context, projectID string) ([]model.Task, error) {
	var tasks []model.Task
	err := r.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("created_at DESC").
		Find(&tasks).Error
	return tasks, err
}

func (r *projectRepo) CreateTask(ctx context.Context, task *model.Task) error {
	return r.db.WithContext(ctx).Create(task).Error
}

func (r *projectRepo) UpdateTask(ctx context.Context, task *model.Task) error {
	return r.db.WithContext(ctx).Save(task).Error
}
