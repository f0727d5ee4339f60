package service

import (
	"context"
	"errors"
	"math"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"tempora/backend/internal/dto"
	"tempora/backend/internal/model"
	"tempora/backend/internal/repository"
)

// ── 项目模块业务错误 ──

var (
	ErrProjectNotFound  = errors.New("项目不存在")
	ErrProjectArchived  = errors.New("项目已归档")
	ErrTaskNotFound     = errors.New("任务不存在")
	ErrTaskNotInProject = errors.New("任务不属于所选项目")
)

const defaultProjectColor = "#3b82f6"

// ProjectService 项目与任务业务接口，均限定在调用方当前组织内
type ProjectService interface {
	List(ctx context.Context, caller Caller, req *dto.ProjectListRequest) ([]dto.ProjectResponse, error)
	Create(ctx context.Context, caller Caller, req *dto.CreateProjectRequest) (*dto.ProjectResponse, error)
	Update(ctx context.Context, caller Caller, id string, req *dto.UpdateProjectRequest) (*dto.ProjectResponse, error)
	Archive(ctx context.Context, caller Caller, id string) (*dto.ProjectResponse, error)

	ListTasks(ctx context.Context, caller Caller, projectID string) ([]dto.TaskResponse, error)
	CreateTask(ctx context.Context, caller Caller, projectID string, req *dto.CreateTaskRequest) (*dto.TaskResponse, error)
	UpdateTask(ctx context.Context, caller Caller, projectID, taskID string, req *dto.UpdateTaskRequest) (*dto.TaskResponse, error)
}

type projectService struct {
	repo   *repository.Repository
	logger *zap.Logger
}

// NewProjectService 创建 ProjectService 实例
func NewProjectService(repo *repository.Repository, logger *zap.Logger) ProjectService {
	return &projectService{repo: repo, logger: logger}
}

// ────────────────────── List ──────────────────────

func (s *projectService) List(ctx context.Context, caller Caller, req *dto.ProjectListRequest) ([]dto.ProjectResponse, error) {
	projects, err := s.repo.Project.List(ctx, caller.OrganizationID, req.IncludeArchived)
	if err != nil {
		s.logger.Error("列出项目失败", zap.String("organization_id", caller.OrganizationID), zap.Error(err))
		return nil, err
	}

	ids := make([]string, 0, len(projects))
	for i := range projects {
		ids = append(ids, projects[i].ProjectID)
	}
	stats, err := s.repo.Project.TaskStats(ctx, ids)
	if err != nil {
		s.logger.Error("统计项目任务失败", zap.Error(err))
		return nil, err
	}

	result := make([]dto.ProjectResponse, 0, len(projects))
	for i := range projects {
		resp := toProjectResponse(&projects[i], caller.CanSeeFinancials())
		applyTaskStats(resp, stats[projects[i].ProjectID])
		result = append(result, *resp)
	}
	return result, nil
}

// ────────────────────── Create ──────────────────────

func (s *projectService) Create(ctx context.Context, caller Caller, req *dto.CreateProjectRequest) (*dto.ProjectResponse, error) {
	color := defaultProjectColor
	if req.Color != nil {
		color = *req.Color
	}
	project := &model.Project{
		OrganizationID: caller.OrganizationID,
		Name:           req.Name,
		Color:          &color,
		Status:         model.ProjectStatusActive,
	}
	if req.HourlyRate != nil {
		project.HourlyRate = *req.HourlyRate
	}

	if err := s.repo.Project.Create(ctx, project); err != nil {
		s.logger.Error("创建项目失败", zap.String("organization_id", caller.OrganizationID), zap.Error(err))
		return nil, err
	}

	s.logger.Info("项目已创建",
		zap.String("project_id", project.ProjectID),
		zap.String("user_id", caller.UserID),
	)
	return toProjectResponse(project, caller.CanSeeFinancials()), nil
}

// ────────────────────── Update ──────────────────────

func (s *projectService) Update(ctx context.Context, caller Caller, id string, req *dto.UpdateProjectRequest) (*dto.ProjectResponse, error) {
	project, err := s.getProject(ctx, caller.OrganizationID, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		project.Name = *req.Name
	}
	if req.Color != nil {
		project.Color = req.Color
	}
	if req.HourlyRate != nil {
		project.HourlyRate = *req.HourlyRate
	}

	if err := s.repo.Project.Update(ctx, project); err != nil {
		s.logger.Error("更新项目失败", zap.String("project_id", id), zap.Error(err))
		return nil, err
	}
	return toProjectResponse(project, caller.CanSeeFinancials()), nil
}

// ────────────────────── Archive ──────────────────────

// Archive 归档后项目不再出现在默认列表中，也不能再开始计时；历史记录保留
func (s *projectService) Archive(ctx context.Context, caller Caller, id string) (*dto.ProjectResponse, error) {
	project, err := s.getProject(ctx, caller.OrganizationID, id)
	if err != nil {
		return nil, err
	}
	if project.IsArchived() {
		return toProjectResponse(project, caller.CanSeeFinancials()), nil
	}

	project.Status = model.ProjectStatusArchived
	if err := s.repo.Project.Update(ctx, project); err != nil {
		s.logger.Error("归档项目失败", zap.String("project_id", id), zap.Error(err))
		return nil, err
	}

	s.logger.Info("项目已归档",
		zap.String("project_id", id),
		zap.String("user_id", caller.UserID),
	)
	return toProjectResponse(project, caller.CanSeeFinancials()), nil
}

// ── 任务 ──

func (s *projectService) ListTasks(ctx context.Context, caller Caller, projectID string) ([]dto.TaskResponse, error) {
	if _, err := s.getProject(ctx, caller.OrganizationID, projectID); err != nil {
		return nil, err
	}

	tasks, err := s.repo.Project.ListTasks(ctx, projectID)
	if err != nil {
		s.logger.Error("列出任务失败", zap.String("project_id", projectID), zap.Error(err))
		return nil, err
	}

	result := make([]dto.TaskResponse, 0, len(tasks))
	for i := range tasks {
		result = append(result, toTaskResponse(&tasks[i]))
	}
	return result, nil
}

func (s *projectService) CreateTask(ctx context.Context, caller Caller, projectID string, req *dto.CreateTaskRequest) (*dto.TaskResponse, error) {
	project, err := s.getProject(ctx, caller.OrganizationID, projectID)
	if err != nil {
		return nil, err
	}
	if project.IsArchived() {
		return nil, ErrProjectArchived
	}

	task := &model.Task{
		ProjectID:      projectID,
		Name:           req.Name,
		Description:    req.Description,
		EstimatedHours: req.EstimatedHours,
		Status:         model.TaskStatusActive,
	}
	if err := s.repo.Project.CreateTask(ctx, task); err != nil {
		s.logger.Error("创建任务失败", zap.String("project_id", projectID), zap.Error(err))
		return nil, err
	}

	resp := toTaskResponse(task)
	return &resp, nil
}

func (s *projectService) UpdateTask(ctx context.Context, caller Caller, projectID, taskID string, req *dto.UpdateTaskRequest) (*dto.TaskResponse, error) {
	if _, err := s.getProject(ctx, caller.OrganizationID, projectID); err != nil {
		return nil, err
	}

	task, err := s.repo.Project.GetTaskInProject(ctx, projectID, taskID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTaskNotFound
		}
		s.logger.Error("查询任务失败", zap.String("task_id", taskID), zap.Error(err))
		return nil, err
	}

	if req.Name != nil {
		task.Name = *req.Name
	}
	if req.Description != nil {
		task.Description = req.Description
	}
	if req.EstimatedHours != nil {
		task.EstimatedHours = req.EstimatedHours
	}
	if req.Status != nil {
		task.Status = *req.Status
	}

	if err := s.repo.Project.UpdateTask(ctx, task); err != nil {
		s.logger.Error("更新任务失败", zap.String("task_id", taskID), zap.Error(err))
		return nil, err
	}

	resp := toTaskResponse(task)
	return &resp, nil
}

// ── 内部辅助方法 ──

func (s *projectService) getProject(ctx context.Context, organizationID, id string) (*model.Project, error) {
	project, err := s.repo.Project.GetInOrganization(ctx, organizationID, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProjectNotFound
		}
		s.logger.Error("查询项目失败", zap.String("project_id", id), zap.Error(err))
		return nil, err
	}
	return project, nil
}

// resolveTarget 校验开始计时所选的项目与任务属于调用方组织
// 不选项目时不能单独选任务
func resolveTarget(ctx context.Context, projects repository.ProjectRepository, organizationID, projectID, taskID string) (*model.Project, *model.Task, error) {
	if projectID == "" {
		if taskID != "" {
			return nil, nil, ErrTaskNotInProject
		}
		return nil, nil, nil
	}

	project, err := projects.GetInOrganization(ctx, organizationID, projectID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrProjectNotFound
		}
		return nil, nil, err
	}
	if project.IsArchived() {
		return nil, nil, ErrProjectArchived
	}
	if taskID == "" {
		return project, nil, nil
	}

	task, err := projects.GetTaskInProject(ctx, projectID, taskID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrTaskNotInProject
		}
		return nil, nil, err
	}
	return project, task, nil
}

func toProjectResponse(p *model.Project, financials bool) *dto.ProjectResponse {
	resp := &dto.ProjectResponse{
		ID:        p.ProjectID,
		Name:      p.Name,
		Color:     defaultProjectColor,
		Status:    p.Status,
		CreatedAt: p.CreatedAt.Format("2006-01-02T15:04:05Z"),
		UpdatedAt: p.UpdatedAt.Format("2006-01-02T15:04:05Z"),
	}
	if p.Color != nil {
		resp.Color = *p.Color
	}
	if financials {
		rate := p.HourlyRate
		resp.HourlyRate = &rate
	}
	return resp
}

func applyTaskStats(resp *dto.ProjectResponse, st repository.TaskStats) {
	resp.TotalTasks = st.TotalTasks
	resp.CompletedTasks = st.CompletedTasks
	resp.TotalEstimatedHours = round2(st.EstimatedHours)
	if st.TotalTasks > 0 {
		resp.Progress = int(math.Round(float64(st.CompletedTasks) * 100 / float64(st.TotalTasks)))
	}
}

func toTaskResponse(t *model.Task) dto.TaskResponse {
	return dto.TaskResponse{
		ID:             t.TaskID,
		ProjectID:      t.ProjectID,
		Name:           t.Name,
		Description:    t.Description,
		EstimatedHours: t.EstimatedHours,
		Status:         t.Status,
		CreatedAt:      t.CreatedAt.Format("2006-01-02T15:04:05Z"),
		UpdatedAt:      t.UpdatedAt.Format("2006-01-02T15:04:05Z"),
	}
}
