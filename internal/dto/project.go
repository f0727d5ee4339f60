package dto

// ── 项目模块 DTO ──

// CreateProjectRequest 创建项目请求
type CreateProjectRequest struct {
	Name       string   `json:"name"        binding:"required,min=1,max=200"`
	Color      *string  `json:"color"       binding:"omitempty,hexcolor"`
	HourlyRate *float64 `json:"hourly_rate" binding:"omitempty,gte=0"`
}

// UpdateProjectRequest 更新项目请求；归档走单独的接口
type UpdateProjectRequest struct {
	Name       *string  `json:"name"        binding:"omitempty,min=1,max=200"`
	Color      *string  `json:"color"       binding:"omitempty,hexcolor"`
	HourlyRate *float64 `json:"hourly_rate" binding:"omitempty,gte=0"`
}

// ProjectListRequest 项目列表查询参数
type ProjectListRequest struct {
	IncludeArchived bool `form:"include_archived"`
}

// ProjectResponse 项目信息；hourly_rate 仅 owner/admin 可见
type ProjectResponse struct {
	ID                  string   `json:"id"`
	Name                string   `json:"name"`
	Color               string   `json:"color"`
	HourlyRate          *float64 `json:"hourly_rate,omitempty"`
	Status              string   `json:"status"`
	TotalTasks          int64    `json:"total_tasks"`
	CompletedTasks      int64    `json:"completed_tasks"`
	Progress            int      `json:"progress"` // 已完成任务百分比，取整
	TotalEstimatedHours float64  `json:"total_estimated_hours"`
	CreatedAt           string   `json:"created_at"`
	UpdatedAt           string   `json:"updated_at"`
}

// ── 任务 ──

// CreateTaskRequest 创建任务请求
type CreateTaskRequest struct {
	Name           string   `json:"name"            binding:"required,min=1,max=200"`
	Description    *string  `json:"description"     binding:"omitempty,max=2000"`
	EstimatedHours *float64 `json:"estimated_hours" binding:"omitempty,gte=0"`
}

// UpdateTaskRequest 更新任务请求
type UpdateTaskRequest struct {
	Name           *string  `json:"name"            binding:"omitempty,min=1,max=200"`
	Description    *string  `json:"description"     binding:"omitempty,max=2000"`
	EstimatedHours *float64 `json:"estimated_hours" binding:"omitempty,gte=0"`
	Status         *string  `json:"status"          binding:"omitempty,oneof=active completed archived"`
}

// TaskResponse 任务信息
type TaskResponse struct {
	ID             string   `json:"id"`
	ProjectID      string   `json:"project_id"`
	Name           string   `json:"name"`
	Description    *string  `json:"description,omitempty"`
	EstimatedHours *float64 `json:"estimated_hours,omitempty"`
	Status         string   `json:"status"`
	CreatedAt      string   `json:"created_at"`
	UpdatedAt      string   `json:"updated_at"`
}
