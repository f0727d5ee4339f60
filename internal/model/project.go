package model

// 项目状态
const (
	ProjectStatusActive   = "active"
	ProjectStatusArchived = "archived"
)

// 任务状态
const (
	TaskStatusActive    = "active"
	TaskStatusCompleted = "completed"
	TaskStatusArchived  = "archived"
)

// Project 项目表，对应 projects
type Project struct {
	ProjectID      string  `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"project_id"`
	OrganizationID string  `gorm:"type:uuid;not null"                             json:"organization_id"`
	Name           string  `gorm:"type:varchar(200);not null"                     json:"name"`
	Color          *string `gorm:"type:varchar(20)"                               json:"color,omitempty"`
	HourlyRate     float64 `gorm:"type:numeric(10,2);not null;default:0"          json:"hourly_rate"`
	Status         string  `gorm:"type:varchar(20);not null;default:'active'"     json:"status"` // active | archived
	BaseModel
}

// TableName 指定表名
func (Project) TableName() string { return "projects" }

// IsArchived 已归档的项目不能再开始计时
func (p *Project) IsArchived() bool { return p.Status == ProjectStatusArchived }

// Task 任务表，对应 tasks
type Task struct {
	TaskID         string   `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"task_id"`
	ProjectID      string   `gorm:"type:uuid;not null"                             json:"project_id"`
	Name           string   `gorm:"type:varchar(200);not null"                     json:"name"`
	Description    *string  `gorm:"type:text"                                      json:"description,omitempty"`
	EstimatedHours *float64 `gorm:"type:numeric(10,2)"                             json:"estimated_hours,omitempty"`
	Status         string   `gorm:"type:varchar(20);not null;default:'active'"     json:"status"` // active | completed | archived
	BaseModel
}

// TableName 指定表名
func (Task) TableName() string { return "tasks" }
