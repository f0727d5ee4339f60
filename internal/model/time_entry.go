package model

import "time"

// 计时记录状态
const (
	TimeEntryStatusActive    = "active"
	TimeEntryStatusPaused    = "paused"
	TimeEntryStatusCompleted = "completed"
)

// TimeEntry 计时记录表，对应 time_entries
// ClockOut 与 TotalHours 仅在 completed 状态下有值
type TimeEntry struct {
	ID             string     `gorm:"column:id;type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	UserID         string     `gorm:"type:uuid;not null"                                       json:"user_id"`
	OrganizationID string     `gorm:"type:uuid;not null"                                       json:"organization_id"`
	ProjectID      *string    `gorm:"type:uuid"                                                json:"project_id"`
	TaskID         *string    `gorm:"type:uuid"                                                json:"task_id"`
	ClockIn        time.Time  `gorm:"not null"                                                 json:"clock_in"`
	ClockOut       *time.Time `json:"clock_out"`
	Date           time.Time  `gorm:"column:date;type:date;not null"                           json:"date"`
	Status         string     `gorm:"type:varchar(20);not null;default:'active'"               json:"status"` // active | paused | completed
	TotalHours     *float64   `gorm:"type:numeric(10,2)"                                       json:"total_hours"`
	Notes          *string    `gorm:"type:text"                                                json:"notes,omitempty"`
	BaseModel

	// 关联（只读）
	Project *Project `gorm:"foreignKey:ProjectID;references:ProjectID" json:"project,omitempty"`
	Task    *Task    `gorm:"foreignKey:TaskID;references:TaskID"       json:"task,omitempty"`
	User    *User    `gorm:"foreignKey:UserID;references:UserID"       json:"user,omitempty"`
}

// TableName 指定表名
func (TimeEntry) TableName() string { return "time_entries" }

// IsOpen 是否处于 active 或 paused
func (e *TimeEntry) IsOpen() bool {
	return e.Status == TimeEntryStatusActive || e.Status == TimeEntryStatusPaused
}

// OpenStatuses 未结束的状态集合
func OpenStatuses() []string {
	return []string{TimeEntryStatusActive, TimeEntryStatusPaused}
}
