package dto

import "time"

// ── 计时模块 DTO ──

// ClockInRequest 开始计时请求，项目与任务均可为空
type ClockInRequest struct {
	ProjectID string `json:"project_id" binding:"omitempty,uuid"`
	TaskID    string `json:"task_id"    binding:"omitempty,uuid"`
}

// FixZombieRequest 修正遗忘计时的结束时间（RFC 3339）
type FixZombieRequest struct {
	EndTime time.Time `json:"end_time" binding:"required"`
}

// VisibilityRequest 客户端可见性上报
type VisibilityRequest struct {
	Visible *bool `json:"visible" binding:"required"`
}

// ── 计时模块响应 ──

// TimeEntryResponse 计时记录
type TimeEntryResponse struct {
	ID           string     `json:"id"`
	ProjectID    *string    `json:"project_id"`
	ProjectName  string     `json:"project_name,omitempty"`
	ProjectColor string     `json:"project_color,omitempty"`
	TaskID       *string    `json:"task_id"`
	TaskName     string     `json:"task_name,omitempty"`
	ClockIn      time.Time  `json:"clock_in"`
	ClockOut     *time.Time `json:"clock_out"`
	Date         string     `json:"date"`
	Status       string     `json:"status"`
	TotalHours   *float64   `json:"total_hours"`
	Notes        *string    `json:"notes,omitempty"`
}

// ZombieResponse 待用户处理的遗忘计时
type ZombieResponse struct {
	Entry            TimeEntryResponse `json:"entry"`
	HoursRunning     int64             `json:"hours_running"`
	SuggestedEndTime time.Time         `json:"suggested_end_time"`
}

// TimerStateResponse 计时器状态
type TimerStateResponse struct {
	Phase          string             `json:"phase"` // idle | running | paused
	ActiveEntry    *TimeEntryResponse `json:"active_entry"`
	Zombie         *ZombieResponse    `json:"zombie,omitempty"`
	ElapsedSeconds int64              `json:"elapsed_seconds"`
	IsLoading      bool               `json:"is_loading"`
	Visible        bool               `json:"visible"`
}

// ClockOutResponse 结束计时结果
type ClockOutResponse struct {
	TotalHours float64            `json:"total_hours"`
	State      TimerStateResponse `json:"state"`
}
