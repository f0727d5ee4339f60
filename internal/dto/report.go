package dto

import "time"

// ── 报表模块 DTO ──

// ReportRequest 报表查询条件，日期为 YYYY-MM-DD，均可为空
type ReportRequest struct {
	StartDate string `form:"start_date" binding:"omitempty,datetime=2006-01-02"`
	EndDate   string `form:"end_date"   binding:"omitempty,datetime=2006-01-02"`
	ProjectID string `form:"project_id" binding:"omitempty,uuid"`
	UserID    string `form:"user_id"    binding:"omitempty,uuid"`
	TaskID    string `form:"task_id"    binding:"omitempty,uuid"`
}

// ReportRow 报表明细行
// 普通成员看不到 HourlyRate 与 Revenue
type ReportRow struct {
	ID             string     `json:"id"`
	Date           string     `json:"date"`
	UserID         string     `json:"user_id"`
	UserName       string     `json:"user_name"`
	ProjectID      *string    `json:"project_id"`
	ProjectName    string     `json:"project_name"`
	ProjectColor   string     `json:"project_color,omitempty"`
	TaskName       string     `json:"task_name,omitempty"`
	EstimatedHours *float64   `json:"estimated_hours,omitempty"`
	ClockIn        time.Time  `json:"clock_in"`
	ClockOut       *time.Time `json:"clock_out"`
	Status         string     `json:"status"`
	TotalHours     float64    `json:"total_hours"`
	HourlyRate     *float64   `json:"hourly_rate,omitempty"`
	Revenue        *float64   `json:"revenue,omitempty"`
}

// ProjectSummary 按项目汇总
type ProjectSummary struct {
	ProjectID   string   `json:"project_id"`
	ProjectName string   `json:"project_name"`
	Hours       float64  `json:"hours"`
	Revenue     *float64 `json:"revenue,omitempty"`
}

// ReportResponse 报表结果
type ReportResponse struct {
	Rows         []ReportRow      `json:"rows"`
	TotalHours   float64          `json:"total_hours"`
	TotalRevenue *float64         `json:"total_revenue,omitempty"`
	ByProject    []ProjectSummary `json:"by_project"`
}
