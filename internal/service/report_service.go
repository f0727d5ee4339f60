package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"time"

	"go.uber.org/zap"

	"tempora/backend/internal/dto"
	"tempora/backend/internal/model"
	"tempora/backend/internal/repository"
)

var (
	ErrInvalidDateRange   = errors.New("开始日期不能晚于结束日期")
	ErrExportGenerateFail = errors.New("生成导出文件失败")
)

const (
	unknownUserName    = "未知用户"
	unassignedProject  = "未分配项目"
	defaultProjectHint = "#cbd5e1"
)

// Caller 调用方身份（报表、项目等组织内接口共用）
type Caller struct {
	UserID         string
	OrganizationID string
	Role           string
}

// CanSeeFinancials 只有 owner/admin 可见费率与收入
func (c Caller) CanSeeFinancials() bool {
	return model.IsManagerRole(c.Role)
}

// ReportService 组织报表接口
type ReportService interface {
	Generate(ctx context.Context, caller Caller, req *dto.ReportRequest) (*dto.ReportResponse, error)
	// ExportCSV 导出报表明细为 CSV，费率与收入列仅 owner/admin 可见
	ExportCSV(ctx context.Context, caller Caller, req *dto.ReportRequest) (*bytes.Buffer, string, error)
}

type reportService struct {
	repo   *repository.Repository
	loc    *time.Location
	logger *zap.Logger
}

// NewReportService 创建 ReportService 实例
// loc 决定日期筛选的自然日边界，nil 时按 UTC
func NewReportService(repo *repository.Repository, loc *time.Location, logger *zap.Logger) ReportService {
	if loc == nil {
		loc = time.UTC
	}
	return &reportService{repo: repo, loc: loc, logger: logger}
}

func (s *reportService) Generate(ctx context.Context, caller Caller, req *dto.ReportRequest) (*dto.ReportResponse, error) {
	entries, err := s.listEntries(ctx, caller, req)
	if err != nil {
		return nil, err
	}
	return buildReport(entries, caller.CanSeeFinancials()), nil
}

// ExportCSV 按与 Generate 相同的筛选导出明细
// 返回值：buf（CSV 内容）, filename（建议文件名）, error
func (s *reportService) ExportCSV(ctx context.Context, caller Caller, req *dto.ReportRequest) (*bytes.Buffer, string, error) {
	entries, err := s.listEntries(ctx, caller, req)
	if err != nil {
		return nil, "", err
	}
	report := buildReport(entries, caller.CanSeeFinancials())

	buf := new(bytes.Buffer)
	buf.WriteString("\ufeff") // Excel 依赖 BOM 识别 UTF-8
	if err := writeReportCSV(buf, report.Rows, caller.CanSeeFinancials(), s.loc); err != nil {
		s.logger.Error("生成 CSV 失败", zap.Error(err))
		return nil, "", ErrExportGenerateFail
	}

	filename := fmt.Sprintf("工时报表_%s.csv", time.Now().In(s.loc).Format("20060102_1504"))
	return buf, filename, nil
}

// listEntries 组装组织内筛选条件并查询；普通成员只能看自己的记录
func (s *reportService) listEntries(ctx context.Context, caller Caller, req *dto.ReportRequest) ([]model.TimeEntry, error) {
	filter := repository.ReportFilter{
		OrganizationID: caller.OrganizationID,
		ProjectID:      req.ProjectID,
		UserID:         req.UserID,
		TaskID:         req.TaskID,
	}

	if !caller.CanSeeFinancials() {
		filter.UserID = caller.UserID
	}

	if req.StartDate != "" {
		from, err := time.ParseInLocation("2006-01-02", req.StartDate, s.loc)
		if err != nil {
			return nil, ErrInvalidDateRange
		}
		filter.From = &from
	}
	if req.EndDate != "" {
		day, err := time.ParseInLocation("2006-01-02", req.EndDate, s.loc)
		if err != nil {
			return nil, ErrInvalidDateRange
		}
		to := day.AddDate(0, 0, 1).Add(-time.Nanosecond)
		filter.To = &to
	}
	if filter.From != nil && filter.To != nil && filter.From.After(*filter.To) {
		return nil, ErrInvalidDateRange
	}

	entries, err := s.repo.TimeEntry.ListForReport(ctx, filter)
	if err != nil {
		s.logger.Error("查询报表数据失败",
			zap.String("organization_id", caller.OrganizationID),
			zap.Error(err),
		)
		return nil, err
	}
	return entries, nil
}

func buildReport(entries []model.TimeEntry, financials bool) *dto.ReportResponse {
	resp := &dto.ReportResponse{Rows: make([]dto.ReportRow, 0, len(entries))}

	var totalRevenue float64
	byProject := make(map[string]*dto.ProjectSummary)
	projectRevenue := make(map[string]float64)
	var order []string

	for i := range entries {
		e := &entries[i]
		row := dto.ReportRow{
			ID:          e.ID,
			Date:        e.Date.Format("2006-01-02"),
			UserID:      e.UserID,
			UserName:    unknownUserName,
			ProjectID:   e.ProjectID,
			ProjectName: unassignedProject,
			ClockIn:     e.ClockIn,
			ClockOut:    e.ClockOut,
			Status:      e.Status,
		}
		if e.TotalHours != nil {
			row.TotalHours = *e.TotalHours
		}
		if e.User != nil && e.User.FullName != "" {
			row.UserName = e.User.FullName
		}
		if e.Task != nil {
			row.TaskName = e.Task.Name
			row.EstimatedHours = e.Task.EstimatedHours
		}

		var rate float64
		row.ProjectColor = defaultProjectHint
		if e.Project != nil {
			row.ProjectName = e.Project.Name
			rate = e.Project.HourlyRate
			if e.Project.Color != nil {
				row.ProjectColor = *e.Project.Color
			}
		}

		revenue := round2(row.TotalHours * rate)
		if financials {
			row.HourlyRate = &rate
			row.Revenue = &revenue
		}
		resp.Rows = append(resp.Rows, row)

		resp.TotalHours += row.TotalHours
		totalRevenue += revenue

		key := ""
		if e.ProjectID != nil {
			key = *e.ProjectID
		}
		sum, ok := byProject[key]
		if !ok {
			sum = &dto.ProjectSummary{ProjectID: key, ProjectName: row.ProjectName}
			byProject[key] = sum
			order = append(order, key)
		}
		sum.Hours += row.TotalHours
		projectRevenue[key] += revenue
	}

	resp.TotalHours = round2(resp.TotalHours)
	if financials {
		tr := round2(totalRevenue)
		resp.TotalRevenue = &tr
	}

	resp.ByProject = make([]dto.ProjectSummary, 0, len(order))
	for _, key := range order {
		sum := byProject[key]
		sum.Hours = round2(sum.Hours)
		if financials {
			r := round2(projectRevenue[key])
			sum.Revenue = &r
		}
		resp.ByProject = append(resp.ByProject, *sum)
	}
	sort.SliceStable(resp.ByProject, func(i, j int) bool {
		return resp.ByProject[i].Hours > resp.ByProject[j].Hours
	})

	return resp
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// ── CSV 导出 ──

var (
	csvHeader          = []string{"日期", "成员", "项目", "任务", "开始时间", "结束时间", "总工时"}
	csvFinancialHeader = []string{"每小时费率", "收入"}
)

func writeReportCSV(w io.Writer, rows []dto.ReportRow, financials bool, loc *time.Location) error {
	cw := csv.NewWriter(w)

	header := append([]string{}, csvHeader...)
	if financials {
		header = append(header, csvFinancialHeader...)
	}
	header = append(header, "状态")
	if err := cw.Write(header); err != nil {
		return err
	}

	for _, row := range rows {
		clockOut := "-"
		if row.ClockOut != nil {
			clockOut = row.ClockOut.In(loc).Format("15:04")
		}
		record := []string{
			row.Date,
			row.UserName,
			row.ProjectName,
			row.TaskName,
			row.ClockIn.In(loc).Format("15:04"),
			clockOut,
			strconv.FormatFloat(row.TotalHours, 'f', 2, 64),
		}
		if financials {
			record = append(record, formatMoney(row.HourlyRate), formatMoney(row.Revenue))
		}
		record = append(record, entryStatusLabel(row.Status))
		if err := cw.Write(record); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

func formatMoney(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', 2, 64)
}

func entryStatusLabel(status string) string {
	if status == model.TimeEntryStatusCompleted {
		return "已完成"
	}
	return "进行中"
}
