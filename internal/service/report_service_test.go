package service

import (
	"context"
	"encoding/csv"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"tempora/backend/internal/dto"
	"tempora/backend/internal/model"
	"tempora/backend/internal/repository"
)

// ── 测试辅助 ──

func setupTestReportService() (ReportService, *mockTimeEntryRepo) {
	entries := newMockTimeEntryRepo()
	web := &model.Project{ProjectID: "p-web", Name: "Web", HourlyRate: 40, Color: strPtr("#0ea5e9")}
	ops := &model.Project{ProjectID: "p-ops", Name: "Ops", HourlyRate: 25}

	day := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	entries.add(&model.TimeEntry{
		UserID: "user-1", OrganizationID: "org-1", ProjectID: strPtr("p-web"), Project: web,
		User: &model.User{FullName: "Ana"}, ClockIn: day, Date: day,
		Status: model.TimeEntryStatusCompleted, TotalHours: floatPtr(1.5),
	})
	entries.add(&model.TimeEntry{
		UserID: "user-2", OrganizationID: "org-1", ProjectID: strPtr("p-web"), Project: web,
		User: &model.User{FullName: "Luis"}, ClockIn: day.Add(24 * time.Hour), Date: day.Add(24 * time.Hour),
		Status: model.TimeEntryStatusCompleted, TotalHours: floatPtr(2),
	})
	entries.add(&model.TimeEntry{
		UserID: "user-2", OrganizationID: "org-1", ProjectID: strPtr("p-ops"), Project: ops,
		ClockIn: day.Add(48 * time.Hour), Date: day.Add(48 * time.Hour),
		Status: model.TimeEntryStatusCompleted, TotalHours: floatPtr(0.33),
	})
	entries.add(&model.TimeEntry{
		UserID: "user-1", OrganizationID: "org-1",
		ClockIn: day.Add(72 * time.Hour), Date: day.Add(72 * time.Hour),
		Status: model.TimeEntryStatusActive,
	})
	entries.add(&model.TimeEntry{
		UserID: "user-9", OrganizationID: "org-other",
		ClockIn: day, Date: day, Status: model.TimeEntryStatusCompleted, TotalHours: floatPtr(8),
	})

	repo := &repository.Repository{TimeEntry: entries}
	return NewReportService(repo, time.UTC, zap.NewNop()), entries
}

var adminCaller = Caller{UserID: "user-1", OrganizationID: "org-1", Role: model.RoleAdmin}

// ── 测试 ──

func TestReportService_AdminSeesFinancials(t *testing.T) {
	svc, _ := setupTestReportService()

	report, err := svc.Generate(context.Background(), adminCaller, &dto.ReportRequest{})
	if err != nil {
		t.Fatalf("Generate 应成功: %v", err)
	}

	if len(report.Rows) != 4 {
		t.Fatalf("应只包含本组织的 4 条记录，实际 %d", len(report.Rows))
	}
	if report.TotalHours != 3.83 {
		t.Errorf("期望总工时 3.83，实际 %v", report.TotalHours)
	}
	// 1.5*40 + 2*40 + 0.33*25 = 60 + 80 + 8.25
	if report.TotalRevenue == nil || *report.TotalRevenue != 148.25 {
		t.Errorf("期望总收入 148.25，实际 %v", report.TotalRevenue)
	}
	if report.ByProject[0].ProjectName != "Web" || report.ByProject[0].Hours != 3.5 {
		t.Errorf("按项目汇总应以 Web 居首，实际 %+v", report.ByProject[0])
	}

	unassigned := report.Rows[0]
	if unassigned.ProjectName != "未分配项目" || unassigned.UserName != "未知用户" || unassigned.TotalHours != 0 {
		t.Errorf("缺失关联时应使用默认值，实际 %+v", unassigned)
	}
}

func TestReportService_MemberSeesOnlyOwnRows(t *testing.T) {
	svc, entries := setupTestReportService()
	member := Caller{UserID: "user-2", OrganizationID: "org-1", Role: model.RoleMember}

	report, err := svc.Generate(context.Background(), member, &dto.ReportRequest{UserID: "user-1"})
	if err != nil {
		t.Fatalf("Generate 应成功: %v", err)
	}

	if entries.lastFilter.UserID != "user-2" {
		t.Errorf("成员查询应强制限定为本人，实际 %s", entries.lastFilter.UserID)
	}
	for _, row := range report.Rows {
		if row.UserID != "user-2" {
			t.Errorf("不应看到他人记录: %+v", row)
		}
		if row.Revenue != nil || row.HourlyRate != nil {
			t.Error("成员不应看到费率与收入")
		}
	}
	if report.TotalRevenue != nil {
		t.Error("成员不应看到总收入")
	}
}

func TestReportService_DateRange(t *testing.T) {
	svc, entries := setupTestReportService()

	report, err := svc.Generate(context.Background(), adminCaller, &dto.ReportRequest{
		StartDate: "2026-03-03",
		EndDate:   "2026-03-03",
	})
	if err != nil {
		t.Fatalf("Generate 应成功: %v", err)
	}

	if len(report.Rows) != 1 || report.Rows[0].UserName != "Luis" {
		t.Errorf("应只返回 3 月 3 日的记录，实际 %+v", report.Rows)
	}
	wantTo := time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC).Add(-time.Nanosecond)
	if !entries.lastFilter.To.Equal(wantTo) {
		t.Errorf("结束日期应取当日末尾，实际 %v", entries.lastFilter.To)
	}
}

func TestReportService_InvalidRange(t *testing.T) {
	svc, _ := setupTestReportService()

	_, err := svc.Generate(context.Background(), adminCaller, &dto.ReportRequest{
		StartDate: "2026-03-05",
		EndDate:   "2026-03-01",
	})

	if !errors.Is(err, ErrInvalidDateRange) {
		t.Errorf("期望 ErrInvalidDateRange，实际 %v", err)
	}
}

func TestReportService_StoreError(t *testing.T) {
	svc, entries := setupTestReportService()
	entries.err = errors.New("db down")

	if _, err := svc.Generate(context.Background(), adminCaller, &dto.ReportRequest{}); err == nil {
		t.Error("查询失败应返回错误")
	}
}

// ── CSV 导出 ──

func readExport(t *testing.T, svc ReportService, caller Caller) ([][]string, string) {
	t.Helper()
	buf, filename, err := svc.ExportCSV(context.Background(), caller, &dto.ReportRequest{})
	if err != nil {
		t.Fatalf("ExportCSV 应成功: %v", err)
	}
	content := strings.TrimPrefix(buf.String(), "\ufeff")
	records, err := csv.NewReader(strings.NewReader(content)).ReadAll()
	if err != nil {
		t.Fatalf("CSV 解析失败: %v", err)
	}
	return records, filename
}

func TestReportService_ExportCSV_AdminColumns(t *testing.T) {
	svc, _ := setupTestReportService()

	records, filename := readExport(t, svc, adminCaller)

	want := []string{"日期", "成员", "项目", "任务", "开始时间", "结束时间", "总工时", "每小时费率", "收入", "状态"}
	if strings.Join(records[0], ",") != strings.Join(want, ",") {
		t.Errorf("表头错误: %v", records[0])
	}
	if len(records) != 5 {
		t.Fatalf("期望表头 + 4 行，实际 %d", len(records))
	}
	if !strings.HasPrefix(filename, "工时报表_") || !strings.HasSuffix(filename, ".csv") {
		t.Errorf("文件名错误: %s", filename)
	}

	var web []string
	for _, r := range records[1:] {
		if r[1] == "Ana" {
			web = r
		}
	}
	if web == nil {
		t.Fatal("缺少 Ana 的记录")
	}
	if web[2] != "Web" || web[4] != "09:00" || web[6] != "1.50" || web[7] != "40.00" || web[8] != "60.00" || web[9] != "已完成" {
		t.Errorf("明细行错误: %v", web)
	}

	active := records[1]
	if active[5] != "-" || active[9] != "进行中" {
		t.Errorf("进行中的记录结束时间应为 -，实际 %v", active)
	}
}

func TestReportService_ExportCSV_MemberWithoutFinancials(t *testing.T) {
	svc, _ := setupTestReportService()
	member := Caller{UserID: "user-2", OrganizationID: "org-1", Role: model.RoleMember}

	records, _ := readExport(t, svc, member)

	if len(records[0]) != 8 {
		t.Fatalf("成员导出不应包含费率与收入列，实际表头 %v", records[0])
	}
	for _, r := range records[0] {
		if r == "收入" || r == "每小时费率" {
			t.Errorf("成员导出出现财务列: %s", r)
		}
	}
	for _, r := range records[1:] {
		if r[1] == "Ana" {
			t.Errorf("成员不应导出他人记录: %v", r)
		}
	}
}
