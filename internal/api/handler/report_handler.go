package handler

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"

	"tempora/backend/internal/dto"
	"tempora/backend/internal/service"
	"tempora/backend/pkg/response"
)

// ReportHandler 报表 HTTP 处理器
type ReportHandler struct {
	reportSvc service.ReportService
}

// NewReportHandler 创建 ReportHandler
func NewReportHandler(reportSvc service.ReportService) *ReportHandler {
	return &ReportHandler{reportSvc: reportSvc}
}

// GetReport 组织报表
// GET /api/v1/reports
func (h *ReportHandler) GetReport(c *gin.Context) {
	var req dto.ReportRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, response.CodeInvalidParams, "参数校验失败")
		return
	}

	caller, ok := callerFrom(c)
	if !ok {
		return
	}

	report, err := h.reportSvc.Generate(c.Request.Context(), caller, &req)
	if err != nil {
		if errors.Is(err, service.ErrInvalidDateRange) {
			response.BadRequest(c, 13001, "开始日期不能晚于结束日期")
			return
		}
		response.InternalError(c)
		return
	}

	response.OK(c, report)
}

// ExportReport 导出报表明细为 CSV，筛选条件与 GetReport 相同
// GET /api/v1/reports/export
func (h *ReportHandler) ExportReport(c *gin.Context) {
	var req dto.ReportRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, response.CodeInvalidParams, "参数校验失败")
		return
	}

	caller, ok := callerFrom(c)
	if !ok {
		return
	}

	buf, filename, err := h.reportSvc.ExportCSV(c.Request.Context(), caller, &req)
	if err != nil {
		if errors.Is(err, service.ErrInvalidDateRange) {
			response.BadRequest(c, 13001, "开始日期不能晚于结束日期")
			return
		}
		response.InternalError(c)
		return
	}

	// 设置下载响应头
	encodedFilename := url.QueryEscape(filename)
	c.Header("Content-Description", "File Transfer")
	c.Header("Content-Disposition", "attachment; filename*=UTF-8''"+encodedFilename)
	c.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}
