package handler

import (
	"github.com/gin-gonic/gin"

	"tempora/backend/internal/dto"
	"tempora/backend/internal/service"
	"tempora/backend/pkg/response"
)

// TimeEntryHandler 计时记录 HTTP 处理器
type TimeEntryHandler struct {
	entrySvc service.TimeEntryService
}

// NewTimeEntryHandler 创建 TimeEntryHandler
func NewTimeEntryHandler(entrySvc service.TimeEntryService) *TimeEntryHandler {
	return &TimeEntryHandler{entrySvc: entrySvc}
}

// List 当前用户的计时记录
// GET /api/v1/time-entries
func (h *TimeEntryHandler) List(c *gin.Context) {
	var page dto.PaginationRequest
	if err := c.ShouldBindQuery(&page); err != nil {
		response.BadRequest(c, response.CodeInvalidParams, "分页参数无效")
		return
	}

	userID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	list, total, err := h.entrySvc.List(c.Request.Context(), userID, &page)
	if err != nil {
		response.InternalError(c)
		return
	}

	response.OKPage(c, list, total, page.GetPage(), page.GetPageSize())
}
