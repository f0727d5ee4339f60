package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"tempora/backend/internal/dto"
	"tempora/backend/internal/service"
	"tempora/backend/internal/tracking"
	"tempora/backend/pkg/response"
)

// sseHeartbeat 事件流心跳间隔，防止代理因空闲断开连接
const sseHeartbeat = 25 * time.Second

// TimerHandler 计时模块 HTTP 处理器
type TimerHandler struct {
	timerSvc  service.TimerService
	logger    *zap.Logger
	heartbeat time.Duration
}

// NewTimerHandler 创建 TimerHandler
func NewTimerHandler(timerSvc service.TimerService, logger *zap.Logger) *TimerHandler {
	return &TimerHandler{timerSvc: timerSvc, logger: logger, heartbeat: sseHeartbeat}
}

// GetState 获取计时器状态
// GET /api/v1/timer
func (h *TimerHandler) GetState(c *gin.Context) {
	sess, ok := sessionFrom(c)
	if !ok {
		return
	}

	st, err := h.timerSvc.State(c.Request.Context(), sess)
	if err != nil {
		h.handleTimerError(c, err)
		return
	}

	response.OK(c, st)
}

// Refresh 重新拉取进行中的记录（含遗忘计时检测）
// POST /api/v1/timer/refresh
func (h *TimerHandler) Refresh(c *gin.Context) {
	sess, ok := sessionFrom(c)
	if !ok {
		return
	}

	st, err := h.timerSvc.Refresh(c.Request.Context(), sess)
	if err != nil {
		h.handleTimerError(c, err)
		return
	}

	response.OK(c, st)
}

// ClockIn 开始计时
// POST /api/v1/timer/clock-in
func (h *TimerHandler) ClockIn(c *gin.Context) {
	var req dto.ClockInRequest
	// 请求体可为空
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, response.CodeInvalidParams, "参数校验失败")
			return
		}
	}

	sess, ok := sessionFrom(c)
	if !ok {
		return
	}

	st, err := h.timerSvc.ClockIn(c.Request.Context(), sess, &req)
	if err != nil {
		h.handleTimerError(c, err)
		return
	}

	response.OK(c, st)
}

// ClockOut 结束计时
// POST /api/v1/timer/clock-out
func (h *TimerHandler) ClockOut(c *gin.Context) {
	sess, ok := sessionFrom(c)
	if !ok {
		return
	}

	result, err := h.timerSvc.ClockOut(c.Request.Context(), sess)
	if err != nil {
		h.handleTimerError(c, err)
		return
	}

	response.OK(c, result)
}

// TogglePause 暂停 / 恢复
// POST /api/v1/timer/pause
func (h *TimerHandler) TogglePause(c *gin.Context) {
	sess, ok := sessionFrom(c)
	if !ok {
		return
	}

	st, err := h.timerSvc.TogglePause(c.Request.Context(), sess)
	if err != nil {
		h.handleTimerError(c, err)
		return
	}

	response.OK(c, st)
}

// SetVisibility 上报客户端可见性
// PUT /api/v1/timer/visibility
func (h *TimerHandler) SetVisibility(c *gin.Context) {
	var req dto.VisibilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, response.CodeInvalidParams, "参数校验失败")
		return
	}

	sess, ok := sessionFrom(c)
	if !ok {
		return
	}

	st, err := h.timerSvc.SetVisibility(c.Request.Context(), sess, *req.Visible)
	if err != nil {
		h.handleTimerError(c, err)
		return
	}

	response.OK(c, st)
}

// KeepZombie 保留长时间未结束的计时
// POST /api/v1/timer/zombie/keep
func (h *TimerHandler) KeepZombie(c *gin.Context) {
	sess, ok := sessionFrom(c)
	if !ok {
		return
	}

	st, err := h.timerSvc.KeepZombie(c.Request.Context(), sess)
	if err != nil {
		h.handleTimerError(c, err)
		return
	}

	response.OK(c, st)
}

// FixZombie 以指定结束时间修正遗忘计时
// POST /api/v1/timer/zombie/fix
func (h *TimerHandler) FixZombie(c *gin.Context) {
	var req dto.FixZombieRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithDetails(c, http.StatusBadRequest, response.CodeInvalidParams, "结束时间格式无效", err.Error())
		return
	}

	sess, ok := sessionFrom(c)
	if !ok {
		return
	}

	st, err := h.timerSvc.FixZombie(c.Request.Context(), sess, req.EndTime)
	if err != nil {
		h.handleTimerError(c, err)
		return
	}

	response.OK(c, st)
}

// Events 实时事件流（SSE）
// GET /api/v1/timer/events
func (h *TimerHandler) Events(c *gin.Context) {
	sess, ok := sessionFrom(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	events, cancel, err := h.timerSvc.Subscribe(ctx, sess)
	if err != nil {
		h.handleTimerError(c, err)
		return
	}
	defer cancel()

	st, err := h.timerSvc.State(ctx, sess)
	if err != nil {
		h.handleTimerError(c, err)
		return
	}

	c.Header("X-Accel-Buffering", "no")
	c.SSEvent(string(tracking.EventState), st)
	c.Writer.Flush()

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			writeEvent(c, ev)
		case now := <-heartbeat.C:
			c.SSEvent("ping", gin.H{"at": now.UTC()})
		}
		c.Writer.Flush()
	}
}

func writeEvent(c *gin.Context, ev tracking.Event) {
	switch {
	case ev.State != nil:
		c.SSEvent(string(tracking.EventState), service.StateResponse(*ev.State))
	case ev.Notification != nil:
		c.SSEvent(string(tracking.EventNotification), ev.Notification)
	}
}

// handleTimerError 统一处理计时模块业务错误
// 存储失败统一提示重试，原始错误已在计时器内记录
func (h *TimerHandler) handleTimerError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, tracking.ErrContextMissing):
		response.Unauthorized(c, 12001, "缺少用户或组织上下文，请重新登录")
	case errors.Is(err, tracking.ErrNoPendingZombie):
		response.Conflict(c, 12002, "没有待处理的遗忘计时")
	case errors.Is(err, tracking.ErrInvalidCorrection):
		response.Unprocessable(c, 12003, "结束时间不能早于开始时间")
	case errors.Is(err, service.ErrProjectNotFound):
		response.NotFound(c, 14001, "项目不存在")
	case errors.Is(err, service.ErrProjectArchived):
		response.Unprocessable(c, 14002, "项目已归档，不能开始计时")
	case errors.Is(err, service.ErrTaskNotInProject):
		response.Unprocessable(c, 14004, "任务不属于所选项目")
	default:
		h.logger.Warn("计时操作失败", zap.String("path", c.FullPath()), zap.Error(err))
		response.Error(c, http.StatusInternalServerError, response.CodeInternal, "操作失败，请重试")
	}
}
