package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"tempora/backend/internal/dto"
	"tempora/backend/internal/service"
	"tempora/backend/pkg/response"
)

// ProjectHandler 项目与任务 HTTP 处理器
type ProjectHandler struct {
	projectSvc service.ProjectService
}

// NewProjectHandler 创建 ProjectHandler
func NewProjectHandler(projectSvc service.ProjectService) *ProjectHandler {
	return &ProjectHandler{projectSvc: projectSvc}
}

// ListProjects 获取当前组织的项目列表
// GET /api/v1/projects
func (h *ProjectHandler) ListProjects(c *gin.Context) {
	var req dto.ProjectListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, response.CodeInvalidParams, "参数校验失败")
		return
	}

	caller, ok := callerFrom(c)
	if !ok {
		return
	}

	projects, err := h.projectSvc.List(c.Request.Context(), caller, &req)
	if err != nil {
		h.handleProjectError(c, err)
		return
	}

	response.OK(c, gin.H{"list": projects})
}

// CreateProject 创建项目
// POST /api/v1/projects
func (h *ProjectHandler) CreateProject(c *gin.Context) {
	var req dto.CreateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, response.CodeInvalidParams, "参数校验失败")
		return
	}

	caller, ok := callerFrom(c)
	if !ok {
		return
	}

	project, err := h.projectSvc.Create(c.Request.Context(), caller, &req)
	if err != nil {
		h.handleProjectError(c, err)
		return
	}

	response.Created(c, project)
}

// UpdateProject 更新项目
// PUT /api/v1/projects/:id
func (h *ProjectHandler) UpdateProject(c *gin.Context) {
	var req dto.UpdateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, response.CodeInvalidParams, "参数校验失败")
		return
	}

	caller, ok := callerFrom(c)
	if !ok {
		return
	}

	project, err := h.projectSvc.Update(c.Request.Context(), caller, c.Param("id"), &req)
	if err != nil {
		h.handleProjectError(c, err)
		return
	}

	response.OK(c, project)
}

// ArchiveProject 归档项目
// POST /api/v1/projects/:id/archive
func (h *ProjectHandler) ArchiveProject(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		return
	}

	project, err := h.projectSvc.Archive(c.Request.Context(), caller, c.Param("id"))
	if err != nil {
		h.handleProjectError(c, err)
		return
	}

	response.OK(c, project)
}

// ListTasks 获取项目下的任务
// GET /api/v1/projects/:id/tasks
func (h *ProjectHandler) ListTasks(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		return
	}

	tasks, err := h.projectSvc.ListTasks(c.Request.Context(), caller, c.Param("id"))
	if err != nil {
		h.handleProjectError(c, err)
		return
	}

	response.OK(c, gin.H{"list": tasks})
}

// CreateTask 创建任务
// POST /api/v1/projects/:id/tasks
func (h *ProjectHandler) CreateTask(c *gin.Context) {
	var req dto.CreateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, response.CodeInvalidParams, "参数校验失败")
		return
	}

	caller, ok := callerFrom(c)
	if !ok {
		return
	}

	task, err := h.projectSvc.CreateTask(c.Request.Context(), caller, c.Param("id"), &req)
	if err != nil {
		h.handleProjectError(c, err)
		return
	}

	response.Created(c, task)
}

// UpdateTask 更新任务（含状态流转）
// PUT /api/v1/projects/:id/tasks/:task_id
func (h *ProjectHandler) UpdateTask(c *gin.Context) {
	var req dto.UpdateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, response.CodeInvalidParams, "参数校验失败")
		return
	}

	caller, ok := callerFrom(c)
	if !ok {
		return
	}

	task, err := h.projectSvc.UpdateTask(c.Request.Context(), caller, c.Param("id"), c.Param("task_id"), &req)
	if err != nil {
		h.handleProjectError(c, err)
		return
	}

	response.OK(c, task)
}

// handleProjectError 统一处理项目模块业务错误
func (h *ProjectHandler) handleProjectError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrProjectNotFound):
		response.NotFound(c, 14001, "项目不存在")
	case errors.Is(err, service.ErrProjectArchived):
		response.Unprocessable(c, 14002, "项目已归档")
	case errors.Is(err, service.ErrTaskNotFound):
		response.NotFound(c, 14003, "任务不存在")
	default:
		response.InternalError(c)
	}
}
