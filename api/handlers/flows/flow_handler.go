package flows

import (
	"backend/internal/common"
	"backend/internal/directory"
	"backend/internal/flow"
	"backend/internal/middleware"

	"github.com/gin-gonic/gin"
)

// FlowHandler 审批流模板与工单类型管理 Handler
type FlowHandler struct {
	service *flow.Service
}

// NewFlowHandler 创建 FlowHandler 实例
func NewFlowHandler(service *flow.Service) *FlowHandler {
	return &FlowHandler{service: service}
}

// CreateTemplateRequest 创建模板请求
type CreateTemplateRequest struct {
	ProjectID   string       `json:"project_id" binding:"required"`
	JobTypeID   string       `json:"job_type_id" binding:"required"`
	TotalLevels *int         `json:"total_levels" binding:"required,min=0"`
	Levels      []flow.Level `json:"levels"`
}

// JobTypeRequest 工单类型请求
type JobTypeRequest struct {
	Name          string  `json:"name" binding:"required"`
	NextJobTypeID *string `json:"next_job_type_id"`
	Active        *bool   `json:"active"`
}

func requireManage(c *gin.Context) bool {
	tctx := middleware.TenantContextFromGin(c)
	if !directory.Role(tctx.Role).CanManage() {
		common.ResponseError(c, common.CodeForbidden, common.GetErrorMessage(common.CodeForbidden))
		return false
	}
	return true
}

// ListTemplates 查询模板列表
// GET /api/flow-templates
func (h *FlowHandler) ListTemplates(c *gin.Context) {
	tenantID := c.GetString("tenant_id")

	var page common.PaginationRequest
	if err := c.ShouldBindQuery(&page); err != nil {
		common.ResponseBadRequest(c, "请求参数错误: "+err.Error())
		return
	}

	items, total, err := h.service.ListTemplates(c.Request.Context(), tenantID, page)
	if err != nil {
		common.ResponseBusinessError(c, err)
		return
	}
	common.ResponseList(c, items, total, &page)
}

// CreateTemplate 创建模板（同键旧模板自动停用）
// POST /api/flow-templates
func (h *FlowHandler) CreateTemplate(c *gin.Context) {
	if !requireManage(c) {
		return
	}
	tenantID := c.GetString("tenant_id")

	var req CreateTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ResponseBadRequest(c, "请求参数错误: "+err.Error())
		return
	}

	tpl := &flow.Template{
		TenantID:    tenantID,
		ProjectID:   req.ProjectID,
		JobTypeID:   req.JobTypeID,
		TotalLevels: *req.TotalLevels,
		Levels:      req.Levels,
	}
	if err := h.service.CreateTemplate(c.Request.Context(), tpl); err != nil {
		common.ResponseBusinessError(c, err)
		return
	}
	common.ResponseCreated(c, tpl)
}

// DisableTemplate 停用模板
// DELETE /api/flow-templates/:id
func (h *FlowHandler) DisableTemplate(c *gin.Context) {
	if !requireManage(c) {
		return
	}
	tenantID := c.GetString("tenant_id")

	if err := h.service.DisableTemplate(c.Request.Context(), tenantID, c.Param("id")); err != nil {
		common.ResponseBusinessError(c, err)
		return
	}
	common.ResponseSuccessMessage(c, "模板已停用", nil)
}

// ListJobTypes 查询工单类型
// GET /api/job-types
func (h *FlowHandler) ListJobTypes(c *gin.Context) {
	tenantID := c.GetString("tenant_id")

	types, err := h.service.ListJobTypes(c.Request.Context(), tenantID)
	if err != nil {
		common.ResponseBusinessError(c, err)
		return
	}
	common.ResponseSuccess(c, types)
}

// CreateJobType 创建工单类型
// POST /api/job-types
func (h *FlowHandler) CreateJobType(c *gin.Context) {
	if !requireManage(c) {
		return
	}
	tenantID := c.GetString("tenant_id")

	var req JobTypeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ResponseBadRequest(c, "请求参数错误: "+err.Error())
		return
	}

	jt := &flow.JobType{
		TenantID:      tenantID,
		Name:          req.Name,
		NextJobTypeID: req.NextJobTypeID,
	}
	if err := h.service.CreateJobType(c.Request.Context(), jt); err != nil {
		common.ResponseBusinessError(c, err)
		return
	}
	common.ResponseCreated(c, jt)
}

// UpdateJobType 更新工单类型（只影响之后创建的工单）
// PUT /api/job-types/:id
func (h *FlowHandler) UpdateJobType(c *gin.Context) {
	if !requireManage(c) {
		return
	}
	tenantID := c.GetString("tenant_id")

	var req JobTypeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ResponseBadRequest(c, "请求参数错误: "+err.Error())
		return
	}

	jt := &flow.JobType{
		ID:            c.Param("id"),
		Name:          req.Name,
		NextJobTypeID: req.NextJobTypeID,
		Active:        true,
	}
	if req.Active != nil {
		jt.Active = *req.Active
	}
	if err := h.service.UpdateJobType(c.Request.Context(), tenantID, jt); err != nil {
		common.ResponseBusinessError(c, err)
		return
	}
	common.ResponseSuccess(c, jt)
}
