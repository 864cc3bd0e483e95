package assignments

import (
	"backend/internal/assignment"
	"backend/internal/common"
	"backend/internal/directory"
	"backend/internal/middleware"

	"github.com/gin-gonic/gin"
)

// RuleHandler 自动派单矩阵管理 Handler
type RuleHandler struct {
	service *assignment.Service
}

// NewRuleHandler 创建 RuleHandler 实例
func NewRuleHandler(service *assignment.Service) *RuleHandler {
	return &RuleHandler{service: service}
}

// UpsertRuleRequest 矩阵条目请求
type UpsertRuleRequest struct {
	ProjectID  string `json:"project_id" binding:"required"`
	JobTypeID  string `json:"job_type_id" binding:"required"`
	AssigneeID string `json:"assignee_id" binding:"required"`
}

// List 查询矩阵条目
// GET /api/assignment-rules
func (h *RuleHandler) List(c *gin.Context) {
	tenantID := c.GetString("tenant_id")

	var page common.PaginationRequest
	if err := c.ShouldBindQuery(&page); err != nil {
		common.ResponseBadRequest(c, "请求参数错误: "+err.Error())
		return
	}

	rules, total, err := h.service.ListRules(c.Request.Context(), tenantID, page)
	if err != nil {
		common.ResponseBusinessError(c, err)
		return
	}
	common.ResponseList(c, rules, total, &page)
}

// Upsert 新增或覆盖矩阵条目
// PUT /api/assignment-rules
func (h *RuleHandler) Upsert(c *gin.Context) {
	tctx := middleware.TenantContextFromGin(c)
	if !directory.Role(tctx.Role).CanManage() {
		common.ResponseError(c, common.CodeForbidden, common.GetErrorMessage(common.CodeForbidden))
		return
	}

	var req UpsertRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ResponseBadRequest(c, "请求参数错误: "+err.Error())
		return
	}

	rule := &assignment.Rule{
		TenantID:   tctx.TenantID,
		ProjectID:  req.ProjectID,
		JobTypeID:  req.JobTypeID,
		AssigneeID: req.AssigneeID,
	}
	if err := h.service.UpsertRule(c.Request.Context(), rule); err != nil {
		common.ResponseBusinessError(c, err)
		return
	}
	common.ResponseSuccess(c, rule)
}

// Delete 删除矩阵条目
// DELETE /api/assignment-rules/:id
func (h *RuleHandler) Delete(c *gin.Context) {
	tctx := middleware.TenantContextFromGin(c)
	if !directory.Role(tctx.Role).CanManage() {
		common.ResponseError(c, common.CodeForbidden, common.GetErrorMessage(common.CodeForbidden))
		return
	}

	if err := h.service.DeleteRule(c.Request.Context(), tctx.TenantID, c.Param("id")); err != nil {
		common.ResponseBusinessError(c, err)
		return
	}
	common.ResponseSuccessMessage(c, "派单规则已删除", nil)
}
