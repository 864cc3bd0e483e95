package jobs

import (
	"backend/internal/common"
	"backend/internal/job"
	"backend/internal/middleware"

	"github.com/gin-gonic/gin"
)

// RejectionHandler 拒单申请 Handler
type RejectionHandler struct {
	service *job.Service
}

// NewRejectionHandler 创建 RejectionHandler 实例
func NewRejectionHandler(service *job.Service) *RejectionHandler {
	return &RejectionHandler{service: service}
}

// Create 设计师发起拒单申请
// POST /api/jobs/:id/rejection-requests
func (h *RejectionHandler) Create(c *gin.Context) {
	tctx := middleware.TenantContextFromGin(c)

	var req RejectionRequestCreate
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ResponseError(c, common.CodeRejectionReasonRequired, common.GetErrorMessage(common.CodeRejectionReasonRequired))
		return
	}

	request, err := h.service.CreateRejectionRequest(c.Request.Context(), tctx, c.Param("id"), req.Reason)
	if err != nil {
		common.ResponseBusinessError(c, err)
		return
	}
	common.ResponseCreated(c, request)
}

// Get 查询拒单申请
// GET /api/rejection-requests/:id
func (h *RejectionHandler) Get(c *gin.Context) {
	tenantID := c.GetString("tenant_id")

	request, err := h.service.GetRejectionRequest(c.Request.Context(), tenantID, c.Param("id"))
	if err != nil {
		common.ResponseBusinessError(c, err)
		return
	}
	common.ResponseSuccess(c, request)
}

// Resolve 审批人裁决拒单申请
// POST /api/rejection-requests/:id/resolve
func (h *RejectionHandler) Resolve(c *gin.Context) {
	tctx := middleware.TenantContextFromGin(c)

	var req RejectionRequestResolve
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ResponseBadRequest(c, "请求参数错误: "+err.Error())
		return
	}

	request, err := h.service.ResolveRejectionRequest(c.Request.Context(), tctx, c.Param("id"), *req.Approve, req.Comment)
	if err != nil {
		common.ResponseBusinessError(c, err)
		return
	}
	common.ResponseSuccess(c, request)
}
