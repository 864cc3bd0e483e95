package jobs

import (
	"backend/internal/common"
	"backend/internal/job"
	"backend/internal/middleware"

	"github.com/gin-gonic/gin"
)

// JobHandler 工单生命周期 Handler
type JobHandler struct {
	service *job.Service
}

// NewJobHandler 创建 JobHandler 实例
func NewJobHandler(service *job.Service) *JobHandler {
	return &JobHandler{service: service}
}

// List 查询工单列表
// GET /api/jobs?status=pending_approval&page=1&page_size=20
func (h *JobHandler) List(c *gin.Context) {
	tenantID := c.GetString("tenant_id")

	var req common.ListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		common.ResponseBadRequest(c, "请求参数错误: "+err.Error())
		return
	}

	items, total, err := h.service.List(c.Request.Context(), tenantID, req)
	if err != nil {
		common.ResponseBusinessError(c, err)
		return
	}
	common.ResponseList(c, items, total, &req.PaginationRequest)
}

// Get 查询单个工单
// GET /api/jobs/:id
func (h *JobHandler) Get(c *gin.Context) {
	tenantID := c.GetString("tenant_id")

	j, err := h.service.Get(c.Request.Context(), tenantID, c.Param("id"))
	if err != nil {
		common.ResponseBusinessError(c, err)
		return
	}
	common.ResponseSuccess(c, j)
}

// Create 创建草稿工单
// POST /api/jobs
func (h *JobHandler) Create(c *gin.Context) {
	tctx := middleware.TenantContextFromGin(c)

	var req CreateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ResponseBadRequest(c, "请求参数错误: "+err.Error())
		return
	}

	j := &job.Job{
		TenantID:    tctx.TenantID,
		ProjectID:   req.ProjectID,
		JobTypeID:   req.JobTypeID,
		Title:       req.Title,
		Description: req.Description,
		RequesterID: tctx.UserID,
	}
	if err := h.service.Create(c.Request.Context(), j); err != nil {
		common.ResponseBusinessError(c, err)
		return
	}
	common.ResponseCreated(c, j)
}

// CreateGroup 创建父工单及子工单
// POST /api/jobs/groups
func (h *JobHandler) CreateGroup(c *gin.Context) {
	tctx := middleware.TenantContextFromGin(c)

	var req CreateGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ResponseBadRequest(c, "请求参数错误: "+err.Error())
		return
	}

	parent := &job.Job{
		TenantID:    tctx.TenantID,
		ProjectID:   req.Parent.ProjectID,
		JobTypeID:   req.Parent.JobTypeID,
		Title:       req.Parent.Title,
		Description: req.Parent.Description,
		RequesterID: tctx.UserID,
	}
	children := make([]*job.Job, 0, len(req.Children))
	for _, item := range req.Children {
		children = append(children, &job.Job{
			TenantID:    tctx.TenantID,
			ProjectID:   item.ProjectID,
			JobTypeID:   item.JobTypeID,
			Title:       item.Title,
			Description: item.Description,
			RequesterID: tctx.UserID,
		})
	}

	if err := h.service.CreateGroup(c.Request.Context(), parent, children); err != nil {
		common.ResponseBusinessError(c, err)
		return
	}
	common.ResponseCreated(c, gin.H{"parent": parent, "children": children})
}

// Submit 提交工单进入审批
// POST /api/jobs/:id/submit
func (h *JobHandler) Submit(c *gin.Context) {
	tenantID := c.GetString("tenant_id")

	j, err := h.service.Submit(c.Request.Context(), tenantID, c.Param("id"))
	if err != nil {
		common.ResponseBusinessError(c, err)
		return
	}
	common.ResponseSuccess(c, j)
}

// Decide 记录审批决定
// POST /api/jobs/:id/decisions
func (h *JobHandler) Decide(c *gin.Context) {
	tctx := middleware.TenantContextFromGin(c)

	var req DecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ResponseBadRequest(c, "请求参数错误: "+err.Error())
		return
	}

	approval, err := h.service.RecordDecision(c.Request.Context(), tctx, c.Param("id"), req.Level, *req.Approve, req.Comment)
	if err != nil {
		common.ResponseBusinessError(c, err)
		return
	}
	common.ResponseCreated(c, approval)
}

// Start 开始执行
// POST /api/jobs/:id/start
func (h *JobHandler) Start(c *gin.Context) {
	tctx := middleware.TenantContextFromGin(c)

	j, err := h.service.Start(c.Request.Context(), tctx, c.Param("id"))
	if err != nil {
		common.ResponseBusinessError(c, err)
		return
	}
	common.ResponseSuccess(c, j)
}

// Deliver 交付工单
// POST /api/jobs/:id/deliver
func (h *JobHandler) Deliver(c *gin.Context) {
	tctx := middleware.TenantContextFromGin(c)

	var req DeliverRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ResponseBadRequest(c, "请求参数错误: "+err.Error())
		return
	}

	j, err := h.service.Deliver(c.Request.Context(), tctx, c.Param("id"), req.Files)
	if err != nil {
		common.ResponseBusinessError(c, err)
		return
	}
	common.ResponseSuccess(c, j)
}

// Rework 打回返工
// POST /api/jobs/:id/rework
func (h *JobHandler) Rework(c *gin.Context) {
	tctx := middleware.TenantContextFromGin(c)

	var req ReworkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ResponseBadRequest(c, "请求参数错误: "+err.Error())
		return
	}

	j, err := h.service.Rework(c.Request.Context(), tctx, c.Param("id"), req.Comment)
	if err != nil {
		common.ResponseBusinessError(c, err)
		return
	}
	common.ResponseSuccess(c, j)
}

// Resume 从返工恢复执行
// POST /api/jobs/:id/resume
func (h *JobHandler) Resume(c *gin.Context) {
	tctx := middleware.TenantContextFromGin(c)

	j, err := h.service.Resume(c.Request.Context(), tctx, c.Param("id"))
	if err != nil {
		common.ResponseBusinessError(c, err)
		return
	}
	common.ResponseSuccess(c, j)
}

// Cancel 取消工单
// POST /api/jobs/:id/cancel
func (h *JobHandler) Cancel(c *gin.Context) {
	tctx := middleware.TenantContextFromGin(c)

	var req CancelRequest
	_ = c.ShouldBindJSON(&req)

	j, err := h.service.Cancel(c.Request.Context(), tctx, c.Param("id"), req.Reason)
	if err != nil {
		common.ResponseBusinessError(c, err)
		return
	}
	common.ResponseSuccess(c, j)
}

// Close 关闭工单
// POST /api/jobs/:id/close
func (h *JobHandler) Close(c *gin.Context) {
	tctx := middleware.TenantContextFromGin(c)

	j, err := h.service.Close(c.Request.Context(), tctx, c.Param("id"))
	if err != nil {
		common.ResponseBusinessError(c, err)
		return
	}
	common.ResponseSuccess(c, j)
}

// Assign 人工派单
// PUT /api/jobs/:id/assignee
func (h *JobHandler) Assign(c *gin.Context) {
	tctx := middleware.TenantContextFromGin(c)

	var req AssignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ResponseBadRequest(c, "请求参数错误: "+err.Error())
		return
	}

	j, err := h.service.AssignManually(c.Request.Context(), tctx, c.Param("id"), req.AssigneeID)
	if err != nil {
		common.ResponseBusinessError(c, err)
		return
	}
	common.ResponseSuccess(c, j)
}
