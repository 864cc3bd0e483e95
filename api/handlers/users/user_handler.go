package users

import (
	"backend/internal/common"
	"backend/internal/directory"
	"backend/internal/middleware"

	"github.com/gin-gonic/gin"
)

// UserHandler 人员目录 Handler
type UserHandler struct {
	service *directory.Service
}

// NewUserHandler 创建 UserHandler 实例
func NewUserHandler(service *directory.Service) *UserHandler {
	return &UserHandler{service: service}
}

// UserRequest 人员请求
type UserRequest struct {
	Name       string `json:"name" binding:"required"`
	Email      string `json:"email" binding:"required,email"`
	Role       string `json:"role" binding:"required"`
	Department string `json:"department"`
	Active     *bool  `json:"active"`
}

// List 查询人员列表
// GET /api/users
func (h *UserHandler) List(c *gin.Context) {
	tenantID := c.GetString("tenant_id")

	var page common.PaginationRequest
	if err := c.ShouldBindQuery(&page); err != nil {
		common.ResponseBadRequest(c, "请求参数错误: "+err.Error())
		return
	}

	users, total, err := h.service.ListUsers(c.Request.Context(), tenantID, page)
	if err != nil {
		common.ResponseBusinessError(c, err)
		return
	}
	common.ResponseList(c, users, total, &page)
}

// Get 查询单个人员
// GET /api/users/:id
func (h *UserHandler) Get(c *gin.Context) {
	tenantID := c.GetString("tenant_id")

	user, err := h.service.GetUser(c.Request.Context(), tenantID, c.Param("id"))
	if err != nil {
		common.ResponseBusinessError(c, err)
		return
	}
	common.ResponseSuccess(c, user)
}

// Create 新增人员
// POST /api/users
func (h *UserHandler) Create(c *gin.Context) {
	tctx := middleware.TenantContextFromGin(c)
	if !directory.Role(tctx.Role).CanManage() {
		common.ResponseError(c, common.CodeForbidden, common.GetErrorMessage(common.CodeForbidden))
		return
	}

	var req UserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ResponseBadRequest(c, "请求参数错误: "+err.Error())
		return
	}

	user := &directory.User{
		TenantID:   tctx.TenantID,
		Name:       req.Name,
		Email:      req.Email,
		Role:       directory.Role(req.Role),
		Department: req.Department,
	}
	if err := h.service.CreateUser(c.Request.Context(), user); err != nil {
		common.ResponseBusinessError(c, err)
		return
	}
	common.ResponseCreated(c, user)
}

// Update 更新人员
// PUT /api/users/:id
func (h *UserHandler) Update(c *gin.Context) {
	tctx := middleware.TenantContextFromGin(c)
	if !directory.Role(tctx.Role).CanManage() {
		common.ResponseError(c, common.CodeForbidden, common.GetErrorMessage(common.CodeForbidden))
		return
	}

	var req UserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ResponseBadRequest(c, "请求参数错误: "+err.Error())
		return
	}

	user := &directory.User{
		ID:         c.Param("id"),
		Name:       req.Name,
		Email:      req.Email,
		Role:       directory.Role(req.Role),
		Department: req.Department,
		Active:     true,
	}
	if req.Active != nil {
		user.Active = *req.Active
	}
	if err := h.service.UpdateUser(c.Request.Context(), tctx.TenantID, user); err != nil {
		common.ResponseBusinessError(c, err)
		return
	}
	common.ResponseSuccess(c, user)
}
