package common

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// ResponseSuccess 返回成功响应
func ResponseSuccess(c *gin.Context, data any) {
	c.JSON(http.StatusOK, SuccessResponse(data))
}

// ResponseSuccessMessage 返回成功响应（带消息）
func ResponseSuccessMessage(c *gin.Context, message string, data any) {
	c.JSON(http.StatusOK, SuccessMessageResponse(message, data))
}

// ResponseCreated 返回创建成功响应（201）
func ResponseCreated(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, SuccessResponse(data))
}

// ResponseList 返回分页列表响应
func ResponseList(c *gin.Context, items any, total int64, req *PaginationRequest) {
	if req == nil {
		defaultReq := DefaultPagination()
		req = &defaultReq
	}

	response := ListResponse{
		Items:      items,
		Pagination: NewPaginationMeta(req.Page, req.GetPageSize(), total),
	}

	c.JSON(http.StatusOK, SuccessResponse(response))
}

// ResponseError 返回错误响应
func ResponseError(c *gin.Context, code int, message string) {
	httpStatus := http.StatusOK // 业务错误也返回200

	// 特殊业务状态码映射到HTTP状态码
	switch code {
	case CodeUnauthorized, CodeNotCurrentApprover:
		httpStatus = http.StatusUnauthorized
	case CodeForbidden:
		httpStatus = http.StatusForbidden
	case CodeNotFound, CodeJobNotFound, CodeRejectionRequestNotFound:
		httpStatus = http.StatusNotFound
	case CodeInvalidRequest, CodeRejectionReasonRequired, CodeFlowInvalidLevels:
		httpStatus = http.StatusBadRequest
	case CodeConflict, CodeAlreadyDecided, CodeLevelMismatch, CodeInvalidTransition, CodeRejectionRequestDecided:
		httpStatus = http.StatusConflict
	case CodeInternalError:
		httpStatus = http.StatusInternalServerError
	}

	c.JSON(httpStatus, ErrorResponse(code, message))
}

// ResponseBusinessError 返回业务错误响应；非业务错误按内部错误处理
func ResponseBusinessError(c *gin.Context, err error) {
	var be *BusinessError
	if errors.As(err, &be) {
		ResponseError(c, be.Code, be.Message)
		return
	}
	ResponseError(c, CodeInternalError, GetErrorMessage(CodeInternalError))
}

// ResponseBadRequest 返回参数错误响应
func ResponseBadRequest(c *gin.Context, message string) {
	ResponseError(c, CodeInvalidRequest, message)
}

// ResponseNotFound 返回资源不存在响应
func ResponseNotFound(c *gin.Context, message string) {
	if message == "" {
		message = GetErrorMessage(CodeNotFound)
	}
	ResponseError(c, CodeNotFound, message)
}

// ResponseServerError 返回服务器错误响应
func ResponseServerError(c *gin.Context, message string) {
	if message == "" {
		message = GetErrorMessage(CodeInternalError)
	}
	ResponseError(c, CodeInternalError, message)
}
