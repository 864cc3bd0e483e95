package job

import "backend/internal/common"

// 工单域的业务错误哨兵，配合 errors.Is 按错误码比较
var (
	ErrJobNotFound             = common.NewBusinessErrorWithCode(common.CodeJobNotFound)
	ErrInvalidTransition       = common.NewBusinessErrorWithCode(common.CodeInvalidTransition)
	ErrLevelMismatch           = common.NewBusinessErrorWithCode(common.CodeLevelMismatch)
	ErrAlreadyDecided          = common.NewBusinessErrorWithCode(common.CodeAlreadyDecided)
	ErrNotCurrentApprover      = common.NewBusinessErrorWithCode(common.CodeNotCurrentApprover)
	ErrFlowNotConfigured       = common.NewBusinessErrorWithCode(common.CodeFlowNotConfigured)
	ErrRejectionReasonRequired = common.NewBusinessErrorWithCode(common.CodeRejectionReasonRequired)
	ErrRejectionRequestDecided = common.NewBusinessErrorWithCode(common.CodeRejectionRequestDecided)
	ErrRejectionRequestMissing = common.NewBusinessErrorWithCode(common.CodeRejectionRequestNotFound)
)
