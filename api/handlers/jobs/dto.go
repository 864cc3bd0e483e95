package jobs

// CreateJobRequest 创建工单请求
type CreateJobRequest struct {
	ProjectID   string `json:"project_id" binding:"required"`
	JobTypeID   string `json:"job_type_id" binding:"required"`
	Title       string `json:"title" binding:"required"`
	Description string `json:"description"`
}

// CreateGroupRequest 创建工单组请求
type CreateGroupRequest struct {
	Parent   CreateJobRequest   `json:"parent" binding:"required"`
	Children []CreateJobRequest `json:"children" binding:"required,min=1,dive"`
}

// DecisionRequest 审批决定请求
type DecisionRequest struct {
	Level   int    `json:"level" binding:"required,min=1"`
	Approve *bool  `json:"approve" binding:"required"`
	Comment string `json:"comment"`
}

// DeliverRequest 交付请求
type DeliverRequest struct {
	Files []string `json:"files" binding:"required,min=1"`
}

// ReworkRequest 返工请求
type ReworkRequest struct {
	Comment string `json:"comment"`
}

// CancelRequest 取消请求
type CancelRequest struct {
	Reason string `json:"reason"`
}

// AssignRequest 人工派单请求
type AssignRequest struct {
	AssigneeID string `json:"assignee_id" binding:"required"`
}

// RejectionRequestCreate 拒单申请请求
type RejectionRequestCreate struct {
	Reason string `json:"reason" binding:"required"`
}

// RejectionRequestResolve 拒单申请裁决请求
type RejectionRequestResolve struct {
	Approve *bool  `json:"approve" binding:"required"`
	Comment string `json:"comment"`
}
