package tasks

// Task Types
const (
	TypeRejectionTimeout = "job:rejection_timeout"
	TypeCascade          = "job:cascade"
)

// RejectionTimeoutPayload 拒绝申请超时任务载荷
type RejectionTimeoutPayload struct {
	RequestID string `json:"request_id"`
	TenantID  string `json:"tenant_id"`
}

// CascadePayload 级联传播任务载荷
// 触发工单进入终态后，向父子/前后继工单传播的异步任务
type CascadePayload struct {
	JobID    string `json:"job_id"`
	TenantID string `json:"tenant_id"`
	Reason   string `json:"reason"`
}
