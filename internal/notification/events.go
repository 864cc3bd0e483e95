package notification

import "context"

// 工单生命周期事件类型
const (
	EventLevelAdvanced            = "job.level_advanced"
	EventJobApproved              = "job.approved"
	EventJobRejected              = "job.rejected"
	EventJobAutoAssigned          = "job.auto_assigned"
	EventJobCompleted             = "job.completed"
	EventJobReworkRequested       = "job.rework_requested"
	EventSuccessorCreated         = "job.successor_created"
	EventRejectionRequestCreated  = "job.rejection_request_created"
	EventRejectionRequestResolved = "job.rejection_request_resolved"
)

// Event 业务事件
type Event struct {
	Type       string         `json:"type"`
	TenantID   string         `json:"tenant_id"`
	JobID      string         `json:"job_id"`
	Recipients []string       `json:"recipients,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
}

// Dispatcher 事件派发接口
// 发送即忘，核心流程不等待投递结果
type Dispatcher interface {
	Notify(ctx context.Context, event Event)
}

// NoopDispatcher 空派发器，测试或禁用通知时使用
type NoopDispatcher struct{}

func (NoopDispatcher) Notify(context.Context, Event) {}
