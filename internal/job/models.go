package job

import (
	"time"

	"backend/internal/flow"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Status 工单状态
type Status string

const (
	StatusDraft                Status = "draft"                 // 草稿
	StatusPendingConfiguration Status = "pending_configuration" // 提交时未找到审批流模板，等待管理员配置
	StatusPendingApproval      Status = "pending_approval"      // 逐级审批中，级别由 CurrentLevel 标识
	StatusApproved             Status = "approved"              // 审批通过，待派单
	StatusAssigned             Status = "assigned"              // 已派单
	StatusInProgress           Status = "in_progress"           // 执行中
	StatusRework               Status = "rework"                // 返工
	StatusCompleted            Status = "completed"             // 已交付
	StatusClosed               Status = "closed"                // 已关闭
	StatusRejected             Status = "rejected"              // 已拒绝（终态）
	StatusCancelled            Status = "cancelled"             // 已取消（终态）
)

// Terminal 判断状态是否为终态
// 终态工单禁止任何状态流转，并发请求下也不得改写
func (s Status) Terminal() bool {
	return s == StatusRejected || s == StatusCancelled || s == StatusClosed
}

// AssigneeHeld 判断工单是否处于设计师持有的执行阶段
// 拒单申请只在这些状态下可发起、可生效；已交付的工单不再因拒单改写
func (s Status) AssigneeHeld() bool {
	return s == StatusAssigned || s == StatusInProgress || s == StatusRework
}

// RejectionSource 拒绝来源
type RejectionSource string

const (
	SourceApprover    RejectionSource = "approver"            // 审批人在某级别拒绝
	SourceAssignee    RejectionSource = "assignee"            // 设计师拒单申请被批准
	SourceParent      RejectionSource = "cascade_parent"      // 父工单终止级联
	SourcePredecessor RejectionSource = "cascade_predecessor" // 前序工单终止级联
)

// Job 工单
type Job struct {
	ID        string `gorm:"type:varchar(36);primaryKey" json:"id"`
	TenantID  string `gorm:"type:varchar(36);not null;index:idx_jobs_tenant" json:"tenant_id"`
	ProjectID string `gorm:"type:varchar(36);not null" json:"project_id"`
	JobTypeID string `gorm:"type:varchar(36);not null" json:"job_type_id"`

	Title       string `gorm:"type:varchar(256);not null" json:"title"`
	Description string `gorm:"type:text" json:"description,omitempty"`

	Status       Status `gorm:"type:varchar(32);not null;index:idx_jobs_status" json:"status"`
	CurrentLevel int    `gorm:"not null;default:0" json:"current_level"`

	RequesterID string  `gorm:"type:varchar(36);not null" json:"requester_id"`
	AssigneeID  *string `gorm:"type:varchar(36)" json:"assignee_id,omitempty"`

	// 组与链的直接边，级联只沿这些边走一跳
	ParentJobID   *string `gorm:"type:varchar(36);index:idx_jobs_parent" json:"parent_job_id,omitempty"`
	IsParent      bool    `gorm:"not null;default:false" json:"is_parent"`
	PreviousJobID *string `gorm:"type:varchar(36)" json:"previous_job_id,omitempty"`
	NextJobID     *string `gorm:"type:varchar(36)" json:"next_job_id,omitempty"`

	// 前序工单被终止时置位，抑制后继工单的自动生成
	SuccessorSuppressed bool `gorm:"not null;default:false" json:"successor_suppressed"`

	RejectionSource RejectionSource `gorm:"type:varchar(32)" json:"rejection_source,omitempty"`
	RejectionReason string          `gorm:"type:text" json:"rejection_reason,omitempty"`

	// 提交时刻固化的审批流快照
	FlowSnapshot *flow.Snapshot `gorm:"type:jsonb;serializer:json" json:"flow_snapshot,omitempty"`

	// 交付物引用，按交付顺序排列
	FinalFiles []string `gorm:"type:jsonb;serializer:json" json:"final_files,omitempty"`

	SubmittedAt *time.Time     `json:"submitted_at,omitempty"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	ClosedAt    *time.Time     `json:"closed_at,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Job) TableName() string {
	return "jobs"
}

func (j *Job) BeforeCreate(tx *gorm.DB) error {
	if j.ID == "" {
		j.ID = uuid.New().String()
	}
	return nil
}

// TotalLevels 返回快照中的审批级别总数，未提交时为0
func (j *Job) TotalLevels() int {
	if j.FlowSnapshot == nil {
		return 0
	}
	return j.FlowSnapshot.TotalLevels
}

// ApproverAt 返回快照中指定级别的审批人
func (j *Job) ApproverAt(level int) string {
	if j.FlowSnapshot == nil {
		return ""
	}
	return j.FlowSnapshot.ApproverAt(level)
}

// FinalApprover 返回最高级别的审批人，用于拒单申请的裁决
func (j *Job) FinalApprover() string {
	if j.FlowSnapshot == nil || j.FlowSnapshot.TotalLevels == 0 {
		return ""
	}
	return j.FlowSnapshot.ApproverAt(j.FlowSnapshot.TotalLevels)
}

// ApprovalStatus 审批结论
type ApprovalStatus string

const (
	ApprovalPending      ApprovalStatus = "pending"
	ApprovalApproved     ApprovalStatus = "approved"
	ApprovalRejected     ApprovalStatus = "rejected"
	ApprovalAutoApproved ApprovalStatus = "auto_approved" // 系统自动通过，与人工决定区分留痕
)

// Approval 审批台账行，每个 (工单, 级别) 最多一条生效记录
type Approval struct {
	ID         string         `gorm:"type:varchar(36);primaryKey" json:"id"`
	TenantID   string         `gorm:"type:varchar(36);not null" json:"tenant_id"`
	JobID      string         `gorm:"type:varchar(36);not null;index:idx_approvals_job" json:"job_id"`
	Level      int            `gorm:"not null" json:"level"`
	Status     ApprovalStatus `gorm:"type:varchar(32);not null" json:"status"`
	ApproverID string         `gorm:"type:varchar(36)" json:"approver_id,omitempty"`
	Comment    string         `gorm:"type:text" json:"comment,omitempty"`
	DecidedAt  *time.Time     `json:"decided_at,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

func (Approval) TableName() string {
	return "approvals"
}

func (a *Approval) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	return nil
}

// RejectionRequestStatus 拒单申请状态
type RejectionRequestStatus string

const (
	RequestPending             RejectionRequestStatus = "pending"
	RequestApproved            RejectionRequestStatus = "approved"
	RequestDenied              RejectionRequestStatus = "denied"
	RequestAutoApprovedTimeout RejectionRequestStatus = "auto_approved_timeout"
)

// RejectionRequest 设计师发起的拒单申请
// 设计师不能单方面拒单，须经审批人裁决；超时未裁决按通过处理
type RejectionRequest struct {
	ID         string                 `gorm:"type:varchar(36);primaryKey" json:"id"`
	TenantID   string                 `gorm:"type:varchar(36);not null" json:"tenant_id"`
	JobID      string                 `gorm:"type:varchar(36);not null;index:idx_rejection_requests_job" json:"job_id"`
	AssigneeID string                 `gorm:"type:varchar(36);not null" json:"assignee_id"`
	Reason     string                 `gorm:"type:text;not null" json:"reason"`
	Status     RejectionRequestStatus `gorm:"type:varchar(32);not null" json:"status"`
	Deadline   time.Time              `gorm:"not null" json:"deadline"`
	DecidedBy  string                 `gorm:"type:varchar(36)" json:"decided_by,omitempty"`
	Comment    string                 `gorm:"type:text" json:"comment,omitempty"`
	DecidedAt  *time.Time             `json:"decided_at,omitempty"`
	CreatedAt  time.Time              `json:"created_at"`
	UpdatedAt  time.Time              `json:"updated_at"`
}

func (RejectionRequest) TableName() string {
	return "rejection_requests"
}

func (r *RejectionRequest) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	return nil
}
