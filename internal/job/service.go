package job

import (
	"context"
	"errors"
	"fmt"
	"time"

	"backend/internal/assignment"
	"backend/internal/common"
	"backend/internal/directory"
	"backend/internal/flow"
	"backend/internal/infra/queue"
	"backend/internal/logger"
	"backend/internal/metrics"
	"backend/internal/notification"
	"backend/internal/tenant"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Service 工单服务
// 拥有工单全生命周期：提交解析审批流、逐级审批、派单、执行交付与终态级联
// 单工单上的读状态、验流转、写台账、写状态必须在同一事务内完成
type Service struct {
	*common.BaseService
	flows       *flow.Service
	assignments *assignment.Service
	notifier    notification.Dispatcher
	queue       queue.Client
	timeout     time.Duration
}

// Option 服务配置项
type Option func(*Service)

// WithNotifier 指定事件派发器
func WithNotifier(d notification.Dispatcher) Option {
	return func(s *Service) {
		if d != nil {
			s.notifier = d
		}
	}
}

// WithQueue 指定任务队列客户端
// 缺省时级联在进程内同步执行，拒单超时定时器不注册
func WithQueue(q queue.Client) Option {
	return func(s *Service) { s.queue = q }
}

// WithRejectionTimeout 指定拒单申请的裁决时限
func WithRejectionTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// NewService 创建工单服务
func NewService(db *gorm.DB, flows *flow.Service, opts ...Option) *Service {
	s := &Service{
		BaseService: common.NewBaseService(db),
		flows:       flows,
		assignments: assignment.NewService(db),
		notifier:    notification.NoopDispatcher{},
		timeout:     24 * time.Hour,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Get 查询工单
func (s *Service) Get(ctx context.Context, tenantID, jobID string) (*Job, error) {
	var j Job
	err := s.GetDBWithContext(ctx).
		Where("id = ? AND tenant_id = ?", jobID, tenantID).
		First(&j).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("查询工单失败: %w", err)
	}
	return &j, nil
}

// List 分页查询工单
func (s *Service) List(ctx context.Context, tenantID string, req common.ListRequest) ([]Job, int64, error) {
	var jobs []Job
	var total int64

	query := s.ApplyTenantFilter(s.GetDBWithContext(ctx).Model(&Job{}), tenantID)
	query = s.ApplyStatusFilter(query, req.Status)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("统计工单数量失败: %w", err)
	}

	query = s.ApplySorting(query, req.SortBy, req.SortOrder, []string{"created_at", "updated_at", "status"})
	err := s.ApplyPagination(query, req.Page, req.PageSize).Find(&jobs).Error
	if err != nil {
		return nil, 0, fmt.Errorf("查询工单列表失败: %w", err)
	}
	return jobs, total, nil
}

// Create 创建草稿工单
func (s *Service) Create(ctx context.Context, j *Job) error {
	j.Status = StatusDraft
	j.CurrentLevel = 0
	if err := s.GetDBWithContext(ctx).Create(j).Error; err != nil {
		return fmt.Errorf("创建工单失败: %w", err)
	}
	return nil
}

// CreateGroup 创建父工单及其子工单
// 父子同事务落库，子工单通过 parent_job_id 指回父工单
func (s *Service) CreateGroup(ctx context.Context, parent *Job, children []*Job) error {
	parent.Status = StatusDraft
	parent.CurrentLevel = 0
	parent.IsParent = true

	return s.Transaction(ctx, func(tx *gorm.DB) error {
		if err := tx.Create(parent).Error; err != nil {
			return fmt.Errorf("创建父工单失败: %w", err)
		}
		for _, child := range children {
			child.Status = StatusDraft
			child.CurrentLevel = 0
			child.TenantID = parent.TenantID
			child.ParentJobID = &parent.ID
			if err := tx.Create(child).Error; err != nil {
				return fmt.Errorf("创建子工单失败: %w", err)
			}
		}
		return nil
	})
}

// Submit 提交工单进入审批
// 解析 (项目, 工单类型) 的审批流模板并将级别快照固化到工单上：
//   - 未配置模板：工单停在待配置状态等待管理员介入，不回退默认审批链
//   - totalLevels 为 0：跳过审批直接进入已批准并尝试自动派单
//   - 其余情况：进入一级审批
func (s *Service) Submit(ctx context.Context, tenantID, jobID string) (*Job, error) {
	j, err := s.Get(ctx, tenantID, jobID)
	if err != nil {
		return nil, err
	}
	if j.Status != StatusDraft && j.Status != StatusPendingConfiguration {
		return nil, ErrInvalidTransition
	}

	tpl, err := s.flows.Resolve(ctx, tenantID, j.ProjectID, j.JobTypeID)
	if err != nil {
		if errors.Is(err, ErrFlowNotConfigured) {
			if uerr := s.transition(ctx, j, map[string]any{
				"status": StatusPendingConfiguration,
			}); uerr != nil {
				return nil, uerr
			}
			logger.Warn("工单提交时未找到审批流模板",
				zap.String("jobId", j.ID),
				zap.String("projectId", j.ProjectID),
				zap.String("jobTypeId", j.JobTypeID),
			)
			return j, nil
		}
		return nil, err
	}

	snapshot := flow.NewSnapshot(tpl)
	now := time.Now().UTC()

	var assignedTo string
	err = s.Transaction(ctx, func(tx *gorm.DB) error {
		updates := map[string]any{
			"flow_snapshot": &snapshot,
			"submitted_at":  &now,
		}

		if tpl.TotalLevels == 0 {
			// 免审批类型：直接进入已批准并在同一事务内派单
			updates["status"] = StatusApproved
			updates["current_level"] = 0
			assignee, aerr := s.resolveAssigneeTx(tx, j.TenantID, j.ProjectID, j.JobTypeID)
			if aerr != nil {
				return aerr
			}
			if assignee != "" {
				updates["status"] = StatusAssigned
				updates["assignee_id"] = assignee
				assignedTo = assignee
			}
		} else {
			updates["status"] = StatusPendingApproval
			updates["current_level"] = 1
		}

		return s.transitionTx(tx, j, updates)
	})
	if err != nil {
		return nil, err
	}

	switch j.Status {
	case StatusAssigned:
		s.notifier.Notify(ctx, notification.Event{
			Type:       notification.EventJobAutoAssigned,
			TenantID:   j.TenantID,
			JobID:      j.ID,
			Recipients: []string{assignedTo},
			Data:       map[string]any{"assignee_id": assignedTo},
		})
	case StatusApproved:
		s.notifier.Notify(ctx, notification.Event{
			Type:     notification.EventJobApproved,
			TenantID: j.TenantID,
			JobID:    j.ID,
			Data:     map[string]any{"skip_approval": true},
		})
	case StatusPendingApproval:
		s.notifier.Notify(ctx, notification.Event{
			Type:       notification.EventLevelAdvanced,
			TenantID:   j.TenantID,
			JobID:      j.ID,
			Recipients: []string{j.ApproverAt(1)},
			Data:       map[string]any{"level": 1},
		})
	}
	return j, nil
}

// RecordDecision 记录人工审批决定
// 审批必须严格按级别顺序进行，且只有快照中该级别的指定审批人可操作
func (s *Service) RecordDecision(ctx context.Context, tctx tenant.TenantContext, jobID string, level int, approve bool, comment string) (*Approval, error) {
	status := ApprovalApproved
	if !approve {
		status = ApprovalRejected
	}
	return s.recordDecision(ctx, tctx.TenantID, jobID, level, tctx.UserID, status, comment, true)
}

// RecordAutoApproval 记录系统自动通过
// 用于配置的自动通过窗口到期，与人工决定在台账上区分留痕
func (s *Service) RecordAutoApproval(ctx context.Context, tenantID, jobID string, level int) (*Approval, error) {
	return s.recordDecision(ctx, tenantID, jobID, level, "", ApprovalAutoApproved, "", false)
}

func (s *Service) recordDecision(ctx context.Context, tenantID, jobID string, level int, approverID string, status ApprovalStatus, comment string, checkApprover bool) (*Approval, error) {
	j, err := s.Get(ctx, tenantID, jobID)
	if err != nil {
		return nil, err
	}

	// 终态与非审批态都拒绝，且不产生任何写入
	if j.Status != StatusPendingApproval {
		return nil, ErrInvalidTransition
	}
	if level != j.CurrentLevel {
		return nil, ErrLevelMismatch
	}
	if checkApprover && approverID != j.ApproverAt(level) {
		return nil, ErrNotCurrentApprover
	}

	now := time.Now().UTC()
	approval := &Approval{
		TenantID:   tenantID,
		JobID:      jobID,
		Level:      level,
		Status:     status,
		ApproverID: approverID,
		Comment:    comment,
		DecidedAt:  &now,
	}

	var assignedTo string
	approved := status == ApprovalApproved || status == ApprovalAutoApproved

	err = s.Transaction(ctx, func(tx *gorm.DB) error {
		// 重复裁决守卫放在事务内，与台账写入同库可见：
		// 并发的重复请求报已裁决，而不是退化成非法流转
		var decided int64
		if err := tx.Model(&Approval{}).
			Where("job_id = ? AND level = ?", jobID, level).
			Count(&decided).Error; err != nil {
			return fmt.Errorf("查询审批台账失败: %w", err)
		}
		if decided > 0 {
			return ErrAlreadyDecided
		}

		// 带守卫的工单更新同时承担并发互斥：
		// 并发写者会在这里因状态或级别已变而得到零行
		updates := map[string]any{}
		switch {
		case approved && level < j.TotalLevels():
			updates["current_level"] = level + 1
		case approved:
			updates["status"] = StatusApproved
			assignee, aerr := s.resolveAssigneeTx(tx, j.TenantID, j.ProjectID, j.JobTypeID)
			if aerr != nil {
				return aerr
			}
			if assignee != "" {
				updates["status"] = StatusAssigned
				updates["assignee_id"] = assignee
				assignedTo = assignee
			}
		default:
			updates["status"] = StatusRejected
			updates["rejection_source"] = SourceApprover
			updates["rejection_reason"] = comment
		}

		if err := s.transitionGuardedTx(tx, j, StatusPendingApproval, level, updates); err != nil {
			return err
		}
		if err := tx.Create(approval).Error; err != nil {
			return fmt.Errorf("写入审批台账失败: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.ApprovalDecisionsTotal.WithLabelValues(tenantID, string(status)).Inc()
	s.notifyDecision(ctx, j, level, approved, comment, assignedTo)

	if j.Status == StatusRejected {
		s.enqueueCascade(ctx, j, comment)
	}
	return approval, nil
}

func (s *Service) notifyDecision(ctx context.Context, j *Job, level int, approved bool, comment, assignedTo string) {
	switch {
	case !approved:
		s.notifier.Notify(ctx, notification.Event{
			Type:       notification.EventJobRejected,
			TenantID:   j.TenantID,
			JobID:      j.ID,
			Recipients: []string{j.RequesterID},
			Data: map[string]any{
				"source": string(SourceApprover),
				"level":  level,
				"reason": comment,
			},
		})
	case j.Status == StatusPendingApproval:
		next := j.CurrentLevel
		s.notifier.Notify(ctx, notification.Event{
			Type:       notification.EventLevelAdvanced,
			TenantID:   j.TenantID,
			JobID:      j.ID,
			Recipients: []string{j.ApproverAt(next)},
			Data:       map[string]any{"level": next},
		})
	default:
		s.notifier.Notify(ctx, notification.Event{
			Type:       notification.EventJobApproved,
			TenantID:   j.TenantID,
			JobID:      j.ID,
			Recipients: []string{j.RequesterID},
		})
		if assignedTo != "" {
			s.notifier.Notify(ctx, notification.Event{
				Type:       notification.EventJobAutoAssigned,
				TenantID:   j.TenantID,
				JobID:      j.ID,
				Recipients: []string{assignedTo},
				Data:       map[string]any{"assignee_id": assignedTo},
			})
		}
	}
}

// Start 设计师开始执行
func (s *Service) Start(ctx context.Context, tctx tenant.TenantContext, jobID string) (*Job, error) {
	j, err := s.Get(ctx, tctx.TenantID, jobID)
	if err != nil {
		return nil, err
	}
	if j.Status != StatusAssigned {
		return nil, ErrInvalidTransition
	}
	if j.AssigneeID == nil || *j.AssigneeID != tctx.UserID {
		return nil, common.NewBusinessErrorWithCode(common.CodeForbidden)
	}

	if err := s.transition(ctx, j, map[string]any{"status": StatusInProgress}); err != nil {
		return nil, err
	}
	return j, nil
}

// Deliver 交付工单
// 交付物引用按顺序追加，完成后按链式配置触发后继工单生成
func (s *Service) Deliver(ctx context.Context, tctx tenant.TenantContext, jobID string, files []string) (*Job, error) {
	j, err := s.Get(ctx, tctx.TenantID, jobID)
	if err != nil {
		return nil, err
	}
	if j.Status != StatusInProgress {
		return nil, ErrInvalidTransition
	}
	if j.AssigneeID == nil || *j.AssigneeID != tctx.UserID {
		return nil, common.NewBusinessErrorWithCode(common.CodeForbidden)
	}

	now := time.Now().UTC()
	finalFiles := append(append([]string{}, j.FinalFiles...), files...)
	err = s.transition(ctx, j, map[string]any{
		"status":       StatusCompleted,
		"final_files":  finalFiles,
		"completed_at": &now,
	})
	if err != nil {
		return nil, err
	}
	j.FinalFiles = finalFiles
	j.CompletedAt = &now

	s.notifier.Notify(ctx, notification.Event{
		Type:       notification.EventJobCompleted,
		TenantID:   j.TenantID,
		JobID:      j.ID,
		Recipients: []string{j.RequesterID},
	})

	if err := s.onJobCompleted(ctx, j); err != nil {
		// 后继工单生成失败不回滚交付本身
		logger.Error("生成后继工单失败", zap.String("jobId", j.ID), zap.Error(err))
	}
	return j, nil
}

// Rework 审批人将已交付的工单打回返工
// 与审批级别上的拒绝不同，返工不重走审批链，修改后直接重新交付
func (s *Service) Rework(ctx context.Context, tctx tenant.TenantContext, jobID, comment string) (*Job, error) {
	j, err := s.Get(ctx, tctx.TenantID, jobID)
	if err != nil {
		return nil, err
	}
	if j.Status != StatusInProgress && j.Status != StatusCompleted {
		return nil, ErrInvalidTransition
	}
	if final := j.FinalApprover(); final != "" && final != tctx.UserID && !directory.Role(tctx.Role).CanManage() {
		return nil, ErrNotCurrentApprover
	}

	if err := s.transition(ctx, j, map[string]any{"status": StatusRework}); err != nil {
		return nil, err
	}

	recipients := []string{}
	if j.AssigneeID != nil {
		recipients = append(recipients, *j.AssigneeID)
	}
	s.notifier.Notify(ctx, notification.Event{
		Type:       notification.EventJobReworkRequested,
		TenantID:   j.TenantID,
		JobID:      j.ID,
		Recipients: recipients,
		Data:       map[string]any{"comment": comment},
	})
	return j, nil
}

// Resume 设计师从返工恢复执行
func (s *Service) Resume(ctx context.Context, tctx tenant.TenantContext, jobID string) (*Job, error) {
	j, err := s.Get(ctx, tctx.TenantID, jobID)
	if err != nil {
		return nil, err
	}
	if j.Status != StatusRework {
		return nil, ErrInvalidTransition
	}
	if j.AssigneeID == nil || *j.AssigneeID != tctx.UserID {
		return nil, common.NewBusinessErrorWithCode(common.CodeForbidden)
	}

	if err := s.transition(ctx, j, map[string]any{"status": StatusInProgress}); err != nil {
		return nil, err
	}
	return j, nil
}

// Cancel 取消工单并向关联工单级联
func (s *Service) Cancel(ctx context.Context, tctx tenant.TenantContext, jobID, reason string) (*Job, error) {
	j, err := s.Get(ctx, tctx.TenantID, jobID)
	if err != nil {
		return nil, err
	}
	if j.Status.Terminal() {
		return nil, ErrInvalidTransition
	}

	err = s.transition(ctx, j, map[string]any{
		"status":           StatusCancelled,
		"rejection_reason": reason,
	})
	if err != nil {
		return nil, err
	}

	s.enqueueCascade(ctx, j, reason)
	return j, nil
}

// Close 管理性关单，关闭后不可重开
func (s *Service) Close(ctx context.Context, tctx tenant.TenantContext, jobID string) (*Job, error) {
	j, err := s.Get(ctx, tctx.TenantID, jobID)
	if err != nil {
		return nil, err
	}
	if j.Status != StatusCompleted {
		return nil, ErrInvalidTransition
	}

	now := time.Now().UTC()
	err = s.transition(ctx, j, map[string]any{
		"status":    StatusClosed,
		"closed_at": &now,
	})
	if err != nil {
		return nil, err
	}
	return j, nil
}

// AssignManually 人工派单
// 自动派单矩阵无匹配时工单停留在已批准的待派单池，由此接口补派
func (s *Service) AssignManually(ctx context.Context, tctx tenant.TenantContext, jobID, assigneeID string) (*Job, error) {
	j, err := s.Get(ctx, tctx.TenantID, jobID)
	if err != nil {
		return nil, err
	}
	if j.Status != StatusApproved && j.Status != StatusAssigned {
		return nil, ErrInvalidTransition
	}

	err = s.transition(ctx, j, map[string]any{
		"status":      StatusAssigned,
		"assignee_id": assigneeID,
	})
	if err != nil {
		return nil, err
	}

	s.notifier.Notify(ctx, notification.Event{
		Type:       notification.EventJobAutoAssigned,
		TenantID:   j.TenantID,
		JobID:      j.ID,
		Recipients: []string{assigneeID},
		Data:       map[string]any{"assignee_id": assigneeID, "manual": true},
	})
	return j, nil
}

// onJobCompleted 链式配置触发：完成的工单按工单类型生成后继工单草稿
// 前序被终止过（抑制位已置）或后继已存在时不再生成
func (s *Service) onJobCompleted(ctx context.Context, j *Job) error {
	if j.SuccessorSuppressed || j.NextJobID != nil {
		return nil
	}

	jt, err := s.flows.GetJobType(ctx, j.TenantID, j.JobTypeID)
	if err != nil {
		return err
	}
	if jt.NextJobTypeID == nil || *jt.NextJobTypeID == "" {
		return nil
	}

	successor := &Job{
		TenantID:      j.TenantID,
		ProjectID:     j.ProjectID,
		JobTypeID:     *jt.NextJobTypeID,
		Title:         fmt.Sprintf("%s - 后续", j.Title),
		Status:        StatusDraft,
		RequesterID:   j.RequesterID,
		PreviousJobID: &j.ID,
	}

	err = s.Transaction(ctx, func(tx *gorm.DB) error {
		if err := tx.Create(successor).Error; err != nil {
			return fmt.Errorf("创建后继工单失败: %w", err)
		}
		// 守卫在 next_job_id 仍为空上，重复触发不会生成第二个后继
		result := tx.Model(&Job{}).
			Where("id = ? AND next_job_id IS NULL AND successor_suppressed = ?", j.ID, false).
			Update("next_job_id", successor.ID)
		if result.Error != nil {
			return fmt.Errorf("回写后继工单引用失败: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrInvalidTransition
		}
		return nil
	})
	if err != nil {
		return err
	}

	j.NextJobID = &successor.ID
	s.notifier.Notify(ctx, notification.Event{
		Type:       notification.EventSuccessorCreated,
		TenantID:   j.TenantID,
		JobID:      successor.ID,
		Recipients: []string{j.RequesterID},
		Data:       map[string]any{"previous_job_id": j.ID, "job_type_id": successor.JobTypeID},
	})
	return nil
}

// resolveAssigneeTx 在当前事务内查派单矩阵，委托给派单服务保持单一实现
func (s *Service) resolveAssigneeTx(tx *gorm.DB, tenantID, projectID, jobTypeID string) (string, error) {
	return s.assignments.ResolveTx(tx, tenantID, projectID, jobTypeID)
}

// transition 带状态守卫更新工单并同步内存副本
func (s *Service) transition(ctx context.Context, j *Job, updates map[string]any) error {
	return s.Transaction(ctx, func(tx *gorm.DB) error {
		return s.transitionTx(tx, j, updates)
	})
}

func (s *Service) transitionTx(tx *gorm.DB, j *Job, updates map[string]any) error {
	return s.transitionGuardedTx(tx, j, j.Status, j.CurrentLevel, updates)
}

// transitionGuardedTx 以读取时的状态与级别作守卫条件做更新
// 零行生效说明有并发写者抢先改变了工单，按非法流转拒绝且不产生写入
func (s *Service) transitionGuardedTx(tx *gorm.DB, j *Job, fromStatus Status, fromLevel int, updates map[string]any) error {
	result := tx.Model(&Job{}).
		Where("id = ? AND tenant_id = ? AND status = ? AND current_level = ?",
			j.ID, j.TenantID, fromStatus, fromLevel).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("更新工单状态失败: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrInvalidTransition
	}

	applyUpdates(j, updates)
	if st, ok := updates["status"]; ok {
		metrics.JobTransitionsTotal.WithLabelValues(j.TenantID, string(st.(Status))).Inc()
	}
	return nil
}

func applyUpdates(j *Job, updates map[string]any) {
	for key, value := range updates {
		switch key {
		case "status":
			j.Status = value.(Status)
		case "current_level":
			j.CurrentLevel = value.(int)
		case "assignee_id":
			v := value.(string)
			j.AssigneeID = &v
		case "rejection_source":
			j.RejectionSource = value.(RejectionSource)
		case "rejection_reason":
			j.RejectionReason = value.(string)
		case "flow_snapshot":
			j.FlowSnapshot = value.(*flow.Snapshot)
		case "submitted_at":
			j.SubmittedAt = value.(*time.Time)
		case "completed_at":
			j.CompletedAt = value.(*time.Time)
		case "closed_at":
			j.ClosedAt = value.(*time.Time)
		case "final_files":
			j.FinalFiles = value.([]string)
		}
	}
}
