package job

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"backend/internal/common"
	"backend/internal/logger"
	"backend/internal/metrics"
	"backend/internal/notification"
	"backend/internal/tenant"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// CreateRejectionRequest 设计师发起拒单申请
// 设计师不能直接拒单：申请创建后由审批人裁决，同时注册可取消的超时定时器，
// 时限内无人裁决则按通过处理（偏向设计师，不让执行方被无响应的审批人卡死）
func (s *Service) CreateRejectionRequest(ctx context.Context, tctx tenant.TenantContext, jobID, reason string) (*RejectionRequest, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, ErrRejectionReasonRequired
	}

	j, err := s.Get(ctx, tctx.TenantID, jobID)
	if err != nil {
		return nil, err
	}
	if !j.Status.AssigneeHeld() {
		return nil, ErrInvalidTransition
	}
	if j.AssigneeID == nil || *j.AssigneeID != tctx.UserID {
		return nil, common.NewBusinessErrorWithCode(common.CodeForbidden)
	}

	var pending int64
	err = s.GetDBWithContext(ctx).Model(&RejectionRequest{}).
		Where("job_id = ? AND status = ?", jobID, RequestPending).
		Count(&pending).Error
	if err != nil {
		return nil, fmt.Errorf("查询拒单申请失败: %w", err)
	}
	if pending > 0 {
		return nil, common.NewBusinessError(common.CodeConflict, "该工单已有待裁决的拒单申请")
	}

	req := &RejectionRequest{
		TenantID:   tctx.TenantID,
		JobID:      jobID,
		AssigneeID: tctx.UserID,
		Reason:     reason,
		Status:     RequestPending,
		Deadline:   time.Now().UTC().Add(s.timeout),
	}
	if err := s.GetDBWithContext(ctx).Create(req).Error; err != nil {
		return nil, fmt.Errorf("创建拒单申请失败: %w", err)
	}

	if s.queue != nil {
		if err := s.queue.ScheduleRejectionTimeout(req.ID, req.TenantID, s.timeout); err != nil {
			logger.Error("注册拒单超时定时器失败",
				zap.String("requestId", req.ID), zap.Error(err))
		}
	}

	recipients := []string{}
	if approver := j.FinalApprover(); approver != "" {
		recipients = append(recipients, approver)
	}
	s.notifier.Notify(ctx, notification.Event{
		Type:       notification.EventRejectionRequestCreated,
		TenantID:   req.TenantID,
		JobID:      jobID,
		Recipients: recipients,
		Data: map[string]any{
			"request_id": req.ID,
			"reason":     reason,
			"deadline":   req.Deadline,
		},
	})
	return req, nil
}

// GetRejectionRequest 查询拒单申请
func (s *Service) GetRejectionRequest(ctx context.Context, tenantID, requestID string) (*RejectionRequest, error) {
	var req RejectionRequest
	err := s.GetDBWithContext(ctx).
		Where("id = ? AND tenant_id = ?", requestID, tenantID).
		First(&req).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRejectionRequestMissing
	}
	if err != nil {
		return nil, fmt.Errorf("查询拒单申请失败: %w", err)
	}
	return &req, nil
}

// ResolveRejectionRequest 审批人裁决拒单申请
// 通过则工单转为已拒绝（来源标记为设计师），驳回则工单保持原状继续执行；
// 决定落库后撤销超时定时器，撤销晚到也无害，超时处理端对已裁决的申请不生效
func (s *Service) ResolveRejectionRequest(ctx context.Context, tctx tenant.TenantContext, requestID string, approve bool, comment string) (*RejectionRequest, error) {
	req, err := s.GetRejectionRequest(ctx, tctx.TenantID, requestID)
	if err != nil {
		return nil, err
	}
	if req.Status != RequestPending {
		return nil, ErrRejectionRequestDecided
	}

	j, err := s.Get(ctx, tctx.TenantID, req.JobID)
	if err != nil {
		return nil, err
	}
	if approver := j.FinalApprover(); approver != "" && approver != tctx.UserID {
		return nil, ErrNotCurrentApprover
	}

	status := RequestDenied
	if approve {
		status = RequestApproved
	}

	if err := s.decideRequest(ctx, req, j, status, tctx.UserID, comment); err != nil {
		return nil, err
	}

	if s.queue != nil {
		if err := s.queue.CancelRejectionTimeout(req.ID); err != nil {
			logger.Warn("撤销拒单超时定时器失败",
				zap.String("requestId", req.ID), zap.Error(err))
		}
	}

	s.afterRequestResolved(ctx, req, j)
	return req, nil
}

// ResolveRejectionTimeout 超时任务处理入口
// 幂等：申请已被裁决时直接返回，调度重试或迟到的定时器都不会二次改写
func (s *Service) ResolveRejectionTimeout(ctx context.Context, tenantID, requestID string) error {
	req, err := s.GetRejectionRequest(ctx, tenantID, requestID)
	if errors.Is(err, ErrRejectionRequestMissing) {
		return nil
	}
	if err != nil {
		return err
	}
	if req.Status != RequestPending {
		return nil
	}

	j, err := s.Get(ctx, tenantID, req.JobID)
	if err != nil {
		return err
	}

	err = s.decideRequest(ctx, req, j, RequestAutoApprovedTimeout, "", "裁决超时，系统自动通过")
	if errors.Is(err, ErrRejectionRequestDecided) {
		return nil
	}
	if err != nil {
		return err
	}

	s.afterRequestResolved(ctx, req, j)
	return nil
}

// decideRequest 落库裁决结果
// 申请行的守卫更新承担互斥：人工裁决与超时任务并发时只有一方生效
func (s *Service) decideRequest(ctx context.Context, req *RejectionRequest, j *Job, status RejectionRequestStatus, decidedBy, comment string) error {
	now := time.Now().UTC()
	granted := status == RequestApproved || status == RequestAutoApprovedTimeout

	return s.Transaction(ctx, func(tx *gorm.DB) error {
		result := tx.Model(&RejectionRequest{}).
			Where("id = ? AND status = ?", req.ID, RequestPending).
			Updates(map[string]any{
				"status":     status,
				"decided_by": decidedBy,
				"comment":    comment,
				"decided_at": &now,
			})
		if result.Error != nil {
			return fmt.Errorf("更新拒单申请失败: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrRejectionRequestDecided
		}

		req.Status = status
		req.DecidedBy = decidedBy
		req.Comment = comment
		req.DecidedAt = &now

		// 申请通过只拒绝仍由设计师持有的工单：
		// 裁决期间已交付的工单不再改写，申请记录照常落库
		if granted && j.Status.AssigneeHeld() {
			return s.transitionTx(tx, j, map[string]any{
				"status":           StatusRejected,
				"rejection_source": SourceAssignee,
				"rejection_reason": req.Reason,
			})
		}
		return nil
	})
}

func (s *Service) afterRequestResolved(ctx context.Context, req *RejectionRequest, j *Job) {
	metrics.RejectionRequestsTotal.WithLabelValues(req.TenantID, string(req.Status)).Inc()

	recipients := []string{req.AssigneeID, j.RequesterID}
	s.notifier.Notify(ctx, notification.Event{
		Type:       notification.EventRejectionRequestResolved,
		TenantID:   req.TenantID,
		JobID:      req.JobID,
		Recipients: recipients,
		Data: map[string]any{
			"request_id": req.ID,
			"status":     string(req.Status),
		},
	})

	if j.Status == StatusRejected {
		s.notifier.Notify(ctx, notification.Event{
			Type:       notification.EventJobRejected,
			TenantID:   req.TenantID,
			JobID:      j.ID,
			Recipients: recipients,
			Data: map[string]any{
				"source": string(SourceAssignee),
				"reason": req.Reason,
			},
		})
		s.enqueueCascade(ctx, j, req.Reason)
	}
}
