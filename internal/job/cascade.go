package job

import (
	"context"
	"errors"
	"fmt"

	"backend/internal/common"
	"backend/internal/logger"
	"backend/internal/metrics"
	"backend/internal/notification"
	"backend/internal/worker/tasks"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// linkEdges 工单的一跳出边
// 级联只沿这张显式边表传播，不做多跳：子工单自己的关联不再展开
type linkEdges struct {
	childIDs    []string
	successorID string
	hasChainCfg bool
}

// collectEdges 采集触发工单的直接关联边
func (s *Service) collectEdges(ctx context.Context, j *Job) (linkEdges, error) {
	var edges linkEdges

	if j.IsParent {
		var children []Job
		err := s.GetDBWithContext(ctx).
			Select("id").
			Scopes(common.ByTenant(j.TenantID)).
			Where("parent_job_id = ?", j.ID).
			Find(&children).Error
		if err != nil {
			return edges, fmt.Errorf("查询子工单失败: %w", err)
		}
		for _, child := range children {
			edges.childIDs = append(edges.childIDs, child.ID)
		}
	}

	if j.NextJobID != nil {
		edges.successorID = *j.NextJobID
	} else {
		jt, err := s.flows.GetJobType(ctx, j.TenantID, j.JobTypeID)
		if err == nil && jt.NextJobTypeID != nil && *jt.NextJobTypeID != "" {
			edges.hasChainCfg = true
		}
	}
	return edges, nil
}

// enqueueCascade 触发级联传播
// 配置了队列时走异步任务（处理端幂等可重试），否则进程内同步执行
func (s *Service) enqueueCascade(ctx context.Context, j *Job, reason string) {
	if s.queue != nil {
		err := s.queue.EnqueueCascade(tasks.CascadePayload{
			JobID:    j.ID,
			TenantID: j.TenantID,
			Reason:   reason,
		})
		if err == nil {
			return
		}
		logger.Error("投递级联任务失败，改为同步执行",
			zap.String("jobId", j.ID), zap.Error(err))
	}
	s.Cascade(ctx, j.ID, j.TenantID, reason)
}

// Cascade 向触发工单的直接关联工单传播终态
// 整体幂等：已处于终态的关联工单不再改写，重复调用是安全的；
// 单条关联处理失败只记录并跳过，不影响其余关联，触发工单自身状态已提交
func (s *Service) Cascade(ctx context.Context, jobID, tenantID, reason string) {
	j, err := s.Get(ctx, tenantID, jobID)
	if err != nil {
		logger.Error("级联触发工单查询失败", zap.String("jobId", jobID), zap.Error(err))
		return
	}
	if !j.Status.Terminal() {
		logger.Warn("级联触发工单不在终态，跳过", zap.String("jobId", jobID), zap.String("status", string(j.Status)))
		return
	}

	edges, err := s.collectEdges(ctx, j)
	if err != nil {
		logger.Error("采集关联边失败", zap.String("jobId", jobID), zap.Error(err))
		return
	}

	for _, childID := range edges.childIDs {
		if err := s.cascadeReject(ctx, tenantID, childID, SourceParent, reason); err != nil {
			metrics.CascadeStepsTotal.WithLabelValues(tenantID, "skipped").Inc()
			logger.Warn("子工单级联失败，跳过",
				zap.String("parentJobId", jobID),
				zap.String("childJobId", childID),
				zap.Error(err),
			)
			continue
		}
		metrics.CascadeStepsTotal.WithLabelValues(tenantID, "applied").Inc()
	}

	if edges.successorID != "" {
		if err := s.cascadeSuccessor(ctx, tenantID, edges.successorID, reason); err != nil {
			metrics.CascadeStepsTotal.WithLabelValues(tenantID, "skipped").Inc()
			logger.Warn("后继工单级联失败，跳过",
				zap.String("jobId", jobID),
				zap.String("successorJobId", edges.successorID),
				zap.Error(err),
			)
		} else {
			metrics.CascadeStepsTotal.WithLabelValues(tenantID, "applied").Inc()
		}
	} else if edges.hasChainCfg {
		// 后继尚未生成：置抑制位，阻止完成路径上的自动生成
		if err := s.suppressSuccessor(ctx, j); err != nil {
			logger.Warn("置后继抑制位失败", zap.String("jobId", jobID), zap.Error(err))
		}
	}
}

// cascadeReject 把一个非终态的关联工单置为已拒绝
// 已终态的关联工单保持不动，保证不重复级联
func (s *Service) cascadeReject(ctx context.Context, tenantID, jobID string, source RejectionSource, reason string) error {
	linked, err := s.Get(ctx, tenantID, jobID)
	if errors.Is(err, ErrJobNotFound) {
		return err
	}
	if err != nil {
		return err
	}
	if linked.Status.Terminal() {
		return nil
	}

	err = s.Transaction(ctx, func(tx *gorm.DB) error {
		return s.transitionTx(tx, linked, map[string]any{
			"status":           StatusRejected,
			"rejection_source": source,
			"rejection_reason": reason,
		})
	})
	if errors.Is(err, ErrInvalidTransition) {
		// 并发下对端已进入终态，视为已级联
		return nil
	}
	if err != nil {
		return err
	}

	recipients := []string{linked.RequesterID}
	if linked.AssigneeID != nil {
		recipients = append(recipients, *linked.AssigneeID)
	}
	s.notifier.Notify(ctx, notification.Event{
		Type:       notification.EventJobRejected,
		TenantID:   tenantID,
		JobID:      linked.ID,
		Recipients: recipients,
		Data: map[string]any{
			"source": string(source),
			"reason": reason,
		},
	})
	return nil
}

// cascadeSuccessor 前序终止时拒绝尚未开工的后继工单
// 后继已开工（执行中及之后）则不打断
func (s *Service) cascadeSuccessor(ctx context.Context, tenantID, successorID, reason string) error {
	successor, err := s.Get(ctx, tenantID, successorID)
	if err != nil {
		return err
	}

	switch successor.Status {
	case StatusDraft, StatusPendingConfiguration, StatusPendingApproval, StatusApproved, StatusAssigned:
		return s.cascadeReject(ctx, tenantID, successorID, SourcePredecessor, reason)
	}
	return nil
}

func (s *Service) suppressSuccessor(ctx context.Context, j *Job) error {
	err := s.GetDBWithContext(ctx).Model(&Job{}).
		Where("id = ? AND tenant_id = ?", j.ID, j.TenantID).
		Update("successor_suppressed", true).Error
	if err != nil {
		return fmt.Errorf("更新后继抑制位失败: %w", err)
	}
	j.SuccessorSuppressed = true
	return nil
}
