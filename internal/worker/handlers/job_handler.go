package handlers

import (
	"context"
	"encoding/json"
	"fmt"

	"backend/internal/metrics"
	"backend/internal/worker/tasks"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// Cascader 级联执行抽象，便于注入 mock
type Cascader interface {
	Cascade(ctx context.Context, jobID, tenantID, reason string)
}

// TimeoutResolver 拒单超时处理抽象
type TimeoutResolver interface {
	ResolveRejectionTimeout(ctx context.Context, tenantID, requestID string) error
}

// JobHandler 工单域异步任务处理器
type JobHandler struct {
	cascader Cascader
	resolver TimeoutResolver
	logger   *zap.Logger
}

func NewJobHandler(cascader Cascader, resolver TimeoutResolver, logger *zap.Logger) *JobHandler {
	return &JobHandler{
		cascader: cascader,
		resolver: resolver,
		logger:   logger,
	}
}

// HandleCascade 执行终态级联传播
// 级联步骤幂等，asynq 重试不会造成重复改写
func (h *JobHandler) HandleCascade(ctx context.Context, t *asynq.Task) error {
	var p tasks.CascadePayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("json unmarshal failed: %w", err)
	}

	h.logger.Info("开始执行级联传播",
		zap.String("job_id", p.JobID),
		zap.String("tenant_id", p.TenantID),
	)

	h.cascader.Cascade(ctx, p.JobID, p.TenantID, p.Reason)
	metrics.TaskProcessedTotal.WithLabelValues(tasks.TypeCascade, "ok").Inc()
	return nil
}

// HandleRejectionTimeout 处理拒单申请超时
// 申请已被人工裁决时为空操作，迟到或重复触发都安全
func (h *JobHandler) HandleRejectionTimeout(ctx context.Context, t *asynq.Task) error {
	var p tasks.RejectionTimeoutPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("json unmarshal failed: %w", err)
	}

	h.logger.Info("处理拒单申请超时",
		zap.String("request_id", p.RequestID),
		zap.String("tenant_id", p.TenantID),
	)

	if err := h.resolver.ResolveRejectionTimeout(ctx, p.TenantID, p.RequestID); err != nil {
		metrics.TaskProcessedTotal.WithLabelValues(tasks.TypeRejectionTimeout, "error").Inc()
		h.logger.Error("拒单超时处理失败",
			zap.String("request_id", p.RequestID),
			zap.Error(err),
		)
		return err
	}

	metrics.TaskProcessedTotal.WithLabelValues(tasks.TypeRejectionTimeout, "ok").Inc()
	return nil
}
