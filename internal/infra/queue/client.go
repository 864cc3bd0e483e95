package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"backend/internal/config"
	"backend/internal/worker/tasks"

	"github.com/hibiken/asynq"
)

const timerQueue = "timers"
const cascadeQueue = "cascade"

// Client 任务队列客户端接口
// 承担两类工作：拒绝申请的持久化定时器（可取消），以及级联传播的异步执行
type Client interface {
	ScheduleRejectionTimeout(requestID, tenantID string, delay time.Duration) error
	CancelRejectionTimeout(requestID string) error
	EnqueueCascade(payload tasks.CascadePayload) error
	Close() error
}

type asynqClient struct {
	client    *asynq.Client
	inspector *asynq.Inspector
}

// NewClient 创建任务队列客户端
func NewClient(cfg config.RedisConfig) Client {
	opt := asynq.RedisClientOpt{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	}
	return &asynqClient{
		client:    asynq.NewClient(opt),
		inspector: asynq.NewInspector(opt),
	}
}

// ScheduleRejectionTimeout 注册拒绝申请的超时定时器
// TaskID 固定为申请 ID，保证同一申请只有一个定时器，且可按 ID 取消
func (c *asynqClient) ScheduleRejectionTimeout(requestID, tenantID string, delay time.Duration) error {
	payload, err := json.Marshal(tasks.RejectionTimeoutPayload{RequestID: requestID, TenantID: tenantID})
	if err != nil {
		return fmt.Errorf("序列化超时任务载荷失败: %w", err)
	}

	task := asynq.NewTask(tasks.TypeRejectionTimeout, payload)
	_, err = c.client.Enqueue(task,
		asynq.ProcessIn(delay),
		asynq.TaskID(requestID),
		asynq.Queue(timerQueue),
		asynq.MaxRetry(3), // 调度器重试场景下处理端保证幂等
	)
	if err != nil {
		return fmt.Errorf("注册超时定时器失败: %w", err)
	}
	return nil
}

// CancelRejectionTimeout 取消拒绝申请的超时定时器
// 审批人在超时前作出决定时调用；定时器已触发或不存在不视为错误
func (c *asynqClient) CancelRejectionTimeout(requestID string) error {
	err := c.inspector.DeleteTask(timerQueue, requestID)
	if err != nil && !errors.Is(err, asynq.ErrTaskNotFound) && !errors.Is(err, asynq.ErrQueueNotFound) {
		return fmt.Errorf("取消超时定时器失败: %w", err)
	}
	return nil
}

// EnqueueCascade 投递级联传播任务
func (c *asynqClient) EnqueueCascade(payload tasks.CascadePayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("序列化级联任务载荷失败: %w", err)
	}

	task := asynq.NewTask(tasks.TypeCascade, data)
	_, err = c.client.Enqueue(task,
		asynq.Queue(cascadeQueue),
		asynq.MaxRetry(5), // 级联步骤幂等，重试安全
		asynq.Timeout(time.Minute),
	)
	if err != nil {
		return fmt.Errorf("投递级联任务失败: %w", err)
	}
	return nil
}

func (c *asynqClient) Close() error {
	return c.client.Close()
}
