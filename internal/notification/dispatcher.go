package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"backend/internal/logger"
	"backend/pkg/httputil"

	"go.uber.org/zap"
)

// MultiDispatcher 多通道事件派发器
// 每个事件同时走 Webhook（租户集成）与 WebSocket（在线用户推送），
// 发送即忘：投递在独立 goroutine 中进行，失败只记日志
type MultiDispatcher struct {
	webhook   *WebhookNotifier
	websocket *WebSocketNotifier
}

// NewMultiDispatcher 创建多通道派发器
func NewMultiDispatcher(webhookConfig *WebhookConfig, hub *WebSocketHub) *MultiDispatcher {
	return &MultiDispatcher{
		webhook:   NewWebhookNotifier(webhookConfig),
		websocket: NewWebSocketNotifier(hub),
	}
}

// Notify 派发事件
func (m *MultiDispatcher) Notify(ctx context.Context, event Event) {
	go func() {
		// 脱离请求生命周期，请求返回不应中断投递
		sendCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		if m.webhook != nil {
			if err := m.webhook.Send(sendCtx, event); err != nil {
				logger.Warn("Webhook 事件投递失败",
					zap.String("event", event.Type),
					zap.String("jobId", event.JobID),
					zap.Error(err),
				)
			}
		}
		if m.websocket != nil {
			if err := m.websocket.Send(sendCtx, event); err != nil {
				logger.Debug("WebSocket 事件投递失败",
					zap.String("event", event.Type),
					zap.String("jobId", event.JobID),
					zap.Error(err),
				)
			}
		}
	}()
}

// WebhookConfig Webhook 配置
type WebhookConfig struct {
	DefaultURL string
	Timeout    time.Duration
	Headers    map[string]string
}

// WebhookNotifier Webhook 通知器
type WebhookNotifier struct {
	config *WebhookConfig
	client *httputil.Client
}

// NewWebhookNotifier 创建 Webhook 通知器
func NewWebhookNotifier(config *WebhookConfig) *WebhookNotifier {
	if config == nil || config.DefaultURL == "" {
		return nil
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}

	return &WebhookNotifier{
		config: config,
		client: httputil.NewClient(
			httputil.WithTimeout(config.Timeout),
			httputil.WithRetries(2),
			httputil.WithHeaders(config.Headers),
		),
	}
}

// Send 发送 Webhook
func (w *WebhookNotifier) Send(ctx context.Context, event Event) error {
	payload := map[string]any{
		"type":      event.Type,
		"tenant_id": event.TenantID,
		"job_id":    event.JobID,
		"data":      event.Data,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("序列化 Webhook 负载失败: %w", err)
	}

	resp, err := w.client.Post(ctx, w.config.DefaultURL, "application/json", bytes.NewReader(payloadBytes))
	if err != nil {
		return fmt.Errorf("发送 Webhook 失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("Webhook 返回错误状态: %d", resp.StatusCode)
	}
	return nil
}

// WebSocketNotifier WebSocket 通知器
type WebSocketNotifier struct {
	hub *WebSocketHub
}

// NewWebSocketNotifier 创建 WebSocket 通知器
func NewWebSocketNotifier(hub *WebSocketHub) *WebSocketNotifier {
	if hub == nil {
		return nil
	}
	return &WebSocketNotifier{hub: hub}
}

// Send 推送给事件的每个接收人
func (ws *WebSocketNotifier) Send(ctx context.Context, event Event) error {
	if event.TenantID == "" || len(event.Recipients) == 0 {
		return nil
	}

	payload := map[string]any{
		"type":      event.Type,
		"job_id":    event.JobID,
		"data":      event.Data,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	var firstErr error
	for _, userID := range event.Recipients {
		if userID == "" {
			continue
		}
		if err := ws.hub.SendToUser(event.TenantID, userID, payload); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
