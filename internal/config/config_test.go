package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadParsesNotificationSection(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.yaml")
	content := []byte(`
server:
  port: 8080
  mode: test
notification:
  webhook:
    url: https://hooks.example.com/designflow
    timeout_seconds: 3
    headers:
      X-Webhook-Token: secret-1
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))

	cfg, err := Load("test", path)
	require.NoError(t, err)
	require.Equal(t, "https://hooks.example.com/designflow", cfg.Notification.Webhook.URL)
	require.Equal(t, 3*time.Second, cfg.Notification.Webhook.Timeout())
	require.Equal(t, "secret-1", cfg.Notification.Webhook.Headers["X-Webhook-Token"])
}

func TestWebhookTimeoutDefaults(t *testing.T) {
	// 未配置超时取默认值
	c := &WebhookConfig{}
	require.Equal(t, 10*time.Second, c.Timeout())
}

func TestApprovalDefaults(t *testing.T) {
	c := &ApprovalConfig{}
	require.Equal(t, 24*time.Hour, c.RejectionRequestTimeout())
	require.Equal(t, 300*time.Second, c.FlowCacheTTL())
	require.Equal(t, 300*time.Second, c.DirectoryCacheTTL())
}
