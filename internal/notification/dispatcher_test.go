package notification

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewWebhookNotifierDisabled(t *testing.T) {
	// 未配置或 URL 为空时禁用该通道
	require.Nil(t, NewWebhookNotifier(nil))
	require.Nil(t, NewWebhookNotifier(&WebhookConfig{DefaultURL: ""}))
}

func TestWebhookNotifierSend(t *testing.T) {
	type received struct {
		payload map[string]any
		header  http.Header
	}
	got := make(chan received, 1)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		got <- received{payload: payload, header: r.Header.Clone()}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	notifier := NewWebhookNotifier(&WebhookConfig{
		DefaultURL: server.URL,
		Timeout:    5 * time.Second,
		Headers:    map[string]string{"X-Webhook-Token": "secret-1"},
	})
	require.NotNil(t, notifier)

	err := notifier.Send(context.Background(), Event{
		Type:     EventJobRejected,
		TenantID: "tenant-wh",
		JobID:    "job-1",
		Data:     map[string]any{"reason": "排期冲突"},
	})
	require.NoError(t, err)

	select {
	case r := <-got:
		require.Equal(t, EventJobRejected, r.payload["type"])
		require.Equal(t, "tenant-wh", r.payload["tenant_id"])
		require.Equal(t, "job-1", r.payload["job_id"])
		require.Equal(t, "secret-1", r.header.Get("X-Webhook-Token"))
		require.Equal(t, "application/json", r.header.Get("Content-Type"))
	case <-time.After(time.Second):
		t.Fatal("Webhook 未收到请求")
	}
}

func TestWebhookNotifierSendErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	notifier := NewWebhookNotifier(&WebhookConfig{DefaultURL: server.URL})
	err := notifier.Send(context.Background(), Event{Type: EventJobCompleted, TenantID: "tenant-wh"})
	require.Error(t, err)
}
