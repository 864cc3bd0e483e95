package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"backend/internal/worker/tasks"

	"github.com/hibiken/asynq"
	"go.uber.org/zap/zaptest"
)

type fakeCascader struct {
	called   bool
	jobID    string
	tenantID string
	reason   string
}

func (f *fakeCascader) Cascade(ctx context.Context, jobID, tenantID, reason string) {
	f.called = true
	f.jobID = jobID
	f.tenantID = tenantID
	f.reason = reason
}

type fakeResolver struct {
	called    bool
	requestID string
	retErr    error
}

func (f *fakeResolver) ResolveRejectionTimeout(ctx context.Context, tenantID, requestID string) error {
	f.called = true
	f.requestID = requestID
	return f.retErr
}

func TestJobHandlerHandleCascade_Success(t *testing.T) {
	cascader := &fakeCascader{}
	h := NewJobHandler(cascader, &fakeResolver{}, zaptest.NewLogger(t))
	payload, _ := json.Marshal(tasks.CascadePayload{JobID: "job-1", TenantID: "tenant-1", Reason: "取消"})
	task := asynq.NewTask(tasks.TypeCascade, payload)
	if err := h.HandleCascade(context.Background(), task); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !cascader.called || cascader.jobID != "job-1" || cascader.reason != "取消" {
		t.Fatalf("cascader not invoked correctly: %+v", cascader)
	}
}

func TestJobHandlerHandleCascade_InvalidPayload(t *testing.T) {
	cascader := &fakeCascader{}
	h := NewJobHandler(cascader, &fakeResolver{}, zaptest.NewLogger(t))
	task := asynq.NewTask(tasks.TypeCascade, []byte("not-json"))
	if err := h.HandleCascade(context.Background(), task); err == nil {
		t.Fatalf("expected error for invalid payload")
	}
	if cascader.called {
		t.Fatalf("cascader should not be called when payload invalid")
	}
}

func TestJobHandlerHandleRejectionTimeout_Success(t *testing.T) {
	resolver := &fakeResolver{}
	h := NewJobHandler(&fakeCascader{}, resolver, zaptest.NewLogger(t))
	payload, _ := json.Marshal(tasks.RejectionTimeoutPayload{RequestID: "req-1", TenantID: "tenant-1"})
	task := asynq.NewTask(tasks.TypeRejectionTimeout, payload)
	if err := h.HandleRejectionTimeout(context.Background(), task); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !resolver.called || resolver.requestID != "req-1" {
		t.Fatalf("resolver not invoked correctly: %+v", resolver)
	}
}

func TestJobHandlerHandleRejectionTimeout_ResolverError(t *testing.T) {
	expectedErr := errors.New("boom")
	resolver := &fakeResolver{retErr: expectedErr}
	h := NewJobHandler(&fakeCascader{}, resolver, zaptest.NewLogger(t))
	payload, _ := json.Marshal(tasks.RejectionTimeoutPayload{RequestID: "req-2", TenantID: "tenant-1"})
	task := asynq.NewTask(tasks.TypeRejectionTimeout, payload)
	if err := h.HandleRejectionTimeout(context.Background(), task); !errors.Is(err, expectedErr) {
		t.Fatalf("expected error %v, got %v", expectedErr, err)
	}
}
