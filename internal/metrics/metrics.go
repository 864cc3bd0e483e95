package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// API 指标
var (
	// APIRequestsTotal API 请求总数
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "designflow_api_requests_total",
			Help: "API 请求总数",
		},
		[]string{"method", "path", "status"},
	)

	// APIRequestDuration API 请求延迟（秒）
	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "designflow_api_request_duration_seconds",
			Help:    "API 请求延迟分布",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// 工单域指标
var (
	// JobTransitionsTotal 工单状态流转总数
	JobTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "designflow_job_transitions_total",
			Help: "工单状态流转总数",
		},
		[]string{"tenant_id", "to_status"},
	)

	// ApprovalDecisionsTotal 审批决定总数
	ApprovalDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "designflow_approval_decisions_total",
			Help: "审批决定总数（含系统自动通过）",
		},
		[]string{"tenant_id", "decision"},
	)

	// CascadeStepsTotal 级联传播步骤总数
	CascadeStepsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "designflow_cascade_steps_total",
			Help: "级联传播步骤总数，按生效/跳过区分",
		},
		[]string{"tenant_id", "result"},
	)

	// RejectionRequestsTotal 拒单申请裁决总数
	RejectionRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "designflow_rejection_requests_total",
			Help: "拒单申请裁决总数，按结果区分",
		},
		[]string{"tenant_id", "outcome"},
	)
)

// 通知与任务指标
var (
	// WebSocketConnectionsGauge 在线 WebSocket 连接数
	WebSocketConnectionsGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "designflow_websocket_connections",
			Help: "在线 WebSocket 连接数",
		},
		[]string{"tenant_id"},
	)

	// TaskProcessedTotal 异步任务处理总数
	TaskProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "designflow_task_processed_total",
			Help: "异步任务处理总数",
		},
		[]string{"task_type", "status"},
	)
)
