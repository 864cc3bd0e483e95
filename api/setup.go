package api

import (
	"time"

	assignmentHandlers "backend/api/handlers/assignments"
	flowHandlers "backend/api/handlers/flows"
	jobHandlers "backend/api/handlers/jobs"
	notificationHandlers "backend/api/handlers/notifications"
	userHandlers "backend/api/handlers/users"

	"backend/internal/assignment"
	"backend/internal/cache"
	"backend/internal/config"
	"backend/internal/directory"
	"backend/internal/flow"
	"backend/internal/infra"
	"backend/internal/infra/queue"
	"backend/internal/job"
	"backend/internal/logger"
	"backend/internal/metrics"
	middlewarepkg "backend/internal/middleware"
	"backend/internal/notification"
	"backend/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// SetupRouter 设置并返回 Gin 路由和 Worker 服务器
func SetupRouter(db *gorm.DB, cfg *config.Config) (*gin.Engine, *worker.Server) {
	router := gin.New()

	// 队列客户端：拒单超时定时器与级联任务的投递端
	queueClient := queue.NewClient(cfg.Redis)

	// Redis 客户端：离线通知存储
	redisClient, err := infra.InitRedis(&cfg.Redis)
	if err != nil {
		logger.Warn("Redis 不可用，离线通知将退回内存实现", zap.Error(err))
		redisClient = nil
	}

	// 通知通道：WebSocket 推送 + 可选的租户 Webhook
	var offlineStore notification.OfflineStore = notification.NewMemoryOfflineStore(100)
	if redisClient != nil {
		offlineStore = notification.NewRedisOfflineStore(redisClient, 200, time.Hour)
	}
	wsHub := notification.NewWebSocketHub(notification.WithOfflineStore(offlineStore))
	var webhookConfig *notification.WebhookConfig
	if cfg.Notification.Webhook.URL != "" {
		webhookConfig = &notification.WebhookConfig{
			DefaultURL: cfg.Notification.Webhook.URL,
			Timeout:    cfg.Notification.Webhook.Timeout(),
			Headers:    cfg.Notification.Webhook.Headers,
		}
	}
	dispatcher := notification.NewMultiDispatcher(webhookConfig, wsHub)

	// 领域服务
	directoryService := directory.NewService(db, cache.NewTTLCache(cfg.Approval.DirectoryCacheTTL()))
	flowService := flow.NewService(db, cache.NewTTLCache(cfg.Approval.FlowCacheTTL()))
	assignmentService := assignment.NewService(db)
	jobService := job.NewService(db, flowService,
		job.WithNotifier(dispatcher),
		job.WithQueue(queueClient),
		job.WithRejectionTimeout(cfg.Approval.RejectionRequestTimeout()),
	)

	// 全局中间件
	router.Use(gin.Recovery())
	router.Use(middlewarepkg.RequestIDMiddleware())
	router.Use(RequestLogger())
	router.Use(CORS())
	router.Use(metrics.PrometheusMiddleware())

	// 公开端点
	router.GET("/health", HealthCheck(db))
	router.GET("/ready", ReadinessCheck(db))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Handlers
	jobHandler := jobHandlers.NewJobHandler(jobService)
	rejectionHandler := jobHandlers.NewRejectionHandler(jobService)
	flowHandler := flowHandlers.NewFlowHandler(flowService)
	ruleHandler := assignmentHandlers.NewRuleHandler(assignmentService)
	userHandler := userHandlers.NewUserHandler(directoryService)
	wsHandler := notificationHandlers.NewWebSocketHandler(wsHub)

	rateLimiter := middlewarepkg.NewRateLimiter(nil)

	registerAPIRoutes := func(apiGroup *gin.RouterGroup) {
		apiGroup.GET("/ws/notifications", wsHandler.Connect)

		// 工单生命周期
		jobsGroup := apiGroup.Group("/jobs")
		{
			jobsGroup.GET("", jobHandler.List)
			jobsGroup.POST("", jobHandler.Create)
			jobsGroup.POST("/groups", jobHandler.CreateGroup)
			jobsGroup.GET("/:id", jobHandler.Get)
			jobsGroup.POST("/:id/submit", jobHandler.Submit)
			jobsGroup.POST("/:id/decisions", jobHandler.Decide)
			jobsGroup.POST("/:id/start", jobHandler.Start)
			jobsGroup.POST("/:id/deliver", jobHandler.Deliver)
			jobsGroup.POST("/:id/rework", jobHandler.Rework)
			jobsGroup.POST("/:id/resume", jobHandler.Resume)
			jobsGroup.POST("/:id/cancel", jobHandler.Cancel)
			jobsGroup.POST("/:id/close", jobHandler.Close)
			jobsGroup.PUT("/:id/assignee", jobHandler.Assign)
			jobsGroup.POST("/:id/rejection-requests", rejectionHandler.Create)
		}

		// 拒单申请裁决
		rejectionGroup := apiGroup.Group("/rejection-requests")
		{
			rejectionGroup.GET("/:id", rejectionHandler.Get)
			rejectionGroup.POST("/:id/resolve", rejectionHandler.Resolve)
		}

		// 审批流模板管理
		templatesGroup := apiGroup.Group("/flow-templates")
		{
			templatesGroup.GET("", flowHandler.ListTemplates)
			templatesGroup.POST("", flowHandler.CreateTemplate)
			templatesGroup.DELETE("/:id", flowHandler.DisableTemplate)
		}

		// 工单类型（链式配置）
		jobTypesGroup := apiGroup.Group("/job-types")
		{
			jobTypesGroup.GET("", flowHandler.ListJobTypes)
			jobTypesGroup.POST("", flowHandler.CreateJobType)
			jobTypesGroup.PUT("/:id", flowHandler.UpdateJobType)
		}

		// 自动派单矩阵
		rulesGroup := apiGroup.Group("/assignment-rules")
		{
			rulesGroup.GET("", ruleHandler.List)
			rulesGroup.PUT("", ruleHandler.Upsert)
			rulesGroup.DELETE("/:id", ruleHandler.Delete)
		}

		// 人员目录
		usersGroup := apiGroup.Group("/users")
		{
			usersGroup.GET("", userHandler.List)
			usersGroup.GET("/:id", userHandler.Get)
			usersGroup.POST("", userHandler.Create)
			usersGroup.PUT("/:id", userHandler.Update)
		}
	}

	// 主 API 组
	apiGroup := router.Group("/api")
	apiGroup.Use(
		middlewarepkg.GinTenantContextMiddleware(directoryService, logger.Get()),
		middlewarepkg.RateLimitByTenant(rateLimiter),
	)
	registerAPIRoutes(apiGroup)

	// 版本化 API 组
	apiV1 := router.Group("/api/v1")
	apiV1.Use(
		middlewarepkg.GinTenantContextMiddleware(directoryService, logger.Get()),
		middlewarepkg.RateLimitByTenant(rateLimiter),
	)
	registerAPIRoutes(apiV1)

	// Worker 服务器：超时定时器与级联任务的消费端
	workerServer := worker.NewServer(cfg.Redis, jobService, logger.Get())

	return router, workerServer
}

// Models 返回需要自动迁移的全部模型
func Models() []any {
	return []any{
		&directory.User{},
		&flow.Project{},
		&flow.JobType{},
		&flow.Template{},
		&assignment.Rule{},
		&job.Job{},
		&job.Approval{},
		&job.RejectionRequest{},
	}
}
