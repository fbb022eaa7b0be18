package main

import (
	"context"

	"github.com/Nk110820004/freddie-backend-sub000/internal/handlers"
	"github.com/Nk110820004/freddie-backend-sub000/internal/middleware"
	"github.com/Nk110820004/freddie-backend-sub000/pkg/logger"
	"github.com/gin-gonic/gin"
)

// registerRoutes sets up all HTTP routes on the given Gin engine.
func registerRoutes(ctx context.Context, r *gin.Engine, svc *appServices) {
	r.Use(logger.GinLogger(), logger.GinRecovery())
	r.RedirectTrailingSlash = false
	r.RedirectFixedPath = false
	r.Use(middleware.CORS(svc.cfg.Server.CORSOrigins))

	limiter := middleware.NewRateLimiter(ctx, svc.cfg.Server.RateLimit, svc.cfg.Server.RateBurst)

	r.GET("/health", handlers.NewHealthHandler(svc.db, svc.taskQueue, svc.hub, svc.manual, svc.batch).CheckHealth)
	r.GET("/metrics", handlers.Metrics())

	reviewHandler := handlers.NewReviewHandler(svc.reviews, svc.humanReply, svc.resume)
	queueHandler := handlers.NewManualQueueHandler(svc.manual)
	batchHandler := handlers.NewBatchHandler(svc.batch)
	configHandler := handlers.NewSystemConfigHandler(svc.settings, svc.digest, svc.holidays)
	usageHandler := handlers.NewAIUsageHandler(svc.usage)
	systemLogHandler := handlers.NewSystemLogHandler(svc.systemLogs)
	sseHandler := handlers.NewSSEHandler(svc.hub)

	api := r.Group("/api")
	{
		// long-lived stream, kept out of the limiter
		api.GET("/events/workflow", sseHandler.StreamWorkflowEvents)

		limited := api.Group("", limiter.Middleware(), middleware.AuditLog())
		{
			// Reviews
			limited.GET("/reviews", reviewHandler.List)
			limited.GET("/reviews/:id", reviewHandler.GetByID)
			limited.POST("/reviews/:id/human-reply", reviewHandler.HumanReply)
			limited.POST("/reviews/:id/retry", reviewHandler.Retry)
			limited.GET("/workflow-states", reviewHandler.ListWorkflowStates)

			// Manual queue
			limited.GET("/manual-queue", queueHandler.List)

			// Batch runs
			limited.GET("/batch-runs", batchHandler.List)
			limited.GET("/batch-runs/last", batchHandler.LastCompleted)
			limited.POST("/batch-runs", batchHandler.Trigger)

			// Settings
			limited.GET("/settings/digest", configHandler.GetDigestSettings)
			limited.PUT("/settings/digest", configHandler.UpdateDigestSettings)
			limited.GET("/calendars", configHandler.ListCalendars)

			// AI usage
			limited.GET("/ai-usage", usageHandler.GetStats)
			limited.GET("/ai-usage/providers", usageHandler.GetProviderBreakdown)

			// System logs
			limited.GET("/system-logs", systemLogHandler.List)
		}
	}
}
