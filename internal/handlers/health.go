package handlers

import (
	"github.com/Nk110820004/freddie-backend-sub000/internal/services"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// HealthHandler reports the state of every subsystem the batch depends on.
type HealthHandler struct {
	db     *gorm.DB
	queue  services.TaskQueue
	hub    *services.SSEHub
	manual *services.ManualQueueService
	batch  *services.BatchService
}

func NewHealthHandler(db *gorm.DB, queue services.TaskQueue, hub *services.SSEHub, manual *services.ManualQueueService, batch *services.BatchService) *HealthHandler {
	return &HealthHandler{db: db, queue: queue, hub: hub, manual: manual, batch: batch}
}

// CheckHealth returns the health status of all subsystems.
func (h *HealthHandler) CheckHealth(c *gin.Context) {
	overall := "healthy"
	status := 200

	dbStatus := "ok"
	sqlDB, err := h.db.DB()
	if err != nil {
		dbStatus = "error: " + err.Error()
		overall = "unhealthy"
	} else if err := sqlDB.PingContext(c.Request.Context()); err != nil {
		dbStatus = "error: " + err.Error()
		overall = "unhealthy"
	}
	if overall != "healthy" {
		status = 503
	}

	queueMode := "sync"
	if h.queue != nil && h.queue.IsAsync() {
		queueMode = "async (Redis)"
	}

	sseClients := 0
	if h.hub != nil {
		sseClients = h.hub.ClientCount()
	}

	var pending int64
	if h.manual != nil && dbStatus == "ok" {
		pending, _ = h.manual.PendingCount(c.Request.Context())
	}

	components := gin.H{
		"database":     dbStatus,
		"queue_mode":   queueMode,
		"sse_clients":  sseClients,
		"manual_queue": pending,
	}
	if h.batch != nil && dbStatus == "ok" {
		if last, err := h.batch.LastCompleted(c.Request.Context()); err == nil {
			components["last_batch_completed_at"] = last.CompletedAt
		}
	}

	c.JSON(status, gin.H{
		"status":     overall,
		"service":    "reviewflow",
		"components": components,
	})
}
