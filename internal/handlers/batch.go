package handlers

import (
	"errors"

	"github.com/Nk110820004/freddie-backend-sub000/internal/services"
	"github.com/Nk110820004/freddie-backend-sub000/pkg/response"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type BatchHandler struct {
	batchService *services.BatchService
}

func NewBatchHandler(svc *services.BatchService) *BatchHandler {
	return &BatchHandler{batchService: svc}
}

type batchListQuery struct {
	Page     int `form:"page" binding:"omitempty,min=1"`
	PageSize int `form:"page_size" binding:"omitempty,min=1,max=100"`
}

func (h *BatchHandler) List(c *gin.Context) {
	var q batchListQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	resp, err := h.batchService.ListRuns(c.Request.Context(), q.Page, q.PageSize)
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}
	response.Success(c, resp)
}

func (h *BatchHandler) LastCompleted(c *gin.Context) {
	run, err := h.batchService.LastCompleted(c.Request.Context())
	if errors.Is(err, gorm.ErrRecordNotFound) {
		response.NotFound(c, "no completed batch run yet")
		return
	}
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}
	response.Success(c, run)
}

// Trigger runs one batch synchronously and returns its record. A run that
// is already holding the lock yields 409. A run that started but failed is
// still returned, its error is on the record.
func (h *BatchHandler) Trigger(c *gin.Context) {
	run, err := h.batchService.RunOnce(c.Request.Context(), services.TriggerManual)
	if run == nil {
		response.Error(c, mapServiceError(err))
		return
	}
	response.Created(c, run)
}
