package handlers

import (
	"github.com/Nk110820004/freddie-backend-sub000/internal/services"
	"github.com/Nk110820004/freddie-backend-sub000/pkg/response"
	"github.com/gin-gonic/gin"
)

type ManualQueueHandler struct {
	queueService *services.ManualQueueService
}

func NewManualQueueHandler(svc *services.ManualQueueService) *ManualQueueHandler {
	return &ManualQueueHandler{queueService: svc}
}

// List returns queue items ordered by the next reminder due.
func (h *ManualQueueHandler) List(c *gin.Context) {
	var req services.ManualQueueListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	resp, err := h.queueService.List(c.Request.Context(), &req)
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}
	response.Success(c, resp)
}
