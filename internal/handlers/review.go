package handlers

import (
	"errors"
	"strconv"

	"github.com/Nk110820004/freddie-backend-sub000/internal/services"
	"github.com/Nk110820004/freddie-backend-sub000/internal/workflow"
	"github.com/Nk110820004/freddie-backend-sub000/pkg/response"
	"github.com/gin-gonic/gin"
)

type ReviewHandler struct {
	reviewService *services.ReviewService
	humanReply    *services.HumanReplyService
	resume        *services.ResumeService
}

func NewReviewHandler(reviews *services.ReviewService, humanReply *services.HumanReplyService, resume *services.ResumeService) *ReviewHandler {
	return &ReviewHandler{reviewService: reviews, humanReply: humanReply, resume: resume}
}

func (h *ReviewHandler) List(c *gin.Context) {
	var req services.ReviewListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	resp, err := h.reviewService.List(c.Request.Context(), &req)
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}
	response.Success(c, resp)
}

func (h *ReviewHandler) GetByID(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	detail, err := h.reviewService.Get(c.Request.Context(), id)
	if err != nil {
		response.Error(c, mapServiceError(err))
		return
	}
	response.Success(c, detail)
}

type HumanReplyRequest struct {
	Text      string `json:"text"`
	HandlerID *uint  `json:"handler_id"`
}

// HumanReply posts an operator's reply. On a completed review the text is a
// correction and reopens it.
func (h *ReviewHandler) HumanReply(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var req HumanReplyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	result, err := h.humanReply.Submit(c.Request.Context(), id, req.Text, req.HandlerID)
	if err != nil {
		response.Error(c, mapServiceError(err))
		return
	}
	response.Success(c, result)
}

// Retry gives a stuck review a fresh resume budget. It is picked up by the
// next batch.
func (h *ReviewHandler) Retry(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	if err := h.resume.Reset(c.Request.Context(), id); err != nil {
		response.Error(c, mapServiceError(err))
		return
	}
	response.Success(c, gin.H{"message": "retry scheduled for the next batch"})
}

func (h *ReviewHandler) ListWorkflowStates(c *gin.Context) {
	var req services.WorkflowStateListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	resp, err := h.reviewService.ListStates(c.Request.Context(), &req)
	if err != nil {
		response.Error(c, mapServiceError(err))
		return
	}
	response.Success(c, resp)
}

func parseID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil || id == 0 {
		response.BadRequest(c, "invalid id")
		return 0, false
	}
	return uint(id), true
}

// mapServiceError converts domain errors into API errors. Anything
// unrecognised stays a 500.
func mapServiceError(err error) error {
	switch {
	case errors.Is(err, services.ErrEmptyReply):
		return response.NewBadRequest(err.Error())
	case errors.Is(err, workflow.ErrUnknownState):
		return response.NewBadRequest(err.Error())
	case errors.Is(err, services.ErrReviewNotFound), errors.Is(err, workflow.ErrNotFound):
		return response.NewNotFound(err.Error())
	case errors.Is(err, services.ErrBatchInProgress),
		errors.Is(err, workflow.ErrIllegalTransition),
		errors.Is(err, workflow.ErrStaleState):
		return response.NewConflict(err.Error())
	}
	return err
}
