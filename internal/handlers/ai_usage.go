package handlers

import (
	"strconv"
	"time"

	"github.com/Nk110820004/freddie-backend-sub000/internal/services"
	"github.com/Nk110820004/freddie-backend-sub000/pkg/response"
	"github.com/gin-gonic/gin"
)

// AIUsageHandler provides endpoints for reply-generation usage statistics.
type AIUsageHandler struct {
	usageService *services.AIUsageService
}

func NewAIUsageHandler(svc *services.AIUsageService) *AIUsageHandler {
	return &AIUsageHandler{usageService: svc}
}

// GetStats returns aggregated usage. end_date is inclusive when given as a
// plain date.
func (h *AIUsageHandler) GetStats(c *gin.Context) {
	since, err := parseDateParam(c.Query("start_date"), false)
	if err != nil {
		response.BadRequest(c, "invalid start_date: "+err.Error())
		return
	}
	until, err := parseDateParam(c.Query("end_date"), true)
	if err != nil {
		response.BadRequest(c, "invalid end_date: "+err.Error())
		return
	}

	var outletID uint
	if s := c.Query("outlet_id"); s != "" {
		id, err := strconv.ParseUint(s, 10, 32)
		if err != nil {
			response.BadRequest(c, "invalid outlet_id")
			return
		}
		outletID = uint(id)
	}

	stats, err := h.usageService.GetStats(since, until, outletID)
	if err != nil {
		response.ServerError(c, "failed to get AI usage stats: "+err.Error())
		return
	}

	response.Success(c, stats)
}

// GetProviderBreakdown returns usage grouped by provider and model.
func (h *AIUsageHandler) GetProviderBreakdown(c *gin.Context) {
	since, err := parseDateParam(c.Query("start_date"), false)
	if err != nil {
		response.BadRequest(c, "invalid start_date: "+err.Error())
		return
	}

	providers, err := h.usageService.GetProviderBreakdown(since)
	if err != nil {
		response.ServerError(c, "failed to get provider breakdown: "+err.Error())
		return
	}

	response.Success(c, providers)
}

// parseDateParam accepts YYYY-MM-DD or RFC3339. An empty value is the zero
// time. With endOfDay a plain date is moved to the start of the next day.
func parseDateParam(v string, endOfDay bool) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse("2006-01-02", v); err == nil {
		if endOfDay {
			t = t.AddDate(0, 0, 1)
		}
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
