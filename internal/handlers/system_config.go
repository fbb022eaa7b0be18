package handlers

import (
	"github.com/Nk110820004/freddie-backend-sub000/internal/services"
	"github.com/Nk110820004/freddie-backend-sub000/pkg/response"
	"github.com/gin-gonic/gin"
)

type SystemConfigHandler struct {
	configService *services.SystemConfigService
	digest        *services.DailyDigestService
	holidays      *services.HolidayService
}

func NewSystemConfigHandler(cfg *services.SystemConfigService, digest *services.DailyDigestService, holidays *services.HolidayService) *SystemConfigHandler {
	return &SystemConfigHandler{configService: cfg, digest: digest, holidays: holidays}
}

func (h *SystemConfigHandler) GetDigestSettings(c *gin.Context) {
	response.Success(c, h.configService.GetDigestSettings())
}

func (h *SystemConfigHandler) UpdateDigestSettings(c *gin.Context) {
	var req services.UpdateDigestSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	settings, err := h.configService.UpdateDigestSettings(&req)
	if err != nil {
		response.BadRequest(c, "invalid digest settings: "+err.Error())
		return
	}

	if h.digest != nil {
		h.digest.UpdateSchedule()
	}
	response.Success(c, settings)
}

// ListCalendars returns the holiday calendars an outlet can be assigned.
func (h *SystemConfigHandler) ListCalendars(c *gin.Context) {
	response.Success(c, h.holidays.SupportedCountries())
}
