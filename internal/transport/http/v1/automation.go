package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/opro/internal/domain"
)

// SetAutomation enables or disables the autopilot loop for a session.
// PUT /v1/sessions/:session_id/automation
func (h *Handler) SetAutomation(c echo.Context) error {
	ctx := c.Request().Context()
	sessionID := c.Param("session_id")

	var req domain.AutomationRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	if err := h.service.SetAutomation(ctx, sessionID, req.Enabled); err != nil {
		return errorResponse(c, err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"session_id": sessionID,
		"enabled":    h.service.AutomationEnabled(sessionID),
	})
}
