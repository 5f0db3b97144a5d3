package v1

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
)

// GetSessionEvents retrieves the progress events for a session.
// GET /v1/sessions/:session_id/events
func (h *Handler) GetSessionEvents(c echo.Context) error {
	sessionID := c.Param("session_id")

	afterTs := int64(0)
	if t := c.QueryParam("after_ts"); t != "" {
		if val, err := strconv.ParseInt(t, 10, 64); err == nil {
			afterTs = val
		}
	}
	limit := 100
	if l := c.QueryParam("limit"); l != "" {
		if val, err := strconv.Atoi(l); err == nil {
			limit = val
		}
	}
	var types []string
	if raw := c.QueryParam("types"); raw != "" {
		types = strings.Split(raw, ",")
	}

	ctx := c.Request().Context()

	events, err := h.service.ListEvents(ctx, sessionID, afterTs, types, limit)
	if err != nil {
		return errorResponse(c, err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"events": events,
	})
}
