package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/opro/internal/domain"
)

// CreateSession creates a new optimization session.
// POST /v1/sessions
func (h *Handler) CreateSession(c echo.Context) error {
	ctx := c.Request().Context()

	var req domain.CreateSessionRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	session, err := h.service.CreateSession(ctx, req)
	if err != nil {
		return errorResponse(c, err)
	}

	return c.JSON(http.StatusCreated, session)
}

// ListSessions lists all sessions.
// GET /v1/sessions
func (h *Handler) ListSessions(c echo.Context) error {
	ctx := c.Request().Context()

	summaries, err := h.service.ListSessions(ctx)
	if err != nil {
		return errorResponse(c, err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"sessions": summaries,
	})
}

// GetSession retrieves a full session by ID.
// GET /v1/sessions/:session_id
func (h *Handler) GetSession(c echo.Context) error {
	ctx := c.Request().Context()
	sessionID := c.Param("session_id")

	session, err := h.service.GetSession(ctx, sessionID)
	if err != nil {
		return errorResponse(c, err)
	}

	return c.JSON(http.StatusOK, session)
}

// DeleteSession deletes a session and its events.
// DELETE /v1/sessions/:session_id
func (h *Handler) DeleteSession(c echo.Context) error {
	ctx := c.Request().Context()
	sessionID := c.Param("session_id")

	if err := h.service.DeleteSession(ctx, sessionID); err != nil {
		return errorResponse(c, err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"ok": true,
	})
}

// ActivateSession marks a session as the one the user is working in.
// Automated work still in flight for the previously active session is
// discarded when it resolves.
// POST /v1/sessions/:session_id/activate
func (h *Handler) ActivateSession(c echo.Context) error {
	ctx := c.Request().Context()
	sessionID := c.Param("session_id")

	session, err := h.service.ActivateSession(ctx, sessionID)
	if err != nil {
		return errorResponse(c, err)
	}

	return c.JSON(http.StatusOK, session)
}
