package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/opro/internal/domain"
)

// GeneratePrompts fills the current step with k candidate prompts.
// POST /v1/sessions/:session_id/generate
func (h *Handler) GeneratePrompts(c echo.Context) error {
	ctx := c.Request().Context()
	sessionID := c.Param("session_id")

	session, err := h.service.GeneratePrompts(ctx, sessionID)
	if err != nil {
		return errorResponse(c, err)
	}

	return c.JSON(http.StatusOK, session)
}

// ScorePrompt scores one prompt of the current step. The body may name a
// prompt_id; without one the first pending prompt is scored.
// POST /v1/sessions/:session_id/score
func (h *Handler) ScorePrompt(c echo.Context) error {
	ctx := c.Request().Context()
	sessionID := c.Param("session_id")

	// An empty body is fine, it means "score the next pending prompt".
	var req domain.ScoreRequest
	if c.Request().ContentLength > 0 {
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		}
	}

	session, err := h.service.ScorePrompt(ctx, sessionID, req.PromptID)
	if err != nil {
		return errorResponse(c, err)
	}

	return c.JSON(http.StatusOK, session)
}

// AdvanceStep closes a fully scored step and opens the next one.
// POST /v1/sessions/:session_id/advance
func (h *Handler) AdvanceStep(c echo.Context) error {
	ctx := c.Request().Context()
	sessionID := c.Param("session_id")

	session, err := h.service.AdvanceStep(ctx, sessionID)
	if err != nil {
		return errorResponse(c, err)
	}

	return c.JSON(http.StatusOK, session)
}
