// Package v1 provides HTTP handlers for the optimizer API.
package v1

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/opro/internal/domain"
	"github.com/xiaot623/opro/internal/service"
)

// Handler handles HTTP requests.
type Handler struct {
	service *service.Service
}

// NewHandler creates a new handler.
func NewHandler(service *service.Service) *Handler {
	return &Handler{
		service: service,
	}
}

// RegisterRoutes registers the API routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	// Session API
	e.POST("/v1/sessions", h.CreateSession)
	e.GET("/v1/sessions", h.ListSessions)
	e.GET("/v1/sessions/:session_id", h.GetSession)
	e.DELETE("/v1/sessions/:session_id", h.DeleteSession)
	e.POST("/v1/sessions/:session_id/activate", h.ActivateSession)

	// Step operations
	e.POST("/v1/sessions/:session_id/generate", h.GeneratePrompts)
	e.POST("/v1/sessions/:session_id/score", h.ScorePrompt)
	e.POST("/v1/sessions/:session_id/advance", h.AdvanceStep)

	// Automation
	e.PUT("/v1/sessions/:session_id/automation", h.SetAutomation)

	// Progress feed
	e.GET("/v1/sessions/:session_id/events", h.GetSessionEvents)

	// LLM passthrough
	e.GET("/v1/models", h.ListModels)

	e.GET("/health", h.Health)
}

// Health returns health status.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": "0.1.0",
	})
}

// errorResponse maps a service error onto the HTTP status it deserves.
func errorResponse(c echo.Context, err error) error {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrPrecondition):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrBusy):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrGenerationFailed), errors.Is(err, domain.ErrScoringFailed):
		status = http.StatusBadGateway
	}
	return c.JSON(status, map[string]string{"error": err.Error()})
}
