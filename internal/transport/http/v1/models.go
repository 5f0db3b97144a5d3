package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/opro/internal/adapter/llm"
)

// ListModels lists the models available at the configured LLM endpoint.
// GET /v1/models
func (h *Handler) ListModels(c echo.Context) error {
	ctx := c.Request().Context()

	models, err := h.service.ListModels(ctx)
	if err != nil {
		return c.JSON(http.StatusBadGateway, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusOK, llm.ModelsResponse{
		Object: "list",
		Data:   models,
	})
}
