// Package http provides the HTTP server for the optimizer service.
package http

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/xiaot623/opro/internal/service"
	v1 "github.com/xiaot623/opro/internal/transport/http/v1"
)

// NewServer creates and configures the HTTP server. It serves the session
// API, the progress event feed and the models passthrough.
func NewServer(svc *service.Service) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	// Handlers
	v1Handler := v1.NewHandler(svc)
	v1Handler.RegisterRoutes(e)

	return e
}
