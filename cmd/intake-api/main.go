package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/inkfold/prepress/cmd/intake-api/container"
	"github.com/inkfold/prepress/cmd/intake-api/routes"
	"github.com/inkfold/prepress/common/config"
	"github.com/inkfold/prepress/common/logger"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load("intake-api")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Service.LogLevel, cfg.Service.LogFormat)

	serviceContainer, err := container.NewContainer(ctx, cfg, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize service container: %v\n", err)
		os.Exit(1)
	}
	defer serviceContainer.Shutdown(ctx)

	e := setupEcho()
	setupMiddleware(e)
	setupHealthCheck(e, serviceContainer)
	registerRoutes(e, serviceContainer)

	startServer(e, serviceContainer)
}

// setupEcho initializes the Echo server with basic configuration
func setupEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	return e
}

// setupMiddleware configures all middleware for the Echo server
func setupMiddleware(e *echo.Echo) {
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(middleware.RequestID())
}

// setupHealthCheck registers the health check endpoint
func setupHealthCheck(e *echo.Echo, c *container.Container) {
	e.GET("/healthz", func(ec echo.Context) error {
		if err := c.DB.Health(ec.Request().Context()); err != nil {
			return ec.JSON(http.StatusServiceUnavailable, map[string]string{
				"status": "unhealthy",
				"error":  err.Error(),
			})
		}
		return ec.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"service": "intake-api",
		})
	})
}

// registerRoutes registers all application routes using the service container
func registerRoutes(e *echo.Echo, c *container.Container) {
	routes.RegisterPreflightRoutes(e, c)
	routes.RegisterExportRoutes(e, c)
	routes.RegisterUploadRoutes(e, c)
}

// startServer starts the Echo server on the configured port
func startServer(e *echo.Echo, c *container.Container) {
	port := c.Config.Service.Port
	c.Logger.Info("starting intake-api", "port", port)

	if err := e.Start(fmt.Sprintf(":%d", port)); err != nil {
		c.Logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
