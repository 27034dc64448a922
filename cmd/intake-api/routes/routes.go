package routes

import (
	"github.com/labstack/echo/v4"

	"github.com/inkfold/prepress/cmd/intake-api/container"
	"github.com/inkfold/prepress/cmd/intake-api/handlers"
)

// RegisterPreflightRoutes registers preflight job submission routes
func RegisterPreflightRoutes(e *echo.Echo, c *container.Container) {
	h := handlers.NewPreflightHandler(c)

	e.POST("/api/v1/preflight-jobs", h.EnqueuePreflight)
}

// RegisterExportRoutes registers export job routes
func RegisterExportRoutes(e *echo.Echo, c *container.Container) {
	h := handlers.NewExportHandler(c)

	jobs := e.Group("/api/v1/export-jobs")
	{
		jobs.POST("", h.CreateExportJob)
		jobs.GET("/:id", h.GetExportJob)
	}
}

// RegisterUploadRoutes registers upload state routes
func RegisterUploadRoutes(e *echo.Echo, c *container.Container) {
	h := handlers.NewUploadHandler(c)

	e.GET("/api/v1/uploads/:id", h.GetUpload)
}
