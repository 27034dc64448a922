package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/inkfold/prepress/cmd/intake-api/container"
)

// UploadHandler serves upload and item state to merchant-facing callers
type UploadHandler struct {
	c *container.Container
}

// NewUploadHandler creates a new upload handler
func NewUploadHandler(c *container.Container) *UploadHandler {
	return &UploadHandler{c: c}
}

// GetUpload returns the upload, its items and per-item pipeline progress
// GET /api/v1/uploads/:id
func (h *UploadHandler) GetUpload(c echo.Context) error {
	uploadID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid upload id")
	}

	ctx := c.Request().Context()
	upload, err := h.c.Uploads.GetByID(ctx, uploadID)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "upload not found")
	}

	items, err := h.c.Items.ListByUpload(ctx, uploadID)
	if err != nil {
		h.c.Logger.Error("failed to list upload items", "upload_id", uploadID, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load items")
	}

	progress := make(map[string]map[string]string, len(items))
	for _, item := range items {
		p, err := h.c.Queue.Progress(ctx, "preflight", item.ID.String())
		if err != nil || len(p) == 0 {
			continue
		}
		progress[item.ID.String()] = p
	}

	return c.JSON(http.StatusOK, map[string]any{
		"upload":   upload,
		"items":    items,
		"progress": progress,
	})
}
