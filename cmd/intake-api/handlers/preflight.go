package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/inkfold/prepress/cmd/intake-api/container"
)

// PreflightHandler handles preflight job submission
type PreflightHandler struct {
	c *container.Container
}

// NewPreflightHandler creates a new preflight handler
func NewPreflightHandler(c *container.Container) *PreflightHandler {
	return &PreflightHandler{c: c}
}

type preflightJobRequest struct {
	UploadID   uuid.UUID `json:"uploadId"`
	ShopID     uuid.UUID `json:"shopId"`
	ItemID     uuid.UUID `json:"itemId"`
	StorageKey string    `json:"storageKey"`
}

// EnqueuePreflight enqueues one item for preflight validation
// POST /api/v1/preflight-jobs
func (h *PreflightHandler) EnqueuePreflight(c echo.Context) error {
	var req preflightJobRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.UploadID == uuid.Nil || req.ShopID == uuid.Nil || req.ItemID == uuid.Nil || req.StorageKey == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "uploadId, shopId, itemId and storageKey are required")
	}

	ctx := c.Request().Context()
	if _, err := h.c.Items.GetByID(ctx, req.ItemID); err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "item not found")
	}

	msgID, err := h.c.Queue.Enqueue(ctx, h.c.Config.Preflight.Stream, req)
	if err != nil {
		h.c.Logger.Error("failed to enqueue preflight job", "item_id", req.ItemID, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to enqueue job")
	}

	return c.JSON(http.StatusAccepted, map[string]any{
		"messageId": msgID,
		"itemId":    req.ItemID,
	})
}
