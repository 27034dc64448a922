package handlers

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/inkfold/prepress/cmd/intake-api/container"
	"github.com/inkfold/prepress/common/models"
)

// ExportHandler handles export job submission and status
type ExportHandler struct {
	c *container.Container
}

// NewExportHandler creates a new export handler
func NewExportHandler(c *container.Container) *ExportHandler {
	return &ExportHandler{c: c}
}

type exportJobRequest struct {
	ShopID    uuid.UUID   `json:"shopId"`
	UploadIDs []uuid.UUID `json:"uploadIds"`
}

type exportJobMessage struct {
	JobID  uuid.UUID `json:"jobId"`
	ShopID uuid.UUID `json:"shopId"`
}

// CreateExportJob persists a new export job and enqueues it
// POST /api/v1/export-jobs
func (h *ExportHandler) CreateExportJob(c echo.Context) error {
	var req exportJobRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.ShopID == uuid.Nil || len(req.UploadIDs) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "shopId and a non-empty uploadIds set are required")
	}

	ctx := c.Request().Context()
	if _, err := h.c.Shops.GetByID(ctx, req.ShopID); err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "shop not found")
	}

	job := &models.ExportJob{
		ID:        uuid.New(),
		ShopID:    req.ShopID,
		UploadIDs: req.UploadIDs,
		Status:    models.ExportPending,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.c.ExportJobs.Create(ctx, job); err != nil {
		h.c.Logger.Error("failed to create export job", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to create export job")
	}

	// The job row is the source of truth; the message only points at it
	msg := exportJobMessage{JobID: job.ID, ShopID: job.ShopID}
	if _, err := h.c.Queue.Enqueue(ctx, h.c.Config.Export.Stream, msg); err != nil {
		h.c.Logger.Error("failed to enqueue export job", "job_id", job.ID, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to enqueue job")
	}

	return c.JSON(http.StatusAccepted, job)
}

// GetExportJob returns the job record plus its last reported progress
// GET /api/v1/export-jobs/:id
func (h *ExportHandler) GetExportJob(c echo.Context) error {
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid job id")
	}

	ctx := c.Request().Context()
	job, err := h.c.ExportJobs.GetByID(ctx, jobID)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "export job not found")
	}

	progress, err := h.c.Queue.Progress(ctx, "export", jobID.String())
	if err != nil {
		h.c.Logger.Debug("failed to read export progress", "job_id", jobID, "error", err)
		progress = nil
	}

	return c.JSON(http.StatusOK, map[string]any{
		"job":      job,
		"progress": progress,
	})
}
