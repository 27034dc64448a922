package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/inkfold/prepress/common/db"
	"github.com/inkfold/prepress/common/models"
)

// ExportJobRepository handles database operations for export jobs
type ExportJobRepository struct {
	db *db.DB
}

// NewExportJobRepository creates a new export job repository
func NewExportJobRepository(database *db.DB) *ExportJobRepository {
	return &ExportJobRepository{db: database}
}

// Create inserts a new export job with its fixed upload id set
func (r *ExportJobRepository) Create(ctx context.Context, job *models.ExportJob) error {
	query := `
		INSERT INTO export_jobs (id, shop_id, upload_ids, status, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := r.db.Exec(ctx, query, job.ID, job.ShopID, job.UploadIDs, job.Status, job.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create export job: %w", err)
	}
	return nil
}

// GetByID retrieves an export job by its ID
func (r *ExportJobRepository) GetByID(ctx context.Context, jobID uuid.UUID) (*models.ExportJob, error) {
	query := `
		SELECT id, shop_id, upload_ids, status, archive_key, download_url,
		       expires_at, files_count, error, created_at, completed_at
		FROM export_jobs
		WHERE id = $1
	`

	job := &models.ExportJob{}
	err := r.db.QueryRow(ctx, query, jobID).Scan(
		&job.ID,
		&job.ShopID,
		&job.UploadIDs,
		&job.Status,
		&job.ArchiveKey,
		&job.DownloadURL,
		&job.ExpiresAt,
		&job.FilesCount,
		&job.Error,
		&job.CreatedAt,
		&job.CompletedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get export job: %w", err)
	}
	return job, nil
}

// MarkProcessing claims the job for this worker. A job already completed or
// failed is not reclaimed; a job stuck in processing (crashed worker) is,
// because queue redelivery is the only way it runs again.
func (r *ExportJobRepository) MarkProcessing(ctx context.Context, jobID uuid.UUID) (bool, error) {
	query := `
		UPDATE export_jobs
		SET status = $2, error = NULL
		WHERE id = $1 AND status IN ($3, $2)
	`

	tag, err := r.db.Exec(ctx, query, jobID, models.ExportProcessing, models.ExportPending)
	if err != nil {
		return false, fmt.Errorf("failed to mark export job processing: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Complete records the archive location and signed URL. DownloadURL is only
// ever set here, on the transition to completed.
func (r *ExportJobRepository) Complete(
	ctx context.Context,
	jobID uuid.UUID,
	archiveKey, downloadURL string,
	expiresAt time.Time,
	filesCount int,
) error {
	query := `
		UPDATE export_jobs
		SET status = $2, archive_key = $3, download_url = $4,
		    expires_at = $5, files_count = $6, completed_at = $7
		WHERE id = $1
	`

	_, err := r.db.Exec(ctx, query, jobID, models.ExportCompleted,
		archiveKey, downloadURL, expiresAt, filesCount, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to complete export job: %w", err)
	}
	return nil
}

// Fail records a terminal failure with its diagnostic
func (r *ExportJobRepository) Fail(ctx context.Context, jobID uuid.UUID, msg string) error {
	query := `
		UPDATE export_jobs
		SET status = $2, error = $3, completed_at = $4
		WHERE id = $1
	`

	_, err := r.db.Exec(ctx, query, jobID, models.ExportFailed, msg, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to fail export job: %w", err)
	}
	return nil
}
