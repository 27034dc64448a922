package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/inkfold/prepress/common/db"
	"github.com/inkfold/prepress/common/models"
)

// pipelineStates are the upload states the processing pipeline is allowed
// to transition between. States past merchant review are never touched.
var pipelineStates = []string{
	string(models.UploadUploaded),
	string(models.UploadProcessing),
	string(models.UploadNeedsReview),
	string(models.UploadBlocked),
	string(models.UploadPendingApproval),
	string(models.UploadReady),
}

// UploadRepository handles database operations for uploads
type UploadRepository struct {
	db *db.DB
}

// NewUploadRepository creates a new upload repository
func NewUploadRepository(database *db.DB) *UploadRepository {
	return &UploadRepository{db: database}
}

const uploadColumns = `id, shop_id, order_id, mode, customer_id, customer_email,
		status, preflight_summary, created_at, approved_at`

func scanUpload(row interface{ Scan(...any) error }) (*models.Upload, error) {
	u := &models.Upload{}
	err := row.Scan(
		&u.ID,
		&u.ShopID,
		&u.OrderID,
		&u.Mode,
		&u.CustomerID,
		&u.CustomerEmail,
		&u.Status,
		&u.PreflightSummary,
		&u.CreatedAt,
		&u.ApprovedAt,
	)
	if err != nil {
		return nil, err
	}
	return u, nil
}

// GetByID retrieves an upload by its ID
func (r *UploadRepository) GetByID(ctx context.Context, uploadID uuid.UUID) (*models.Upload, error) {
	query := `SELECT ` + uploadColumns + ` FROM uploads WHERE id = $1`

	u, err := scanUpload(r.db.QueryRow(ctx, query, uploadID))
	if err != nil {
		return nil, fmt.Errorf("failed to get upload: %w", err)
	}
	return u, nil
}

// ListByIDs retrieves uploads for a fixed id set. Missing ids are simply
// absent from the result; the caller decides whether that matters.
func (r *UploadRepository) ListByIDs(ctx context.Context, ids []uuid.UUID) ([]*models.Upload, error) {
	query := `SELECT ` + uploadColumns + ` FROM uploads WHERE id = ANY($1)`

	rows, err := r.db.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to list uploads: %w", err)
	}
	defer rows.Close()

	var uploads []*models.Upload
	for rows.Next() {
		u, err := scanUpload(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan upload: %w", err)
		}
		uploads = append(uploads, u)
	}
	return uploads, rows.Err()
}

// SetAggregateStatus writes the recomputed aggregate status. The update is
// scoped to pipeline states so a concurrent merchant-side transition
// (approve, reject) is never overwritten by a stale recompute.
func (r *UploadRepository) SetAggregateStatus(ctx context.Context, uploadID uuid.UUID, status models.UploadStatus) error {
	query := `
		UPDATE uploads
		SET status = $2
		WHERE id = $1 AND status = ANY($3)
	`

	_, err := r.db.Exec(ctx, query, uploadID, status, pipelineStates)
	if err != nil {
		return fmt.Errorf("failed to set upload status: %w", err)
	}
	return nil
}

// SetPreflightSummaryOnce persists the summary only if none exists yet.
// Returns true when this call was the writer; concurrent sibling completions
// lose the race harmlessly.
func (r *UploadRepository) SetPreflightSummaryOnce(ctx context.Context, uploadID uuid.UUID, summary models.PreflightSummary) (bool, error) {
	query := `
		UPDATE uploads
		SET preflight_summary = $2
		WHERE id = $1 AND preflight_summary IS NULL
	`

	tag, err := r.db.Exec(ctx, query, uploadID, summary)
	if err != nil {
		return false, fmt.Errorf("failed to set preflight summary: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
