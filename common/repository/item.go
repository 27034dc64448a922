package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/inkfold/prepress/common/db"
	"github.com/inkfold/prepress/common/models"
)

// ItemRepository handles database operations for upload items
type ItemRepository struct {
	db *db.DB
}

// NewItemRepository creates a new item repository
func NewItemRepository(database *db.DB) *ItemRepository {
	return &ItemRepository{db: database}
}

const itemColumns = `id, upload_id, storage_key, thumbnail_key, preview_key,
		mime_type, original_name, file_size, print_width_mm, print_height_mm,
		preflight_status, preflight_result, transform, created_at`

func scanItem(row interface{ Scan(...any) error }) (*models.UploadItem, error) {
	it := &models.UploadItem{}
	err := row.Scan(
		&it.ID,
		&it.UploadID,
		&it.StorageKey,
		&it.ThumbnailKey,
		&it.PreviewKey,
		&it.MimeType,
		&it.OriginalName,
		&it.FileSize,
		&it.PrintWidthMM,
		&it.PrintHeightMM,
		&it.PreflightStatus,
		&it.PreflightResult,
		&it.Transform,
		&it.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return it, nil
}

// GetByID retrieves an item by its ID
func (r *ItemRepository) GetByID(ctx context.Context, itemID uuid.UUID) (*models.UploadItem, error) {
	query := `SELECT ` + itemColumns + ` FROM upload_items WHERE id = $1`

	it, err := scanItem(r.db.QueryRow(ctx, query, itemID))
	if err != nil {
		return nil, fmt.Errorf("failed to get item: %w", err)
	}
	return it, nil
}

// ListByUpload retrieves all items of an upload
func (r *ItemRepository) ListByUpload(ctx context.Context, uploadID uuid.UUID) ([]*models.UploadItem, error) {
	query := `SELECT ` + itemColumns + ` FROM upload_items WHERE upload_id = $1 ORDER BY created_at`

	rows, err := r.db.Query(ctx, query, uploadID)
	if err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	defer rows.Close()

	var items []*models.UploadItem
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// ListStatusesByUpload returns the current preflight status of every sibling
// item. The aggregate recompute reads this on every completion so the result
// is independent of which item finishes last.
func (r *ItemRepository) ListStatusesByUpload(ctx context.Context, uploadID uuid.UUID) ([]models.PreflightStatus, error) {
	query := `SELECT preflight_status FROM upload_items WHERE upload_id = $1`

	rows, err := r.db.Query(ctx, query, uploadID)
	if err != nil {
		return nil, fmt.Errorf("failed to list item statuses: %w", err)
	}
	defer rows.Close()

	var statuses []models.PreflightStatus
	for rows.Next() {
		var s models.PreflightStatus
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("failed to scan status: %w", err)
		}
		statuses = append(statuses, s)
	}
	return statuses, rows.Err()
}

// SavePreflight persists the terminal verdict, the full check list and the
// derived-asset keys in one statement, so preflight_status and
// preflight_result.overall can never disagree.
func (r *ItemRepository) SavePreflight(
	ctx context.Context,
	itemID uuid.UUID,
	result models.PreflightResult,
	thumbnailKey *string,
	previewKey string,
) error {
	query := `
		UPDATE upload_items
		SET preflight_status = $2,
		    preflight_result = $3,
		    thumbnail_key = $4,
		    preview_key = $5
		WHERE id = $1
	`

	_, err := r.db.Exec(ctx, query, itemID, result.Overall, result, thumbnailKey, previewKey)
	if err != nil {
		return fmt.Errorf("failed to save preflight result: %w", err)
	}
	return nil
}
