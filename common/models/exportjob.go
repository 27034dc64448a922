package models

import (
	"time"

	"github.com/google/uuid"
)

// ExportJob is one request to package a fixed set of uploads for production.
// UploadIDs are immutable after creation; the job record, not the queue
// payload, is the source of truth for what gets exported.
type ExportJob struct {
	ID          uuid.UUID    `json:"id"`
	ShopID      uuid.UUID    `json:"shop_id"`
	UploadIDs   []uuid.UUID  `json:"upload_ids"`
	Status      ExportStatus `json:"status"`
	ArchiveKey  *string      `json:"archive_key,omitempty"`
	DownloadURL *string      `json:"download_url,omitempty"` // set only on completion
	ExpiresAt   *time.Time   `json:"expires_at,omitempty"`   // advisory; real TTL is on the signed URL
	FilesCount  int          `json:"files_count"`
	Error       *string      `json:"error,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	CompletedAt *time.Time   `json:"completed_at,omitempty"`
}
