package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Check is one graded preflight check outcome
type Check struct {
	Name    string          `json:"name"`
	Status  PreflightStatus `json:"status"`
	Message string          `json:"message,omitempty"`
	Value   string          `json:"value,omitempty"`
}

// PreflightResult is the full structured record persisted with an item.
// Overall always equals the item's preflight_status column; both are
// written in a single update.
type PreflightResult struct {
	Overall PreflightStatus `json:"overall"`
	Checks  []Check         `json:"checks"`
}

// Worst computes the overall verdict from a check list (error > warning > ok)
func Worst(checks []Check) PreflightStatus {
	overall := PreflightOK
	for _, c := range checks {
		overall = overall.Worse(c.Status)
	}
	return overall
}

// PreflightSummary is written to the upload exactly once, when its last
// item leaves the pending state.
type PreflightSummary struct {
	Overall      PreflightStatus `json:"overall"`
	CompletedAt  time.Time       `json:"completedAt"`
	ItemCount    int             `json:"itemCount"`
	AutoApproved bool            `json:"autoApproved"`
}

// Upload is one customer submission owning 1..N items
type Upload struct {
	ID               uuid.UUID         `json:"id"`
	ShopID           uuid.UUID         `json:"shop_id"`
	OrderID          *string           `json:"order_id,omitempty"`
	Mode             string            `json:"mode"`
	CustomerID       *string           `json:"customer_id,omitempty"`
	CustomerEmail    *string           `json:"customer_email,omitempty"`
	Status           UploadStatus      `json:"status"`
	PreflightSummary *PreflightSummary `json:"preflight_summary,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	ApprovedAt       *time.Time        `json:"approved_at,omitempty"`
}

// UploadItem is one physical file within a submission.
// StorageKey is immutable once set; PreviewKey always resolves to the
// original bytes, never a converted artifact.
type UploadItem struct {
	ID              uuid.UUID        `json:"id"`
	UploadID        uuid.UUID        `json:"upload_id"`
	StorageKey      string           `json:"storage_key"`
	ThumbnailKey    *string          `json:"thumbnail_key,omitempty"`
	PreviewKey      *string          `json:"preview_key,omitempty"`
	MimeType        string           `json:"mime_type"`     // as declared at submission, untrusted
	OriginalName    string           `json:"original_name"` // as declared at submission, untrusted
	FileSize        int64            `json:"file_size"`     // as declared at submission, untrusted
	PrintWidthMM    float64          `json:"print_width_mm"`
	PrintHeightMM   float64          `json:"print_height_mm"`
	PreflightStatus PreflightStatus  `json:"preflight_status"`
	PreflightResult *PreflightResult `json:"preflight_result,omitempty"`
	Transform       json.RawMessage  `json:"transform,omitempty"` // submitter placement metadata, opaque here
	CreatedAt       time.Time        `json:"created_at"`
}
