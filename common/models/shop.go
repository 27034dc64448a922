package models

import (
	"time"

	"github.com/google/uuid"
)

// Plan is the shop's subscription tier
type Plan string

const (
	PlanFree       Plan = "free"
	PlanStarter    Plan = "starter"
	PlanPro        Plan = "pro"
	PlanEnterprise Plan = "enterprise"
)

// Shop owns uploads and carries the plan and storage configuration
// the pipeline reads. The pipeline never writes shop records.
type Shop struct {
	ID              uuid.UUID `json:"id"`
	Name            string    `json:"name"`
	Plan            Plan      `json:"plan"`
	AutoApprove     bool      `json:"auto_approve"`
	StorageProvider string    `json:"storage_provider"` // default backend tag for bare keys
	CreatedAt       time.Time `json:"created_at"`
}
