package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/inkfold/prepress/common/db"
	"github.com/inkfold/prepress/common/models"
)

// ShopRepository handles read-only access to shop records
type ShopRepository struct {
	db *db.DB
}

// NewShopRepository creates a new shop repository
func NewShopRepository(database *db.DB) *ShopRepository {
	return &ShopRepository{db: database}
}

// GetByID retrieves a shop by its ID
func (r *ShopRepository) GetByID(ctx context.Context, shopID uuid.UUID) (*models.Shop, error) {
	query := `
		SELECT id, name, plan, auto_approve, storage_provider, created_at
		FROM shops
		WHERE id = $1
	`

	shop := &models.Shop{}
	err := r.db.QueryRow(ctx, query, shopID).Scan(
		&shop.ID,
		&shop.Name,
		&shop.Plan,
		&shop.AutoApprove,
		&shop.StorageProvider,
		&shop.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get shop: %w", err)
	}

	return shop, nil
}
