package cart

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/dariomatias/vendora-backend/pkg/db/models"
)

// Repository reads and clears buyer cart lines. The core never adds lines;
// cart building belongs to the storefront surface.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	ListByBuyer(ctx context.Context, buyerID uuid.UUID) ([]models.CartItem, error)
	ListByBuyerAndIDs(ctx context.Context, buyerID uuid.UUID, itemIDs []uuid.UUID) ([]models.CartItem, error)
	DeleteByBuyerAndVariants(ctx context.Context, buyerID uuid.UUID, variantIDs []uuid.UUID) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a cart repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) ListByBuyer(ctx context.Context, buyerID uuid.UUID) ([]models.CartItem, error) {
	var items []models.CartItem
	if err := r.db.WithContext(ctx).
		Where("buyer_id = ?", buyerID).
		Order("created_at ASC").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repository) ListByBuyerAndIDs(ctx context.Context, buyerID uuid.UUID, itemIDs []uuid.UUID) ([]models.CartItem, error) {
	if len(itemIDs) == 0 {
		return nil, nil
	}
	var items []models.CartItem
	if err := r.db.WithContext(ctx).
		Where("buyer_id = ? AND id IN ?", buyerID, itemIDs).
		Order("created_at ASC").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repository) DeleteByBuyerAndVariants(ctx context.Context, buyerID uuid.UUID, variantIDs []uuid.UUID) (int64, error) {
	if len(variantIDs) == 0 {
		return 0, nil
	}
	result := r.db.WithContext(ctx).
		Where("buyer_id = ? AND variant_id IN ?", buyerID, variantIDs).
		Delete(&models.CartItem{})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}
