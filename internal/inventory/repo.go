package inventory

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/dariomatias/vendora-backend/pkg/db/models"
)

// Repository mutates variant stock counters. Every mutation is a single
// guarded UPDATE whose WHERE clause restates the ledger invariant, so a
// concurrent writer that would break the invariant simply matches zero rows.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Reserve(ctx context.Context, variantID uuid.UUID, qty int) (bool, error)
	Release(ctx context.Context, variantID uuid.UUID, qty int) (bool, error)
	Commit(ctx context.Context, variantID uuid.UUID, qty int) (bool, error)
	AdjustStock(ctx context.Context, variantID uuid.UUID, delta int) (bool, error)
	GetVariant(ctx context.Context, variantID uuid.UUID) (*models.Variant, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns an inventory repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Reserve(ctx context.Context, variantID uuid.UUID, qty int) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Variant{}).
		Where("id = ? AND active AND stock_qty - reserved_qty >= ?", variantID, qty).
		Update("reserved_qty", gorm.Expr("reserved_qty + ?", qty))
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repository) Release(ctx context.Context, variantID uuid.UUID, qty int) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Variant{}).
		Where("id = ? AND reserved_qty >= ?", variantID, qty).
		Update("reserved_qty", gorm.Expr("reserved_qty - ?", qty))
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repository) Commit(ctx context.Context, variantID uuid.UUID, qty int) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Variant{}).
		Where("id = ? AND reserved_qty >= ? AND stock_qty >= ?", variantID, qty, qty).
		Updates(map[string]any{
			"stock_qty":    gorm.Expr("stock_qty - ?", qty),
			"reserved_qty": gorm.Expr("reserved_qty - ?", qty),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repository) AdjustStock(ctx context.Context, variantID uuid.UUID, delta int) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Variant{}).
		Where("id = ? AND stock_qty + ? >= reserved_qty", variantID, delta).
		Update("stock_qty", gorm.Expr("stock_qty + ?", delta))
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repository) GetVariant(ctx context.Context, variantID uuid.UUID) (*models.Variant, error) {
	var variant models.Variant
	if err := r.db.WithContext(ctx).First(&variant, "id = ?", variantID).Error; err != nil {
		return nil, err
	}
	return &variant, nil
}
