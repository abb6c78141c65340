package catalog

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/dariomatias/vendora-backend/pkg/db/models"
)

// VariantSnapshot is the read-only catalog view taken at checkout time. The
// snapshot joins variant, product, and store so the orchestrator can price
// and group lines without further lookups.
type VariantSnapshot struct {
	VariantID    uuid.UUID `gorm:"column:variant_id"`
	ProductID    uuid.UUID `gorm:"column:product_id"`
	StoreID      uuid.UUID `gorm:"column:store_id"`
	VariantName  string    `gorm:"column:variant_name"`
	ProductTitle string    `gorm:"column:product_title"`
	PriceCents   int       `gorm:"column:price_cents"`
	StockQty     int       `gorm:"column:stock_qty"`
	ReservedQty  int       `gorm:"column:reserved_qty"`
	Sellable     bool      `gorm:"column:sellable"`
}

// Available is the stock left after outstanding holds. It is a point-in-time
// read; reservation is the only place that guards it transactionally.
func (v VariantSnapshot) Available() int {
	return v.StockQty - v.ReservedQty
}

// DisplayName renders the line item name stored on order snapshots.
func (v VariantSnapshot) DisplayName() string {
	if v.VariantName == "" {
		return v.ProductTitle
	}
	return v.ProductTitle + " / " + v.VariantName
}

// Repository reads catalog entities the transactional core depends on.
// Catalog writes happen outside this repository.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	ListVariantSnapshots(ctx context.Context, variantIDs []uuid.UUID) ([]VariantSnapshot, error)
	GetStore(ctx context.Context, id uuid.UUID) (*models.Store, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a catalog repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) ListVariantSnapshots(ctx context.Context, variantIDs []uuid.UUID) ([]VariantSnapshot, error) {
	if len(variantIDs) == 0 {
		return nil, nil
	}
	var rows []VariantSnapshot
	err := r.db.WithContext(ctx).
		Model(&models.Variant{}).
		Select(`variants.id AS variant_id,
			variants.product_id AS product_id,
			products.store_id AS store_id,
			variants.name AS variant_name,
			products.title AS product_title,
			variants.price_cents AS price_cents,
			variants.stock_qty AS stock_qty,
			variants.reserved_qty AS reserved_qty,
			(variants.active AND products.active AND stores.active) AS sellable`).
		Joins("JOIN products ON products.id = variants.product_id").
		Joins("JOIN stores ON stores.id = products.store_id").
		Where("variants.id IN ?", variantIDs).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) GetStore(ctx context.Context, id uuid.UUID) (*models.Store, error) {
	var store models.Store
	if err := r.db.WithContext(ctx).First(&store, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &store, nil
}
