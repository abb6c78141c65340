package reservation

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/dariomatias/vendora-backend/pkg/db/models"
)

// Repository persists stock holds.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateBatch(ctx context.Context, rows []models.Reservation) error
	ListByOrderID(ctx context.Context, orderID uuid.UUID) ([]models.Reservation, error)
	DeleteByOrderID(ctx context.Context, orderID uuid.UUID) (int64, error)
	FindExpiredOrderIDs(ctx context.Context, cutoff time.Time, limit int) ([]uuid.UUID, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a reservation repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateBatch(ctx context.Context, rows []models.Reservation) error {
	if len(rows) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&rows).Error
}

func (r *repository) ListByOrderID(ctx context.Context, orderID uuid.UUID) ([]models.Reservation, error) {
	var rows []models.Reservation
	if err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) DeleteByOrderID(ctx context.Context, orderID uuid.UUID) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Delete(&models.Reservation{})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// FindExpiredOrderIDs returns distinct order IDs holding at least one expired
// reservation, in ascending order so concurrent sweepers touch orders in the
// same sequence.
func (r *repository) FindExpiredOrderIDs(ctx context.Context, cutoff time.Time, limit int) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	query := r.db.WithContext(ctx).
		Model(&models.Reservation{}).
		Distinct("order_id").
		Where("expires_at <= ?", cutoff).
		Order("order_id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Pluck("order_id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}
