package settlement

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/dariomatias/vendora-backend/pkg/db/models"
	"github.com/dariomatias/vendora-backend/pkg/enums"
)

// Repository persists payouts.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, payout *models.Payout) error
	FindByID(ctx context.Context, payoutID uuid.UUID) (*models.Payout, error)
	FindByOrderAndStore(ctx context.Context, orderID, storeID uuid.UUID) (*models.Payout, error)
	ClaimCAS(ctx context.Context, payoutID uuid.UUID, from enums.PayoutStatus) (bool, error)
	MarkPaid(ctx context.Context, payoutID uuid.UUID, transferRef string) error
	MarkFailed(ctx context.Context, payoutID uuid.UUID, status enums.PayoutStatus, lastError string) error
	ListRetryable(ctx context.Context, maxAttempts, limit int) ([]models.Payout, error)
	ReclaimStale(ctx context.Context, cutoff time.Time, maxAttempts int) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a payout repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, payout *models.Payout) error {
	return r.db.WithContext(ctx).Create(payout).Error
}

func (r *repository) FindByID(ctx context.Context, payoutID uuid.UUID) (*models.Payout, error) {
	var payout models.Payout
	if err := r.db.WithContext(ctx).
		First(&payout, "id = ?", payoutID).Error; err != nil {
		return nil, err
	}
	return &payout, nil
}

func (r *repository) FindByOrderAndStore(ctx context.Context, orderID, storeID uuid.UUID) (*models.Payout, error) {
	var payout models.Payout
	if err := r.db.WithContext(ctx).
		First(&payout, "order_id = ? AND store_id = ?", orderID, storeID).Error; err != nil {
		return nil, err
	}
	return &payout, nil
}

// ClaimCAS moves a payout into processing and bumps the attempt counter.
// A second worker racing for the same payout loses the swap and backs off.
func (r *repository) ClaimCAS(ctx context.Context, payoutID uuid.UUID, from enums.PayoutStatus) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Payout{}).
		Where("id = ? AND status = ?", payoutID, from).
		Updates(map[string]any{
			"status":        enums.PayoutStatusProcessing,
			"attempt_count": gorm.Expr("attempt_count + 1"),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repository) MarkPaid(ctx context.Context, payoutID uuid.UUID, transferRef string) error {
	return r.db.WithContext(ctx).
		Model(&models.Payout{}).
		Where("id = ? AND status = ?", payoutID, enums.PayoutStatusProcessing).
		Updates(map[string]any{
			"status":       enums.PayoutStatusPaid,
			"transfer_ref": transferRef,
			"last_error":   nil,
		}).Error
}

func (r *repository) MarkFailed(ctx context.Context, payoutID uuid.UUID, status enums.PayoutStatus, lastError string) error {
	return r.db.WithContext(ctx).
		Model(&models.Payout{}).
		Where("id = ?", payoutID).
		Updates(map[string]any{
			"status":     status,
			"last_error": lastError,
		}).Error
}

// ListRetryable returns pending payouts that still have attempts left,
// oldest first.
func (r *repository) ListRetryable(ctx context.Context, maxAttempts, limit int) ([]models.Payout, error) {
	var rows []models.Payout
	if err := r.db.WithContext(ctx).
		Where("status = ? AND attempt_count < ?", enums.PayoutStatusPending, maxAttempts).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// ReclaimStale rescues payouts stranded in processing by a worker that died
// between the claim and the outcome write. Untouched rows older than the
// cutoff go back to pending, or to failed once their attempts are spent.
func (r *repository) ReclaimStale(ctx context.Context, cutoff time.Time, maxAttempts int) (int64, error) {
	failed := r.db.WithContext(ctx).
		Model(&models.Payout{}).
		Where("status = ? AND updated_at < ? AND attempt_count >= ?",
			enums.PayoutStatusProcessing, cutoff, maxAttempts).
		Updates(map[string]any{
			"status":     enums.PayoutStatusFailed,
			"last_error": "stale processing claim reclaimed",
		})
	if failed.Error != nil {
		return 0, failed.Error
	}

	pending := r.db.WithContext(ctx).
		Model(&models.Payout{}).
		Where("status = ? AND updated_at < ?", enums.PayoutStatusProcessing, cutoff).
		Updates(map[string]any{
			"status":     enums.PayoutStatusPending,
			"last_error": "stale processing claim reclaimed",
		})
	if pending.Error != nil {
		return 0, pending.Error
	}
	return failed.RowsAffected + pending.RowsAffected, nil
}
