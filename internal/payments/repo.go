package payments

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/dariomatias/vendora-backend/pkg/db/models"
	"github.com/dariomatias/vendora-backend/pkg/enums"
)

// Repository persists payment rows. Status moves only through the guarded
// CAS updates so a replayed webhook cannot double-apply.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, payment *models.Payment) error
	FindByID(ctx context.Context, paymentID uuid.UUID) (*models.Payment, error)
	FindBySessionID(ctx context.Context, sessionID string) (*models.Payment, error)
	FindByIntentRef(ctx context.Context, intentRef string) (*models.Payment, error)
	SetSession(ctx context.Context, paymentID uuid.UUID, sessionID string) error
	MarkSuccessCAS(ctx context.Context, paymentID uuid.UUID, intentRef string) (bool, error)
	MarkFailedCAS(ctx context.Context, paymentID uuid.UUID, intentRef, failureCode string) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a payments repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, payment *models.Payment) error {
	return r.db.WithContext(ctx).Create(payment).Error
}

func (r *repository) FindByID(ctx context.Context, paymentID uuid.UUID) (*models.Payment, error) {
	var payment models.Payment
	if err := r.db.WithContext(ctx).First(&payment, "id = ?", paymentID).Error; err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *repository) FindBySessionID(ctx context.Context, sessionID string) (*models.Payment, error) {
	var payment models.Payment
	if err := r.db.WithContext(ctx).First(&payment, "session_id = ?", sessionID).Error; err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *repository) FindByIntentRef(ctx context.Context, intentRef string) (*models.Payment, error) {
	var payment models.Payment
	if err := r.db.WithContext(ctx).First(&payment, "intent_ref = ?", intentRef).Error; err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *repository) SetSession(ctx context.Context, paymentID uuid.UUID, sessionID string) error {
	return r.db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("id = ?", paymentID).
		Update("session_id", sessionID).Error
}

func (r *repository) MarkSuccessCAS(ctx context.Context, paymentID uuid.UUID, intentRef string) (bool, error) {
	updates := map[string]any{"status": enums.PaymentStatusSuccess}
	if intentRef != "" {
		updates["intent_ref"] = intentRef
	}
	// A failed payment can still succeed: the buyer may retry inside the
	// same hosted session after a declined attempt. Success is the only
	// terminal state.
	result := r.db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("id = ? AND status IN ?", paymentID,
			[]enums.PaymentStatus{enums.PaymentStatusPending, enums.PaymentStatusFailed}).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repository) MarkFailedCAS(ctx context.Context, paymentID uuid.UUID, intentRef, failureCode string) (bool, error) {
	updates := map[string]any{"status": enums.PaymentStatusFailed}
	if intentRef != "" {
		updates["intent_ref"] = intentRef
	}
	if failureCode != "" {
		updates["failure_code"] = failureCode
	}
	result := r.db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("id = ? AND status = ?", paymentID, enums.PaymentStatusPending).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
