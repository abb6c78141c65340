package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/dariomatias/vendora-backend/pkg/enums"
)

// Payout records the transfer of net proceeds for one delivered order to its
// seller. At most one successful payout per (order, store) pair; the
// settlement engine enforces this idempotently.
type Payout struct {
	ID               uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID          uuid.UUID          `gorm:"column:order_id;type:uuid;not null;index:idx_payouts_order_store"`
	StoreID          uuid.UUID          `gorm:"column:store_id;type:uuid;not null;index:idx_payouts_order_store"`
	AmountCents      int                `gorm:"column:amount_cents;not null"`
	PlatformFeeCents int                `gorm:"column:platform_fee_cents;not null"`
	Status           enums.PayoutStatus `gorm:"column:status;type:text;not null;default:'pending'"`
	TransferRef      *string            `gorm:"column:transfer_ref"`
	AttemptCount     int                `gorm:"column:attempt_count;not null;default:0"`
	LastError        *string            `gorm:"column:last_error"`
	CreatedAt        time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}
