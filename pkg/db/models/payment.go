package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/dariomatias/vendora-backend/pkg/enums"
)

// Payment tracks the single gateway transaction behind a checkout. Its amount
// equals the sum of all sibling orders' totals and is never mutated after
// checkout; status moves only through the webhook reconciler.
type Payment struct {
	ID           uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	BuyerID      uuid.UUID           `gorm:"column:buyer_id;type:uuid;not null;index"`
	AmountCents  int                 `gorm:"column:amount_cents;not null"`
	Status       enums.PaymentStatus `gorm:"column:status;type:text;not null;default:'pending'"`
	CheckoutType enums.CheckoutType  `gorm:"column:checkout_type;type:text;not null"`
	SessionID    *string             `gorm:"column:session_id"`
	IntentRef    *string             `gorm:"column:intent_ref"`
	FailureCode  *string             `gorm:"column:failure_code"`
	CreatedAt    time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
