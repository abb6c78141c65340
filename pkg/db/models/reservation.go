package models

import (
	"time"

	"github.com/google/uuid"
)

// Reservation is a time-boxed hold on variant stock created at checkout.
// It is destroyed either by commit (payment success) or by the expiry sweep.
// After ExpiresAt the hold is inert and must be purged before the quantity
// counts as available again.
type Reservation struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID   uuid.UUID `gorm:"column:order_id;type:uuid;not null;index"`
	VariantID uuid.UUID `gorm:"column:variant_id;type:uuid;not null;index"`
	Qty       int       `gorm:"column:qty;not null"`
	ExpiresAt time.Time `gorm:"column:expires_at;not null;index"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}
