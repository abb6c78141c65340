package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/dariomatias/vendora-backend/pkg/enums"
)

// Order is the seller-scoped order produced from a checkout transaction.
// A checkout with lines from N stores produces N orders sharing one payment.
type Order struct {
	ID                uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	StoreID           uuid.UUID         `gorm:"column:store_id;type:uuid;not null;index"`
	BuyerID           uuid.UUID         `gorm:"column:buyer_id;type:uuid;not null;index"`
	PaymentID         uuid.UUID         `gorm:"column:payment_id;type:uuid;not null;index"`
	Status            enums.OrderStatus `gorm:"column:status;type:text;not null;default:'unpaid'"`
	SubtotalCents     int               `gorm:"column:subtotal_cents;not null"`
	ShippingCents     int               `gorm:"column:shipping_cents;not null;default:0"`
	TotalCents        int               `gorm:"column:total_cents;not null"`
	ShippingAddressID uuid.UUID         `gorm:"column:shipping_address_id;type:uuid;not null"`
	PaidAt            *time.Time        `gorm:"column:paid_at"`
	DeliveredAt       *time.Time        `gorm:"column:delivered_at"`
	CompletedAt       *time.Time        `gorm:"column:completed_at"`
	CanceledAt        *time.Time        `gorm:"column:canceled_at"`
	Items             []OrderLineItem   `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt         time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}
