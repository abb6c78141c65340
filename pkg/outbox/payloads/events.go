package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/dariomatias/vendora-backend/pkg/enums"
)

// OrderCreatedEvent signals a new checkout split across sellers.
type OrderCreatedEvent struct {
	PaymentID uuid.UUID   `json:"payment_id"`
	BuyerID   uuid.UUID   `json:"buyer_id"`
	OrderIDs  []uuid.UUID `json:"order_ids"`
}

// OrderPaidEvent is emitted when the payment for an order settles.
type OrderPaidEvent struct {
	OrderID   uuid.UUID `json:"order_id"`
	PaymentID uuid.UUID `json:"payment_id"`
	StoreID   uuid.UUID `json:"store_id"`
	BuyerID   uuid.UUID `json:"buyer_id"`
	PaidAt    time.Time `json:"paid_at"`
}

// OrderCancelledEvent is emitted whenever an order is cancelled, whether by
// the buyer, a failed payment, or the reservation sweep.
type OrderCancelledEvent struct {
	OrderID     uuid.UUID `json:"order_id"`
	PaymentID   uuid.UUID `json:"payment_id"`
	StoreID     uuid.UUID `json:"store_id"`
	BuyerID     uuid.UUID `json:"buyer_id"`
	CancelledAt time.Time `json:"cancelled_at"`
	Reason      string    `json:"reason,omitempty"`
}

// OrderDeliveredEvent surfaces the delivery transition for notifications.
type OrderDeliveredEvent struct {
	OrderID     uuid.UUID `json:"order_id"`
	StoreID     uuid.UUID `json:"store_id"`
	BuyerID     uuid.UUID `json:"buyer_id"`
	DeliveredAt time.Time `json:"delivered_at"`
}

// OrderCompletedEvent marks an order eligible for settlement.
type OrderCompletedEvent struct {
	OrderID     uuid.UUID `json:"order_id"`
	StoreID     uuid.UUID `json:"store_id"`
	BuyerID     uuid.UUID `json:"buyer_id"`
	TotalCents  int64     `json:"total_cents"`
	CompletedAt time.Time `json:"completed_at"`
}

// PaymentFailedEvent reports a declined or failed gateway payment.
type PaymentFailedEvent struct {
	PaymentID   uuid.UUID `json:"payment_id"`
	BuyerID     uuid.UUID `json:"buyer_id"`
	FailureCode string    `json:"failure_code,omitempty"`
}

// PayoutPaidEvent is emitted when a seller transfer succeeds.
type PayoutPaidEvent struct {
	PayoutID         uuid.UUID `json:"payout_id"`
	OrderID          uuid.UUID `json:"order_id"`
	StoreID          uuid.UUID `json:"store_id"`
	AmountCents      int64     `json:"amount_cents"`
	PlatformFeeCents int64     `json:"platform_fee_cents"`
	TransferRef      string    `json:"transfer_ref"`
	PaidAt           time.Time `json:"paid_at"`
}

// PayoutFailedEvent is emitted when a transfer exhausts its attempts.
type PayoutFailedEvent struct {
	PayoutID     uuid.UUID          `json:"payout_id"`
	OrderID      uuid.UUID          `json:"order_id"`
	StoreID      uuid.UUID          `json:"store_id"`
	Status       enums.PayoutStatus `json:"status"`
	AttemptCount int                `json:"attempt_count"`
	LastError    string             `json:"last_error,omitempty"`
}
