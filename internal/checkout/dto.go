package checkout

import (
	"time"

	"github.com/google/uuid"

	"github.com/dariomatias/vendora-backend/internal/checkout/helpers"
	"github.com/dariomatias/vendora-backend/pkg/enums"
)

// Input describes one checkout request. Cart checkouts consume the buyer's
// cart rows, direct checkouts carry a single line inline.
type Input struct {
	BuyerID           uuid.UUID
	Type              enums.CheckoutType
	CartItemIDs       []uuid.UUID
	DirectLine        *helpers.Line
	ShippingAddressID uuid.UUID
}

// Result reports what a checkout produced: one payment, one order per seller
// and the hosted payment page the buyer is redirected to. ExpiresAt is the
// stock hold deadline, after which the sweep cancels the unpaid orders.
type Result struct {
	PaymentID   uuid.UUID
	OrderIDs    []uuid.UUID
	SessionID   string
	RedirectURL string
	ExpiresAt   time.Time
}
