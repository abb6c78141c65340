package payments

import (
	"context"

	"github.com/google/uuid"
)

// SessionLine is one display line forwarded to the hosted payment page.
type SessionLine struct {
	Name           string
	UnitPriceCents int64
	Qty            int64
}

// CreateSessionInput carries everything the gateway needs to open a hosted
// payment session for one payment.
type CreateSessionInput struct {
	PaymentID uuid.UUID
	BuyerID   uuid.UUID
	Lines     []SessionLine
}

// Session is the gateway-side handle for a pending payment.
type Session struct {
	ID  string
	URL string
}

// TransferInput moves seller proceeds to a connected account.
type TransferInput struct {
	PayoutID           uuid.UUID
	OrderID            uuid.UUID
	DestinationAccount string
	AmountCents        int64
}

// TransferResult reports the gateway reference for a completed transfer.
type TransferResult struct {
	Ref string
}

// Gateway abstracts the payment provider. One implementation exists today
// (Stripe); the webhook reconciler and settlement engine depend only on this
// interface.
type Gateway interface {
	CreateSession(ctx context.Context, input CreateSessionInput) (*Session, error)
	VerifyWebhook(payload []byte, signature string) (Event, error)
	Transfer(ctx context.Context, input TransferInput) (*TransferResult, error)
}
