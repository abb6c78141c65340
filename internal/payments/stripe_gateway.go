package payments

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/stripe/stripe-go/v84"
	checkoutsession "github.com/stripe/stripe-go/v84/checkout/session"
	"github.com/stripe/stripe-go/v84/transfer"
	"github.com/stripe/stripe-go/v84/webhook"

	"github.com/dariomatias/vendora-backend/pkg/config"
	pkgerrors "github.com/dariomatias/vendora-backend/pkg/errors"
	pkgstripe "github.com/dariomatias/vendora-backend/pkg/stripe"
)

type stripeGateway struct {
	client     *pkgstripe.Client
	successURL string
	cancelURL  string
}

// NewStripeGateway builds the Stripe-backed payment gateway.
func NewStripeGateway(client *pkgstripe.Client, cfg config.CheckoutConfig) (Gateway, error) {
	if client == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "stripe client required")
	}
	if strings.TrimSpace(cfg.SuccessURL) == "" || strings.TrimSpace(cfg.CancelURL) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "checkout redirect urls required")
	}
	return &stripeGateway{
		client:     client,
		successURL: cfg.SuccessURL,
		cancelURL:  cfg.CancelURL,
	}, nil
}

func (g *stripeGateway) CreateSession(ctx context.Context, input CreateSessionInput) (*Session, error) {
	if len(input.Lines) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one session line required")
	}

	lineItems := make([]*stripe.CheckoutSessionLineItemParams, 0, len(input.Lines))
	for _, line := range input.Lines {
		lineItems = append(lineItems, &stripe.CheckoutSessionLineItemParams{
			Quantity: stripe.Int64(line.Qty),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(string(stripe.CurrencyUSD)),
				UnitAmount: stripe.Int64(line.UnitPriceCents),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(line.Name),
				},
			},
		})
	}

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(g.successURL),
		CancelURL:         stripe.String(g.cancelURL),
		ClientReferenceID: stripe.String(input.PaymentID.String()),
		LineItems:         lineItems,
	}
	params.Context = ctx
	params.AddMetadata("payment_id", input.PaymentID.String())
	params.AddMetadata("buyer_id", input.BuyerID.String())

	sess, err := checkoutsession.New(params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create checkout session")
	}
	return &Session{ID: sess.ID, URL: sess.URL}, nil
}

func (g *stripeGateway) VerifyWebhook(payload []byte, signature string) (Event, error) {
	event, err := webhook.ConstructEvent(payload, signature, g.client.SigningSecret())
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeSignature, err, "verify webhook signature")
	}

	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted:
		session, err := decodeSession(event.Data.Raw)
		if err != nil {
			return nil, err
		}
		return SessionCompleted{
			ID:        event.ID,
			Type:      string(event.Type),
			SessionID: session.ID,
			IntentRef: intentRef(session),
		}, nil

	case stripe.EventTypeCheckoutSessionExpired,
		stripe.EventTypeCheckoutSessionAsyncPaymentFailed:
		session, err := decodeSession(event.Data.Raw)
		if err != nil {
			return nil, err
		}
		return PaymentFailed{
			ID:          event.ID,
			Type:        string(event.Type),
			SessionID:   session.ID,
			IntentRef:   intentRef(session),
			FailureCode: string(event.Type),
		}, nil

	case stripe.EventTypePaymentIntentPaymentFailed:
		var intent stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode payment intent event")
		}
		failureCode := string(event.Type)
		if intent.LastPaymentError != nil && intent.LastPaymentError.Code != "" {
			failureCode = string(intent.LastPaymentError.Code)
		}
		return PaymentFailed{
			ID:          event.ID,
			Type:        string(event.Type),
			IntentRef:   intent.ID,
			FailureCode: failureCode,
		}, nil

	default:
		return Unhandled{ID: event.ID, Type: string(event.Type)}, nil
	}
}

func (g *stripeGateway) Transfer(ctx context.Context, input TransferInput) (*TransferResult, error) {
	if strings.TrimSpace(input.DestinationAccount) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "destination account required")
	}
	if input.AmountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transfer amount must be positive")
	}

	params := &stripe.TransferParams{
		Amount:        stripe.Int64(input.AmountCents),
		Currency:      stripe.String(string(stripe.CurrencyUSD)),
		Destination:   stripe.String(input.DestinationAccount),
		TransferGroup: stripe.String(input.OrderID.String()),
	}
	params.Context = ctx
	params.AddMetadata("payout_id", input.PayoutID.String())
	params.AddMetadata("order_id", input.OrderID.String())
	params.SetIdempotencyKey("payout-" + input.PayoutID.String())

	result, err := transfer.New(params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create transfer")
	}
	return &TransferResult{Ref: result.ID}, nil
}

func decodeSession(raw json.RawMessage) (*stripe.CheckoutSession, error) {
	var session stripe.CheckoutSession
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode checkout session event")
	}
	return &session, nil
}

func intentRef(session *stripe.CheckoutSession) string {
	if session == nil || session.PaymentIntent == nil {
		return ""
	}
	return session.PaymentIntent.ID
}
