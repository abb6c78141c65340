package controllers

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/dariomatias/vendora-backend/api/middleware"
	"github.com/dariomatias/vendora-backend/api/responses"
	"github.com/dariomatias/vendora-backend/api/validators"
	checkoutsvc "github.com/dariomatias/vendora-backend/internal/checkout"
	"github.com/dariomatias/vendora-backend/internal/checkout/helpers"
	"github.com/dariomatias/vendora-backend/pkg/enums"
	pkgerrors "github.com/dariomatias/vendora-backend/pkg/errors"
	"github.com/dariomatias/vendora-backend/pkg/logger"
)

// Checkout submits the buyer's cart (or a single direct line) and returns the
// hosted payment redirect.
func Checkout(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		buyerID, ok := middleware.BuyerIDFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "buyer identity required"))
			return
		}

		var payload checkoutRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input, err := payload.toInput(buyerID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Execute(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, newCheckoutResponse(result))
	}
}

type checkoutRequest struct {
	Type              string      `json:"type" validate:"required,oneof=cart direct"`
	CartItemIDs       []uuid.UUID `json:"cart_item_ids,omitempty"`
	VariantID         *uuid.UUID  `json:"variant_id,omitempty"`
	Qty               int         `json:"qty,omitempty" validate:"omitempty,gt=0"`
	ShippingAddressID uuid.UUID   `json:"shipping_address_id" validate:"required"`
}

func (p checkoutRequest) toInput(buyerID uuid.UUID) (checkoutsvc.Input, error) {
	checkoutType, err := enums.ParseCheckoutType(p.Type)
	if err != nil {
		return checkoutsvc.Input{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid checkout type")
	}

	input := checkoutsvc.Input{
		BuyerID:           buyerID,
		Type:              checkoutType,
		ShippingAddressID: p.ShippingAddressID,
	}

	switch checkoutType {
	case enums.CheckoutTypeCart:
		if len(p.CartItemIDs) == 0 {
			return checkoutsvc.Input{}, pkgerrors.New(pkgerrors.CodeValidation, "cart_item_ids required for cart checkout")
		}
		input.CartItemIDs = p.CartItemIDs
	case enums.CheckoutTypeDirect:
		if p.VariantID == nil || *p.VariantID == uuid.Nil {
			return checkoutsvc.Input{}, pkgerrors.New(pkgerrors.CodeValidation, "variant_id required for direct checkout")
		}
		if p.Qty <= 0 {
			return checkoutsvc.Input{}, pkgerrors.New(pkgerrors.CodeValidation, "qty required for direct checkout")
		}
		input.DirectLine = &helpers.Line{VariantID: *p.VariantID, Qty: p.Qty}
	}

	return input, nil
}

type checkoutResponse struct {
	PaymentID   uuid.UUID   `json:"payment_id"`
	OrderIDs    []uuid.UUID `json:"order_ids"`
	SessionID   string      `json:"session_id"`
	RedirectURL string      `json:"redirect_url"`
	ExpiresAt   time.Time   `json:"expires_at"`
}

func newCheckoutResponse(result *checkoutsvc.Result) checkoutResponse {
	if result == nil {
		return checkoutResponse{}
	}
	return checkoutResponse{
		PaymentID:   result.PaymentID,
		OrderIDs:    result.OrderIDs,
		SessionID:   result.SessionID,
		RedirectURL: result.RedirectURL,
		ExpiresAt:   result.ExpiresAt,
	}
}
