package middleware

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/dariomatias/vendora-backend/api/responses"
	pkgerrors "github.com/dariomatias/vendora-backend/pkg/errors"
	"github.com/dariomatias/vendora-backend/pkg/logger"
)

const (
	buyerIDHeader = "X-Buyer-Id"
	storeIDHeader = "X-Store-Id"
)

// BuyerContext resolves the buyer identity the edge proxy attaches after
// authentication and makes it available to downstream handlers.
func BuyerContext(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			buyerID, err := parseIdentityHeader(r, buyerIDHeader)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}

			ctx := WithBuyerID(r.Context(), buyerID)
			if logg != nil {
				ctx = logg.WithField(ctx, "buyer_id", buyerID.String())
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// StoreContext resolves the seller store identity for vendor routes.
func StoreContext(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			storeID, err := parseIdentityHeader(r, storeIDHeader)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}

			ctx := WithStoreID(r.Context(), storeID)
			if logg != nil {
				ctx = logg.WithField(ctx, "store_id", storeID.String())
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func parseIdentityHeader(r *http.Request, header string) (uuid.UUID, error) {
	raw := strings.TrimSpace(r.Header.Get(header))
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "identity header missing").WithDetails(map[string]any{"header": header})
	}
	id, err := uuid.Parse(raw)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "identity header invalid").WithDetails(map[string]any{"header": header})
	}
	return id, nil
}
