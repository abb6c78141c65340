package webhooks

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/dariomatias/vendora-backend/api/responses"
	"github.com/dariomatias/vendora-backend/internal/payments"
	pkgerrors "github.com/dariomatias/vendora-backend/pkg/errors"
	"github.com/dariomatias/vendora-backend/pkg/logger"
	"github.com/dariomatias/vendora-backend/pkg/metrics"
)

const signatureHeader = "Stripe-Signature"

type paymentWebhookService interface {
	HandleEvent(ctx context.Context, event payments.Event) error
}

type webhookVerifier interface {
	VerifyWebhook(payload []byte, signature string) (payments.Event, error)
}

type webhookGuard interface {
	CheckAndMark(ctx context.Context, eventID string) (bool, error)
	Delete(ctx context.Context, eventID string) error
}

// PaymentWebhook receives gateway payment notifications. Only signature
// failures reject the delivery; reconciliation errors are logged and
// acknowledged so the guard mark is dropped and a replay can land later.
func PaymentWebhook(svc paymentWebhookService, verifier webhookVerifier, guard webhookGuard, m *metrics.WebhookMetrics, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}
		if verifier == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook verifier unavailable"))
			return
		}
		if guard == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "idempotency guard unavailable"))
			return
		}

		payload, err := io.ReadAll(r.Body)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}

		sigHeader := r.Header.Get(signatureHeader)
		if sigHeader == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeSignature, "webhook signature missing"))
			return
		}

		event, err := verifier.VerifyWebhook(payload, sigHeader)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		m.IncReceived(event.EventType())

		alreadyProcessed, err := guard.CheckAndMark(ctx, event.EventID())
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
			return
		}
		if alreadyProcessed {
			m.IncDuplicate()
			responses.WriteSuccess(w, nil)
			return
		}

		if err := svc.HandleEvent(ctx, event); err != nil {
			_ = guard.Delete(ctx, event.EventID())
			m.IncFailed(event.EventType())
			if logg != nil {
				logCtx := logg.WithFields(ctx, map[string]any{
					"event_id":   event.EventID(),
					"event_type": event.EventType(),
				})
				logg.Error(logCtx, "webhook event not reconciled", err)
			}
			responses.WriteSuccess(w, nil)
			return
		}

		if logg != nil {
			logg.Info(ctx, fmt.Sprintf("payment event %s processed", event.EventID()))
		}
		responses.WriteSuccess(w, nil)
	}
}
