package paymentwebhook

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/dariomatias/vendora-backend/internal/cart"
	"github.com/dariomatias/vendora-backend/internal/orders"
	"github.com/dariomatias/vendora-backend/internal/payments"
	"github.com/dariomatias/vendora-backend/pkg/db/models"
	"github.com/dariomatias/vendora-backend/pkg/enums"
	pkgerrors "github.com/dariomatias/vendora-backend/pkg/errors"
	"github.com/dariomatias/vendora-backend/pkg/logger"
	"github.com/dariomatias/vendora-backend/pkg/outbox"
	"github.com/dariomatias/vendora-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type orderUpdater interface {
	MarkPaidByPayment(ctx context.Context, tx *gorm.DB, paymentID uuid.UUID) error
}

type holdCommitter interface {
	CommitOrder(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (int, error)
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// ServiceParams lists the reconciler dependencies.
type ServiceParams struct {
	Tx           txRunner
	PaymentsRepo payments.Repository
	OrdersRepo   orders.Repository
	Orders       orderUpdater
	Holds        holdCommitter
	CartRepo     cart.Repository
	Outbox       outboxPublisher
	Logger       *logger.Logger
}

// Service reconciles verified gateway events against local payment state.
// Every handler is safe to replay: state moves through compare-and-swap
// updates, so a delivered-twice event finds nothing left to do.
type Service struct {
	tx           txRunner
	paymentsRepo payments.Repository
	ordersRepo   orders.Repository
	orders       orderUpdater
	holds        holdCommitter
	cartRepo     cart.Repository
	outbox       outboxPublisher
	logger       *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	if params.PaymentsRepo == nil || params.OrdersRepo == nil || params.CartRepo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "repositories required")
	}
	if params.Orders == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "order updater required")
	}
	if params.Holds == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "hold committer required")
	}
	if params.Outbox == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "outbox publisher required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	return &Service{
		tx:           params.Tx,
		paymentsRepo: params.PaymentsRepo,
		ordersRepo:   params.OrdersRepo,
		orders:       params.Orders,
		holds:        params.Holds,
		cartRepo:     params.CartRepo,
		outbox:       params.Outbox,
		logger:       params.Logger,
	}, nil
}

func (s *Service) HandleEvent(ctx context.Context, event payments.Event) error {
	switch e := event.(type) {
	case payments.SessionCompleted:
		return s.handleCompleted(ctx, e)
	case payments.PaymentFailed:
		return s.handleFailed(ctx, e)
	case payments.Unhandled:
		logCtx := s.logger.WithField(ctx, "event_type", e.Type)
		s.logger.Info(logCtx, "ignoring unhandled gateway event")
		return nil
	default:
		return nil
	}
}

func (s *Service) handleCompleted(ctx context.Context, event payments.SessionCompleted) error {
	payment, err := s.findPayment(ctx, event.SessionID, event.IntentRef)
	if err != nil {
		return err
	}

	if payment.Status == enums.PaymentStatusSuccess {
		return nil
	}

	// A failed payment is not terminal: the buyer can retry inside the
	// same session, so a later success still pays the orders that the
	// sweep has not cancelled yet.
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		applied, err := s.paymentsRepo.WithTx(tx).MarkSuccessCAS(ctx, payment.ID, event.IntentRef)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark payment success")
		}
		if !applied {
			// Concurrent delivery finished the job first.
			return nil
		}

		if err := s.orders.MarkPaidByPayment(ctx, tx, payment.ID); err != nil {
			return err
		}

		siblings, err := s.ordersRepo.WithTx(tx).FindByPaymentID(ctx, payment.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load sibling orders")
		}
		committed := 0
		for _, order := range siblings {
			n, err := s.holds.CommitOrder(ctx, tx, order.ID)
			if err != nil {
				return err
			}
			committed += n
		}
		if committed == 0 && len(siblings) > 0 {
			// The sweep released every hold before the success arrived:
			// the buyer was charged with no stock set aside. Needs a
			// human to refund or refulfill.
			logCtx := s.logger.WithField(ctx, "payment_id", payment.ID.String())
			s.logger.Warn(logCtx, "payment succeeded after all holds expired")
		}

		if payment.CheckoutType == enums.CheckoutTypeCart {
			if err := s.clearCart(ctx, tx, payment.BuyerID, siblings); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Service) handleFailed(ctx context.Context, event payments.PaymentFailed) error {
	payment, err := s.findPayment(ctx, event.SessionID, event.IntentRef)
	if err != nil {
		return err
	}

	if payment.Status == enums.PaymentStatusFailed {
		return nil
	}
	if payment.Status == enums.PaymentStatusSuccess {
		// A late failure event never claws back a settled payment.
		logCtx := s.logger.WithField(ctx, "payment_id", payment.ID.String())
		s.logger.Warn(logCtx, "ignoring failure event for settled payment")
		return nil
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		applied, err := s.paymentsRepo.WithTx(tx).MarkFailedCAS(ctx, payment.ID, event.IntentRef, event.FailureCode)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark payment failed")
		}
		if !applied {
			return nil
		}

		// Orders stay unpaid on purpose: the buyer can still retry the
		// session, and the expiry sweep cancels them if no success ever
		// lands. Eager cancellation would race a late success event.
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPaymentFailed,
			AggregateType: enums.AggregatePayment,
			AggregateID:   payment.ID,
			Actor:         &outbox.ActorRef{System: "payment-webhook"},
			Data: payloads.PaymentFailedEvent{
				PaymentID:   payment.ID,
				BuyerID:     payment.BuyerID,
				FailureCode: event.FailureCode,
			},
		})
	})
}

// findPayment resolves the local payment for a gateway event, preferring the
// session ID and falling back to the intent reference.
func (s *Service) findPayment(ctx context.Context, sessionID, intentRef string) (*models.Payment, error) {
	if sessionID != "" {
		payment, err := s.paymentsRepo.FindBySessionID(ctx, sessionID)
		if err == nil {
			return payment, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment by session")
		}
	}
	if intentRef != "" {
		payment, err := s.paymentsRepo.FindByIntentRef(ctx, intentRef)
		if err == nil {
			return payment, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment by intent")
		}
	}
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found for gateway event").
		WithDetails(map[string]string{"session_id": sessionID, "intent_ref": intentRef})
}

// clearCart removes the purchased variants from the buyer's cart. Line items
// are loaded per order since siblings come back without them.
func (s *Service) clearCart(ctx context.Context, tx *gorm.DB, buyerID uuid.UUID, siblings []models.Order) error {
	repo := s.ordersRepo.WithTx(tx)
	var variantIDs []uuid.UUID
	for _, sibling := range siblings {
		order, err := repo.FindByID(ctx, sibling.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order line items")
		}
		for _, item := range order.Items {
			variantIDs = append(variantIDs, item.VariantID)
		}
	}
	if len(variantIDs) == 0 {
		return nil
	}
	if _, err := s.cartRepo.WithTx(tx).DeleteByBuyerAndVariants(ctx, buyerID, variantIDs); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear purchased cart items")
	}
	return nil
}
