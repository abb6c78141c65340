package checkout

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/dariomatias/vendora-backend/internal/cart"
	"github.com/dariomatias/vendora-backend/internal/catalog"
	"github.com/dariomatias/vendora-backend/internal/checkout/helpers"
	"github.com/dariomatias/vendora-backend/internal/inventory"
	"github.com/dariomatias/vendora-backend/internal/orders"
	"github.com/dariomatias/vendora-backend/internal/payments"
	"github.com/dariomatias/vendora-backend/pkg/config"
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

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type holdPlacer interface {
	HoldLines(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, lines []inventory.Line, ttl time.Duration) error
}

// Service runs the checkout transaction: split the buyer's lines by seller,
// create one payment plus one order per seller, place stock holds and open a
// hosted payment session.
type Service interface {
	Execute(ctx context.Context, input Input) (*Result, error)
}

// ServiceParams lists the dependencies of the checkout service.
type ServiceParams struct {
	Tx       txRunner
	CartRepo cart.Repository
	Catalog  catalog.Repository
	Orders   orders.Repository
	Payments payments.Repository
	Gateway  payments.Gateway
	Holds    holdPlacer
	Outbox   outboxPublisher
	Config   config.CheckoutConfig
	Logger   *logger.Logger
}

type service struct {
	tx       txRunner
	cartRepo cart.Repository
	catalog  catalog.Repository
	orders   orders.Repository
	payments payments.Repository
	gateway  payments.Gateway
	holds    holdPlacer
	outbox   outboxPublisher
	cfg      config.CheckoutConfig
	logger   *logger.Logger
}

// NewService validates dependencies and returns a checkout Service.
func NewService(params ServiceParams) (Service, error) {
	if params.Tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "checkout service requires a transaction runner")
	}
	if params.CartRepo == nil || params.Catalog == nil || params.Orders == nil || params.Payments == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "checkout service requires repositories")
	}
	if params.Gateway == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "checkout service requires a payment gateway")
	}
	if params.Holds == nil || params.Outbox == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "checkout service requires holds and outbox dependencies")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "checkout service requires a logger")
	}
	return &service{
		tx:       params.Tx,
		cartRepo: params.CartRepo,
		catalog:  params.Catalog,
		orders:   params.Orders,
		payments: params.Payments,
		gateway:  params.Gateway,
		holds:    params.Holds,
		outbox:   params.Outbox,
		cfg:      params.Config,
		logger:   params.Logger,
	}, nil
}

func (s *service) Execute(ctx context.Context, input Input) (*Result, error) {
	lines, err := s.resolveLines(ctx, input)
	if err != nil {
		return nil, err
	}
	lines = helpers.MergeLines(lines)
	if err := helpers.ValidateLines(lines); err != nil {
		return nil, err
	}

	snapshots, err := s.loadSnapshots(ctx, lines)
	if err != nil {
		return nil, err
	}
	priced, err := helpers.PriceLines(lines, snapshots)
	if err != nil {
		return nil, err
	}
	// Reject obviously doomed checkouts before any row is written. The
	// authoritative check is the guarded hold inside the transaction.
	if err := helpers.CheckAvailability(lines, snapshots); err != nil {
		return nil, err
	}

	result, err := s.createPaymentAndOrders(ctx, input, lines, priced)
	if err != nil {
		return nil, err
	}

	session, err := s.openSession(ctx, input, result.PaymentID, priced)
	if err != nil {
		// The committed orders and payment stay pending on purpose. The
		// reservation sweep cancels them once their holds expire, which
		// keeps the failure path a single code path instead of a second
		// rollback protocol.
		logCtx := s.logger.WithField(ctx, "payment_id", result.PaymentID.String())
		s.logger.Error(logCtx, "payment session not opened, leaving checkout for the sweep", err)
		return nil, err
	}
	result.SessionID = session.ID
	result.RedirectURL = session.URL

	logCtx := s.logger.WithFields(ctx, map[string]any{
		"payment_id":  result.PaymentID.String(),
		"order_count": len(result.OrderIDs),
	})
	s.logger.Info(logCtx, "checkout session opened")
	return result, nil
}

func (s *service) resolveLines(ctx context.Context, input Input) ([]helpers.Line, error) {
	switch input.Type {
	case enums.CheckoutTypeCart:
		if len(input.CartItemIDs) == 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart checkout requires cart item IDs")
		}
		items, err := s.cartRepo.ListByBuyerAndIDs(ctx, input.BuyerID, input.CartItemIDs)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to load cart items")
		}
		if len(items) != len(input.CartItemIDs) {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "one or more cart items not found")
		}
		lines := make([]helpers.Line, 0, len(items))
		for _, item := range items {
			lines = append(lines, helpers.Line{VariantID: item.VariantID, Qty: item.Qty})
		}
		return lines, nil
	case enums.CheckoutTypeDirect:
		if input.DirectLine == nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "direct checkout requires a line")
		}
		return []helpers.Line{*input.DirectLine}, nil
	default:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown checkout type").
			WithDetails(map[string]string{"type": input.Type.String()})
	}
}

func (s *service) loadSnapshots(ctx context.Context, lines []helpers.Line) ([]catalog.VariantSnapshot, error) {
	variantIDs := make([]uuid.UUID, 0, len(lines))
	for _, line := range lines {
		variantIDs = append(variantIDs, line.VariantID)
	}
	snapshots, err := s.catalog.ListVariantSnapshots(ctx, variantIDs)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to load variant snapshots")
	}
	return snapshots, nil
}

// createPaymentAndOrders runs the single transaction of a checkout: the
// payment row, one order per seller with line-item snapshots, stock holds on
// every line and the order.created outbox event. Any failure, including an
// oversell, rolls all of it back.
func (s *service) createPaymentAndOrders(ctx context.Context, input Input, lines []helpers.Line, priced []helpers.PricedLine) (*Result, error) {
	storeIDs, grouped := helpers.GroupByStore(priced)

	amountCents := 0
	for _, storeID := range storeIDs {
		amountCents += helpers.ComputeStoreTotals(storeID, grouped[storeID]).TotalCents
	}

	result := &Result{PaymentID: uuid.New()}
	ttl := time.Duration(s.cfg.ReservationTTLMinutes) * time.Minute
	result.ExpiresAt = time.Now().UTC().Add(ttl)

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		payment := &models.Payment{
			ID:           result.PaymentID,
			BuyerID:      input.BuyerID,
			AmountCents:  amountCents,
			Status:       enums.PaymentStatusPending,
			CheckoutType: input.Type,
		}
		if err := s.payments.WithTx(tx).Create(ctx, payment); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to create payment")
		}

		for _, storeID := range storeIDs {
			storeLines := grouped[storeID]
			totals := helpers.ComputeStoreTotals(storeID, storeLines)

			order := &models.Order{
				ID:                uuid.New(),
				StoreID:           storeID,
				BuyerID:           input.BuyerID,
				PaymentID:         result.PaymentID,
				Status:            enums.OrderStatusUnpaid,
				SubtotalCents:     totals.SubtotalCents,
				ShippingCents:     totals.ShippingCents,
				TotalCents:        totals.TotalCents,
				ShippingAddressID: input.ShippingAddressID,
			}
			if err := s.orders.WithTx(tx).Create(ctx, order); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to create order")
			}

			items := make([]models.OrderLineItem, 0, len(storeLines))
			holdLines := make([]inventory.Line, 0, len(storeLines))
			for _, line := range storeLines {
				items = append(items, models.OrderLineItem{
					ID:             uuid.New(),
					OrderID:        order.ID,
					VariantID:      line.VariantID,
					Name:           line.Name,
					UnitPriceCents: line.UnitPriceCents,
					Qty:            line.Qty,
					TotalCents:     line.TotalCents(),
				})
				holdLines = append(holdLines, inventory.Line{VariantID: line.VariantID, Qty: line.Qty})
			}
			if err := s.orders.WithTx(tx).CreateLineItems(ctx, items); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to create order line items")
			}
			if err := s.holds.HoldLines(ctx, tx, order.ID, holdLines, ttl); err != nil {
				return err
			}

			result.OrderIDs = append(result.OrderIDs, order.ID)
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregatePayment,
			AggregateID:   result.PaymentID,
			Actor:         &outbox.ActorRef{BuyerID: &input.BuyerID},
			Data: payloads.OrderCreatedEvent{
				PaymentID: result.PaymentID,
				BuyerID:   input.BuyerID,
				OrderIDs:  result.OrderIDs,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *service) openSession(ctx context.Context, input Input, paymentID uuid.UUID, priced []helpers.PricedLine) (*payments.Session, error) {
	sessionLines := make([]payments.SessionLine, 0, len(priced))
	for _, line := range priced {
		sessionLines = append(sessionLines, payments.SessionLine{
			Name:           line.Name,
			UnitPriceCents: int64(line.UnitPriceCents),
			Qty:            int64(line.Qty),
		})
	}

	session, err := s.gateway.CreateSession(ctx, payments.CreateSessionInput{
		PaymentID: paymentID,
		BuyerID:   input.BuyerID,
		Lines:     sessionLines,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "failed to create payment session")
	}

	if err := s.payments.SetSession(ctx, paymentID, session.ID); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to attach session to payment")
	}
	return session, nil
}
