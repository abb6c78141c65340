package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/dariomatias/vendora-backend/internal/inventory"
	"github.com/dariomatias/vendora-backend/pkg/db/models"
	"github.com/dariomatias/vendora-backend/pkg/enums"
	pkgerrors "github.com/dariomatias/vendora-backend/pkg/errors"
	"github.com/dariomatias/vendora-backend/pkg/outbox"
	"github.com/dariomatias/vendora-backend/pkg/outbox/payloads"
	"github.com/dariomatias/vendora-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// HoldReleaser returns reserved stock when an unpaid order dies.
type HoldReleaser interface {
	ReleaseOrder(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) error
}

// StockReturner puts committed units back on the shelf when a paid order is
// cancelled. Holds were already consumed at payment time, so release is not
// enough here.
type StockReturner interface {
	RestockAll(ctx context.Context, tx *gorm.DB, lines []inventory.Line) error
}

var sellerTargets = map[enums.OrderStatus]bool{
	enums.OrderStatusPreparing:      true,
	enums.OrderStatusShipped:        true,
	enums.OrderStatusDelivered:      true,
	enums.OrderStatusCancelled:      true,
	enums.OrderStatusRefunded:       true,
	enums.OrderStatusReturnRejected: true,
}

var buyerTargets = map[enums.OrderStatus]bool{
	enums.OrderStatusCancelled: true,
	enums.OrderStatusCompleted: true,
	enums.OrderStatusReturning: true,
}

// Service exposes order reads and the status machine. Sibling-order updates
// driven by payment outcomes live here too so the webhook reconciler and the
// expiry sweep share one code path.
type Service interface {
	GetBuyerOrder(ctx context.Context, buyerID, orderID uuid.UUID) (*models.Order, error)
	GetStoreOrder(ctx context.Context, storeID, orderID uuid.UUID) (*models.Order, error)
	ListBuyerOrders(ctx context.Context, buyerID uuid.UUID, params pagination.Params, filters ListFilters) (*OrderList, error)
	ListStoreOrders(ctx context.Context, storeID uuid.UUID, params pagination.Params, filters ListFilters) (*OrderList, error)
	SellerTransition(ctx context.Context, input SellerTransitionInput) (*models.Order, error)
	BuyerTransition(ctx context.Context, input BuyerTransitionInput) (*models.Order, error)
	MarkPaidByPayment(ctx context.Context, tx *gorm.DB, paymentID uuid.UUID) error
	CancelUnpaid(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, reason string) (bool, error)
}

type service struct {
	repo   Repository
	tx     txRunner
	outbox outboxPublisher
	holds  HoldReleaser
	stock  StockReturner
	now    func() time.Time
}

// ServiceParams configure the orders service.
type ServiceParams struct {
	Repo   Repository
	Tx     txRunner
	Outbox outboxPublisher
	Holds  HoldReleaser
	Stock  StockReturner
}

// NewService wires the orders service with its dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "orders repository required")
	}
	if params.Tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	if params.Outbox == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "outbox publisher required")
	}
	if params.Holds == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "hold releaser required")
	}
	if params.Stock == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "stock returner required")
	}
	return &service{
		repo:   params.Repo,
		tx:     params.Tx,
		outbox: params.Outbox,
		holds:  params.Holds,
		stock:  params.Stock,
		now:    time.Now,
	}, nil
}

func (s *service) GetBuyerOrder(ctx context.Context, buyerID, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.BuyerID != buyerID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return order, nil
}

func (s *service) GetStoreOrder(ctx context.Context, storeID, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.StoreID != storeID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return order, nil
}

func (s *service) ListBuyerOrders(ctx context.Context, buyerID uuid.UUID, params pagination.Params, filters ListFilters) (*OrderList, error) {
	if buyerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "buyer id is required")
	}
	return s.repo.ListBuyerOrders(ctx, buyerID, params, filters)
}

func (s *service) ListStoreOrders(ctx context.Context, storeID uuid.UUID, params pagination.Params, filters ListFilters) (*OrderList, error) {
	if storeID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "store id is required")
	}
	return s.repo.ListStoreOrders(ctx, storeID, params, filters)
}

func (s *service) SellerTransition(ctx context.Context, input SellerTransitionInput) (*models.Order, error) {
	if !sellerTargets[input.Target] {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "target status not allowed for sellers")
	}
	order, err := s.GetStoreOrder(ctx, input.StoreID, input.OrderID)
	if err != nil {
		return nil, err
	}
	// sellers cancel paid orders only; unpaid cancellation belongs to the
	// buyer or the expiry sweep
	if input.Target == enums.OrderStatusCancelled && order.Status != enums.OrderStatusPaid {
		return nil, transitionConflict(order.Status, input.Target)
	}
	return s.transition(ctx, order, input.Target, "")
}

func (s *service) BuyerTransition(ctx context.Context, input BuyerTransitionInput) (*models.Order, error) {
	if !buyerTargets[input.Target] {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "target status not allowed for buyers")
	}
	order, err := s.GetBuyerOrder(ctx, input.BuyerID, input.OrderID)
	if err != nil {
		return nil, err
	}
	if input.Target == enums.OrderStatusCancelled && order.Status != enums.OrderStatusUnpaid {
		return nil, transitionConflict(order.Status, input.Target)
	}
	return s.transition(ctx, order, input.Target, input.Reason)
}

func (s *service) transition(ctx context.Context, order *models.Order, target enums.OrderStatus, reason string) (*models.Order, error) {
	from := order.Status
	if !from.CanTransitionTo(target) {
		return nil, transitionConflict(from, target)
	}

	now := s.now().UTC()
	updates := map[string]any{}
	switch target {
	case enums.OrderStatusDelivered:
		updates["delivered_at"] = now
	case enums.OrderStatusCompleted:
		updates["completed_at"] = now
	case enums.OrderStatusCancelled:
		updates["canceled_at"] = now
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		moved, err := repo.UpdateStatusCAS(ctx, order.ID, from, target, updates)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
		}
		if !moved {
			return transitionConflict(from, target)
		}
		if target == enums.OrderStatusCancelled {
			switch from {
			case enums.OrderStatusUnpaid:
				if err := s.holds.ReleaseOrder(ctx, tx, order.ID); err != nil {
					return err
				}
			case enums.OrderStatusPaid:
				// Payment consumed the holds, so the committed units go
				// straight back to stock.
				if err := s.stock.RestockAll(ctx, tx, restockLines(order)); err != nil {
					return err
				}
			}
		}
		return s.emitTransition(ctx, tx, order, target, reason, now)
	})
	if err != nil {
		return nil, err
	}
	return s.loadOrder(ctx, order.ID)
}

func (s *service) emitTransition(ctx context.Context, tx *gorm.DB, order *models.Order, target enums.OrderStatus, reason string, at time.Time) error {
	var event *outbox.DomainEvent
	switch target {
	case enums.OrderStatusPaid:
		event = &outbox.DomainEvent{
			EventType:     enums.EventOrderPaid,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Version:       1,
			OccurredAt:    at,
			Data: payloads.OrderPaidEvent{
				OrderID:   order.ID,
				PaymentID: order.PaymentID,
				StoreID:   order.StoreID,
				BuyerID:   order.BuyerID,
				PaidAt:    at,
			},
		}
	case enums.OrderStatusCancelled:
		event = &outbox.DomainEvent{
			EventType:     enums.EventOrderCancelled,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Version:       1,
			OccurredAt:    at,
			Data: payloads.OrderCancelledEvent{
				OrderID:     order.ID,
				PaymentID:   order.PaymentID,
				StoreID:     order.StoreID,
				BuyerID:     order.BuyerID,
				CancelledAt: at,
				Reason:      reason,
			},
		}
	case enums.OrderStatusDelivered:
		event = &outbox.DomainEvent{
			EventType:     enums.EventOrderDelivered,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Version:       1,
			OccurredAt:    at,
			Data: payloads.OrderDeliveredEvent{
				OrderID:     order.ID,
				StoreID:     order.StoreID,
				BuyerID:     order.BuyerID,
				DeliveredAt: at,
			},
		}
	case enums.OrderStatusCompleted:
		event = &outbox.DomainEvent{
			EventType:     enums.EventOrderCompleted,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Version:       1,
			OccurredAt:    at,
			Data: payloads.OrderCompletedEvent{
				OrderID:     order.ID,
				StoreID:     order.StoreID,
				BuyerID:     order.BuyerID,
				TotalCents:  int64(order.TotalCents),
				CompletedAt: at,
			},
		}
	}
	if event == nil {
		return nil
	}
	return s.outbox.Emit(ctx, tx, *event)
}

// MarkPaidByPayment moves every unpaid sibling of the payment to paid.
// Replayed webhooks find zero matching rows and do nothing.
func (s *service) MarkPaidByPayment(ctx context.Context, tx *gorm.DB, paymentID uuid.UUID) error {
	repo := s.repo.WithTx(tx)
	siblings, err := repo.FindByPaymentID(ctx, paymentID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load sibling orders")
	}
	now := s.now().UTC()
	for i := range siblings {
		order := siblings[i]
		moved, err := repo.UpdateStatusCAS(ctx, order.ID, enums.OrderStatusUnpaid, enums.OrderStatusPaid, map[string]any{"paid_at": now})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark order paid")
		}
		if !moved {
			continue
		}
		if err := s.emitTransition(ctx, tx, &order, enums.OrderStatusPaid, "", now); err != nil {
			return err
		}
	}
	return nil
}

// CancelUnpaid cancels a single unpaid order, releasing its holds. Returns
// false when the order already left the unpaid state.
func (s *service) CancelUnpaid(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, reason string) (bool, error) {
	order, err := s.repo.WithTx(tx).FindByID(ctx, orderID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return false, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return s.cancelUnpaidOrder(ctx, tx, order, reason)
}

func (s *service) cancelUnpaidOrder(ctx context.Context, tx *gorm.DB, order *models.Order, reason string) (bool, error) {
	now := s.now().UTC()
	moved, err := s.repo.WithTx(tx).UpdateStatusCAS(ctx, order.ID, enums.OrderStatusUnpaid, enums.OrderStatusCancelled, map[string]any{"canceled_at": now})
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel order")
	}
	if !moved {
		return false, nil
	}
	if err := s.holds.ReleaseOrder(ctx, tx, order.ID); err != nil {
		return false, err
	}
	if err := s.emitTransition(ctx, tx, order, enums.OrderStatusCancelled, reason, now); err != nil {
		return false, err
	}
	return true, nil
}

func restockLines(order *models.Order) []inventory.Line {
	lines := make([]inventory.Line, 0, len(order.Items))
	for _, item := range order.Items {
		lines = append(lines, inventory.Line{VariantID: item.VariantID, Qty: item.Qty})
	}
	return lines
}

func (s *service) loadOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return order, nil
}

func transitionConflict(from, to enums.OrderStatus) *pkgerrors.Error {
	return pkgerrors.New(pkgerrors.CodeStateConflict, "status transition not allowed").
		WithDetails(map[string]string{"from": string(from), "to": string(to)})
}
