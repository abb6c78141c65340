package checkout

import (
	"context"
	"io"
	"testing"
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
	"github.com/dariomatias/vendora-backend/pkg/pagination"
)

type stubTxRunner struct {
	calls int
}

func (s *stubTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	s.calls++
	return fn(&gorm.DB{})
}

type stubCartRepo struct {
	items []models.CartItem
	err   error
}

func (s *stubCartRepo) WithTx(tx *gorm.DB) cart.Repository { return s }

func (s *stubCartRepo) ListByBuyer(ctx context.Context, buyerID uuid.UUID) ([]models.CartItem, error) {
	return s.items, s.err
}

func (s *stubCartRepo) ListByBuyerAndIDs(ctx context.Context, buyerID uuid.UUID, itemIDs []uuid.UUID) ([]models.CartItem, error) {
	return s.items, s.err
}

func (s *stubCartRepo) DeleteByBuyerAndVariants(ctx context.Context, buyerID uuid.UUID, variantIDs []uuid.UUID) (int64, error) {
	return 0, nil
}

type stubCatalogRepo struct {
	snapshots []catalog.VariantSnapshot
}

func (s *stubCatalogRepo) WithTx(tx *gorm.DB) catalog.Repository { return s }

func (s *stubCatalogRepo) ListVariantSnapshots(ctx context.Context, variantIDs []uuid.UUID) ([]catalog.VariantSnapshot, error) {
	return s.snapshots, nil
}

func (s *stubCatalogRepo) GetStore(ctx context.Context, id uuid.UUID) (*models.Store, error) {
	return nil, gorm.ErrRecordNotFound
}

type stubOrdersRepo struct {
	created   []*models.Order
	lineItems []models.OrderLineItem
}

func (s *stubOrdersRepo) WithTx(tx *gorm.DB) orders.Repository { return s }

func (s *stubOrdersRepo) Create(ctx context.Context, order *models.Order) error {
	s.created = append(s.created, order)
	return nil
}

func (s *stubOrdersRepo) CreateLineItems(ctx context.Context, items []models.OrderLineItem) error {
	s.lineItems = append(s.lineItems, items...)
	return nil
}

func (s *stubOrdersRepo) FindByID(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	return nil, gorm.ErrRecordNotFound
}

func (s *stubOrdersRepo) FindByPaymentID(ctx context.Context, paymentID uuid.UUID) ([]models.Order, error) {
	return nil, nil
}

func (s *stubOrdersRepo) ListBuyerOrders(ctx context.Context, buyerID uuid.UUID, params pagination.Params, filters orders.ListFilters) (*orders.OrderList, error) {
	return &orders.OrderList{}, nil
}

func (s *stubOrdersRepo) ListStoreOrders(ctx context.Context, storeID uuid.UUID, params pagination.Params, filters orders.ListFilters) (*orders.OrderList, error) {
	return &orders.OrderList{}, nil
}

func (s *stubOrdersRepo) ListSettleable(ctx context.Context, limit int) ([]models.Order, error) {
	return nil, nil
}

func (s *stubOrdersRepo) UpdateStatusCAS(ctx context.Context, orderID uuid.UUID, from, to enums.OrderStatus, updates map[string]any) (bool, error) {
	return true, nil
}

type stubPaymentsRepo struct {
	created     []*models.Payment
	sessions    map[uuid.UUID]string
	markedFails []uuid.UUID
}

func (s *stubPaymentsRepo) WithTx(tx *gorm.DB) payments.Repository { return s }

func (s *stubPaymentsRepo) Create(ctx context.Context, payment *models.Payment) error {
	s.created = append(s.created, payment)
	return nil
}

func (s *stubPaymentsRepo) FindByID(ctx context.Context, paymentID uuid.UUID) (*models.Payment, error) {
	return nil, gorm.ErrRecordNotFound
}

func (s *stubPaymentsRepo) FindBySessionID(ctx context.Context, sessionID string) (*models.Payment, error) {
	return nil, gorm.ErrRecordNotFound
}

func (s *stubPaymentsRepo) FindByIntentRef(ctx context.Context, intentRef string) (*models.Payment, error) {
	return nil, gorm.ErrRecordNotFound
}

func (s *stubPaymentsRepo) SetSession(ctx context.Context, paymentID uuid.UUID, sessionID string) error {
	if s.sessions == nil {
		s.sessions = make(map[uuid.UUID]string)
	}
	s.sessions[paymentID] = sessionID
	return nil
}

func (s *stubPaymentsRepo) MarkSuccessCAS(ctx context.Context, paymentID uuid.UUID, intentRef string) (bool, error) {
	return true, nil
}

func (s *stubPaymentsRepo) MarkFailedCAS(ctx context.Context, paymentID uuid.UUID, intentRef, failureCode string) (bool, error) {
	s.markedFails = append(s.markedFails, paymentID)
	return true, nil
}

type stubGateway struct {
	session *payments.Session
	err     error
	inputs  []payments.CreateSessionInput
}

func (s *stubGateway) CreateSession(ctx context.Context, input payments.CreateSessionInput) (*payments.Session, error) {
	s.inputs = append(s.inputs, input)
	if s.err != nil {
		return nil, s.err
	}
	return s.session, nil
}

func (s *stubGateway) VerifyWebhook(payload []byte, signature string) (payments.Event, error) {
	return nil, nil
}

func (s *stubGateway) Transfer(ctx context.Context, input payments.TransferInput) (*payments.TransferResult, error) {
	return nil, nil
}

type stubHolds struct {
	held map[uuid.UUID][]inventory.Line
	ttls []time.Duration
	err  error
}

func (s *stubHolds) HoldLines(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, lines []inventory.Line, ttl time.Duration) error {
	if s.err != nil {
		return s.err
	}
	if s.held == nil {
		s.held = make(map[uuid.UUID][]inventory.Line)
	}
	s.held[orderID] = lines
	s.ttls = append(s.ttls, ttl)
	return nil
}

type stubOutbox struct {
	events []outbox.DomainEvent
}

func (s *stubOutbox) Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
	s.events = append(s.events, event)
	return nil
}

type fixture struct {
	svc      Service
	tx       *stubTxRunner
	cartRepo *stubCartRepo
	catalog  *stubCatalogRepo
	orders   *stubOrdersRepo
	payments *stubPaymentsRepo
	gateway  *stubGateway
	holds    *stubHolds
	outbox   *stubOutbox
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		tx:       &stubTxRunner{},
		cartRepo: &stubCartRepo{},
		catalog:  &stubCatalogRepo{},
		orders:   &stubOrdersRepo{},
		payments: &stubPaymentsRepo{},
		gateway:  &stubGateway{session: &payments.Session{ID: "cs_test_1", URL: "https://pay.example/cs_test_1"}},
		holds:    &stubHolds{},
		outbox:   &stubOutbox{},
	}

	svc, err := NewService(ServiceParams{
		Tx:       f.tx,
		CartRepo: f.cartRepo,
		Catalog:  f.catalog,
		Orders:   f.orders,
		Payments: f.payments,
		Gateway:  f.gateway,
		Holds:    f.holds,
		Outbox:   f.outbox,
		Config:   config.CheckoutConfig{ReservationTTLMinutes: 15},
		Logger:   logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	f.svc = svc
	return f
}

func sellableSnapshot(variantID, storeID uuid.UUID, priceCents int) catalog.VariantSnapshot {
	return catalog.VariantSnapshot{
		VariantID:    variantID,
		ProductID:    uuid.New(),
		StoreID:      storeID,
		VariantName:  "Default",
		ProductTitle: "Widget",
		PriceCents:   priceCents,
		StockQty:     100,
		Sellable:     true,
	}
}

func TestExecuteCartCheckoutSplitsByStore(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	buyerID := uuid.New()
	storeA := uuid.MustParse("aaaaaaaa-0000-0000-0000-000000000001")
	storeB := uuid.MustParse("bbbbbbbb-0000-0000-0000-000000000001")
	variantA := uuid.New()
	variantB := uuid.New()

	itemA := models.CartItem{ID: uuid.New(), BuyerID: buyerID, VariantID: variantA, Qty: 2}
	itemB := models.CartItem{ID: uuid.New(), BuyerID: buyerID, VariantID: variantB, Qty: 1}
	f.cartRepo.items = []models.CartItem{itemA, itemB}
	f.catalog.snapshots = []catalog.VariantSnapshot{
		sellableSnapshot(variantA, storeA, 1500),
		sellableSnapshot(variantB, storeB, 700),
	}

	result, err := f.svc.Execute(context.Background(), Input{
		BuyerID:           buyerID,
		Type:              enums.CheckoutTypeCart,
		CartItemIDs:       []uuid.UUID{itemA.ID, itemB.ID},
		ShippingAddressID: uuid.New(),
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if len(result.OrderIDs) != 2 {
		t.Fatalf("expected 2 orders, got %d", len(result.OrderIDs))
	}
	if result.RedirectURL != "https://pay.example/cs_test_1" {
		t.Fatalf("unexpected redirect URL %q", result.RedirectURL)
	}

	if len(f.payments.created) != 1 {
		t.Fatalf("expected 1 payment, got %d", len(f.payments.created))
	}
	payment := f.payments.created[0]
	if payment.AmountCents != 3700 {
		t.Fatalf("expected payment amount 3700, got %d", payment.AmountCents)
	}
	if payment.CheckoutType != enums.CheckoutTypeCart {
		t.Fatalf("unexpected checkout type %s", payment.CheckoutType)
	}

	// Sibling orders created in ascending store order.
	if f.orders.created[0].StoreID != storeA || f.orders.created[1].StoreID != storeB {
		t.Fatalf("expected orders sorted by store, got %v then %v",
			f.orders.created[0].StoreID, f.orders.created[1].StoreID)
	}
	for _, order := range f.orders.created {
		if order.PaymentID != payment.ID {
			t.Fatalf("order %s not linked to payment", order.ID)
		}
		if order.Status != enums.OrderStatusUnpaid {
			t.Fatalf("expected unpaid order, got %s", order.Status)
		}
	}
	if f.orders.created[0].TotalCents != 3000 || f.orders.created[1].TotalCents != 700 {
		t.Fatalf("unexpected order totals %d / %d",
			f.orders.created[0].TotalCents, f.orders.created[1].TotalCents)
	}

	if len(f.lineItemsFor(f.orders.created[0].ID)) != 1 {
		t.Fatalf("expected 1 line item for first order")
	}
	if len(f.holds.held) != 2 {
		t.Fatalf("expected holds for both orders, got %d", len(f.holds.held))
	}
	for _, ttl := range f.holds.ttls {
		if ttl != 15*time.Minute {
			t.Fatalf("expected 15m hold TTL, got %s", ttl)
		}
	}

	if len(f.outbox.events) != 1 {
		t.Fatalf("expected 1 outbox event, got %d", len(f.outbox.events))
	}
	event := f.outbox.events[0]
	if event.EventType != enums.EventOrderCreated || event.AggregateID != payment.ID {
		t.Fatalf("unexpected outbox event %+v", event)
	}

	if f.payments.sessions[payment.ID] != "cs_test_1" {
		t.Fatalf("expected session attached to payment")
	}
}

func (f *fixture) lineItemsFor(orderID uuid.UUID) []models.OrderLineItem {
	var out []models.OrderLineItem
	for _, item := range f.orders.lineItems {
		if item.OrderID == orderID {
			out = append(out, item)
		}
	}
	return out
}

func TestExecuteDirectCheckout(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	buyerID := uuid.New()
	variantID := uuid.New()
	f.catalog.snapshots = []catalog.VariantSnapshot{sellableSnapshot(variantID, uuid.New(), 2500)}

	result, err := f.svc.Execute(context.Background(), Input{
		BuyerID:           buyerID,
		Type:              enums.CheckoutTypeDirect,
		DirectLine:        &helpers.Line{VariantID: variantID, Qty: 2},
		ShippingAddressID: uuid.New(),
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if len(result.OrderIDs) != 1 {
		t.Fatalf("expected 1 order, got %d", len(result.OrderIDs))
	}
	if f.payments.created[0].AmountCents != 5000 {
		t.Fatalf("expected amount 5000, got %d", f.payments.created[0].AmountCents)
	}
	if f.payments.created[0].CheckoutType != enums.CheckoutTypeDirect {
		t.Fatalf("unexpected checkout type %s", f.payments.created[0].CheckoutType)
	}
}

func TestExecuteRejectsMissingCartItems(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.cartRepo.items = nil

	_, err := f.svc.Execute(context.Background(), Input{
		BuyerID:     uuid.New(),
		Type:        enums.CheckoutTypeCart,
		CartItemIDs: []uuid.UUID{uuid.New()},
	})
	if err == nil {
		t.Fatal("expected error for missing cart items")
	}
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	if f.tx.calls != 0 {
		t.Fatalf("expected no transaction, got %d", f.tx.calls)
	}
}

func TestExecuteRejectsUnsellableVariant(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	variantID := uuid.New()
	snap := sellableSnapshot(variantID, uuid.New(), 900)
	snap.Sellable = false
	f.catalog.snapshots = []catalog.VariantSnapshot{snap}

	_, err := f.svc.Execute(context.Background(), Input{
		BuyerID:    uuid.New(),
		Type:       enums.CheckoutTypeDirect,
		DirectLine: &helpers.Line{VariantID: variantID, Qty: 1},
	})
	if err == nil {
		t.Fatal("expected error for unsellable variant")
	}
	if len(f.payments.created) != 0 {
		t.Fatal("expected no payment created")
	}
}

func TestExecuteStockShortageAbortsBeforeWrites(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	variantID := uuid.New()
	snap := sellableSnapshot(variantID, uuid.New(), 900)
	snap.StockQty = 3
	snap.ReservedQty = 2
	f.catalog.snapshots = []catalog.VariantSnapshot{snap}

	_, err := f.svc.Execute(context.Background(), Input{
		BuyerID:    uuid.New(),
		Type:       enums.CheckoutTypeDirect,
		DirectLine: &helpers.Line{VariantID: variantID, Qty: 2},
	})
	if err == nil {
		t.Fatal("expected error for stock shortage")
	}
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeInsufficientStock {
		t.Fatalf("expected insufficient stock error, got %v", err)
	}
	if f.tx.calls != 0 {
		t.Fatalf("expected no transaction, got %d", f.tx.calls)
	}
	if len(f.payments.created) != 0 || len(f.orders.created) != 0 {
		t.Fatalf("expected no rows written, got %d payments / %d orders",
			len(f.payments.created), len(f.orders.created))
	}
}

func TestExecuteHoldFailureAbortsCheckout(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	variantID := uuid.New()
	f.catalog.snapshots = []catalog.VariantSnapshot{sellableSnapshot(variantID, uuid.New(), 900)}
	f.holds.err = pkgerrors.New(pkgerrors.CodeInsufficientStock, "insufficient stock")

	_, err := f.svc.Execute(context.Background(), Input{
		BuyerID:    uuid.New(),
		Type:       enums.CheckoutTypeDirect,
		DirectLine: &helpers.Line{VariantID: variantID, Qty: 1},
	})
	if err == nil {
		t.Fatal("expected error when hold fails")
	}
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeInsufficientStock {
		t.Fatalf("expected insufficient stock error, got %v", err)
	}
	if len(f.gateway.inputs) != 0 {
		t.Fatal("expected no session attempt after hold failure")
	}
}

func TestExecuteSessionFailureLeavesRowsForSweep(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	variantID := uuid.New()
	f.catalog.snapshots = []catalog.VariantSnapshot{sellableSnapshot(variantID, uuid.New(), 900)}
	f.gateway.session = nil
	f.gateway.err = pkgerrors.New(pkgerrors.CodeDependency, "gateway unavailable")

	_, err := f.svc.Execute(context.Background(), Input{
		BuyerID:    uuid.New(),
		Type:       enums.CheckoutTypeDirect,
		DirectLine: &helpers.Line{VariantID: variantID, Qty: 1},
	})
	if err == nil {
		t.Fatal("expected error when session creation fails")
	}
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeDependency {
		t.Fatalf("expected dependency error, got %v", err)
	}

	// The committed rows stay pending; expiry cancels them later.
	if len(f.payments.created) != 1 || len(f.orders.created) != 1 {
		t.Fatalf("expected committed payment and order, got %d/%d", len(f.payments.created), len(f.orders.created))
	}
	if len(f.payments.markedFails) != 0 {
		t.Fatalf("expected payment left pending, got failures %v", f.payments.markedFails)
	}
	if f.payments.created[0].Status != enums.PaymentStatusPending {
		t.Fatalf("expected pending payment, got %s", f.payments.created[0].Status)
	}
}

func TestExecuteRejectsUnknownType(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	_, err := f.svc.Execute(context.Background(), Input{
		BuyerID: uuid.New(),
		Type:    enums.CheckoutType("subscription"),
	})
	if err == nil {
		t.Fatal("expected error for unknown checkout type")
	}
}
