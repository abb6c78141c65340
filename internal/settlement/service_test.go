package settlement

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/dariomatias/vendora-backend/internal/catalog"
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

type stubTxRunner struct{}

func (s *stubTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(&gorm.DB{})
}

type stubRepo struct {
	payouts      map[uuid.UUID]*models.Payout
	byOrderStore map[string]*models.Payout
	claims       int
	refuseClaim  bool
}

func newStubRepo() *stubRepo {
	return &stubRepo{
		payouts:      make(map[uuid.UUID]*models.Payout),
		byOrderStore: make(map[string]*models.Payout),
	}
}

func orderStoreKey(orderID, storeID uuid.UUID) string {
	return orderID.String() + "/" + storeID.String()
}

func (s *stubRepo) WithTx(tx *gorm.DB) Repository { return s }

func (s *stubRepo) Create(ctx context.Context, payout *models.Payout) error {
	copied := *payout
	s.payouts[copied.ID] = &copied
	s.byOrderStore[orderStoreKey(copied.OrderID, copied.StoreID)] = &copied
	return nil
}

func (s *stubRepo) FindByID(ctx context.Context, payoutID uuid.UUID) (*models.Payout, error) {
	if payout, ok := s.payouts[payoutID]; ok {
		copied := *payout
		return &copied, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *stubRepo) FindByOrderAndStore(ctx context.Context, orderID, storeID uuid.UUID) (*models.Payout, error) {
	if payout, ok := s.byOrderStore[orderStoreKey(orderID, storeID)]; ok {
		copied := *payout
		return &copied, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *stubRepo) ClaimCAS(ctx context.Context, payoutID uuid.UUID, from enums.PayoutStatus) (bool, error) {
	if s.refuseClaim {
		return false, nil
	}
	payout, ok := s.payouts[payoutID]
	if !ok || payout.Status != from {
		return false, nil
	}
	payout.Status = enums.PayoutStatusProcessing
	payout.AttemptCount++
	s.claims++
	return true, nil
}

func (s *stubRepo) MarkPaid(ctx context.Context, payoutID uuid.UUID, transferRef string) error {
	payout := s.payouts[payoutID]
	payout.Status = enums.PayoutStatusPaid
	payout.TransferRef = &transferRef
	return nil
}

func (s *stubRepo) MarkFailed(ctx context.Context, payoutID uuid.UUID, status enums.PayoutStatus, lastError string) error {
	payout := s.payouts[payoutID]
	payout.Status = status
	payout.LastError = &lastError
	return nil
}

func (s *stubRepo) ListRetryable(ctx context.Context, maxAttempts, limit int) ([]models.Payout, error) {
	var rows []models.Payout
	for _, payout := range s.payouts {
		if payout.Status == enums.PayoutStatusPending && payout.AttemptCount < maxAttempts {
			rows = append(rows, *payout)
		}
	}
	return rows, nil
}

func (s *stubRepo) ReclaimStale(ctx context.Context, cutoff time.Time, maxAttempts int) (int64, error) {
	var reclaimed int64
	for _, payout := range s.payouts {
		if payout.Status != enums.PayoutStatusProcessing || !payout.UpdatedAt.Before(cutoff) {
			continue
		}
		if payout.AttemptCount >= maxAttempts {
			payout.Status = enums.PayoutStatusFailed
		} else {
			payout.Status = enums.PayoutStatusPending
		}
		reclaimed++
	}
	return reclaimed, nil
}

type stubOrdersRepo struct {
	settleable []models.Order
}

func (s *stubOrdersRepo) WithTx(tx *gorm.DB) orders.Repository { return s }

func (s *stubOrdersRepo) Create(ctx context.Context, order *models.Order) error { return nil }

func (s *stubOrdersRepo) CreateLineItems(ctx context.Context, items []models.OrderLineItem) error {
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
	return s.settleable, nil
}

func (s *stubOrdersRepo) UpdateStatusCAS(ctx context.Context, orderID uuid.UUID, from, to enums.OrderStatus, updates map[string]any) (bool, error) {
	return true, nil
}

type stubCatalog struct {
	stores map[uuid.UUID]*models.Store
}

func (s *stubCatalog) WithTx(tx *gorm.DB) catalog.Repository { return s }

func (s *stubCatalog) ListVariantSnapshots(ctx context.Context, variantIDs []uuid.UUID) ([]catalog.VariantSnapshot, error) {
	return nil, nil
}

func (s *stubCatalog) GetStore(ctx context.Context, id uuid.UUID) (*models.Store, error) {
	if store, ok := s.stores[id]; ok {
		return store, nil
	}
	return nil, gorm.ErrRecordNotFound
}

type stubGateway struct {
	transfers     []payments.TransferInput
	failuresLeft  int
	retryableFail bool
	permanentErr  error
}

func (s *stubGateway) CreateSession(ctx context.Context, input payments.CreateSessionInput) (*payments.Session, error) {
	return nil, errors.New("not implemented")
}

func (s *stubGateway) VerifyWebhook(payload []byte, signature string) (payments.Event, error) {
	return nil, errors.New("not implemented")
}

func (s *stubGateway) Transfer(ctx context.Context, input payments.TransferInput) (*payments.TransferResult, error) {
	s.transfers = append(s.transfers, input)
	if s.permanentErr != nil {
		return nil, s.permanentErr
	}
	if s.failuresLeft > 0 {
		s.failuresLeft--
		if s.retryableFail {
			return nil, errors.New("gateway timeout")
		}
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "transfer rejected")
	}
	return &payments.TransferResult{Ref: "tr_test_1"}, nil
}

type stubOutbox struct {
	events []outbox.DomainEvent
}

func (s *stubOutbox) Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
	s.events = append(s.events, event)
	return nil
}

type fixture struct {
	svc     Service
	repo    *stubRepo
	orders  *stubOrdersRepo
	catalog *stubCatalog
	gateway *stubGateway
	outbox  *stubOutbox
}

func newFixture(t *testing.T, cfg config.SettlementConfig) *fixture {
	t.Helper()

	if cfg.FeeRateString == "" {
		cfg.FeeRateString = "0.10"
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BackoffBase == 0 {
		cfg.BackoffBase = time.Millisecond
	}

	f := &fixture{
		repo:    newStubRepo(),
		orders:  &stubOrdersRepo{},
		catalog: &stubCatalog{stores: make(map[uuid.UUID]*models.Store)},
		gateway: &stubGateway{},
		outbox:  &stubOutbox{},
	}

	svc, err := NewService(ServiceParams{
		Tx:         &stubTxRunner{},
		Repo:       f.repo,
		OrdersRepo: f.orders,
		Catalog:    f.catalog,
		Gateway:    f.gateway,
		Outbox:     f.outbox,
		Config:     cfg,
		Logger:     logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	f.svc = svc
	return f
}

func (f *fixture) seedStore(connected bool) *models.Store {
	account := "acct_test_1"
	store := &models.Store{ID: uuid.New(), Name: "Test Store", BankConnected: connected, Active: true}
	if connected {
		store.StripeAccountID = &account
	}
	f.catalog.stores[store.ID] = store
	return store
}

func completedOrder(storeID uuid.UUID, subtotalCents int) *models.Order {
	return &models.Order{
		ID:            uuid.New(),
		StoreID:       storeID,
		BuyerID:       uuid.New(),
		Status:        enums.OrderStatusCompleted,
		SubtotalCents: subtotalCents,
		TotalCents:    subtotalCents,
	}
}

func TestSettleOrderPaysNetOfFee(t *testing.T) {
	t.Parallel()

	f := newFixture(t, config.SettlementConfig{})
	store := f.seedStore(true)
	order := completedOrder(store.ID, 10000)

	if err := f.svc.SettleOrder(context.Background(), order); err != nil {
		t.Fatalf("SettleOrder: %v", err)
	}

	payout, err := f.repo.FindByOrderAndStore(context.Background(), order.ID, store.ID)
	if err != nil {
		t.Fatalf("FindByOrderAndStore: %v", err)
	}
	if payout.Status != enums.PayoutStatusPaid {
		t.Fatalf("expected paid payout, got %s", payout.Status)
	}
	if payout.AmountCents != 9000 || payout.PlatformFeeCents != 1000 {
		t.Fatalf("expected 9000 net / 1000 fee, got %d / %d", payout.AmountCents, payout.PlatformFeeCents)
	}
	if payout.TransferRef == nil || *payout.TransferRef != "tr_test_1" {
		t.Fatalf("expected transfer ref recorded")
	}

	if len(f.gateway.transfers) != 1 {
		t.Fatalf("expected 1 transfer, got %d", len(f.gateway.transfers))
	}
	transfer := f.gateway.transfers[0]
	if transfer.AmountCents != 9000 || transfer.DestinationAccount != "acct_test_1" {
		t.Fatalf("unexpected transfer %+v", transfer)
	}

	if len(f.outbox.events) != 1 || f.outbox.events[0].EventType != enums.EventPayoutPaid {
		t.Fatalf("expected payout.paid event, got %+v", f.outbox.events)
	}
}

func TestSettleOrderExcludesShippingFromPayout(t *testing.T) {
	t.Parallel()

	f := newFixture(t, config.SettlementConfig{})
	store := f.seedStore(true)
	order := completedOrder(store.ID, 10000)
	order.ShippingCents = 500
	order.TotalCents = 10500

	if err := f.svc.SettleOrder(context.Background(), order); err != nil {
		t.Fatalf("SettleOrder: %v", err)
	}

	payout, err := f.repo.FindByOrderAndStore(context.Background(), order.ID, store.ID)
	if err != nil {
		t.Fatalf("FindByOrderAndStore: %v", err)
	}
	// Fee and payout come off the merchandise subtotal; shipping stays out.
	if payout.AmountCents != 9000 || payout.PlatformFeeCents != 1000 {
		t.Fatalf("expected 9000 net / 1000 fee, got %d / %d", payout.AmountCents, payout.PlatformFeeCents)
	}
}

func TestSettleOrderReplayIsNoOp(t *testing.T) {
	t.Parallel()

	f := newFixture(t, config.SettlementConfig{})
	store := f.seedStore(true)
	order := completedOrder(store.ID, 5000)

	if err := f.svc.SettleOrder(context.Background(), order); err != nil {
		t.Fatalf("first SettleOrder: %v", err)
	}
	if err := f.svc.SettleOrder(context.Background(), order); err != nil {
		t.Fatalf("second SettleOrder: %v", err)
	}

	if len(f.gateway.transfers) != 1 {
		t.Fatalf("expected single transfer across replays, got %d", len(f.gateway.transfers))
	}
}

func TestSettleOrderRejectsIncompleteOrder(t *testing.T) {
	t.Parallel()

	f := newFixture(t, config.SettlementConfig{})
	store := f.seedStore(true)
	order := completedOrder(store.ID, 5000)
	order.Status = enums.OrderStatusDelivered

	err := f.svc.SettleOrder(context.Background(), order)
	if err == nil {
		t.Fatal("expected error for non-completed order")
	}
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected state conflict, got %v", err)
	}
}

func TestSettleOrderWithoutBankAccountParksPayout(t *testing.T) {
	t.Parallel()

	f := newFixture(t, config.SettlementConfig{MaxAttempts: 3})
	store := f.seedStore(false)
	order := completedOrder(store.ID, 5000)

	if err := f.svc.SettleOrder(context.Background(), order); err != nil {
		t.Fatalf("SettleOrder: %v", err)
	}

	payout, err := f.repo.FindByOrderAndStore(context.Background(), order.ID, store.ID)
	if err != nil {
		t.Fatalf("FindByOrderAndStore: %v", err)
	}
	if payout.Status != enums.PayoutStatusPending {
		t.Fatalf("expected pending payout, got %s", payout.Status)
	}
	if payout.AttemptCount != 1 {
		t.Fatalf("expected 1 attempt, got %d", payout.AttemptCount)
	}
	if len(f.gateway.transfers) != 0 {
		t.Fatal("expected no transfer without bank account")
	}
}

func TestSettleOrderRetriesTransientTransferFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(t, config.SettlementConfig{})
	store := f.seedStore(true)
	order := completedOrder(store.ID, 5000)
	f.gateway.failuresLeft = 1
	f.gateway.retryableFail = true

	if err := f.svc.SettleOrder(context.Background(), order); err != nil {
		t.Fatalf("SettleOrder: %v", err)
	}

	if len(f.gateway.transfers) != 2 {
		t.Fatalf("expected retry then success, got %d transfers", len(f.gateway.transfers))
	}
	payout, _ := f.repo.FindByOrderAndStore(context.Background(), order.ID, store.ID)
	if payout.Status != enums.PayoutStatusPaid {
		t.Fatalf("expected paid after retry, got %s", payout.Status)
	}
}

func TestSettleOrderExhaustedAttemptsFailPayout(t *testing.T) {
	t.Parallel()

	f := newFixture(t, config.SettlementConfig{MaxAttempts: 1})
	store := f.seedStore(true)
	order := completedOrder(store.ID, 5000)
	f.gateway.permanentErr = pkgerrors.New(pkgerrors.CodeDependency, "account disabled")

	if err := f.svc.SettleOrder(context.Background(), order); err != nil {
		t.Fatalf("SettleOrder: %v", err)
	}

	payout, _ := f.repo.FindByOrderAndStore(context.Background(), order.ID, store.ID)
	if payout.Status != enums.PayoutStatusFailed {
		t.Fatalf("expected failed payout, got %s", payout.Status)
	}
	if len(f.outbox.events) != 1 || f.outbox.events[0].EventType != enums.EventPayoutFailed {
		t.Fatalf("expected payout.failed event, got %+v", f.outbox.events)
	}
}

func TestSettleOrderLostClaimDoesNothing(t *testing.T) {
	t.Parallel()

	f := newFixture(t, config.SettlementConfig{})
	store := f.seedStore(true)
	order := completedOrder(store.ID, 5000)
	f.repo.refuseClaim = true

	if err := f.svc.SettleOrder(context.Background(), order); err != nil {
		t.Fatalf("SettleOrder: %v", err)
	}
	if len(f.gateway.transfers) != 0 {
		t.Fatal("expected no transfer after lost claim")
	}
}

func TestSettleDueSettlesEachOrder(t *testing.T) {
	t.Parallel()

	f := newFixture(t, config.SettlementConfig{})
	store := f.seedStore(true)
	f.orders.settleable = []models.Order{
		*completedOrder(store.ID, 1000),
		*completedOrder(store.ID, 2000),
	}

	if err := f.svc.SettleDue(context.Background(), 10); err != nil {
		t.Fatalf("SettleDue: %v", err)
	}
	if len(f.gateway.transfers) != 2 {
		t.Fatalf("expected 2 transfers, got %d", len(f.gateway.transfers))
	}
}

func TestRetryPendingRunsParkedPayouts(t *testing.T) {
	t.Parallel()

	f := newFixture(t, config.SettlementConfig{MaxAttempts: 3})
	store := f.seedStore(true)
	payout := &models.Payout{
		ID:           uuid.New(),
		OrderID:      uuid.New(),
		StoreID:      store.ID,
		AmountCents:  4500,
		Status:       enums.PayoutStatusPending,
		AttemptCount: 1,
	}
	if err := f.repo.Create(context.Background(), payout); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := f.svc.RetryPending(context.Background(), 10); err != nil {
		t.Fatalf("RetryPending: %v", err)
	}

	stored, _ := f.repo.FindByID(context.Background(), payout.ID)
	if stored.Status != enums.PayoutStatusPaid {
		t.Fatalf("expected paid payout after retry, got %s", stored.Status)
	}
}

func TestRetryPendingReclaimsOrphanedClaim(t *testing.T) {
	t.Parallel()

	f := newFixture(t, config.SettlementConfig{MaxAttempts: 3})
	store := f.seedStore(true)
	payout := &models.Payout{
		ID:           uuid.New(),
		OrderID:      uuid.New(),
		StoreID:      store.ID,
		AmountCents:  4500,
		Status:       enums.PayoutStatusProcessing,
		AttemptCount: 1,
		UpdatedAt:    time.Now().UTC().Add(-time.Hour),
	}
	if err := f.repo.Create(context.Background(), payout); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := f.svc.RetryPending(context.Background(), 10); err != nil {
		t.Fatalf("RetryPending: %v", err)
	}

	// The orphaned claim resets to pending and the same run settles it.
	stored, _ := f.repo.FindByID(context.Background(), payout.ID)
	if stored.Status != enums.PayoutStatusPaid {
		t.Fatalf("expected reclaimed payout settled, got %s", stored.Status)
	}
	if len(f.gateway.transfers) != 1 {
		t.Fatalf("expected 1 transfer, got %d", len(f.gateway.transfers))
	}
}
