package settlement

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/dariomatias/vendora-backend/internal/catalog"
	"github.com/dariomatias/vendora-backend/internal/orders"
	"github.com/dariomatias/vendora-backend/internal/payments"
	"github.com/dariomatias/vendora-backend/pkg/config"
	dbpkg "github.com/dariomatias/vendora-backend/pkg/db"
	"github.com/dariomatias/vendora-backend/pkg/db/models"
	"github.com/dariomatias/vendora-backend/pkg/enums"
	pkgerrors "github.com/dariomatias/vendora-backend/pkg/errors"
	"github.com/dariomatias/vendora-backend/pkg/logger"
	"github.com/dariomatias/vendora-backend/pkg/metrics"
	"github.com/dariomatias/vendora-backend/pkg/outbox"
	"github.com/dariomatias/vendora-backend/pkg/outbox/payloads"
)

const transferRetries = 2

// staleProcessingAge is how long a payout may sit in processing before the
// retry job assumes its worker died and reclaims it.
const staleProcessingAge = 15 * time.Minute

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service pays sellers for completed orders, net of the platform fee. Every
// payout carries an attempt counter; transfers that keep failing park the
// payout as failed after the configured budget is spent.
type Service interface {
	SettleOrder(ctx context.Context, order *models.Order) error
	SettleDue(ctx context.Context, limit int) error
	RetryPending(ctx context.Context, limit int) error
}

// ServiceParams lists the settlement dependencies.
type ServiceParams struct {
	Tx         txRunner
	Repo       Repository
	OrdersRepo orders.Repository
	Catalog    catalog.Repository
	Gateway    payments.Gateway
	Outbox     outboxPublisher
	Metrics    *metrics.PayoutMetrics
	Config     config.SettlementConfig
	Logger     *logger.Logger
}

type service struct {
	tx         txRunner
	repo       Repository
	ordersRepo orders.Repository
	catalog    catalog.Repository
	gateway    payments.Gateway
	outbox     outboxPublisher
	metrics    *metrics.PayoutMetrics
	cfg        config.SettlementConfig
	feeRate    decimal.Decimal
	logger     *logger.Logger
	now        func() time.Time
}

// NewService validates dependencies and returns a settlement Service.
func NewService(params ServiceParams) (Service, error) {
	if params.Tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "settlement service requires a transaction runner")
	}
	if params.Repo == nil || params.OrdersRepo == nil || params.Catalog == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "settlement service requires repositories")
	}
	if params.Gateway == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "settlement service requires a payment gateway")
	}
	if params.Outbox == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "settlement service requires an outbox publisher")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "settlement service requires a logger")
	}
	feeRate, err := params.Config.FeeRate()
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "invalid settlement fee rate")
	}
	return &service{
		tx:         params.Tx,
		repo:       params.Repo,
		ordersRepo: params.OrdersRepo,
		catalog:    params.Catalog,
		gateway:    params.Gateway,
		outbox:     params.Outbox,
		metrics:    params.Metrics,
		cfg:        params.Config,
		feeRate:    feeRate,
		logger:     params.Logger,
		now:        time.Now,
	}, nil
}

// SettleDue settles completed orders that have no successful payout yet.
func (s *service) SettleDue(ctx context.Context, limit int) error {
	due, err := s.ordersRepo.ListSettleable(ctx, limit)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list settleable orders")
	}
	var lastErr error
	for i := range due {
		if err := s.SettleOrder(ctx, &due[i]); err != nil {
			logCtx := s.logger.WithField(ctx, "order_id", due[i].ID.String())
			s.logger.Error(logCtx, "settlement attempt failed", err)
			lastErr = err
		}
	}
	return lastErr
}

// RetryPending re-runs payouts left in pending by earlier failed attempts.
// It first reclaims claims orphaned by a crashed worker so those payouts
// rejoin the retry queue instead of sitting in processing forever.
func (s *service) RetryPending(ctx context.Context, limit int) error {
	cutoff := s.now().UTC().Add(-staleProcessingAge)
	reclaimed, err := s.repo.ReclaimStale(ctx, cutoff, s.cfg.MaxAttempts)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reclaim stale payouts")
	}
	if reclaimed > 0 {
		logCtx := s.logger.WithField(ctx, "count", reclaimed)
		s.logger.Warn(logCtx, "reclaimed payouts stuck in processing")
	}

	rows, err := s.repo.ListRetryable(ctx, s.cfg.MaxAttempts, limit)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list retryable payouts")
	}
	var lastErr error
	for i := range rows {
		if err := s.attempt(ctx, &rows[i]); err != nil {
			logCtx := s.logger.WithField(ctx, "payout_id", rows[i].ID.String())
			s.logger.Error(logCtx, "payout retry failed", err)
			lastErr = err
		}
	}
	return lastErr
}

func (s *service) SettleOrder(ctx context.Context, order *models.Order) error {
	if order == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "order is required")
	}
	if order.Status != enums.OrderStatusCompleted {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "only completed orders settle").
			WithDetails(map[string]string{"order_id": order.ID.String(), "status": order.Status.String()})
	}

	payout, err := s.ensurePayout(ctx, order)
	if err != nil {
		return err
	}
	switch payout.Status {
	case enums.PayoutStatusPaid:
		return nil
	case enums.PayoutStatusProcessing:
		// Another worker holds the claim.
		return nil
	case enums.PayoutStatusFailed:
		return nil
	}
	return s.attempt(ctx, payout)
}

// ensurePayout finds or creates the payout row for an order. The unique
// (order, store) index turns a concurrent double-create into a reload.
func (s *service) ensurePayout(ctx context.Context, order *models.Order) (*models.Payout, error) {
	payout, err := s.repo.FindByOrderAndStore(ctx, order.ID, order.StoreID)
	if err == nil {
		return payout, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payout")
	}

	// The fee applies to merchandise only; shipping is passed through and
	// never settled to the seller here.
	feeCents := s.platformFee(order.SubtotalCents)
	payout = &models.Payout{
		ID:               uuid.New(),
		OrderID:          order.ID,
		StoreID:          order.StoreID,
		AmountCents:      order.SubtotalCents - feeCents,
		PlatformFeeCents: feeCents,
		Status:           enums.PayoutStatusPending,
	}
	if err := s.repo.Create(ctx, payout); err != nil {
		if dbpkg.IsUniqueViolation(err, "ux_payouts_order_store") {
			return s.repo.FindByOrderAndStore(ctx, order.ID, order.StoreID)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payout")
	}
	return payout, nil
}

func (s *service) platformFee(amountCents int) int {
	return int(decimal.NewFromInt(int64(amountCents)).
		Mul(s.feeRate).
		Round(0).
		IntPart())
}

// attempt claims the payout, runs the gateway transfer with exponential
// backoff for transient errors, and records the outcome.
func (s *service) attempt(ctx context.Context, payout *models.Payout) error {
	claimed, err := s.repo.ClaimCAS(ctx, payout.ID, payout.Status)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim payout")
	}
	if !claimed {
		return nil
	}
	payout.AttemptCount++

	store, err := s.catalog.GetStore(ctx, payout.StoreID)
	if err != nil {
		// Release the claim back to pending so a later run retries.
		return s.recordFailure(ctx, payout, "load store: "+err.Error())
	}
	if !store.BankConnected || store.StripeAccountID == nil || *store.StripeAccountID == "" {
		return s.recordFailure(ctx, payout, "store has no connected payout account")
	}

	var result *payments.TransferResult
	backoff := retry.WithMaxRetries(transferRetries, retry.NewExponential(s.cfg.BackoffBase))
	transferErr := retry.Do(ctx, backoff, func(ctx context.Context) error {
		res, err := s.gateway.Transfer(ctx, payments.TransferInput{
			PayoutID:           payout.ID,
			OrderID:            payout.OrderID,
			DestinationAccount: *store.StripeAccountID,
			AmountCents:        int64(payout.AmountCents),
		})
		if err != nil {
			if pkgerrors.IsRetryable(err) {
				return retry.RetryableError(err)
			}
			return err
		}
		result = res
		return nil
	})
	if transferErr != nil {
		return s.recordFailure(ctx, payout, transferErr.Error())
	}

	return s.recordPaid(ctx, payout, result.Ref)
}

func (s *service) recordPaid(ctx context.Context, payout *models.Payout, transferRef string) error {
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).MarkPaid(ctx, payout.ID, transferRef); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark payout paid")
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPayoutPaid,
			AggregateType: enums.AggregatePayout,
			AggregateID:   payout.ID,
			Actor:         &outbox.ActorRef{System: "settlement"},
			Data: payloads.PayoutPaidEvent{
				PayoutID:         payout.ID,
				OrderID:          payout.OrderID,
				StoreID:          payout.StoreID,
				AmountCents:      int64(payout.AmountCents),
				PlatformFeeCents: int64(payout.PlatformFeeCents),
				TransferRef:      transferRef,
				PaidAt:           s.now().UTC(),
			},
		})
	})
	if err != nil {
		return err
	}

	s.metrics.IncAttempt("paid")
	s.metrics.AddPaidCents(int64(payout.AmountCents))
	logCtx := s.logger.WithFields(ctx, map[string]any{
		"payout_id":    payout.ID.String(),
		"order_id":     payout.OrderID.String(),
		"amount_cents": payout.AmountCents,
	})
	s.logger.Info(logCtx, "payout paid")
	return nil
}

// recordFailure parks the payout: back to pending while attempts remain,
// failed once the budget is exhausted.
func (s *service) recordFailure(ctx context.Context, payout *models.Payout, lastError string) error {
	status := enums.PayoutStatusPending
	outcome := "retried"
	if payout.AttemptCount >= s.cfg.MaxAttempts {
		status = enums.PayoutStatusFailed
		outcome = "failed"
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).MarkFailed(ctx, payout.ID, status, lastError); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark payout failed")
		}
		if status != enums.PayoutStatusFailed {
			return nil
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPayoutFailed,
			AggregateType: enums.AggregatePayout,
			AggregateID:   payout.ID,
			Actor:         &outbox.ActorRef{System: "settlement"},
			Data: payloads.PayoutFailedEvent{
				PayoutID:     payout.ID,
				OrderID:      payout.OrderID,
				StoreID:      payout.StoreID,
				Status:       status,
				AttemptCount: payout.AttemptCount,
				LastError:    lastError,
			},
		})
	})
	if err != nil {
		return err
	}

	s.metrics.IncAttempt(outcome)
	logCtx := s.logger.WithFields(ctx, map[string]any{
		"payout_id": payout.ID.String(),
		"status":    status.String(),
		"attempts":  payout.AttemptCount,
	})
	s.logger.Warn(logCtx, "payout attempt failed")
	return nil
}
