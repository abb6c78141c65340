package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/dariomatias/vendora-backend/pkg/logger"
)

const sweepBatchSize = 200

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type expiredHoldsReader interface {
	ExpiredOrderIDs(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error)
}

type unpaidCanceller interface {
	CancelUnpaid(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, reason string) (bool, error)
}

// ReservationSweepJobParams configure the expired-hold sweeper.
type ReservationSweepJobParams struct {
	Logger *logger.Logger
	DB     txRunner
	Holds  expiredHoldsReader
	Orders unpaidCanceller
}

// NewReservationSweepJob builds the job that cancels unpaid orders whose
// stock holds have lapsed, returning the reserved quantities to inventory.
func NewReservationSweepJob(params ReservationSweepJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Holds == nil {
		return nil, fmt.Errorf("expired holds reader required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("unpaid canceller required")
	}
	return &reservationSweepJob{
		logg:   params.Logger,
		db:     params.DB,
		holds:  params.Holds,
		orders: params.Orders,
		now:    time.Now,
	}, nil
}

type reservationSweepJob struct {
	logg   *logger.Logger
	db     txRunner
	holds  expiredHoldsReader
	orders unpaidCanceller
	now    func() time.Time
}

func (j *reservationSweepJob) Name() string { return "reservation-sweep" }

func (j *reservationSweepJob) Run(ctx context.Context) error {
	orderIDs, err := j.holds.ExpiredOrderIDs(ctx, j.now().UTC(), sweepBatchSize)
	if err != nil {
		return fmt.Errorf("query expired holds: %w", err)
	}

	cancelled := 0
	var errs []error
	for _, orderID := range orderIDs {
		moved, err := j.cancelOrder(ctx, orderID)
		if err != nil {
			errs = append(errs, fmt.Errorf("cancel order %s: %w", orderID, err))
			continue
		}
		if moved {
			cancelled++
		}
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"expired":   len(orderIDs),
		"cancelled": cancelled,
	})
	j.logg.Info(logCtx, "reservation sweep complete")
	return multierr.Combine(errs...)
}

// cancelOrder expires one order in its own transaction. An order paid between
// the query and the cancel loses the swap and keeps its holds; the reconciler
// commits them.
func (j *reservationSweepJob) cancelOrder(ctx context.Context, orderID uuid.UUID) (bool, error) {
	var moved bool
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		moved, err = j.orders.CancelUnpaid(ctx, tx, orderID, "reservation_expired")
		return err
	})
	return moved, err
}
