package cron

import (
	"context"
	"fmt"

	"go.uber.org/multierr"

	"github.com/dariomatias/vendora-backend/pkg/logger"
)

const settlementBatchSize = 100

type settler interface {
	SettleDue(ctx context.Context, limit int) error
	RetryPending(ctx context.Context, limit int) error
}

// SettlementJobParams configure the payout job.
type SettlementJobParams struct {
	Logger     *logger.Logger
	Settlement settler
	BatchSize  int
}

// NewSettlementJob builds the job that pays sellers for completed orders and
// retries parked payouts.
func NewSettlementJob(params SettlementJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Settlement == nil {
		return nil, fmt.Errorf("settlement service required")
	}
	batchSize := params.BatchSize
	if batchSize <= 0 {
		batchSize = settlementBatchSize
	}
	return &settlementJob{
		logg:       params.Logger,
		settlement: params.Settlement,
		batchSize:  batchSize,
	}, nil
}

type settlementJob struct {
	logg       *logger.Logger
	settlement settler
	batchSize  int
}

func (j *settlementJob) Name() string { return "settlement" }

func (j *settlementJob) Run(ctx context.Context) error {
	var errs []error
	if err := j.settlement.SettleDue(ctx, j.batchSize); err != nil {
		errs = append(errs, fmt.Errorf("settle due orders: %w", err))
	}
	if err := j.settlement.RetryPending(ctx, j.batchSize); err != nil {
		errs = append(errs, fmt.Errorf("retry pending payouts: %w", err))
	}
	return multierr.Combine(errs...)
}
