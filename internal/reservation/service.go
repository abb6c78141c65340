package reservation

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/dariomatias/vendora-backend/internal/inventory"
	"github.com/dariomatias/vendora-backend/pkg/db/models"
	pkgerrors "github.com/dariomatias/vendora-backend/pkg/errors"
)

// Service manages the lifecycle of stock holds. Holds are created at
// checkout, then either committed on payment success or released on failure,
// cancellation, or expiry. Commit and release are idempotent: an order with
// no remaining hold rows is a no-op.
type Service interface {
	HoldLines(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, lines []inventory.Line, ttl time.Duration) error
	CommitOrder(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (int, error)
	ReleaseOrder(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) error
	ExpiredOrderIDs(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error)
}

type service struct {
	repo      Repository
	inventory inventory.Service
}

// NewService wires the reservation service with its dependencies.
func NewService(repo Repository, inv inventory.Service) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "reservation repository required")
	}
	if inv == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "inventory service required")
	}
	return &service{repo: repo, inventory: inv}, nil
}

func (s *service) HoldLines(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, lines []inventory.Line, ttl time.Duration) error {
	if orderID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	if ttl <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "ttl must be positive")
	}
	if err := s.inventory.ReserveAll(ctx, tx, lines); err != nil {
		return err
	}
	expiresAt := time.Now().UTC().Add(ttl)
	rows := make([]models.Reservation, 0, len(lines))
	for _, line := range lines {
		rows = append(rows, models.Reservation{
			ID:        uuid.New(),
			OrderID:   orderID,
			VariantID: line.VariantID,
			Qty:       line.Qty,
			ExpiresAt: expiresAt,
		})
	}
	if err := s.repo.WithTx(tx).CreateBatch(ctx, rows); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create holds")
	}
	return nil
}

// CommitOrder consumes the order's holds and reports how many hold rows it
// found. Zero means the sweep already released them; callers decide whether
// that is fine or worth an alert.
func (s *service) CommitOrder(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (int, error) {
	if orderID == uuid.Nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	repo := s.repo.WithTx(tx)
	rows, err := repo.ListByOrderID(ctx, orderID)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load holds")
	}
	if len(rows) == 0 {
		return 0, nil
	}
	if err := s.inventory.CommitAll(ctx, tx, linesFromRows(rows)); err != nil {
		return 0, err
	}
	if _, err := repo.DeleteByOrderID(ctx, orderID); err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete holds")
	}
	return len(rows), nil
}

func (s *service) ReleaseOrder(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) error {
	if orderID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	repo := s.repo.WithTx(tx)
	rows, err := repo.ListByOrderID(ctx, orderID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load holds")
	}
	if len(rows) == 0 {
		return nil
	}
	if err := s.inventory.ReleaseAll(ctx, tx, linesFromRows(rows)); err != nil {
		return err
	}
	if _, err := repo.DeleteByOrderID(ctx, orderID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete holds")
	}
	return nil
}

func (s *service) ExpiredOrderIDs(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	return s.repo.FindExpiredOrderIDs(ctx, now.UTC(), limit)
}

func linesFromRows(rows []models.Reservation) []inventory.Line {
	lines := make([]inventory.Line, 0, len(rows))
	for _, row := range rows {
		lines = append(lines, inventory.Line{VariantID: row.VariantID, Qty: row.Qty})
	}
	return lines
}
