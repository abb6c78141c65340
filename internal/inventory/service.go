package inventory

import (
	"bytes"
	"context"
	"sort"

	"github.com/google/uuid"
	"gorm.io/gorm"

	pkgerrors "github.com/dariomatias/vendora-backend/pkg/errors"
)

// Line is a quantity request against one variant.
type Line struct {
	VariantID uuid.UUID
	Qty       int
}

// Service is the stock ledger. Reservations and commits for a checkout run
// inside the caller's transaction so a failed line rolls back its siblings.
type Service interface {
	ReserveAll(ctx context.Context, tx *gorm.DB, lines []Line) error
	ReleaseAll(ctx context.Context, tx *gorm.DB, lines []Line) error
	CommitAll(ctx context.Context, tx *gorm.DB, lines []Line) error
	RestockAll(ctx context.Context, tx *gorm.DB, lines []Line) error
	Available(ctx context.Context, variantID uuid.UUID) (int, error)
	Restock(ctx context.Context, variantID uuid.UUID, delta int) error
}

type service struct {
	repo Repository
}

// NewService wires the inventory ledger with its repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "inventory repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) ReserveAll(ctx context.Context, tx *gorm.DB, lines []Line) error {
	if err := validateLines(lines); err != nil {
		return err
	}
	repo := s.repo.WithTx(tx)
	for _, line := range sortedLines(lines) {
		ok, err := repo.Reserve(ctx, line.VariantID, line.Qty)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reserve stock")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeInsufficientStock, "insufficient stock").
				WithDetails(map[string]string{"variant_id": line.VariantID.String()})
		}
	}
	return nil
}

func (s *service) ReleaseAll(ctx context.Context, tx *gorm.DB, lines []Line) error {
	if err := validateLines(lines); err != nil {
		return err
	}
	repo := s.repo.WithTx(tx)
	for _, line := range sortedLines(lines) {
		ok, err := repo.Release(ctx, line.VariantID, line.Qty)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "release stock")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "release exceeds reserved quantity").
				WithDetails(map[string]string{"variant_id": line.VariantID.String()})
		}
	}
	return nil
}

func (s *service) CommitAll(ctx context.Context, tx *gorm.DB, lines []Line) error {
	if err := validateLines(lines); err != nil {
		return err
	}
	repo := s.repo.WithTx(tx)
	for _, line := range sortedLines(lines) {
		ok, err := repo.Commit(ctx, line.VariantID, line.Qty)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "commit stock")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "commit exceeds reserved quantity").
				WithDetails(map[string]string{"variant_id": line.VariantID.String()})
		}
	}
	return nil
}

// RestockAll returns committed units to the shelf inside the caller's
// transaction. Used when a paid order is cancelled after its holds were
// consumed.
func (s *service) RestockAll(ctx context.Context, tx *gorm.DB, lines []Line) error {
	if err := validateLines(lines); err != nil {
		return err
	}
	repo := s.repo.WithTx(tx)
	for _, line := range sortedLines(lines) {
		ok, err := repo.AdjustStock(ctx, line.VariantID, line.Qty)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "restock variant")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "restock refused").
				WithDetails(map[string]string{"variant_id": line.VariantID.String()})
		}
	}
	return nil
}

func (s *service) Available(ctx context.Context, variantID uuid.UUID) (int, error) {
	if variantID == uuid.Nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "variant id is required")
	}
	variant, err := s.repo.GetVariant(ctx, variantID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return 0, pkgerrors.New(pkgerrors.CodeNotFound, "variant not found")
		}
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load variant")
	}
	return variant.StockQty - variant.ReservedQty, nil
}

func (s *service) Restock(ctx context.Context, variantID uuid.UUID, delta int) error {
	if variantID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "variant id is required")
	}
	if delta == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "delta must be non-zero")
	}
	ok, err := s.repo.AdjustStock(ctx, variantID, delta)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "adjust stock")
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "adjustment would drop stock below reserved quantity").
			WithDetails(map[string]string{"variant_id": variantID.String()})
	}
	return nil
}

// sortedLines copies the lines into ascending variant-ID order. Concurrent
// checkouts that touch the same variants then lock their rows in the same
// sequence, which rules out deadlock between them.
func sortedLines(lines []Line) []Line {
	out := make([]Line, len(lines))
	copy(out, lines)
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i].VariantID[:], out[j].VariantID[:]) < 0
	})
	return out
}

func validateLines(lines []Line) error {
	if len(lines) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "at least one line is required")
	}
	for _, line := range lines {
		if line.VariantID == uuid.Nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "variant id is required")
		}
		if line.Qty <= 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "qty must be positive").
				WithDetails(map[string]string{"variant_id": line.VariantID.String()})
		}
	}
	return nil
}
