package helpers

import (
	"sort"

	"github.com/google/uuid"

	"github.com/dariomatias/vendora-backend/internal/catalog"
	pkgerrors "github.com/dariomatias/vendora-backend/pkg/errors"
)

// Line is an unpriced quantity request entering checkout.
type Line struct {
	VariantID uuid.UUID
	Qty       int
}

// PricedLine carries the catalog snapshot taken for one checkout line.
type PricedLine struct {
	VariantID      uuid.UUID
	StoreID        uuid.UUID
	Name           string
	UnitPriceCents int
	Qty            int
}

// TotalCents returns the line total.
func (l PricedLine) TotalCents() int {
	return l.UnitPriceCents * l.Qty
}

// MergeLines collapses duplicate variants into a single line, summing
// quantities. Order of first appearance is preserved.
func MergeLines(lines []Line) []Line {
	merged := make([]Line, 0, len(lines))
	index := make(map[uuid.UUID]int, len(lines))
	for _, line := range lines {
		if at, ok := index[line.VariantID]; ok {
			merged[at].Qty += line.Qty
			continue
		}
		index[line.VariantID] = len(merged)
		merged = append(merged, line)
	}
	return merged
}

// PriceLines joins checkout lines with their catalog snapshots. Unknown or
// unsellable variants fail the whole checkout.
func PriceLines(lines []Line, snapshots []catalog.VariantSnapshot) ([]PricedLine, error) {
	byVariant := make(map[uuid.UUID]catalog.VariantSnapshot, len(snapshots))
	for _, snap := range snapshots {
		byVariant[snap.VariantID] = snap
	}

	priced := make([]PricedLine, 0, len(lines))
	for _, line := range lines {
		snap, ok := byVariant[line.VariantID]
		if !ok {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "variant not found").
				WithDetails(map[string]string{"variant_id": line.VariantID.String()})
		}
		if !snap.Sellable {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "variant not available for sale").
				WithDetails(map[string]string{"variant_id": line.VariantID.String()})
		}
		priced = append(priced, PricedLine{
			VariantID:      line.VariantID,
			StoreID:        snap.StoreID,
			Name:           snap.DisplayName(),
			UnitPriceCents: snap.PriceCents,
			Qty:            line.Qty,
		})
	}
	return priced, nil
}

// CheckAvailability rejects lines that exceed the snapshot's free stock.
// The read is unguarded, so this only catches checkouts that are already
// doomed; reservation re-checks under the write transaction.
func CheckAvailability(lines []Line, snapshots []catalog.VariantSnapshot) error {
	byVariant := make(map[uuid.UUID]catalog.VariantSnapshot, len(snapshots))
	for _, snap := range snapshots {
		byVariant[snap.VariantID] = snap
	}
	for _, line := range lines {
		snap, ok := byVariant[line.VariantID]
		if !ok {
			continue
		}
		if line.Qty > snap.Available() {
			return pkgerrors.New(pkgerrors.CodeInsufficientStock, "insufficient stock").
				WithDetails(map[string]any{
					"variant_id": line.VariantID.String(),
					"requested":  line.Qty,
					"available":  snap.Available(),
				})
		}
	}
	return nil
}

// GroupByStore splits priced lines per seller. Store IDs come back sorted so
// sibling orders are always created in the same sequence.
func GroupByStore(lines []PricedLine) ([]uuid.UUID, map[uuid.UUID][]PricedLine) {
	grouped := make(map[uuid.UUID][]PricedLine)
	for _, line := range lines {
		grouped[line.StoreID] = append(grouped[line.StoreID], line)
	}
	storeIDs := make([]uuid.UUID, 0, len(grouped))
	for storeID := range grouped {
		storeIDs = append(storeIDs, storeID)
	}
	sort.Slice(storeIDs, func(i, j int) bool {
		return storeIDs[i].String() < storeIDs[j].String()
	})
	return storeIDs, grouped
}

// StoreTotals captures the per-seller amounts of one checkout.
type StoreTotals struct {
	StoreID       uuid.UUID
	SubtotalCents int
	ShippingCents int
	TotalCents    int
	ItemCount     int
}

// ComputeStoreTotals sums one seller's lines.
func ComputeStoreTotals(storeID uuid.UUID, lines []PricedLine) StoreTotals {
	totals := StoreTotals{StoreID: storeID}
	for _, line := range lines {
		totals.SubtotalCents += line.TotalCents()
		totals.ItemCount += line.Qty
	}
	totals.TotalCents = totals.SubtotalCents + totals.ShippingCents
	return totals
}
