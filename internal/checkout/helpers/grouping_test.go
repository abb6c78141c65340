package helpers

import (
	"testing"

	"github.com/google/uuid"

	"github.com/dariomatias/vendora-backend/internal/catalog"
	pkgerrors "github.com/dariomatias/vendora-backend/pkg/errors"
)

func TestMergeLinesSumsDuplicates(t *testing.T) {
	t.Parallel()

	a := uuid.New()
	b := uuid.New()
	merged := MergeLines([]Line{
		{VariantID: a, Qty: 1},
		{VariantID: b, Qty: 2},
		{VariantID: a, Qty: 3},
	})

	if len(merged) != 2 {
		t.Fatalf("expected 2 merged lines, got %d", len(merged))
	}
	if merged[0].VariantID != a || merged[0].Qty != 4 {
		t.Fatalf("unexpected first line: %+v", merged[0])
	}
	if merged[1].VariantID != b || merged[1].Qty != 2 {
		t.Fatalf("unexpected second line: %+v", merged[1])
	}
}

func TestPriceLinesRejectsUnknownVariant(t *testing.T) {
	t.Parallel()

	_, err := PriceLines([]Line{{VariantID: uuid.New(), Qty: 1}}, nil)
	if err == nil {
		t.Fatal("expected error for unknown variant")
	}
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestPriceLinesRejectsUnsellable(t *testing.T) {
	t.Parallel()

	variantID := uuid.New()
	snaps := []catalog.VariantSnapshot{{
		VariantID:  variantID,
		StoreID:    uuid.New(),
		PriceCents: 500,
		Sellable:   false,
	}}

	_, err := PriceLines([]Line{{VariantID: variantID, Qty: 1}}, snaps)
	if err == nil {
		t.Fatal("expected error for unsellable variant")
	}
}

func TestCheckAvailabilityFlagsOverdraw(t *testing.T) {
	t.Parallel()

	variantID := uuid.New()
	snaps := []catalog.VariantSnapshot{{
		VariantID:   variantID,
		StoreID:     uuid.New(),
		PriceCents:  500,
		StockQty:    5,
		ReservedQty: 3,
		Sellable:    true,
	}}

	if err := CheckAvailability([]Line{{VariantID: variantID, Qty: 2}}, snaps); err != nil {
		t.Fatalf("expected 2 of 2 available to pass, got %v", err)
	}

	err := CheckAvailability([]Line{{VariantID: variantID, Qty: 3}}, snaps)
	if err == nil {
		t.Fatal("expected error when holds leave too little stock")
	}
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeInsufficientStock {
		t.Fatalf("expected insufficient stock error, got %v", err)
	}
}

func TestGroupByStoreSortsStoreIDs(t *testing.T) {
	t.Parallel()

	storeA := uuid.MustParse("aaaaaaaa-0000-0000-0000-000000000000")
	storeB := uuid.MustParse("bbbbbbbb-0000-0000-0000-000000000000")
	lines := []PricedLine{
		{VariantID: uuid.New(), StoreID: storeB, UnitPriceCents: 100, Qty: 1},
		{VariantID: uuid.New(), StoreID: storeA, UnitPriceCents: 200, Qty: 2},
		{VariantID: uuid.New(), StoreID: storeB, UnitPriceCents: 300, Qty: 1},
	}

	storeIDs, grouped := GroupByStore(lines)
	if len(storeIDs) != 2 {
		t.Fatalf("expected 2 stores, got %d", len(storeIDs))
	}
	if storeIDs[0] != storeA || storeIDs[1] != storeB {
		t.Fatalf("expected sorted store IDs, got %v", storeIDs)
	}
	if len(grouped[storeB]) != 2 {
		t.Fatalf("expected 2 lines for store B, got %d", len(grouped[storeB]))
	}
}

func TestComputeStoreTotals(t *testing.T) {
	t.Parallel()

	storeID := uuid.New()
	totals := ComputeStoreTotals(storeID, []PricedLine{
		{UnitPriceCents: 1500, Qty: 2},
		{UnitPriceCents: 700, Qty: 1},
	})

	if totals.SubtotalCents != 3700 {
		t.Fatalf("expected subtotal 3700, got %d", totals.SubtotalCents)
	}
	if totals.TotalCents != 3700 {
		t.Fatalf("expected total 3700, got %d", totals.TotalCents)
	}
	if totals.ItemCount != 3 {
		t.Fatalf("expected item count 3, got %d", totals.ItemCount)
	}
}

func TestValidateLines(t *testing.T) {
	t.Parallel()

	if err := ValidateLines(nil); err == nil {
		t.Fatal("expected error for empty lines")
	}
	if err := ValidateLines([]Line{{VariantID: uuid.New(), Qty: 0}}); err == nil {
		t.Fatal("expected error for zero qty")
	}
	if err := ValidateLines([]Line{{VariantID: uuid.New(), Qty: 100}}); err == nil {
		t.Fatal("expected error for qty over limit")
	}
	if err := ValidateLines([]Line{{VariantID: uuid.New(), Qty: 3}}); err != nil {
		t.Fatalf("expected valid lines, got %v", err)
	}
}
