package settlement

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/dariomatias/vendora-backend/pkg/db/models"
	"github.com/dariomatias/vendora-backend/pkg/enums"
)

const payoutsDDL = `
CREATE TABLE payouts (
	id TEXT PRIMARY KEY,
	order_id TEXT NOT NULL,
	store_id TEXT NOT NULL,
	amount_cents INTEGER NOT NULL,
	platform_fee_cents INTEGER NOT NULL,
	status TEXT NOT NULL DEFAULT 'pending',
	transfer_ref TEXT,
	attempt_count INTEGER NOT NULL DEFAULT 0,
	last_error TEXT,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	UNIQUE (order_id, store_id)
);`

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := "file:settlement_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.Exec(payoutsDDL).Error; err != nil {
		t.Fatalf("create payouts table: %v", err)
	}
	return db
}

func seedPayout(t *testing.T, repo Repository, status enums.PayoutStatus, attempts int) *models.Payout {
	t.Helper()

	payout := &models.Payout{
		ID:               uuid.New(),
		OrderID:          uuid.New(),
		StoreID:          uuid.New(),
		AmountCents:      9000,
		PlatformFeeCents: 1000,
		Status:           status,
		AttemptCount:     attempts,
	}
	if err := repo.Create(context.Background(), payout); err != nil {
		t.Fatalf("create payout: %v", err)
	}
	return payout
}

func TestClaimCASAppliesOnce(t *testing.T) {
	t.Parallel()

	repo := NewRepository(newTestDB(t))
	payout := seedPayout(t, repo, enums.PayoutStatusPending, 0)

	claimed, err := repo.ClaimCAS(context.Background(), payout.ID, enums.PayoutStatusPending)
	if err != nil {
		t.Fatalf("ClaimCAS: %v", err)
	}
	if !claimed {
		t.Fatal("expected first claim to win")
	}

	claimed, err = repo.ClaimCAS(context.Background(), payout.ID, enums.PayoutStatusPending)
	if err != nil {
		t.Fatalf("ClaimCAS: %v", err)
	}
	if claimed {
		t.Fatal("expected second claim to lose")
	}

	stored, err := repo.FindByID(context.Background(), payout.ID)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if stored.Status != enums.PayoutStatusProcessing {
		t.Fatalf("expected processing, got %s", stored.Status)
	}
	if stored.AttemptCount != 1 {
		t.Fatalf("expected single attempt, got %d", stored.AttemptCount)
	}
}

func TestMarkPaidRequiresProcessing(t *testing.T) {
	t.Parallel()

	repo := NewRepository(newTestDB(t))
	payout := seedPayout(t, repo, enums.PayoutStatusPending, 0)

	if err := repo.MarkPaid(context.Background(), payout.ID, "tr_1"); err != nil {
		t.Fatalf("MarkPaid: %v", err)
	}
	stored, _ := repo.FindByID(context.Background(), payout.ID)
	if stored.Status != enums.PayoutStatusPending {
		t.Fatalf("expected pending payout untouched, got %s", stored.Status)
	}

	if _, err := repo.ClaimCAS(context.Background(), payout.ID, enums.PayoutStatusPending); err != nil {
		t.Fatalf("ClaimCAS: %v", err)
	}
	if err := repo.MarkPaid(context.Background(), payout.ID, "tr_1"); err != nil {
		t.Fatalf("MarkPaid: %v", err)
	}
	stored, _ = repo.FindByID(context.Background(), payout.ID)
	if stored.Status != enums.PayoutStatusPaid {
		t.Fatalf("expected paid, got %s", stored.Status)
	}
	if stored.TransferRef == nil || *stored.TransferRef != "tr_1" {
		t.Fatal("expected transfer ref recorded")
	}
}

func TestListRetryableSkipsExhaustedAndNonPending(t *testing.T) {
	t.Parallel()

	repo := NewRepository(newTestDB(t))
	retryable := seedPayout(t, repo, enums.PayoutStatusPending, 1)
	seedPayout(t, repo, enums.PayoutStatusPending, 5)
	seedPayout(t, repo, enums.PayoutStatusFailed, 2)
	seedPayout(t, repo, enums.PayoutStatusPaid, 1)

	rows, err := repo.ListRetryable(context.Background(), 5, 10)
	if err != nil {
		t.Fatalf("ListRetryable: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 retryable payout, got %d", len(rows))
	}
	if rows[0].ID != retryable.ID {
		t.Fatalf("unexpected payout %s", rows[0].ID)
	}
}

func TestReclaimStaleRescuesOrphanedClaims(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	repo := NewRepository(db)
	stale := seedPayout(t, repo, enums.PayoutStatusProcessing, 1)
	spent := seedPayout(t, repo, enums.PayoutStatusProcessing, 3)
	fresh := seedPayout(t, repo, enums.PayoutStatusProcessing, 1)

	staleAt := time.Now().UTC().Add(-time.Hour)
	for _, id := range []uuid.UUID{stale.ID, spent.ID} {
		if err := db.Model(&models.Payout{}).
			Where("id = ?", id).
			UpdateColumn("updated_at", staleAt).Error; err != nil {
			t.Fatalf("backdate payout: %v", err)
		}
	}

	reclaimed, err := repo.ReclaimStale(context.Background(), time.Now().UTC().Add(-30*time.Minute), 3)
	if err != nil {
		t.Fatalf("ReclaimStale: %v", err)
	}
	if reclaimed != 2 {
		t.Fatalf("expected 2 reclaimed payouts, got %d", reclaimed)
	}

	stored, _ := repo.FindByID(context.Background(), stale.ID)
	if stored.Status != enums.PayoutStatusPending {
		t.Fatalf("expected stale claim back in pending, got %s", stored.Status)
	}
	stored, _ = repo.FindByID(context.Background(), spent.ID)
	if stored.Status != enums.PayoutStatusFailed {
		t.Fatalf("expected exhausted claim failed, got %s", stored.Status)
	}
	stored, _ = repo.FindByID(context.Background(), fresh.ID)
	if stored.Status != enums.PayoutStatusProcessing {
		t.Fatalf("expected live claim untouched, got %s", stored.Status)
	}
}

func TestCreateEnforcesOrderStoreUniqueness(t *testing.T) {
	t.Parallel()

	repo := NewRepository(newTestDB(t))
	payout := seedPayout(t, repo, enums.PayoutStatusPending, 0)

	dup := &models.Payout{
		ID:          uuid.New(),
		OrderID:     payout.OrderID,
		StoreID:     payout.StoreID,
		AmountCents: 100,
	}
	if err := repo.Create(context.Background(), dup); err == nil {
		t.Fatal("expected unique violation for duplicate payout")
	}
}
