package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dariomatias/vendora-backend/pkg/migrate"
)

func TestVariantsMigrationContainsStockConstraints(t *testing.T) {
	content := readMigration(t, "*_create_products_and_variants.sql")

	checks := []string{
		"CREATE TABLE IF NOT EXISTS variants",
		"FOREIGN KEY (product_id) REFERENCES products(id) ON DELETE CASCADE",
		"CHECK (stock_qty >= 0)",
		"CHECK (reserved_qty >= 0)",
		"CHECK (reserved_qty <= stock_qty)",
		"DROP TABLE IF EXISTS variants",
	}

	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestPayoutsMigrationEnforcesOneRowPerOrderStore(t *testing.T) {
	content := readMigration(t, "*_create_payouts.sql")

	checks := []string{
		"CREATE TABLE IF NOT EXISTS payouts",
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_payouts_order_store ON payouts(order_id, store_id)",
		"DROP TABLE IF EXISTS payouts",
	}

	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestOutboxMigrationHasDedupeIndex(t *testing.T) {
	content := readMigration(t, "*_create_outbox_events.sql")

	if !strings.Contains(content, "ux_outbox_events_event_aggregate") {
		t.Error("missing dedupe unique index on outbox_events")
	}
	if !strings.Contains(content, "WHERE published_at IS NULL") {
		t.Error("missing partial index for unpublished rows")
	}
}

func TestMigrationDirIsValid(t *testing.T) {
	if err := migrate.ValidateDir("migrations"); err != nil {
		t.Fatalf("validate migrations dir: %v", err)
	}
}

func readMigration(t *testing.T, pattern string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", pattern))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no migration matching %q found", pattern)
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	return string(data)
}
