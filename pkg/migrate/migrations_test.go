package migrate

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

func embeddedSource(t *testing.T) fs.FS {
	t.Helper()
	source, err := Source("")
	require.NoError(t, err)
	return source
}

func readMigration(t *testing.T, pattern string) string {
	t.Helper()
	source := embeddedSource(t)
	matches, err := fs.Glob(source, pattern)
	require.NoError(t, err)
	require.NotEmpty(t, matches, "no migration matching %s", pattern)
	data, err := fs.ReadFile(source, matches[0])
	require.NoError(t, err)
	return string(data)
}

func TestEmbeddedMigrationsAreValid(t *testing.T) {
	require.NoError(t, Validate(embeddedSource(t)))

	fromDisk, err := Source("migrations")
	require.NoError(t, err)
	assert.NoError(t, Validate(fromDisk))
}

func TestSourceRejectsMissingDir(t *testing.T) {
	_, err := Source(filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}

func TestPurchaseOrderMigrationContainsConstraints(t *testing.T) {
	content := readMigration(t, "*_create_purchase_orders.sql")
	for _, check := range []string{
		"CREATE TABLE IF NOT EXISTS purchase_orders",
		"CONSTRAINT ux_purchase_orders_order_number UNIQUE (order_number)",
		"version bigint NOT NULL DEFAULT 1",
		"FOREIGN KEY (order_id) REFERENCES purchase_orders(id) ON DELETE CASCADE",
		"CHECK (ordered_quantity > 0)",
		"CHECK (returned_quantity >= 0 AND returned_quantity <= received_quantity)",
		"DROP TABLE IF EXISTS purchase_order_lines",
		"DROP TABLE IF EXISTS purchase_orders",
	} {
		assert.Contains(t, content, check)
	}
}

func TestPaymentMigrationEnforcesIdempotencyKey(t *testing.T) {
	content := readMigration(t, "*_create_purchase_order_payments.sql")
	for _, check := range []string{
		"CONSTRAINT ux_purchase_order_payments_idempotency_key UNIQUE (idempotency_key)",
		"CHECK (amount > 0)",
		"CREATE TABLE IF NOT EXISTS purchase_order_payment_reversals",
		"REFERENCES funding_accounts(id)",
	} {
		assert.Contains(t, content, check)
	}
}

func TestFundingAccountMigrationForbidsNegativeBalance(t *testing.T) {
	assert.Contains(t, readMigration(t, "*_create_funding_accounts.sql"), "CHECK (balance >= 0)")
}

func TestValidateReportsEveryProblem(t *testing.T) {
	source := fstest.MapFS{
		"init.sql":                          {Data: []byte(markerUp + "\n" + markerDown)},
		"20250101000000_a.sql":              {Data: []byte(markerUp + "\n" + markerDown)},
		"20250101000000_b.sql":              {Data: []byte(markerUp + "\n" + markerDown)},
		"20250102000000_no_down.sql":        {Data: []byte(markerUp)},
		"20250103000000_backwards.sql":      {Data: []byte(markerDown + "\n" + markerUp)},
		"README.md":                         {Data: []byte("ignored")},
		"20250104000000_fine_migration.sql": {Data: []byte(markerUp + "\nSELECT 1;\n" + markerDown)},
	}

	err := Validate(source)
	require.Error(t, err)
	assert.Len(t, multierr.Errors(err), 4)
	for _, want := range []string{"init.sql", "already used", "missing", "precedes"} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestSlug(t *testing.T) {
	assert.Equal(t, "add_supplier_index", Slug("  Add Supplier-Index! "))
	assert.Empty(t, Slug("!!!"))
}

func TestCreateWritesValidMigration(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2025, 6, 1, 12, 30, 0, 0, time.UTC)

	path, err := Create(dir, "Add Supplier Index", now)
	require.NoError(t, err)
	assert.Equal(t, "20250601123000_add_supplier_index.sql", filepath.Base(path))
	assert.NoError(t, Validate(os.DirFS(dir)))

	body, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(body), markerUp))

	_, err = Create(dir, "add supplier index", now.Add(time.Hour))
	assert.ErrorContains(t, err, "already exists")

	_, err = Create(dir, "???", now)
	assert.Error(t, err)
}
