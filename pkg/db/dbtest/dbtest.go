// Package dbtest opens throwaway SQLite databases carrying the procurement
// schema so repository and service tests can run without Postgres.
package dbtest

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/angelmondragon/procurement-backend/pkg/db"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS funding_accounts (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  currency TEXT NOT NULL,
  balance TEXT NOT NULL DEFAULT '0',
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS purchase_orders (
  id TEXT PRIMARY KEY,
  order_number TEXT NOT NULL UNIQUE,
  supplier_id TEXT NOT NULL,
  currency TEXT NOT NULL,
  total_amount TEXT NOT NULL DEFAULT '0',
  status TEXT NOT NULL DEFAULT 'draft',
  payment_status TEXT NOT NULL DEFAULT 'unpaid',
  total_paid TEXT NOT NULL DEFAULT '0',
  allow_over_receipt INTEGER NOT NULL DEFAULT 0,
  notes TEXT,
  created_by TEXT NOT NULL,
  completed_by TEXT,
  completion_notes TEXT,
  cancellation_reason TEXT,
  short_close_reason TEXT,
  version INTEGER NOT NULL DEFAULT 1,
  confirmed_at DATETIME,
  completed_at DATETIME,
  cancelled_at DATETIME,
  short_closed_at DATETIME,
  archived_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS purchase_order_lines (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL REFERENCES purchase_orders(id) ON DELETE CASCADE,
  position INTEGER NOT NULL,
  catalog_item_id TEXT NOT NULL,
  description TEXT NOT NULL DEFAULT '',
  ordered_quantity INTEGER NOT NULL,
  received_quantity INTEGER NOT NULL DEFAULT 0,
  returned_quantity INTEGER NOT NULL DEFAULT 0,
  unit_cost TEXT NOT NULL,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS purchase_order_payments (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  funding_account_id TEXT NOT NULL,
  amount TEXT NOT NULL,
  currency TEXT NOT NULL,
  exchange_rate TEXT,
  order_currency_amount TEXT NOT NULL,
  method TEXT NOT NULL,
  reference TEXT,
  notes TEXT,
  status TEXT NOT NULL DEFAULT 'completed',
  idempotency_key TEXT NOT NULL UNIQUE,
  recorded_by TEXT NOT NULL,
  paid_at DATETIME NOT NULL,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS purchase_order_payment_reversals (
  id TEXT PRIMARY KEY,
  payment_id TEXT NOT NULL,
  order_id TEXT NOT NULL,
  return_id TEXT,
  amount TEXT NOT NULL,
  order_currency_amount TEXT NOT NULL,
  reason TEXT NOT NULL,
  recorded_by TEXT NOT NULL,
  created_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS purchase_order_returns (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  line_id TEXT NOT NULL,
  quantity INTEGER NOT NULL,
  reason TEXT NOT NULL,
  notes TEXT,
  reversal_id TEXT,
  returned_by TEXT NOT NULL,
  created_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS purchase_order_quality_checks (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  line_id TEXT NOT NULL,
  passed INTEGER NOT NULL,
  inspected_count INTEGER NOT NULL,
  failed_count INTEGER NOT NULL DEFAULT 0,
  notes TEXT,
  checked_by TEXT NOT NULL,
  created_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS purchase_order_audit_entries (
  id TEXT PRIMARY KEY,
  order_id TEXT,
  entity_type TEXT NOT NULL,
  entity_id TEXT NOT NULL,
  operation TEXT NOT NULL,
  actor TEXT NOT NULL,
  before_state TEXT,
  after_state TEXT,
  metadata TEXT,
  occurred_at DATETIME NOT NULL
);`,
	`CREATE TABLE IF NOT EXISTS outbox_events (
  id TEXT PRIMARY KEY,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload TEXT NOT NULL,
  created_at DATETIME,
  published_at DATETIME,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  last_error TEXT
);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_outbox_events_once_per_aggregate
  ON outbox_events (event_type, aggregate_type, aggregate_id)
  WHERE event_type = 'order.completed';`,
	`CREATE TABLE IF NOT EXISTS outbox_dlq (
  id TEXT PRIMARY KEY,
  event_id TEXT NOT NULL,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload_json TEXT NOT NULL,
  error_reason TEXT NOT NULL,
  error_message TEXT,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  failed_at DATETIME,
  created_at DATETIME
);`,
}

// Open returns a fresh in-memory database with the schema applied. The pool
// is pinned to a single connection, so code running inside a transaction must
// issue every statement through that transaction.
func Open(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_busy_timeout=5000", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range schema {
		if err := conn.Exec(stmt).Error; err != nil {
			t.Fatalf("apply schema: %v", err)
		}
	}
	return conn
}

// OpenClient wraps Open in a db.Client for code that expects the transaction runner.
func OpenClient(t testing.TB) *db.Client {
	t.Helper()
	return db.NewFromGorm(Open(t))
}
