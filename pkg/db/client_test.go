package db

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/procurement-backend/pkg/config"
	"github.com/angelmondragon/procurement-backend/pkg/logger"
)

type receiptRow struct {
	ID       int
	Quantity int64
}

func openTestClient(t *testing.T) *Client {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	client, err := New(context.Background(), config.DBConfig{DSN: dsn, Driver: config.DBDriverSQLite}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.DB().AutoMigrate(&receiptRow{}))
	return client
}

func countReceipts(t *testing.T, c *Client) int64 {
	t.Helper()
	var n int64
	require.NoError(t, c.DB().Model(&receiptRow{}).Count(&n).Error)
	return n
}

func TestNewRequiresDSN(t *testing.T) {
	_, err := New(context.Background(), config.DBConfig{Driver: config.DBDriverSQLite}, nil)
	assert.EqualError(t, err, "database DSN is required")
}

func TestWithTxCommitsAndRollsBack(t *testing.T) {
	client := openTestClient(t)
	ctx := context.Background()

	require.NoError(t, client.WithTx(ctx, func(tx *gorm.DB) error {
		return tx.Create(&receiptRow{Quantity: 5}).Error
	}))
	assert.EqualValues(t, 1, countReceipts(t, client))

	boom := errors.New("over receipt")
	err := client.WithTx(ctx, func(tx *gorm.DB) error {
		require.NoError(t, tx.Create(&receiptRow{Quantity: 7}).Error)
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.EqualValues(t, 1, countReceipts(t, client))
}

func TestWithTxRollsBackAndRepanics(t *testing.T) {
	client := openTestClient(t)

	assert.PanicsWithValue(t, "line vanished", func() {
		_ = client.WithTx(context.Background(), func(tx *gorm.DB) error {
			require.NoError(t, tx.Create(&receiptRow{Quantity: 1}).Error)
			panic("line vanished")
		})
	})
	assert.EqualValues(t, 0, countReceipts(t, client))
}

func TestPing(t *testing.T) {
	client := openTestClient(t)
	assert.NoError(t, client.Ping(context.Background()))
}

func TestQueryLoggerReportsFailuresAndSlowQueries(t *testing.T) {
	var buf bytes.Buffer
	logg := logger.New(logger.Options{ServiceName: "db-test", Output: &buf})
	ql := newQueryLogger(logg, 50*time.Millisecond)
	stmt := func() (string, int64) { return "UPDATE purchase_orders SET version = 2", 1 }
	ctx := context.Background()

	ql.Trace(ctx, time.Now(), stmt, nil)
	assert.Zero(t, buf.Len(), "fast successful query is silent")

	ql.Trace(ctx, time.Now(), stmt, gorm.ErrRecordNotFound)
	assert.Zero(t, buf.Len(), "missing row is silent")

	ql.Trace(ctx, time.Now().Add(-time.Second), stmt, nil)
	assert.Contains(t, buf.String(), "slow query")
	assert.Contains(t, buf.String(), "UPDATE purchase_orders")

	buf.Reset()
	ql.Trace(ctx, time.Now(), stmt, errors.New("deadlock detected"))
	assert.Contains(t, buf.String(), "query failed")
	assert.Contains(t, buf.String(), "deadlock detected")
}
