package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/procurement-backend/internal/purchaseorders"
	"github.com/angelmondragon/procurement-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/procurement-backend/pkg/errors"
	"github.com/angelmondragon/procurement-backend/pkg/logger"
)

const (
	archiveRetentionDays = 90
	archiveBatchSize     = 200
	archiveMaxBatches    = 50

	// ArchiverActor is recorded on audit entries written by the archival job.
	ArchiverActor = "system:archiver"
)

// ArchivalJobParams configures the cancelled-order archival job.
type ArchivalJobParams struct {
	Logger        *logger.Logger
	Orders        orderArchiver
	RetentionDays int
	BatchSize     int
}

type orderArchiver interface {
	ListArchivable(ctx context.Context, cutoff time.Time, limit int) ([]models.PurchaseOrder, error)
	Archive(ctx context.Context, actor string, orderID uuid.UUID) (*purchaseorders.OrderSummary, error)
}

// NewArchivalJob soft-archives orders cancelled longer than the retention window.
func NewArchivalJob(params ArchivalJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("purchase order service required")
	}
	retention := params.RetentionDays
	if retention <= 0 {
		retention = archiveRetentionDays
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = archiveBatchSize
	}
	return &archivalJob{
		logg:      params.Logger,
		orders:    params.Orders,
		retention: retention,
		batchSize: batch,
		now:       time.Now,
	}, nil
}

type archivalJob struct {
	logg      *logger.Logger
	orders    orderArchiver
	retention int
	batchSize int
	now       func() time.Time
}

func (j *archivalJob) Name() string { return "purchase-order-archival" }

// Run archives batch after batch until the backlog is drained. A batch with
// failures ends the run so the same rows are not retried in a tight loop.
func (j *archivalJob) Run(ctx context.Context) error {
	cutoff := retentionCutoff(j.now(), j.retention)
	var (
		archived int
		skipped  int
		errs     error
	)
	for batch := 0; batch < archiveMaxBatches; batch++ {
		orders, err := j.orders.ListArchivable(ctx, cutoff, j.batchSize)
		if err != nil {
			return multierr.Append(errs, fmt.Errorf("list archivable orders: %w", err))
		}
		var batchErr error
		for _, order := range orders {
			if _, err := j.orders.Archive(ctx, ArchiverActor, order.ID); err != nil {
				if pkgerrors.IsCode(err, pkgerrors.CodeInvalidTransition) {
					// archived or reopened by someone else since the listing
					skipped++
					continue
				}
				batchErr = multierr.Append(batchErr, fmt.Errorf("archive order %s: %w", order.ID, err))
				continue
			}
			archived++
		}
		errs = multierr.Append(errs, batchErr)
		if batchErr != nil || len(orders) < j.batchSize {
			break
		}
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":         cutoff,
		"retention_days": j.retention,
		"archived":       archived,
		"skipped":        skipped,
		"failed":         len(multierr.Errors(errs)),
	})
	j.logg.Info(logCtx, "cancelled order archival complete")
	return errs
}

func retentionCutoff(now time.Time, days int) time.Time {
	return now.UTC().Add(-time.Duration(days) * 24 * time.Hour)
}
