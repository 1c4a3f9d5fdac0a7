package cron

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/procurement-backend/pkg/logger"
)

const (
	outboxRetentionDays  = 30
	outboxMaxAttempts    = 10
	outboxRetentionBatch = 1000
	// caps one run; whatever remains is picked up next cycle
	outboxMaxPasses = 100
)

type OutboxRetentionJobParams struct {
	Logger        *logger.Logger
	DB            txRunner
	Repository    outboxRetentionRepo
	RetentionDays int
	// MaxAttempts must match the publisher's limit so only parked rows go.
	MaxAttempts int
	BatchSize   int
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxRetentionRepo interface {
	DeleteSettledBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time, maxAttempts, limit int) (int64, error)
}

// NewOutboxRetentionJob prunes settled outbox rows past the retention window.
// Each pass deletes one batch in its own transaction.
func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("outbox repository required")
	}
	return &outboxRetentionJob{
		logg:        params.Logger,
		db:          params.DB,
		repo:        params.Repository,
		retention:   positiveOr(params.RetentionDays, outboxRetentionDays),
		maxAttempts: positiveOr(params.MaxAttempts, outboxMaxAttempts),
		batchSize:   positiveOr(params.BatchSize, outboxRetentionBatch),
		now:         time.Now,
	}, nil
}

type outboxRetentionJob struct {
	logg        *logger.Logger
	db          txRunner
	repo        outboxRetentionRepo
	retention   int
	maxAttempts int
	batchSize   int
	now         func() time.Time
}

func (j *outboxRetentionJob) Name() string { return "outbox-retention" }

func (j *outboxRetentionJob) Run(ctx context.Context) error {
	cutoff := retentionCutoff(j.now(), j.retention)
	var total int64
	passes := 0
	for passes < outboxMaxPasses {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("outbox retention interrupted after %d rows: %w", total, err)
		}
		var deleted int64
		err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
			n, err := j.repo.DeleteSettledBefore(ctx, tx, cutoff, j.maxAttempts, j.batchSize)
			deleted = n
			return err
		})
		if err != nil {
			return fmt.Errorf("outbox retention pass %d: %w", passes+1, err)
		}
		passes++
		total += deleted
		if deleted < int64(j.batchSize) {
			break
		}
	}

	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"cutoff":         cutoff,
		"retention_days": j.retention,
		"passes":         passes,
		"rows_deleted":   total,
	}), "outbox retention cleanup complete")
	return nil
}

func positiveOr(v, fallback int) int {
	if v <= 0 {
		return fallback
	}
	return v
}
