package migrate

import (
	"context"
	"fmt"

	"github.com/angelmondragon/procurement-backend/pkg/config"
	"github.com/angelmondragon/procurement-backend/pkg/db"
	"github.com/angelmondragon/procurement-backend/pkg/logger"
)

// AutoApply brings a dev Postgres schema up to date from the embedded
// migrations when PROCUREMENT_AUTO_MIGRATE is on. sqlite tests build their
// schema with AutoMigrate instead.
func AutoApply(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		return nil
	}
	if cfg.DB.IsSQLite() {
		logg.Warn(ctx, "auto-migrate skipped for sqlite")
		return nil
	}

	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("sql handle: %w", err)
	}
	source, err := Source("")
	if err != nil {
		return err
	}
	runner, err := NewRunner(sqlDB, source, logg)
	if err != nil {
		return err
	}

	ctx = logg.WithField(ctx, "env", cfg.App.Env)
	logg.Info(ctx, "auto-migrate starting")
	if err := runner.Apply(ctx, CommandUp, ""); err != nil {
		return err
	}
	logg.Info(ctx, "auto-migrate finished")
	return nil
}
