package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"strconv"

	"github.com/pressly/goose/v3"

	"github.com/angelmondragon/procurement-backend/pkg/logger"
)

type Command string

const (
	CommandUp      Command = "up"
	CommandDown    Command = "down"
	CommandStatus  Command = "status"
	CommandVersion Command = "version"
)

// Runner wraps a goose provider bound to one database. Migrations use
// Postgres enum types and partial indexes, so the dialect is fixed.
type Runner struct {
	provider *goose.Provider
	logg     *logger.Logger
}

func NewRunner(db *sql.DB, source fs.FS, logg *logger.Logger) (*Runner, error) {
	if db == nil {
		return nil, errors.New("db is required")
	}
	if source == nil {
		return nil, errors.New("migration source is required")
	}
	provider, err := goose.NewProvider(goose.DialectPostgres, db, source)
	if err != nil {
		return nil, fmt.Errorf("goose provider: %w", err)
	}
	return &Runner{provider: provider, logg: logg}, nil
}

// Apply runs cmd. target is only read by CommandVersion and must be a
// YYYYMMDDHHMMSS version; the schema moves up or down to reach it.
func (r *Runner) Apply(ctx context.Context, cmd Command, target string) error {
	switch cmd {
	case CommandUp:
		results, err := r.provider.Up(ctx)
		r.logResults(ctx, results)
		return wrapGoose(cmd, err)
	case CommandDown:
		result, err := r.provider.Down(ctx)
		if result != nil {
			r.logResults(ctx, []*goose.MigrationResult{result})
		}
		return wrapGoose(cmd, err)
	case CommandStatus:
		return r.status(ctx)
	case CommandVersion:
		return r.migrateTo(ctx, target)
	default:
		return fmt.Errorf("unknown migrate command %q", cmd)
	}
}

func (r *Runner) migrateTo(ctx context.Context, target string) error {
	if target == "" {
		return errors.New("target version is required")
	}
	version, err := strconv.ParseInt(target, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid version %q (expected YYYYMMDDHHMMSS): %w", target, err)
	}
	current, err := r.provider.GetDBVersion(ctx)
	if err != nil {
		return fmt.Errorf("get db version: %w", err)
	}

	var results []*goose.MigrationResult
	switch {
	case current == version:
		return nil
	case current < version:
		results, err = r.provider.UpTo(ctx, version)
	default:
		results, err = r.provider.DownTo(ctx, version)
	}
	r.logResults(ctx, results)
	return wrapGoose(CommandVersion, err)
}

func (r *Runner) status(ctx context.Context) error {
	statuses, err := r.provider.Status(ctx)
	if err != nil {
		return wrapGoose(CommandStatus, err)
	}
	if r.logg == nil {
		return nil
	}
	for _, st := range statuses {
		fields := map[string]any{
			"version": st.Source.Version,
			"path":    st.Source.Path,
			"state":   string(st.State),
		}
		if !st.AppliedAt.IsZero() {
			fields["applied_at"] = st.AppliedAt
		}
		r.logg.Info(r.logg.WithFields(ctx, fields), "migration status")
	}
	return nil
}

func (r *Runner) logResults(ctx context.Context, results []*goose.MigrationResult) {
	if r.logg == nil {
		return
	}
	for _, res := range results {
		if res == nil || res.Source == nil {
			continue
		}
		entry := r.logg.WithFields(ctx, map[string]any{
			"version":     res.Source.Version,
			"path":        res.Source.Path,
			"direction":   res.Direction,
			"duration_ms": res.Duration.Milliseconds(),
		})
		if res.Error != nil {
			r.logg.Error(entry, "migration failed", res.Error)
			continue
		}
		r.logg.Info(entry, "migration applied")
	}
}

func wrapGoose(cmd Command, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("goose %s: %w", cmd, err)
}
