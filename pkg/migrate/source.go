// Package migrate applies the goose SQL migrations for the procurement
// schema. The migrations ship inside every binary; a directory on disk can
// be used instead while authoring new ones.
package migrate

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
)

// DefaultDir is where new migrations are written by the create command.
const DefaultDir = "pkg/migrate/migrations"

//go:embed migrations/*.sql
var embedded embed.FS

// Source returns the migrations to apply: dir when set, otherwise the
// embedded set.
func Source(dir string) (fs.FS, error) {
	if dir != "" {
		if _, err := os.Stat(dir); err != nil {
			return nil, fmt.Errorf("migrations dir %q: %w", dir, err)
		}
		return os.DirFS(dir), nil
	}
	return fs.Sub(embedded, "migrations")
}
