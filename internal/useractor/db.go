// Package useractor implements UserActor (spec.md §4.6): a per-user
// singleton owning a tenant-local SQLite store, serializing all state
// mutations for that user. Grounded on joestump-claude-ops's
// internal/db/db.go goose+modernc.org/sqlite bootstrap pattern.
package useractor

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// openDB opens (creating if needed) the SQLite file at path and applies
// all pending goose migrations. One connection per user's actor, since
// SQLite serializes writes anyway and a pool only adds lock contention.
func openDB(path string) (*sql.DB, error) {
	conn, err := sql.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	migrations, err := fs.Sub(migrationFS, "migrations")
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("migrations sub-fs: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, conn, migrations)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("create migration provider: %w", err)
	}
	if _, err := provider.Up(context.Background()); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}

	return conn, nil
}
