package factory

import (
	"context"
	"errors"
	"path/filepath"
	"strings"

	"github.com/loykin/devsrv/internal/registry"
	fr "github.com/loykin/devsrv/internal/registry/file"
	pg "github.com/loykin/devsrv/internal/registry/postgres"
	sq "github.com/loykin/devsrv/internal/registry/sqlite"
)

// Open selects a registry implementation based on DSN and prepares it.
// Supported:
//   - memory:   "memory://"
//   - postgres: DSN starting with "postgres://" or "postgresql://"
//   - sqlite:   "sqlite://<path>", ":memory:", or a path ending in .db/.sqlite/.sqlite3
//   - file:     any other path; .yaml/.yml is YAML, anything else JSON
func Open(ctx context.Context, dsn string) (registry.Registry, error) {
	d := strings.TrimSpace(dsn)
	ld := strings.ToLower(d)
	if ld == "" {
		return nil, errors.New("empty DSN")
	}
	switch {
	case ld == "memory://":
		return registry.NewMemory(), nil
	case strings.HasPrefix(ld, "postgres://") || strings.HasPrefix(ld, "postgresql://"):
		db, err := pg.New(d)
		if err != nil {
			return nil, err
		}
		if err := db.EnsureSchema(ctx); err != nil {
			_ = db.Close()
			return nil, err
		}
		return db, nil
	case strings.HasPrefix(ld, "sqlite://"):
		return openSQLite(ctx, d[len("sqlite://"):])
	case ld == ":memory:" || isSQLiteExt(ld):
		return openSQLite(ctx, d)
	default:
		return fr.New(d)
	}
}

func isSQLiteExt(p string) bool {
	switch filepath.Ext(p) {
	case ".db", ".sqlite", ".sqlite3":
		return true
	}
	return false
}

func openSQLite(ctx context.Context, path string) (registry.Registry, error) {
	db, err := sq.New(path)
	if err != nil {
		return nil, err
	}
	if err := db.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}
