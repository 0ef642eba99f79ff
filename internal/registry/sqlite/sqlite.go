package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/loykin/devsrv/internal/registry"
)

// DB implements registry.Registry for SQLite (modernc.org/sqlite driver, CGO-free).
// DSN is a filesystem path to the SQLite database file. Use ":memory:" for in-memory.

type DB struct {
	db *sql.DB
}

// New opens a SQLite database at path.
func New(path string) (*DB, error) {
	p := strings.TrimSpace(path)
	if p == "" {
		return nil, errors.New("empty sqlite path")
	}
	d, err := sql.Open("sqlite", p)
	if err != nil {
		return nil, err
	}
	// a single connection keeps ":memory:" databases coherent
	d.SetMaxOpenConns(1)
	// busy timeout helps with short concurrent locks
	_, _ = d.Exec("PRAGMA busy_timeout=3000;")
	return &DB{db: d}, nil
}

func (s *DB) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS servers(
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL UNIQUE,
			kind TEXT NOT NULL,
			path TEXT NOT NULL,
			auto_restart BOOLEAN NOT NULL,
			monitoring BOOLEAN NOT NULL,
			updated_at TIMESTAMP NOT NULL
		);`,
	}
	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (s *DB) Close() error { return s.db.Close() }

func (s *DB) LoadAll(ctx context.Context) ([]registry.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, kind, path, auto_restart, monitoring
		FROM servers ORDER BY id;`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []registry.Record
	for rows.Next() {
		var r registry.Record
		if err := rows.Scan(&r.Name, &r.Kind, &r.Path, &r.AutoRestart, &r.Monitoring); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *DB) Save(ctx context.Context, rec registry.Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO servers(name, kind, path, auto_restart, monitoring, updated_at)
		VALUES(?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			kind=excluded.kind,
			path=excluded.path,
			auto_restart=excluded.auto_restart,
			monitoring=excluded.monitoring,
			updated_at=excluded.updated_at;`,
		rec.Name, rec.Kind, rec.Path, rec.AutoRestart, rec.Monitoring, time.Now().UTC())
	return err
}

func (s *DB) Delete(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM servers WHERE name=?;`, name)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return registry.ErrNotFound
	}
	return nil
}
