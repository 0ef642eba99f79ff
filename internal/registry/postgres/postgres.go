package postgres

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/loykin/devsrv/internal/registry"
)

type DB struct {
	db *sql.DB
}

func New(dsn string) (*DB, error) {
	d, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	return &DB{db: d}, nil
}

func (p *DB) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS servers(
			id BIGSERIAL PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			kind TEXT NOT NULL,
			path TEXT NOT NULL,
			auto_restart BOOLEAN NOT NULL,
			monitoring BOOLEAN NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		);`,
	}
	for _, q := range stmts {
		if _, err := p.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (p *DB) Close() error { return p.db.Close() }

func (p *DB) LoadAll(ctx context.Context) ([]registry.Record, error) {
	rows, err := p.db.QueryContext(ctx, `
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

func (p *DB) Save(ctx context.Context, rec registry.Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO servers(name, kind, path, auto_restart, monitoring, updated_at)
		VALUES($1, $2, $3, $4, $5, $6)
		ON CONFLICT(name) DO UPDATE SET
			kind=EXCLUDED.kind,
			path=EXCLUDED.path,
			auto_restart=EXCLUDED.auto_restart,
			monitoring=EXCLUDED.monitoring,
			updated_at=EXCLUDED.updated_at;`,
		rec.Name, rec.Kind, rec.Path, rec.AutoRestart, rec.Monitoring, time.Now().UTC())
	return err
}

func (p *DB) Delete(ctx context.Context, name string) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM servers WHERE name=$1;`, name)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return registry.ErrNotFound
	}
	return nil
}
