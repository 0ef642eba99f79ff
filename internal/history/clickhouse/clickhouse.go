package clickhouse

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/loykin/devsrv/internal/history"
)

var tablePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Options selects the server and table for a Sink.
type Options struct {
	Addr     string
	Database string
	Username string
	Password string
	Table    string
}

// Sink sends events to ClickHouse using the official ClickHouse Go client.
type Sink struct {
	conn  driver.Conn
	table string
}

// New connects, pings and creates the table when it does not exist.
func New(ctx context.Context, o Options) (*Sink, error) {
	if o.Addr == "" {
		o.Addr = "localhost:9000"
	}
	if o.Database == "" {
		o.Database = "default"
	}
	if o.Username == "" {
		o.Username = "default"
	}
	if o.Table == "" {
		o.Table = "run_history"
	}
	if !tablePattern.MatchString(o.Table) {
		return nil, errors.New("invalid ClickHouse table name: " + o.Table)
	}

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{o.Addr},
		Auth: clickhouse.Auth{
			Database: o.Database,
			Username: o.Username,
			Password: o.Password,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	s := &Sink{conn: conn, table: o.Table}
	if err := s.ensureSchema(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return s, nil
}

func (s *Sink) ensureSchema(ctx context.Context) error {
	err := s.conn.Exec(ctx, `CREATE TABLE IF NOT EXISTS `+s.table+` (
		event String,
		occurred_at DateTime64(6),
		name String,
		kind String,
		run_id String,
		pid Int64,
		trigger String,
		attempt UInt32,
		started_at DateTime64(6),
		outcome Nullable(String),
		exit_code Nullable(Int32),
		reason Nullable(String)
	) ENGINE = MergeTree()
	ORDER BY (name, occurred_at)`)
	if err != nil {
		return fmt.Errorf("create ClickHouse table %s: %w", s.table, err)
	}
	return nil
}

func (s *Sink) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

func (s *Sink) Send(ctx context.Context, e history.Event) error {
	r := e.Run
	var (
		outcome, reason *string
		code            *int32
	)
	if e.Type == history.EventExit {
		c := int32(r.ExitCode)
		outcome, reason, code = &r.Outcome, &r.Reason, &c
	}
	query := fmt.Sprintf(`INSERT INTO %s (event, occurred_at, name, kind, run_id, pid, trigger, attempt, started_at, outcome, exit_code, reason) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, s.table)

	err := s.conn.Exec(ctx, query,
		string(e.Type),
		e.OccurredAt.UTC(),
		r.Name,
		r.Kind,
		r.RunID,
		int64(r.PID),
		r.Trigger,
		uint32(r.Attempt),
		r.StartedAt.UTC(),
		outcome,
		code,
		reason,
	)
	if err != nil {
		return fmt.Errorf("failed to insert event into ClickHouse: %w", err)
	}
	return nil
}
