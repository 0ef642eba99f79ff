package clickhouse

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/clickhouse"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/loykin/devsrv/internal/history"
)

// setupClickHouseContainer starts a ClickHouse container and returns the
// native protocol address. It skips the test if Docker is unavailable.
func setupClickHouseContainer(ctx context.Context, t *testing.T) (testcontainers.Container, string) {
	t.Helper()

	c, err := clickhouse.Run(ctx,
		"clickhouse/clickhouse-server:24.3.2.23",
		clickhouse.WithUsername("default"),
		clickhouse.WithPassword(""),
		clickhouse.WithDatabase("default"),
		testcontainers.WithWaitStrategy(
			wait.ForHTTP("/ping").
				WithPort("8123/tcp").
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Skipf("Failed to start ClickHouse container: %v", err)
	}
	host, err := c.Host(ctx)
	if err != nil {
		_ = c.Terminate(ctx)
		t.Fatalf("Failed to get container host: %v", err)
	}
	port, err := c.MappedPort(ctx, "9000")
	if err != nil {
		_ = c.Terminate(ctx)
		t.Fatalf("Failed to get mapped port: %v", err)
	}
	return c, host + ":" + port.Port()
}

func TestClickHouseSink_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	ctx := context.Background()
	container, addr := setupClickHouseContainer(ctx, t)
	defer func() { _ = container.Terminate(ctx) }()

	sink, err := New(ctx, Options{Addr: addr, Table: "run_history"})
	require.NoError(t, err)
	defer func() { _ = sink.Close() }()

	run := history.Run{Name: "web", Kind: "python", RunID: "ch-1", PID: 100, Trigger: history.TriggerStart, StartedAt: time.Now()}
	require.NoError(t, sink.Send(ctx, history.Event{Type: history.EventStart, OccurredAt: time.Now(), Run: run}))
	run.Outcome, run.ExitCode, run.Reason = history.OutcomeCrashed, 3, "exited"
	require.NoError(t, sink.Send(ctx, history.Event{Type: history.EventExit, OccurredAt: time.Now(), Run: run}))

	var count uint64
	require.NoError(t, sink.conn.QueryRow(ctx, "SELECT COUNT(*) FROM run_history WHERE run_id = ?", "ch-1").Scan(&count))
	assert.Equal(t, uint64(2), count)

	var code *int32
	require.NoError(t, sink.conn.QueryRow(ctx, "SELECT exit_code FROM run_history WHERE run_id = ? AND event = 'exit'", "ch-1").Scan(&code))
	require.NotNil(t, code)
	assert.Equal(t, int32(3), *code)
}

func TestClickHouseSink_ConnectionError(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := New(ctx, Options{Addr: "127.0.0.1:1"})
	assert.Error(t, err)
}

func TestClickHouseSink_InvalidTable(t *testing.T) {
	_, err := New(context.Background(), Options{Table: "runs; DROP TABLE x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid ClickHouse table name")
}
