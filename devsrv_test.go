package devsrv

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireUnix(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("uses /bin/sh")
	}
}

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	p := filepath.Join(dir, "devsrv.toml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestOpenFromConfig(t *testing.T) {
	requireUnix(t)
	dir := t.TempDir()
	p := writeConfig(t, dir, `
env = ["GREETING=hi"]

[supervisor]
python = "/bin/sh"
grace_timeout = "1s"
servers_dir = "`+filepath.Join(dir, "servers")+`"

[registry]
dsn = "`+filepath.Join(dir, "servers.json")+`"

[history]
sinks = ["`+filepath.Join(dir, "history.db")+`"]
`)
	c, err := LoadConfig(p)
	require.NoError(t, err)

	ctx := context.Background()
	s, err := Open(ctx, c, nil)
	require.NoError(t, err)

	script := filepath.Join(dir, "hello.py")
	require.NoError(t, os.WriteFile(script, []byte("echo $GREETING\nsleep 30\n"), 0o644))
	_, err = s.Add(ctx, script)
	require.NoError(t, err)

	st, err := s.Start("hello")
	require.NoError(t, err)
	assert.Equal(t, StateRunning, st.State)
	require.Eventually(t, func() bool {
		lines, _ := s.Log("hello")
		for _, l := range lines {
			if l == "hi" {
				return true
			}
		}
		return false
	}, 5*time.Second, 10*time.Millisecond)

	sctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(sctx))

	db, err := sql.Open("sqlite", filepath.Join(dir, "history.db"))
	require.NoError(t, err)
	var runs int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM run_history WHERE name = 'hello'`).Scan(&runs))
	_ = db.Close()
	assert.Equal(t, 2, runs, "one start and one exit")

	// the registry survives the daemon
	s2, err := Open(ctx, c, nil)
	require.NoError(t, err)
	defer func() { _ = s2.Shutdown(context.Background()) }()
	list := s2.List()
	require.Len(t, list, 1)
	assert.Equal(t, "hello", list[0].Name)
	assert.Equal(t, StateStopped, list[0].State)
}

func TestHandlerFacade(t *testing.T) {
	s, err := New(context.Background(), Options{ServersDir: t.TempDir()})
	require.NoError(t, err)
	defer func() { _ = s.Shutdown(context.Background()) }()

	_, err = s.Create(context.Background(), "api", "node")
	require.NoError(t, err)

	h := Handler("/api", s, false)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/servers", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var list []Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "api", list[0].Name)

	_, err = s.Start("missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, "NotFound", ErrorKind(err))
}

func TestMetricsHelpers(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, RegisterMetrics(reg))
	// second call is a no-op
	require.NoError(t, RegisterMetrics(reg))
}

func TestNewHTTPServerNil(t *testing.T) {
	_, err := NewHTTPServer("127.0.0.1:0", "", nil, false)
	assert.Error(t, err)
}
