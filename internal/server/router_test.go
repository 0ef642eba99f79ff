//go:build !windows

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/devsrv/internal/sampler"
	"github.com/loykin/devsrv/internal/supervisor"
)

const serveScript = "echo ready\nwhile read line; do echo \"got $line\"; done\n"

func setupRouter(t *testing.T, base string) (http.Handler, *supervisor.Supervisor) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	sup, err := supervisor.New(context.Background(), supervisor.Options{
		Python:         "/bin/sh",
		Node:           "/bin/sh",
		GraceTimeout:   time.Second,
		RestartBackoff: 20 * time.Millisecond,
		ServersDir:     t.TempDir(),
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = sup.Shutdown(ctx)
	})
	return NewRouter(sup, base).WithMetrics(true).Handler(), sup
}

func doReq(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		rdr = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rdr)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func addServer(t *testing.T, h http.Handler, name string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name+".py")
	require.NoError(t, os.WriteFile(p, []byte(serveScript), 0o644))
	rec := doReq(t, h, http.MethodPost, "/api/servers", map[string]string{"path": p})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return p
}

func TestListEmpty(t *testing.T) {
	h, _ := setupRouter(t, "/api")
	rec := doReq(t, h, http.MethodGet, "/api/servers", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]", strings.TrimSpace(rec.Body.String()))
}

func TestCreateAndGet(t *testing.T) {
	h, _ := setupRouter(t, "/api")
	rec := doReq(t, h, http.MethodPost, "/api/servers", map[string]string{"name": "api", "type": "node"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	st := decode[supervisor.Status](t, rec)
	assert.Equal(t, "api", st.Name)
	assert.Equal(t, supervisor.KindNode, st.Kind)
	assert.Equal(t, supervisor.StateStopped, st.State)

	rec = doReq(t, h, http.MethodPost, "/api/servers", map[string]string{"name": "api", "type": "node"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "DuplicateName", decode[errorResp](t, rec).Kind)

	rec = doReq(t, h, http.MethodGet, "/api/servers/api", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "api", decode[supervisor.Status](t, rec).Name)

	rec = doReq(t, h, http.MethodGet, "/api/servers/api/path", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, st.Path, decode[pathResp](t, rec).Path)
}

func TestCreateValidation(t *testing.T) {
	h, _ := setupRouter(t, "/api")
	cases := []struct {
		name string
		body any
	}{
		{"empty", map[string]string{}},
		{"both", map[string]string{"name": "x", "path": "/tmp/x.py"}},
		{"relative path", map[string]string{"path": "x.py"}},
		{"traversal", map[string]string{"path": "/tmp/../etc/x.py"}},
		{"bad name", map[string]string{"name": "../x"}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			rec := doReq(t, h, http.MethodPost, "/api/servers", c.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}

	req := httptest.NewRequest(http.MethodPost, "/api/servers", strings.NewReader("{"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doReq(t, h, http.MethodPost, "/api/servers", map[string]string{"path": "/nonexistent/file.py"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "InvalidPath", decode[errorResp](t, rec).Kind)
}

func TestLifecycleEndpoints(t *testing.T) {
	h, _ := setupRouter(t, "/api")
	addServer(t, h, "web")

	rec := doReq(t, h, http.MethodPost, "/api/servers/web/send", map[string]string{"text": "x"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "NotRunning", decode[errorResp](t, rec).Kind)

	rec = doReq(t, h, http.MethodPost, "/api/servers/web/start", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	st := decode[supervisor.Status](t, rec)
	assert.Equal(t, supervisor.StateRunning, st.State)
	assert.NotZero(t, st.PID)

	rec = doReq(t, h, http.MethodPost, "/api/servers/web/start", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "AlreadyRunning", decode[errorResp](t, rec).Kind)

	rec = doReq(t, h, http.MethodPost, "/api/servers/web/send", map[string]string{"text": "hello"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doReq(t, h, http.MethodPost, "/api/servers/web/send", map[string]string{"text": "a\nb"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	require.Eventually(t, func() bool {
		rec := doReq(t, h, http.MethodGet, "/api/servers/web/log", nil)
		return rec.Code == http.StatusOK && strings.Contains(rec.Body.String(), "got hello")
	}, 5*time.Second, 20*time.Millisecond)

	rec = doReq(t, h, http.MethodGet, "/api/servers/web/usage", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, st.PID, decode[sampler.Sample](t, rec).PID)

	rec = doReq(t, h, http.MethodPost, "/api/servers/web/restart", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	restarted := decode[supervisor.Status](t, rec)
	assert.Equal(t, supervisor.StateRunning, restarted.State)
	assert.NotEqual(t, st.RunID, restarted.RunID)

	rec = doReq(t, h, http.MethodPost, "/api/servers/web/stop", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, supervisor.StateStopped, decode[supervisor.Status](t, rec).State)

	rec = doReq(t, h, http.MethodGet, "/api/servers/web/usage", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doReq(t, h, http.MethodDelete, "/api/servers/web", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = doReq(t, h, http.MethodGet, "/api/servers/web", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NotFound", decode[errorResp](t, rec).Kind)
}

func TestLogIncremental(t *testing.T) {
	h, _ := setupRouter(t, "")
	p := filepath.Join(t.TempDir(), "web.py")
	require.NoError(t, os.WriteFile(p, []byte(serveScript), 0o644))
	rec := doReq(t, h, http.MethodPost, "/servers", map[string]string{"path": p})
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = doReq(t, h, http.MethodPost, "/servers/web/start", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var first logResp
	require.Eventually(t, func() bool {
		rec := doReq(t, h, http.MethodGet, "/servers/web/log", nil)
		return json.Unmarshal(rec.Body.Bytes(), &first) == nil && len(first.Log) >= 2
	}, 5*time.Second, 20*time.Millisecond)
	assert.Contains(t, first.Log[0], "---- start of web")

	done := make(chan logResp, 1)
	go func() {
		rec := doReq(t, h, http.MethodGet, "/servers/web/log?wait=5s&after="+strconv.FormatUint(first.Next, 10), nil)
		var lr logResp
		_ = json.Unmarshal(rec.Body.Bytes(), &lr)
		done <- lr
	}()
	time.Sleep(50 * time.Millisecond)
	rec = doReq(t, h, http.MethodPost, "/servers/web/send", map[string]string{"text": "tail"})
	require.Equal(t, http.StatusOK, rec.Code)

	select {
	case lr := <-done:
		require.NotEmpty(t, lr.Log)
		assert.Equal(t, "got tail", lr.Log[len(lr.Log)-1])
		assert.Greater(t, lr.Next, first.Next)
	case <-time.After(8 * time.Second):
		t.Fatal("long poll did not return")
	}

	rec = doReq(t, h, http.MethodGet, "/servers/web/log?after=abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = doReq(t, h, http.MethodGet, "/servers/web/log?wait=soon", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestToggles(t *testing.T) {
	h, _ := setupRouter(t, "/api")
	addServer(t, h, "web")

	rec := doReq(t, h, http.MethodPost, "/api/servers/web/monitor", map[string]string{"state": "on"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, decode[supervisor.Status](t, rec).Monitoring)

	rec = doReq(t, h, http.MethodPost, "/api/servers/web/monitor", map[string]string{"state": "OFF"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decode[supervisor.Status](t, rec).Monitoring)

	rec = doReq(t, h, http.MethodPost, "/api/servers/web/monitor", map[string]string{"state": "maybe"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doReq(t, h, http.MethodPost, "/api/servers/web/auto_restart", map[string]string{"state": "off"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decode[supervisor.Status](t, rec).AutoRestart)

	rec = doReq(t, h, http.MethodPost, "/api/servers/missing/monitor", map[string]string{"state": "on"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	h, _ := setupRouter(t, "/api")
	rec := doReq(t, h, http.MethodGet, "/api/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestUnknownRoute(t *testing.T) {
	h, _ := setupRouter(t, "/api")
	rec := doReq(t, h, http.MethodGet, "/servers", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
