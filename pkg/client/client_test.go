package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaults(t *testing.T) {
	c := New(Config{})
	if c.baseURL != "http://127.0.0.1:8080/api" {
		t.Errorf("unexpected default baseURL %s", c.baseURL)
	}
	if c.client.Timeout != 15*time.Second {
		t.Errorf("unexpected default timeout %v", c.client.Timeout)
	}

	c = New(Config{BaseURL: "http://example.com/api", Timeout: 5 * time.Second})
	if c.BaseURL() != "http://example.com/api" {
		t.Errorf("baseURL = %s", c.BaseURL())
	}
	if c.client.Timeout != 5*time.Second {
		t.Errorf("timeout = %v", c.client.Timeout)
	}
}

func TestIsReachable(t *testing.T) {
	ok := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/servers" {
			_, _ = w.Write([]byte(`[]`))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer ok.Close()
	assert.True(t, New(Config{BaseURL: ok.URL, Timeout: time.Second}).IsReachable(context.Background()))

	missing := httptest.NewServer(http.NotFoundHandler())
	defer missing.Close()
	assert.False(t, New(Config{BaseURL: missing.URL, Timeout: time.Second}).IsReachable(context.Background()))

	assert.False(t, New(Config{BaseURL: "http://127.0.0.1:1", Timeout: 100 * time.Millisecond}).IsReachable(context.Background()))
}

func TestAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/servers/missing/start":
			w.WriteHeader(http.StatusNotFound)
			_ = json.NewEncoder(w).Encode(ErrorResponse{Error: "missing: server not found", Kind: "NotFound"})
		default:
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte("<html>"))
		}
	}))
	defer srv.Close()
	c := New(Config{BaseURL: srv.URL})

	_, err := c.Start(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, IsKind(err, "NotFound"))
	var ae *APIError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, http.StatusNotFound, ae.Status)
	assert.Contains(t, err.Error(), "server not found")

	_, err = c.List(context.Background())
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, http.StatusBadGateway, ae.Status)
	assert.Empty(t, ae.Kind)
}

func TestRequestShapes(t *testing.T) {
	type seen struct {
		method, path, query string
		body                map[string]string
	}
	var (
		mu  sync.Mutex
		got []seen
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s := seen{method: r.Method, path: r.URL.EscapedPath(), query: r.URL.RawQuery}
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&s.body)
		}
		mu.Lock()
		got = append(got, s)
		mu.Unlock()
		switch r.URL.Path {
		case "/servers/web/log":
			_ = json.NewEncoder(w).Encode(LogPage{Log: []string{"a"}, Next: 9})
		case "/servers/web/path":
			_, _ = w.Write([]byte(`{"path":"/srv/web.py"}`))
		case "/servers/web/usage":
			_ = json.NewEncoder(w).Encode(Sample{PID: 7, Valid: true, CPUPercent: 2})
		case "/servers":
			if r.Method == http.MethodPost {
				w.WriteHeader(http.StatusCreated)
			}
			_, _ = w.Write([]byte(`{"name":"web","type":"python","state":"stopped"}`))
		default:
			_, _ = w.Write([]byte(`{"name":"web","state":"running","pid":42}`))
		}
	}))
	defer srv.Close()
	c := New(Config{BaseURL: srv.URL})
	ctx := context.Background()

	st, err := c.Create(ctx, CreateRequest{Name: "web", Type: "python"})
	require.NoError(t, err)
	assert.Equal(t, "stopped", st.State)
	_, err = c.Add(ctx, AddRequest{Path: "/srv/web.py"})
	require.NoError(t, err)

	st, err = c.Start(ctx, "web")
	require.NoError(t, err)
	assert.Equal(t, 42, st.PID)
	_, err = c.SetMonitoring(ctx, "web", true)
	require.NoError(t, err)
	require.NoError(t, c.Send(ctx, "web", "hi"))

	page, err := c.Log(ctx, "web", 3, 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, uint64(9), page.Next)

	p, err := c.Path(ctx, "web")
	require.NoError(t, err)
	assert.Equal(t, "/srv/web.py", p)

	sm, err := c.Usage(ctx, "web")
	require.NoError(t, err)
	assert.Equal(t, 7, sm.PID)

	require.NoError(t, c.Delete(ctx, "web"))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 9)
	assert.Equal(t, map[string]string{"name": "web", "type": "python"}, got[0].body)
	assert.Equal(t, map[string]string{"path": "/srv/web.py"}, got[1].body)
	assert.Equal(t, "/servers/web/start", got[2].path)
	assert.Equal(t, map[string]string{"state": "on"}, got[3].body)
	assert.Equal(t, map[string]string{"text": "hi"}, got[4].body)
	assert.Equal(t, "after=3&wait=2s", got[5].query)
	assert.Equal(t, http.MethodDelete, got[8].method)
	assert.Equal(t, "/servers/web", got[8].path)
}

func TestServerPathEscapes(t *testing.T) {
	assert.Equal(t, "/servers/a%2Fb/start", serverPath("a/b", "start"))
	assert.Equal(t, "/servers/x", serverPath("x", ""))
}
