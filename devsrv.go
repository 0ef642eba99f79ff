package devsrv

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	cfg "github.com/loykin/devsrv/internal/config"
	"github.com/loykin/devsrv/internal/history"
	hfactory "github.com/loykin/devsrv/internal/history/factory"
	"github.com/loykin/devsrv/internal/metrics"
	"github.com/loykin/devsrv/internal/registry"
	"github.com/loykin/devsrv/internal/registry/factory"
	"github.com/loykin/devsrv/internal/sampler"
	iapi "github.com/loykin/devsrv/internal/server"
	"github.com/loykin/devsrv/internal/supervisor"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type Config = cfg.Config

type Options = supervisor.Options

type Status = supervisor.Status

type State = supervisor.State

type Sample = sampler.Sample

type Registry = registry.Registry

type Record = registry.Record

type HistorySink = history.Sink

type HistoryEvent = history.Event

const (
	StateStopped  = supervisor.StateStopped
	StateStarting = supervisor.StateStarting
	StateRunning  = supervisor.StateRunning
	StateCrashed  = supervisor.StateCrashed
	StateStopping = supervisor.StateStopping
)

// Error sentinels, matched with errors.Is.
var (
	ErrDuplicateName  = supervisor.ErrDuplicateName
	ErrInvalidPath    = supervisor.ErrInvalidPath
	ErrNotFound       = supervisor.ErrNotFound
	ErrAlreadyRunning = supervisor.ErrAlreadyRunning
	ErrNotRunning     = supervisor.ErrNotRunning
	ErrInputBlocked   = supervisor.ErrInputBlocked
	ErrSpawn          = supervisor.ErrSpawn
)

// Supervisor is a thin facade over internal/supervisor.
// It provides a stable public API for embedding.
type Supervisor struct {
	inner *supervisor.Supervisor
	reg   registry.Registry
	sinks []history.Sink
	owned bool
}

// New creates a supervisor from explicit options.
func New(ctx context.Context, opts Options) (*Supervisor, error) {
	s, err := supervisor.New(ctx, opts)
	if err != nil {
		return nil, err
	}
	return &Supervisor{inner: s}, nil
}

// Open builds a supervisor from a loaded config: it opens the registry named
// by registry.dsn and the history sinks, and applies the supervisor, output
// and env settings. Shutdown closes what Open opened.
func Open(ctx context.Context, c *Config, log *slog.Logger) (*Supervisor, error) {
	if c == nil {
		c = cfg.Default()
	}
	env, err := c.ServerEnv()
	if err != nil {
		return nil, err
	}
	reg, err := factory.Open(ctx, c.Registry.DSN)
	if err != nil {
		return nil, err
	}
	sinks, err := hfactory.OpenAll(ctx, c.History.Sinks)
	if err != nil {
		_ = reg.Close()
		return nil, fmt.Errorf("open history sinks: %w", err)
	}
	sc := c.Supervisor
	s, err := supervisor.New(ctx, supervisor.Options{
		Registry:       reg,
		Logger:         log,
		MaxRestarts:    sc.MaxRestarts,
		RestartBackoff: sc.RestartBackoff,
		GraceTimeout:   sc.GraceTimeout,
		SampleInterval: sc.SampleInterval,
		LogLines:       sc.LogLines,
		LogOnRestart:   supervisor.LogPolicy(sc.LogOnRestart),
		ServersDir:     sc.ServersDir,
		Python:         sc.Python,
		Node:           sc.Node,
		Env:            env,
		Output:         c.Output,
		ReloadOnChange: sc.ReloadOnChange,
		History:        sinks,
	})
	if err != nil {
		_ = reg.Close()
		_ = hfactory.CloseAll(sinks)
		return nil, err
	}
	return &Supervisor{inner: s, reg: reg, sinks: sinks, owned: true}, nil
}

func (s *Supervisor) Create(ctx context.Context, name, kind string) (Status, error) {
	return s.inner.Create(ctx, name, kind)
}
func (s *Supervisor) Add(ctx context.Context, path string) (Status, error) {
	return s.inner.Add(ctx, path)
}
func (s *Supervisor) Delete(ctx context.Context, name string) error { return s.inner.Delete(ctx, name) }
func (s *Supervisor) Start(name string) (Status, error)            { return s.inner.Start(name) }
func (s *Supervisor) Stop(name string) (Status, error)             { return s.inner.Stop(name) }
func (s *Supervisor) Restart(name string) (Status, error)          { return s.inner.Restart(name) }
func (s *Supervisor) Send(name, text string) error                 { return s.inner.Send(name, text) }
func (s *Supervisor) List() []Status                               { return s.inner.List() }
func (s *Supervisor) Get(name string) (Status, error)              { return s.inner.Get(name) }
func (s *Supervisor) Log(name string) ([]string, error)            { return s.inner.Log(name) }
func (s *Supervisor) Path(name string) (string, error)             { return s.inner.Path(name) }
func (s *Supervisor) Usage(ctx context.Context, name string) (Sample, error) {
	return s.inner.Usage(ctx, name)
}
func (s *Supervisor) SetMonitoring(ctx context.Context, name string, on bool) error {
	return s.inner.SetMonitoring(ctx, name, on)
}
func (s *Supervisor) SetAutoRestart(ctx context.Context, name string, on bool) error {
	return s.inner.SetAutoRestart(ctx, name, on)
}

// Shutdown stops every server, then closes the registry and history sinks
// if Open created them.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	err := s.inner.Shutdown(ctx)
	if s.owned {
		if s.reg != nil {
			err = errors.Join(err, s.reg.Close())
		}
		err = errors.Join(err, hfactory.CloseAll(s.sinks))
	}
	return err
}

// ErrorKind names the category of an error returned by the supervisor.
func ErrorKind(err error) string { return supervisor.ErrorKind(err) }

func LoadConfig(path string) (*Config, error) { return cfg.Load(path) }

// NewHTTPServer returns an unstarted HTTP server exposing the API for s.
func NewHTTPServer(addr, basePath string, s *Supervisor, withMetrics bool) (*http.Server, error) {
	if s == nil {
		return nil, fmt.Errorf("nil supervisor")
	}
	return iapi.NewServer(addr, basePath, s.inner, withMetrics)
}

// Handler returns the API handler without starting a listener.
func Handler(basePath string, s *Supervisor, withMetrics bool) http.Handler {
	return iapi.NewRouter(s.inner, basePath).WithMetrics(withMetrics).Handler()
}

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }

// ServeMetrics starts an HTTP server on addr exposing /metrics using the default registry.
// It blocks like http.Server.ListenAndServe.
func ServeMetrics(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv.ListenAndServe()
}
