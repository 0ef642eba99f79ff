// Package supervisor runs development servers as child processes: it owns
// their lifecycle, restarts them after crashes up to a limit, captures their
// output and samples their resource usage.
package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/loykin/devsrv/internal/history"
	"github.com/loykin/devsrv/internal/logbuf"
	"github.com/loykin/devsrv/internal/registry"
	"github.com/loykin/devsrv/internal/sampler"
	"github.com/loykin/devsrv/internal/watch"
)

// Supervisor owns the set of server entries. It is safe for concurrent use.
type Supervisor struct {
	opts Options
	log  *slog.Logger
	reg  registry.Registry
	smp  sampler.Sampler
	hist *history.Recorder

	mu      sync.RWMutex
	entries map[string]*entry
	order   []string
	pending map[string]struct{} // names held by an unfinished Create or Add

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	closed  atomic.Bool
	watcher *watch.Watcher
}

// New loads every known server from the registry, all Stopped, and starts
// the background monitor. Call Shutdown to stop it.
func New(ctx context.Context, opts Options) (*Supervisor, error) {
	opts = opts.withDefaults()
	recs, err := opts.Registry.LoadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load registry: %w", err)
	}
	bg, cancel := context.WithCancel(context.Background())
	s := &Supervisor{
		opts:    opts,
		log:     opts.Logger,
		reg:     opts.Registry,
		smp:     opts.Sampler,
		hist:    history.NewRecorder(opts.Logger, opts.History...),
		entries: make(map[string]*entry, len(recs)),
		ctx:     bg,
		cancel:  cancel,
	}
	for _, rec := range recs {
		if _, dup := s.entries[rec.Name]; dup {
			s.log.Warn("duplicate registry record ignored", "server", rec.Name)
			continue
		}
		s.entries[rec.Name] = newEntry(rec, opts.LogLines)
		s.order = append(s.order, rec.Name)
	}

	if opts.ReloadOnChange {
		w, err := watch.New(opts.ReloadDebounce, s.onFileChange, s.log)
		if err != nil {
			cancel()
			_ = s.hist.Close(context.Background())
			return nil, err
		}
		s.watcher = w
		for _, name := range s.order {
			if err := w.Add(name, s.entries[name].path); err != nil {
				s.log.Warn("cannot watch server file", "server", name, "error", err)
			}
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			w.Run(bg)
		}()
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.monitorLoop(bg)
	}()
	s.log.Info("supervisor ready", "servers", len(s.order))
	return s, nil
}

func (s *Supervisor) lookup(name string) (*entry, error) {
	s.mu.RLock()
	e, ok := s.entries[name]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, ErrNotFound)
	}
	return e, nil
}

func (s *Supervisor) snapshotEntries() []*entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*entry, 0, len(s.order))
	for _, n := range s.order {
		out = append(out, s.entries[n])
	}
	return out
}

// List returns the status of every entry in registration order.
func (s *Supervisor) List() []Status {
	entries := s.snapshotEntries()
	out := make([]Status, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.status())
	}
	return out
}

// Get returns the status of one entry.
func (s *Supervisor) Get(name string) (Status, error) {
	e, err := s.lookup(name)
	if err != nil {
		return Status{}, err
	}
	return e.status(), nil
}

// Path returns the entry file of a server.
func (s *Supervisor) Path(name string) (string, error) {
	e, err := s.lookup(name)
	if err != nil {
		return "", err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.path, nil
}

// Log returns the buffered output lines of a server.
func (s *Supervisor) Log(name string) ([]string, error) {
	e, err := s.lookup(name)
	if err != nil {
		return nil, err
	}
	return e.log.Snapshot(), nil
}

// LogSince returns lines newer than seq and the cursor for the next call.
func (s *Supervisor) LogSince(name string, seq uint64) ([]logbuf.Line, uint64, error) {
	e, err := s.lookup(name)
	if err != nil {
		return nil, 0, err
	}
	lines, next := e.log.Since(seq)
	return lines, next, nil
}

// LogWait blocks until a line newer than seq exists or ctx is done.
func (s *Supervisor) LogWait(ctx context.Context, name string, seq uint64) error {
	e, err := s.lookup(name)
	if err != nil {
		return err
	}
	return e.log.Wait(ctx, seq)
}

// SetMonitoring turns periodic sampling of a server on or off and persists
// the flag.
func (s *Supervisor) SetMonitoring(ctx context.Context, name string, on bool) error {
	e, err := s.saveFlag(ctx, name, func(rec *registry.Record) { rec.Monitoring = on }, func(e *entry) { e.monitoring = on })
	if err != nil {
		return err
	}
	if !on {
		s.clearSample(e)
	}
	s.log.Info("monitoring changed", "server", name, "enabled", on)
	return nil
}

// SetAutoRestart changes whether crashes of a server are restarted.
func (s *Supervisor) SetAutoRestart(ctx context.Context, name string, on bool) error {
	_, err := s.saveFlag(ctx, name, func(rec *registry.Record) { rec.AutoRestart = on }, func(e *entry) { e.autoRestart = on })
	if err != nil {
		return err
	}
	s.log.Info("auto-restart changed", "server", name, "enabled", on)
	return nil
}

// saveFlag persists one setting change and then applies it to the entry.
// opMu is held throughout so the save cannot race Delete or another setter.
func (s *Supervisor) saveFlag(ctx context.Context, name string, edit func(*registry.Record), apply func(*entry)) (*entry, error) {
	e, err := s.lookup(name)
	if err != nil {
		return nil, err
	}
	e.opMu.Lock()
	defer e.opMu.Unlock()

	e.mu.Lock()
	if e.removed {
		e.mu.Unlock()
		return nil, fmt.Errorf("%s: %w", name, ErrNotFound)
	}
	rec := e.recordLocked()
	e.mu.Unlock()
	edit(&rec)
	if err := s.reg.Save(ctx, rec); err != nil {
		return nil, fmt.Errorf("save %s: %w", name, err)
	}
	e.mu.Lock()
	apply(e)
	e.mu.Unlock()
	return e, nil
}

// Shutdown stops every running server and the background tasks. Servers
// still running when ctx ends are left to the OS.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.cancel()
	if s.watcher != nil {
		_ = s.watcher.Close()
	}

	var stopWG sync.WaitGroup
	for _, e := range s.snapshotEntries() {
		stopWG.Add(1)
		go func(e *entry) {
			defer stopWG.Done()
			e.opMu.Lock()
			defer e.opMu.Unlock()
			if err := s.stopLocked(e); err != nil {
				s.log.Error("stop during shutdown failed", "server", e.name, "error", err)
			}
			e.mu.Lock()
			if e.out != nil {
				_ = e.out.Close()
			}
			e.mu.Unlock()
		}(e)
	}

	done := make(chan struct{})
	go func() {
		stopWG.Wait()
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("shutdown: %w", ctx.Err())
	}
	if err := s.hist.Close(ctx); err != nil {
		return fmt.Errorf("shutdown: flush history: %w", err)
	}
	s.log.Info("supervisor stopped")
	return nil
}

func (s *Supervisor) onFileChange(name string) {
	e, err := s.lookup(name)
	if err != nil {
		return
	}
	e.mu.Lock()
	running := e.state == StateRunning
	e.mu.Unlock()
	if !running || s.closed.Load() {
		return
	}
	s.log.Info("reloading after file change", "server", name)
	if _, err := s.Restart(name); err != nil {
		s.log.Error("reload failed", "server", name, "error", err)
	}
}
