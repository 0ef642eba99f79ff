package supervisor

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/loykin/devsrv/internal/history"
	"github.com/loykin/devsrv/internal/metrics"
	"github.com/loykin/devsrv/internal/process"
)

type startMode int

const (
	startManual  startMode = iota // Start
	startRestart                  // Restart, reload on change
	startAuto                     // after a crash
)

func (m startMode) trigger() string {
	switch m {
	case startRestart:
		return history.TriggerRestart
	case startAuto:
		return history.TriggerAutoRestart
	}
	return history.TriggerStart
}

// Start launches a server that is Stopped or Crashed. It resets the restart
// counter; a log frozen by Stop is cleared first.
func (s *Supervisor) Start(name string) (Status, error) {
	if s.closed.Load() {
		return Status{}, ErrClosed
	}
	e, err := s.lookup(name)
	if err != nil {
		return Status{}, err
	}
	e.opMu.Lock()
	defer e.opMu.Unlock()
	err = s.startLocked(e, startManual)
	return e.status(), err
}

// Stop stops a server, waiting at most the grace timeout before killing
// it. Stopping a Stopped server does nothing.
func (s *Supervisor) Stop(name string) (Status, error) {
	e, err := s.lookup(name)
	if err != nil {
		return Status{}, err
	}
	e.opMu.Lock()
	defer e.opMu.Unlock()
	err = s.stopLocked(e)
	return e.status(), err
}

// Restart stops the server if needed and starts it again as one operation.
// The restart counter is reset.
func (s *Supervisor) Restart(name string) (Status, error) {
	if s.closed.Load() {
		return Status{}, ErrClosed
	}
	e, err := s.lookup(name)
	if err != nil {
		return Status{}, err
	}
	e.opMu.Lock()
	defer e.opMu.Unlock()
	if err := s.stopLocked(e); err != nil {
		return e.status(), err
	}
	err = s.startLocked(e, startRestart)
	return e.status(), err
}

// Send writes text and a newline to a running server's input.
func (s *Supervisor) Send(name, text string) error {
	e, err := s.lookup(name)
	if err != nil {
		return err
	}
	e.mu.Lock()
	h := e.proc
	running := e.state == StateRunning && h != nil
	e.mu.Unlock()
	if !running {
		return fmt.Errorf("%s: %w", name, ErrNotRunning)
	}
	if err := h.WriteLine(text); err != nil {
		if errors.Is(err, process.ErrInputBlocked) {
			return fmt.Errorf("%s: %w", name, ErrInputBlocked)
		}
		return fmt.Errorf("%s: %w: %v", name, ErrNotRunning, err)
	}
	return nil
}

// startLocked spawns a new run. Callers hold e.opMu.
func (s *Supervisor) startLocked(e *entry, mode startMode) error {
	e.mu.Lock()
	if e.removed {
		e.mu.Unlock()
		return fmt.Errorf("%s: %w", e.name, ErrNotFound)
	}
	if e.state.Active() {
		e.mu.Unlock()
		return fmt.Errorf("%s: %w", e.name, ErrAlreadyRunning)
	}
	e.gen++
	if mode != startAuto {
		e.restarts = 0
	}
	if fi, err := os.Stat(e.path); err != nil || fi.IsDir() {
		e.setStateLocked(StateStopped)
		e.mu.Unlock()
		return fmt.Errorf("%s: %s: %w", e.name, e.path, ErrInvalidPath)
	}

	runID := uuid.NewString()
	switch {
	case mode == startManual && e.frozen:
		e.log.Clear()
	case mode != startManual && s.opts.LogOnRestart == LogClear:
		e.log.Clear()
	}
	e.log.Mark(markerLine(mode, e.name, runID, e.restarts, s.opts.MaxRestarts))

	if s.opts.Output.Enabled() {
		if e.out == nil {
			e.out = s.opts.Output.Writer(e.name)
		}
		if mode == startManual {
			if err := e.out.Rotate(); err != nil {
				s.log.Warn("rotate output file failed", "server", e.name, "error", err)
			}
		}
	}
	var out io.Writer = e.log
	if e.out != nil {
		out = &teeWriter{primary: e.log, secondary: e.out, log: s.log.With("server", e.name)}
	}
	e.frozen = false
	e.setStateLocked(StateStarting)
	spec := process.Spec{
		Name:         e.name,
		Command:      s.opts.interpreter(e.kind),
		Args:         []string{e.path},
		WorkDir:      filepath.Dir(e.path),
		Env:          s.serverEnv(e.kind),
		RunID:        runID,
		Output:       out,
		DrainTimeout: s.opts.DrainTimeout,
	}
	e.mu.Unlock()

	h, err := process.Spawn(spec)

	e.mu.Lock()
	if err != nil {
		e.setStateLocked(StateStopped)
		e.mu.Unlock()
		e.log.Mark("[devsrv] spawn failed: " + err.Error())
		metrics.IncSpawnFailure(e.name)
		s.log.Error("spawn failed", "server", e.name, "command", spec.Command, "error", err)
		return &SpawnError{Name: e.name, Err: err}
	}
	done := make(chan struct{})
	e.proc = h
	e.runDone = done
	e.startedAt = h.StartedAt()
	e.setStateLocked(StateRunning)
	restarts := e.restarts
	e.run = history.Run{
		Name:      e.name,
		Kind:      string(e.kind),
		RunID:     runID,
		PID:       h.PID(),
		Trigger:   mode.trigger(),
		Attempt:   restarts,
		StartedAt: e.startedAt,
	}
	run := e.run
	e.mu.Unlock()

	s.hist.Record(history.Event{Type: history.EventStart, OccurredAt: run.StartedAt, Run: run})

	metrics.IncStart(e.name)
	s.log.Info("server started", "server", e.name, "pid", h.PID(), "run_id", runID, "restarts", restarts)
	go s.watchExit(e, h, done)
	return nil
}

func (s *Supervisor) serverEnv(k Kind) []string {
	env := append([]string(nil), s.opts.Env...)
	if k == KindPython {
		env = append(env, "PYTHONUNBUFFERED=1")
	}
	return env
}

func markerLine(mode startMode, name, runID string, restarts, limit int) string {
	switch mode {
	case startAuto:
		return fmt.Sprintf("[devsrv] ---- auto-restart %d/%d of %s (run %s) ----", restarts, limit, name, runID)
	case startRestart:
		return fmt.Sprintf("[devsrv] ---- restart of %s (run %s) ----", name, runID)
	default:
		return fmt.Sprintf("[devsrv] ---- start of %s (run %s) ----", name, runID)
	}
}

// stopLocked brings the entry to Stopped. Callers hold e.opMu.
func (s *Supervisor) stopLocked(e *entry) error {
	e.mu.Lock()
	switch e.state {
	case StateStopped:
		e.mu.Unlock()
		return nil
	case StateCrashed:
		// no process attached; cancel the pending restart
		e.gen++
		e.restarts = 0
		e.frozen = true
		e.setStateLocked(StateStopped)
		e.mu.Unlock()
		metrics.IncStop(e.name)
		return nil
	}
	h, done := e.proc, e.runDone
	e.gen++
	if h == nil {
		e.setStateLocked(StateStopped)
		e.mu.Unlock()
		return nil
	}
	e.setStateLocked(StateStopping)
	e.mu.Unlock()

	s.log.Info("stopping server", "server", e.name, "pid", h.PID(), "grace", s.opts.GraceTimeout)
	if err := h.SignalStop(s.opts.GraceTimeout); err != nil {
		s.log.Error("stop failed", "server", e.name, "error", err)
		return fmt.Errorf("stop %s: %w", e.name, err)
	}
	// The crash watcher performs Stopping -> Stopped once it sees the exit.
	select {
	case <-done:
	case <-time.After(s.opts.GraceTimeout + 5*time.Second):
		return fmt.Errorf("stop %s: exit not observed", e.name)
	}
	metrics.IncStop(e.name)
	return nil
}

// teeWriter feeds the log buffer and an output file. File errors are
// reported once and never stop the buffer from receiving output.
type teeWriter struct {
	primary   io.Writer
	secondary io.Writer
	log       *slog.Logger
	failed    bool
}

func (t *teeWriter) Write(p []byte) (int, error) {
	n, err := t.primary.Write(p)
	if err != nil {
		return n, err
	}
	if !t.failed {
		if _, err := t.secondary.Write(p); err != nil {
			t.failed = true
			t.log.Warn("output file write failed", "error", err)
		}
	}
	return len(p), nil
}
