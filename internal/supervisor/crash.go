package supervisor

import (
	"fmt"
	"time"

	"github.com/loykin/devsrv/internal/history"
	"github.com/loykin/devsrv/internal/metrics"
	"github.com/loykin/devsrv/internal/process"
)

// watchExit is the only path that observes a run ending. One goroutine runs
// per spawned process; it decides under e.mu whether the exit was requested
// (Stopping) or a crash, and applies the restart policy.
func (s *Supervisor) watchExit(e *entry, h *process.Handle, done chan struct{}) {
	defer close(done)
	info := h.Wait()
	s.smp.Forget(h.PID())

	e.mu.Lock()
	if e.proc != h {
		e.mu.Unlock()
		return
	}
	e.proc = nil
	e.lastExit = &info
	e.sample.Store(nil)
	name := e.name
	outcome := history.OutcomeCrashed
	if e.state == StateStopping {
		outcome = history.OutcomeStopped
	}
	s.recordExit(e.run, info, outcome)

	if e.state == StateStopping {
		e.restarts = 0
		e.frozen = true
		e.setStateLocked(StateStopped)
		e.mu.Unlock()
		metrics.ClearUsage(name)
		s.log.Info("server stopped", "server", name, "exit", info.String())
		return
	}

	e.setStateLocked(StateCrashed)
	e.log.Mark(fmt.Sprintf("[devsrv] %s exited unexpectedly (%s)", name, info))
	metrics.IncCrash(name)
	metrics.ClearUsage(name)

	if !e.autoRestart {
		e.setStateLocked(StateStopped)
		e.mu.Unlock()
		s.log.Warn("server crashed", "server", name, "exit", info.String(), "auto_restart", false)
		return
	}
	if e.restarts >= s.opts.MaxRestarts {
		restarts := e.restarts
		e.setStateLocked(StateStopped)
		e.log.Mark(fmt.Sprintf("[devsrv] giving up on %s after %d restarts", name, restarts))
		e.mu.Unlock()
		metrics.IncGiveUp(name)
		s.log.Error("restart limit reached, giving up", "server", name, "restarts", restarts, "exit", info.String())
		return
	}
	gen := e.gen
	e.mu.Unlock()

	s.log.Warn("server crashed, scheduling restart", "server", name, "exit", info.String(), "backoff", s.opts.RestartBackoff)
	s.scheduleRestart(e, gen)
}

// scheduleRestart respawns a crashed entry after the backoff, unless an
// operation touched the entry in the meantime.
func (s *Supervisor) scheduleRestart(e *entry, gen uint64) {
	go func() {
		t := time.NewTimer(s.opts.RestartBackoff)
		defer t.Stop()
		select {
		case <-t.C:
		case <-s.ctx.Done():
			return
		}

		e.opMu.Lock()
		defer e.opMu.Unlock()
		if s.closed.Load() {
			return
		}
		e.mu.Lock()
		if e.removed || e.state != StateCrashed || e.gen != gen {
			e.mu.Unlock()
			return
		}
		e.restarts++
		attempt := e.restarts
		e.mu.Unlock()

		metrics.IncRestart(e.name)
		s.log.Info("restarting server", "server", e.name, "attempt", attempt, "max", s.opts.MaxRestarts)
		if err := s.startLocked(e, startAuto); err != nil {
			s.log.Error("automatic restart failed", "server", e.name, "error", err)
		}
	}()
}

func (s *Supervisor) recordExit(run history.Run, info process.ExitInfo, outcome string) {
	run.Outcome = outcome
	run.ExitCode = info.Code
	run.Reason = info.Reason
	s.hist.Record(history.Event{Type: history.EventExit, OccurredAt: info.ExitedAt, Run: run})
}
