package supervisor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/loykin/devsrv/internal/metrics"
	"github.com/loykin/devsrv/internal/sampler"
)

func (s *Supervisor) monitorLoop(ctx context.Context) {
	t := time.NewTicker(s.opts.SampleInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.sampleMonitored(ctx)
		}
	}
}

// sampleMonitored takes one sample of every Running entry with monitoring
// enabled. Lookup failures become an invalid sample.
func (s *Supervisor) sampleMonitored(ctx context.Context) {
	for _, e := range s.snapshotEntries() {
		e.mu.Lock()
		h := e.proc
		ok := e.monitoring && e.state == StateRunning && h != nil
		e.mu.Unlock()
		if !ok {
			continue
		}

		sm, err := s.smp.Sample(ctx, h.PID())
		if err != nil {
			if !errors.Is(err, sampler.ErrUnavailable) {
				s.log.Debug("sample failed", "server", e.name, "error", err)
			}
			sm = sampler.Sample{PID: h.PID(), Timestamp: time.Now()}
		}

		// the run may have ended while sampling
		e.mu.Lock()
		still := e.proc == h && e.monitoring
		if still {
			e.sample.Store(&sm)
		}
		e.mu.Unlock()
		if still && sm.Valid {
			metrics.SetUsage(e.name, sm.CPUPercent, sm.MemoryMB)
		}
	}
}

func (s *Supervisor) clearSample(e *entry) {
	e.sample.Store(nil)
	metrics.ClearUsage(e.name)
}

// Usage samples a running server on demand. When the OS cannot report, or
// this is the first reading of the process, the sample is returned with
// Valid false rather than an error.
func (s *Supervisor) Usage(ctx context.Context, name string) (sampler.Sample, error) {
	e, err := s.lookup(name)
	if err != nil {
		return sampler.Sample{}, err
	}
	e.mu.Lock()
	h := e.proc
	running := e.state == StateRunning && h != nil
	e.mu.Unlock()
	if !running {
		return sampler.Sample{}, fmt.Errorf("%s: %w", name, ErrNotRunning)
	}
	sm, err := s.smp.Sample(ctx, h.PID())
	if errors.Is(err, sampler.ErrUnavailable) {
		return sampler.Sample{PID: h.PID(), Timestamp: time.Now()}, nil
	}
	if err != nil {
		return sampler.Sample{}, err
	}
	return sm, nil
}
