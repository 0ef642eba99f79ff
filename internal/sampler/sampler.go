// Package sampler reads CPU and memory usage of running processes.
package sampler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

// ErrUnavailable is returned when the OS cannot report on a pid. Callers
// treat it as missing data, not as a failure.
var ErrUnavailable = errors.New("sample unavailable")

// Sample is one CPU/memory observation. Valid is false for the first
// observation of a pid, since CPU percent is a rate over two readings.
type Sample struct {
	PID        int       `json:"pid"`
	CPUPercent float64   `json:"cpu_percent"`
	MemoryMB   float64   `json:"memory_mb"`
	Valid      bool      `json:"valid"`
	Timestamp  time.Time `json:"timestamp"`
}

// Sampler produces samples for live pids.
type Sampler interface {
	Sample(ctx context.Context, pid int) (Sample, error)
	// Forget drops any per-pid state once the process has exited.
	Forget(pid int)
}

// Gopsutil is a Sampler backed by gopsutil. It keeps one process handle per
// pid so that successive CPU readings are measured against the previous one.
type Gopsutil struct {
	mu    sync.Mutex
	procs map[int]*process.Process
}

// New returns a gopsutil-backed Sampler.
func New() *Gopsutil {
	return &Gopsutil{procs: make(map[int]*process.Process)}
}

// Sample implements Sampler.
func (g *Gopsutil) Sample(ctx context.Context, pid int) (Sample, error) {
	if pid <= 0 {
		return Sample{}, fmt.Errorf("pid %d: %w", pid, ErrUnavailable)
	}
	g.mu.Lock()
	p, primed := g.procs[pid]
	if !primed {
		np, err := process.NewProcessWithContext(ctx, int32(pid)) // #nosec G115 -- pids fit in int32
		if err != nil {
			g.mu.Unlock()
			slog.Debug("process lookup failed", "pid", pid, "error", err)
			return Sample{}, fmt.Errorf("pid %d: %w", pid, ErrUnavailable)
		}
		p = np
		g.procs[pid] = p
	}
	g.mu.Unlock()

	s := Sample{PID: pid, Timestamp: time.Now()}
	cpu, err := p.PercentWithContext(ctx, 0)
	if err != nil {
		slog.Debug("failed to get CPU percent", "pid", pid, "error", err)
		g.Forget(pid)
		return Sample{}, fmt.Errorf("pid %d: %w", pid, ErrUnavailable)
	}
	mem, err := p.MemoryInfoWithContext(ctx)
	if err != nil {
		slog.Debug("failed to get memory info", "pid", pid, "error", err)
		g.Forget(pid)
		return Sample{}, fmt.Errorf("pid %d: %w", pid, ErrUnavailable)
	}
	s.MemoryMB = float64(mem.RSS) / 1024 / 1024
	if primed {
		s.CPUPercent = cpu
		s.Valid = true
	}
	return s, nil
}

// Forget implements Sampler.
func (g *Gopsutil) Forget(pid int) {
	g.mu.Lock()
	delete(g.procs, pid)
	g.mu.Unlock()
}
