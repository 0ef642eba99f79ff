package history

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

const (
	DefaultQueueSize   = 256
	DefaultSendTimeout = 5 * time.Second
)

// Recorder delivers events to its sinks from a single goroutine so that a
// slow sink never holds up the supervisor. When the queue is full the event
// is dropped and counted. A nil *Recorder accepts and discards everything.
type Recorder struct {
	sinks   []Sink
	log     *slog.Logger
	timeout time.Duration

	mu      sync.RWMutex
	closed  bool
	queue   chan Event
	done    chan struct{}
	dropped atomic.Uint64
}

// NewRecorder starts delivering to sinks. It returns nil when there are no
// sinks.
func NewRecorder(log *slog.Logger, sinks ...Sink) *Recorder {
	if len(sinks) == 0 {
		return nil
	}
	if log == nil {
		log = slog.Default()
	}
	r := &Recorder{
		sinks:   append([]Sink(nil), sinks...),
		log:     log,
		timeout: DefaultSendTimeout,
		queue:   make(chan Event, DefaultQueueSize),
		done:    make(chan struct{}),
	}
	go r.run()
	return r
}

// Record queues e for delivery and reports whether it was accepted.
func (r *Recorder) Record(e Event) bool {
	if r == nil {
		return false
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return false
	}
	select {
	case r.queue <- e:
		return true
	default:
		if n := r.dropped.Add(1); n == 1 || n%100 == 0 {
			r.log.Warn("history queue full, dropping events", "dropped", n)
		}
		return false
	}
}

// Dropped returns how many events were discarded because the queue was full.
func (r *Recorder) Dropped() uint64 {
	if r == nil {
		return 0
	}
	return r.dropped.Load()
}

// Close stops accepting events and waits until the queued ones are
// delivered or ctx ends.
func (r *Recorder) Close(ctx context.Context) error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.queue)
	}
	r.mu.Unlock()
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Recorder) run() {
	defer close(r.done)
	for e := range r.queue {
		for _, s := range r.sinks {
			ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
			if err := s.Send(ctx, e); err != nil {
				r.log.Warn("history sink failed", "server", e.Run.Name, "event", e.Type, "error", err)
			}
			cancel()
		}
	}
}
