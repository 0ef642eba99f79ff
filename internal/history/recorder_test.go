package history

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memSink struct {
	mu     sync.Mutex
	events []Event
	block  chan struct{}
	err    error
}

func (m *memSink) Send(ctx context.Context, e Event) error {
	if m.block != nil {
		select {
		case <-m.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	return m.err
}

func (m *memSink) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

func TestRecorderDeliversToEverySink(t *testing.T) {
	a, b := &memSink{}, &memSink{err: errors.New("down")}
	r := NewRecorder(nil, a, b)

	require.True(t, r.Record(Event{Type: EventStart, Run: Run{Name: "web", RunID: "1"}}))
	require.True(t, r.Record(Event{Type: EventExit, Run: Run{Name: "web", RunID: "1", Outcome: OutcomeCrashed}}))
	require.NoError(t, r.Close(context.Background()))

	assert.Equal(t, 2, a.len())
	assert.Equal(t, 2, b.len(), "a failing sink still receives every event")
	assert.Equal(t, EventExit, a.events[1].Type)
	assert.False(t, a.events[0].OccurredAt.IsZero())
}

func TestRecorderDropsWhenFull(t *testing.T) {
	s := &memSink{block: make(chan struct{})}
	r := NewRecorder(nil, s)

	accepted := 0
	for i := 0; i < DefaultQueueSize+10; i++ {
		if r.Record(Event{Type: EventStart}) {
			accepted++
		}
	}
	assert.Greater(t, r.Dropped(), uint64(0))
	assert.Equal(t, uint64(DefaultQueueSize+10-accepted), r.Dropped())

	close(s.block)
	require.NoError(t, r.Close(context.Background()))
	assert.Equal(t, accepted, s.len())
}

func TestRecorderClose(t *testing.T) {
	s := &memSink{block: make(chan struct{})}
	r := NewRecorder(nil, s)
	require.True(t, r.Record(Event{Type: EventStart}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, r.Close(ctx), context.DeadlineExceeded)
	assert.False(t, r.Record(Event{Type: EventStart}), "closed recorder rejects events")

	close(s.block)
	require.NoError(t, r.Close(context.Background()))
	assert.Equal(t, 1, s.len())
}

func TestNilRecorder(t *testing.T) {
	r := NewRecorder(nil)
	assert.Nil(t, r)
	assert.False(t, r.Record(Event{}))
	assert.Zero(t, r.Dropped())
	assert.NoError(t, r.Close(context.Background()))
}
