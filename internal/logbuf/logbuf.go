// Package logbuf keeps the most recent lines of a process's combined output.
//
// A Buffer has a single writer (the process output reader) and any number
// of readers. Every line gets a sequence number that keeps increasing across
// Clear, so incremental readers can resume with Since and Wait.
package logbuf

import (
	"context"
	"strings"
	"sync"
	"time"
)

const (
	// DefaultMaxLines is the retained line count when none is configured.
	DefaultMaxLines = 1000
	// maxPartial caps an unterminated line before it is forced out.
	maxPartial = 64 * 1024
)

// Line is one captured output line.
type Line struct {
	Seq  uint64    `json:"seq"`
	Time time.Time `json:"time"`
	Text string    `json:"text"`
}

// Buffer is a bounded ring of output lines.
type Buffer struct {
	mu      sync.RWMutex
	lines   []Line
	start   int // index of the oldest line
	count   int
	max     int
	seq     uint64
	partial []byte
	notify  chan struct{}
}

// New returns a Buffer retaining at most max lines.
func New(max int) *Buffer {
	if max <= 0 {
		max = DefaultMaxLines
	}
	return &Buffer{
		lines:  make([]Line, max),
		max:    max,
		notify: make(chan struct{}),
	}
}

// Write appends a chunk of output. Complete lines are stored immediately;
// a trailing partial line is held until its newline arrives or Flush.
func (b *Buffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	data := p
	added := false
	for len(data) > 0 {
		i := indexNewline(data)
		if i < 0 {
			b.partial = append(b.partial, data...)
			if len(b.partial) >= maxPartial {
				b.appendLocked(string(b.partial))
				b.partial = b.partial[:0]
				added = true
			}
			break
		}
		var text string
		if len(b.partial) > 0 {
			text = string(append(b.partial, data[:i]...))
			b.partial = b.partial[:0]
		} else {
			text = string(data[:i])
		}
		b.appendLocked(strings.TrimSuffix(text, "\r"))
		added = true
		data = data[i+1:]
	}
	if added {
		b.wakeLocked()
	}
	return len(p), nil
}

func indexNewline(p []byte) int {
	for i, c := range p {
		if c == '\n' {
			return i
		}
	}
	return -1
}

// Flush stores any held partial line.
func (b *Buffer) Flush() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.partial) == 0 {
		return
	}
	b.appendLocked(strings.TrimSuffix(string(b.partial), "\r"))
	b.partial = b.partial[:0]
	b.wakeLocked()
}

// Mark appends a marker line, flushing any held partial line first.
func (b *Buffer) Mark(text string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.partial) > 0 {
		b.appendLocked(string(b.partial))
		b.partial = b.partial[:0]
	}
	b.appendLocked(text)
	b.wakeLocked()
}

func (b *Buffer) appendLocked(text string) {
	b.seq++
	l := Line{Seq: b.seq, Time: time.Now(), Text: text}
	if b.count < b.max {
		b.lines[(b.start+b.count)%b.max] = l
		b.count++
		return
	}
	b.lines[b.start] = l
	b.start = (b.start + 1) % b.max
}

func (b *Buffer) wakeLocked() {
	close(b.notify)
	b.notify = make(chan struct{})
}

// Lines returns a copy of the retained lines, oldest first.
func (b *Buffer) Lines() []Line {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.sinceLocked(0)
}

// Snapshot returns the retained line texts, oldest first.
func (b *Buffer) Snapshot() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]string, 0, b.count)
	for i := 0; i < b.count; i++ {
		out = append(out, b.lines[(b.start+i)%b.max].Text)
	}
	return out
}

// Since returns retained lines with a sequence number greater than seq and
// the sequence number to pass on the next call.
func (b *Buffer) Since(seq uint64) ([]Line, uint64) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.sinceLocked(seq), b.seq
}

func (b *Buffer) sinceLocked(seq uint64) []Line {
	out := make([]Line, 0, b.count)
	for i := 0; i < b.count; i++ {
		l := b.lines[(b.start+i)%b.max]
		if l.Seq > seq {
			out = append(out, l)
		}
	}
	return out
}

// Wait blocks until a line newer than seq exists or ctx is done.
func (b *Buffer) Wait(ctx context.Context, seq uint64) error {
	for {
		b.mu.RLock()
		cur, ch := b.seq, b.notify
		b.mu.RUnlock()
		if cur > seq {
			return nil
		}
		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Clear drops all retained lines and any held partial line. Sequence numbers
// are not reset.
func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.lines {
		b.lines[i] = Line{}
	}
	b.start, b.count = 0, 0
	b.partial = b.partial[:0]
	b.wakeLocked()
}

// Len returns the number of retained lines.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.count
}

// Max returns the retention limit.
func (b *Buffer) Max() int { return b.max }

// Seq returns the sequence number of the newest line ever written.
func (b *Buffer) Seq() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.seq
}
