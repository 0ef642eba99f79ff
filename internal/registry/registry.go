// Package registry persists the configuration of known servers.
//
// The registry is only the source of known servers and their settings. Live
// state is never stored; after a daemon restart every entry starts Stopped.
package registry

import (
	"context"
	"errors"
	"strings"
	"sync"
)

// ErrNotFound is returned by Delete when no record has the given name.
var ErrNotFound = errors.New("registry: record not found")

// Record is the persisted summary of one server entry.
type Record struct {
	Name        string `json:"name" yaml:"name"`
	Kind        string `json:"type" yaml:"type"`
	Path        string `json:"path" yaml:"path"`
	AutoRestart bool   `json:"auto_restart" yaml:"auto_restart"`
	Monitoring  bool   `json:"monitor" yaml:"monitor"`
}

// Validate checks the fields every backend relies on.
func (r Record) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return errors.New("registry: record name is empty")
	}
	if strings.TrimSpace(r.Path) == "" {
		return errors.New("registry: record path is empty")
	}
	return nil
}

// Registry loads and saves server records. LoadAll returns records in the
// order they were first saved; Save of an existing name updates it in place.
type Registry interface {
	LoadAll(ctx context.Context) ([]Record, error)
	Save(ctx context.Context, rec Record) error
	Delete(ctx context.Context, name string) error
	Close() error
}

// Memory is a Registry that keeps records in process memory.
type Memory struct {
	mu   sync.Mutex
	recs []Record
}

// NewMemory returns an empty in-memory registry.
func NewMemory() *Memory { return &Memory{} }

func (m *Memory) LoadAll(context.Context) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Record, len(m.recs))
	copy(out, m.recs)
	return out, nil
}

func (m *Memory) Save(_ context.Context, rec Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recs = Upsert(m.recs, rec)
	return nil
}

func (m *Memory) Delete(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	recs, ok := Remove(m.recs, name)
	if !ok {
		return ErrNotFound
	}
	m.recs = recs
	return nil
}

func (m *Memory) Close() error { return nil }

// Upsert replaces the record with the same name or appends rec.
func Upsert(recs []Record, rec Record) []Record {
	for i := range recs {
		if recs[i].Name == rec.Name {
			recs[i] = rec
			return recs
		}
	}
	return append(recs, rec)
}

// Remove drops the record with the given name.
func Remove(recs []Record, name string) ([]Record, bool) {
	for i := range recs {
		if recs[i].Name == name {
			return append(recs[:i], recs[i+1:]...), true
		}
	}
	return recs, false
}
