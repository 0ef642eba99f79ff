// Package file implements a registry stored in a single JSON or YAML file.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/loykin/devsrv/internal/registry"
)

// Format selects the on-disk encoding.
type Format int

const (
	JSON Format = iota
	YAML
)

// FormatFor picks the encoding from the file extension. Anything that is not
// .yaml or .yml is JSON.
func FormatFor(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return YAML
	default:
		return JSON
	}
}

// diskRecord allows auto_restart to be absent, which means true.
type diskRecord struct {
	Name        string `json:"name" yaml:"name"`
	Path        string `json:"path" yaml:"path"`
	Kind        string `json:"type" yaml:"type"`
	AutoRestart *bool  `json:"auto_restart,omitempty" yaml:"auto_restart,omitempty"`
	Monitoring  bool   `json:"monitor" yaml:"monitor"`
}

// Store is a file-backed registry. The whole file is rewritten on every
// change through a temp file and rename.
type Store struct {
	path   string
	format Format
	mu     sync.Mutex
}

// New returns a Store for path. The file is created on first save.
func New(path string) (*Store, error) {
	p := strings.TrimSpace(path)
	if p == "" {
		return nil, errors.New("empty registry path")
	}
	return &Store{path: p, format: FormatFor(p)}, nil
}

// Path returns the backing file path.
func (s *Store) Path() string { return s.path }

func (s *Store) LoadAll(context.Context) ([]registry.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read()
}

func (s *Store) Save(_ context.Context, rec registry.Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	recs, err := s.read()
	if err != nil {
		return err
	}
	return s.write(registry.Upsert(recs, rec))
}

func (s *Store) Delete(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	recs, err := s.read()
	if err != nil {
		return err
	}
	recs, ok := registry.Remove(recs, name)
	if !ok {
		return registry.ErrNotFound
	}
	return s.write(recs)
}

func (s *Store) Close() error { return nil }

func (s *Store) read() ([]registry.Record, error) {
	b, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read registry %s: %w", s.path, err)
	}
	if len(strings.TrimSpace(string(b))) == 0 {
		return nil, nil
	}
	var disk []diskRecord
	switch s.format {
	case YAML:
		err = yaml.Unmarshal(b, &disk)
	default:
		err = json.Unmarshal(b, &disk)
	}
	if err != nil {
		return nil, fmt.Errorf("decode registry %s: %w", s.path, err)
	}
	out := make([]registry.Record, 0, len(disk))
	for _, d := range disk {
		auto := true
		if d.AutoRestart != nil {
			auto = *d.AutoRestart
		}
		out = append(out, registry.Record{
			Name:        d.Name,
			Kind:        d.Kind,
			Path:        d.Path,
			AutoRestart: auto,
			Monitoring:  d.Monitoring,
		})
	}
	return out, nil
}

func (s *Store) write(recs []registry.Record) error {
	disk := make([]diskRecord, 0, len(recs))
	for _, r := range recs {
		auto := r.AutoRestart
		disk = append(disk, diskRecord{
			Name:        r.Name,
			Path:        r.Path,
			Kind:        r.Kind,
			AutoRestart: &auto,
			Monitoring:  r.Monitoring,
		})
	}
	var (
		b   []byte
		err error
	)
	switch s.format {
	case YAML:
		b, err = yaml.Marshal(disk)
	default:
		b, err = json.MarshalIndent(disk, "", "    ")
	}
	if err != nil {
		return fmt.Errorf("encode registry: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create registry dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".registry-*")
	if err != nil {
		return fmt.Errorf("create temp registry: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write temp registry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace registry: %w", err)
	}
	return nil
}
