package supervisor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/loykin/devsrv/internal/metrics"
	"github.com/loykin/devsrv/internal/registry"
	"github.com/loykin/devsrv/pkg/template"
)

// Create scaffolds servers_dir/<name>/<name><ext> from a template and
// registers it Stopped. kind is py|python, node|js, python-http, node-http,
// or any other extension, which runs under node.
func (s *Supervisor) Create(ctx context.Context, name, kind string) (Status, error) {
	if s.closed.Load() {
		return Status{}, ErrClosed
	}
	if !IsSafeName(name) {
		return Status{}, fmt.Errorf("%q: %w", name, ErrInvalidName)
	}
	f, err := template.NewGenerator().Generate(template.TemplateType(kind), name)
	if err != nil {
		return Status{}, fmt.Errorf("%w: %v", ErrInvalidName, err)
	}

	if err := s.reserve(name); err != nil {
		return Status{}, err
	}
	defer s.release(name)
	dir := filepath.Join(s.opts.ServersDir, name)
	if _, err := os.Stat(dir); err == nil {
		return Status{}, fmt.Errorf("%s: folder %s already exists: %w", name, dir, ErrDuplicateName)
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return Status{}, fmt.Errorf("create %s: %w", dir, err)
	}
	path := filepath.Join(dir, f.FileName)
	if err := os.WriteFile(path, []byte(f.Content), 0o644); err != nil { // #nosec G306 -- source file
		_ = os.RemoveAll(dir)
		return Status{}, fmt.Errorf("write %s: %w", path, err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	rec := registry.Record{Name: name, Kind: f.Kind, Path: abs, AutoRestart: true}
	if err := s.reg.Save(ctx, rec); err != nil {
		_ = os.RemoveAll(dir)
		return Status{}, fmt.Errorf("save %s: %w", name, err)
	}
	e := s.insert(rec)
	s.log.Info("server created", "server", name, "type", f.Kind, "path", abs)
	return e.status(), nil
}

// Add registers an existing .py, .js, .mjs or .cjs file. The name is the
// file name without extension.
func (s *Supervisor) Add(ctx context.Context, path string) (Status, error) {
	if s.closed.Load() {
		return Status{}, ErrClosed
	}
	abs, err := filepath.Abs(strings.TrimSpace(path))
	if err != nil {
		return Status{}, fmt.Errorf("%s: %w", path, ErrInvalidPath)
	}
	fi, err := os.Stat(abs)
	if err != nil {
		return Status{}, fmt.Errorf("%s: file does not exist: %w", path, ErrInvalidPath)
	}
	if !fi.Mode().IsRegular() {
		return Status{}, fmt.Errorf("%s: not a regular file: %w", path, ErrInvalidPath)
	}
	ext := filepath.Ext(abs)
	kind, ok := KindForExt(strings.ToLower(ext))
	if !ok {
		return Status{}, fmt.Errorf("%s: unsupported file type %q: %w", path, ext, ErrInvalidPath)
	}
	name := strings.TrimSuffix(filepath.Base(abs), ext)
	if !IsSafeName(name) {
		return Status{}, fmt.Errorf("%q: %w", name, ErrInvalidName)
	}

	if err := s.reserve(name); err != nil {
		return Status{}, err
	}
	defer s.release(name)
	rec := registry.Record{Name: name, Kind: string(kind), Path: abs, AutoRestart: true}
	if err := s.reg.Save(ctx, rec); err != nil {
		return Status{}, fmt.Errorf("save %s: %w", name, err)
	}
	e := s.insert(rec)
	s.log.Info("server added", "server", name, "type", kind, "path", abs)
	return e.status(), nil
}

// reserve claims name for a Create or Add in progress so the file and
// registry work can run without holding s.mu.
func (s *Supervisor) reserve(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[name]; ok {
		return fmt.Errorf("%s: %w", name, ErrDuplicateName)
	}
	if _, ok := s.pending[name]; ok {
		return fmt.Errorf("%s: %w", name, ErrDuplicateName)
	}
	if s.pending == nil {
		s.pending = make(map[string]struct{})
	}
	s.pending[name] = struct{}{}
	return nil
}

func (s *Supervisor) release(name string) {
	s.mu.Lock()
	delete(s.pending, name)
	s.mu.Unlock()
}

func (s *Supervisor) insert(rec registry.Record) *entry {
	e := newEntry(rec, s.opts.LogLines)
	s.mu.Lock()
	s.entries[rec.Name] = e
	s.order = append(s.order, rec.Name)
	s.mu.Unlock()
	if s.watcher != nil {
		if err := s.watcher.Add(rec.Name, rec.Path); err != nil {
			s.log.Warn("cannot watch server file", "server", rec.Name, "error", err)
		}
	}
	return e
}

// Delete stops the server if it runs, then removes it with its log buffer
// from the supervisor and the registry. The entry file is left on disk.
func (s *Supervisor) Delete(ctx context.Context, name string) error {
	e, err := s.lookup(name)
	if err != nil {
		return err
	}
	e.opMu.Lock()
	defer e.opMu.Unlock()
	if err := s.stopLocked(e); err != nil {
		return err
	}

	e.mu.Lock()
	if e.removed {
		e.mu.Unlock()
		return fmt.Errorf("%s: %w", name, ErrNotFound)
	}
	e.removed = true
	e.gen++
	out := e.out
	e.out = nil
	e.mu.Unlock()

	s.mu.Lock()
	delete(s.entries, name)
	for i, n := range s.order {
		if n == name {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.mu.Unlock()
	if s.watcher != nil {
		s.watcher.Remove(name)
	}

	e.log.Clear()
	if out != nil {
		_ = out.Close()
	}
	metrics.Forget(name)

	if err := s.reg.Delete(ctx, name); err != nil && !errors.Is(err, registry.ErrNotFound) {
		s.log.Error("registry delete failed", "server", name, "error", err)
		return fmt.Errorf("delete %s: %w", name, err)
	}
	s.log.Info("server deleted", "server", name)
	return nil
}
