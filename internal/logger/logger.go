package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

// Default rotation constants
const (
	DefaultMaxSizeMB  = 10 // MB
	DefaultMaxBackups = 3  // number of backup files
	DefaultMaxAgeDays = 7  // days
)

// Output formats
const (
	FormatColor = "color"
	FormatText  = "text"
	FormatJSON  = "json"
)

// Rotation holds lumberjack parameters shared by the daemon log and the
// per-server output files.
type Rotation struct {
	MaxSizeMB  int  `mapstructure:"max_size_mb" json:"max_size_mb"`
	MaxBackups int  `mapstructure:"max_backups" json:"max_backups"`
	MaxAgeDays int  `mapstructure:"max_age_days" json:"max_age_days"`
	Compress   bool `mapstructure:"compress" json:"compress"`
}

func (r Rotation) writer(path string) *lj.Logger {
	return &lj.Logger{
		Filename:   path,
		MaxSize:    valOr(r.MaxSizeMB, DefaultMaxSizeMB),
		MaxBackups: valOr(r.MaxBackups, DefaultMaxBackups),
		MaxAge:     valOr(r.MaxAgeDays, DefaultMaxAgeDays),
		Compress:   r.Compress,
	}
}

// Config describes the daemon's own log.
// When File is empty the log goes to the given console writer.
type Config struct {
	Level    string `mapstructure:"level" json:"level"`
	Format   string `mapstructure:"format" json:"format"`
	File     string `mapstructure:"file" json:"file"`
	Rotation `mapstructure:",squash"`
}

// ParseLevel maps a level name to slog.Level. Unknown names are an error.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
}

// New builds a logger from cfg. The returned closer releases the log file,
// if any; it is never nil.
func New(cfg Config, console io.Writer) (*slog.Logger, io.Closer, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, err
	}
	if console == nil {
		console = os.Stderr
	}
	var (
		w      = console
		closer io.Closer = nopCloser{}
	)
	if cfg.File != "" {
		lw := cfg.Rotation.writer(cfg.File)
		w, closer = lw, lw
	}
	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler
	switch strings.ToLower(cfg.Format) {
	case FormatJSON:
		h = slog.NewJSONHandler(w, opts)
	case FormatText:
		h = slog.NewTextHandler(w, opts)
	case "", FormatColor:
		// color codes only make sense on a terminal
		if cfg.File != "" {
			h = slog.NewTextHandler(w, opts)
		} else {
			h = NewColorTextHandler(w, opts)
		}
	default:
		return nil, nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}
	return slog.New(h), closer, nil
}

// OutputConfig controls the per-server output files. Each server writes to
// Dir/<name>.log; an empty Dir disables the files.
type OutputConfig struct {
	Dir      string `mapstructure:"dir" json:"dir"`
	Rotation `mapstructure:",squash"`
}

// Enabled reports whether output files are configured.
func (c OutputConfig) Enabled() bool { return c.Dir != "" }

// Path returns the output file path for a server.
func (c OutputConfig) Path(name string) string {
	return filepath.Join(c.Dir, name+".log")
}

// Writer returns a rotating writer for the named server, or nil when output
// files are disabled.
func (c OutputConfig) Writer(name string) *lj.Logger {
	if !c.Enabled() {
		return nil
	}
	return c.Rotation.writer(c.Path(name))
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func valOr(v int, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
