package supervisor

import (
	"log/slog"
	"time"

	"github.com/loykin/devsrv/internal/history"
	"github.com/loykin/devsrv/internal/logger"
	"github.com/loykin/devsrv/internal/registry"
	"github.com/loykin/devsrv/internal/sampler"
)

// LogPolicy decides what happens to a server's log buffer when it is
// restarted, automatically or by Restart.
type LogPolicy string

const (
	LogAppend LogPolicy = "append" // keep lines and add a marker
	LogClear  LogPolicy = "clear"  // drop previous lines
)

const (
	DefaultMaxRestarts    = 3
	DefaultRestartBackoff = time.Second
	DefaultGraceTimeout   = 5 * time.Second
	DefaultSampleInterval = 2 * time.Second
	DefaultServersDir     = "servers"
)

// Options configures a Supervisor. Zero values take the defaults above;
// Registry defaults to an in-memory registry and Sampler to gopsutil.
type Options struct {
	Registry registry.Registry
	Sampler  sampler.Sampler
	Logger   *slog.Logger

	MaxRestarts    int
	RestartBackoff time.Duration
	GraceTimeout   time.Duration
	SampleInterval time.Duration
	DrainTimeout   time.Duration
	LogLines       int
	LogOnRestart   LogPolicy

	// ServersDir is where Create scaffolds new servers.
	ServersDir string
	// Python and Node are the interpreters for each kind.
	Python string
	Node   string
	// Env is appended to the daemon environment for every server.
	Env []string
	// Output enables per-server output files.
	Output logger.OutputConfig
	// History receives a start and an exit event for every run.
	History []history.Sink
	// ReloadOnChange restarts a running server when its file changes.
	ReloadOnChange bool
	ReloadDebounce time.Duration
}

func (o Options) withDefaults() Options {
	if o.Registry == nil {
		o.Registry = registry.NewMemory()
	}
	if o.Sampler == nil {
		o.Sampler = sampler.New()
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.MaxRestarts <= 0 {
		o.MaxRestarts = DefaultMaxRestarts
	}
	if o.RestartBackoff <= 0 {
		o.RestartBackoff = DefaultRestartBackoff
	}
	if o.GraceTimeout <= 0 {
		o.GraceTimeout = DefaultGraceTimeout
	}
	if o.SampleInterval <= 0 {
		o.SampleInterval = DefaultSampleInterval
	}
	if o.LogOnRestart == "" {
		o.LogOnRestart = LogAppend
	}
	if o.ServersDir == "" {
		o.ServersDir = DefaultServersDir
	}
	if o.Python == "" {
		o.Python = "python3"
	}
	if o.Node == "" {
		o.Node = "node"
	}
	return o
}

func (o Options) interpreter(k Kind) string {
	if k == KindPython {
		return o.Python
	}
	return o.Node
}
