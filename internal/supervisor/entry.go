package supervisor

import (
	"sync"
	"sync/atomic"
	"time"

	lj "gopkg.in/natefinch/lumberjack.v2"

	"github.com/loykin/devsrv/internal/history"
	"github.com/loykin/devsrv/internal/logbuf"
	"github.com/loykin/devsrv/internal/metrics"
	"github.com/loykin/devsrv/internal/process"
	"github.com/loykin/devsrv/internal/registry"
	"github.com/loykin/devsrv/internal/sampler"
)

// entry is one registered server.
//
// opMu serializes lifecycle operations (start, stop, restart, delete and the
// automatic restart) so each runs to completion before the next begins. mu
// guards the fields below it and is only held briefly; the crash watcher
// takes mu alone, never opMu.
type entry struct {
	opMu sync.Mutex

	mu          sync.Mutex
	name        string
	kind        Kind
	path        string
	autoRestart bool
	monitoring  bool
	state       State
	proc        *process.Handle
	runDone     chan struct{} // closed once the crash watcher has handled proc's exit
	restarts    int
	lastExit    *process.ExitInfo
	startedAt   time.Time
	gen         uint64 // bumped by every operation; stale restart timers compare it
	frozen      bool   // stopped by request; the next manual start clears the log
	removed     bool
	out         *lj.Logger
	run         history.Run // the current or last run, for history export

	log    *logbuf.Buffer
	sample atomic.Pointer[sampler.Sample]
}

func newEntry(rec registry.Record, lines int) *entry {
	return &entry{
		name:        rec.Name,
		kind:        Kind(rec.Kind),
		path:        rec.Path,
		autoRestart: rec.AutoRestart,
		monitoring:  rec.Monitoring,
		state:       StateStopped,
		log:         logbuf.New(lines),
	}
}

// setStateLocked records a transition. Callers hold e.mu.
func (e *entry) setStateLocked(to State) {
	from := e.state
	if from == to {
		return
	}
	e.state = to
	metrics.RecordStateTransition(e.name, from.String(), to.String())
	metrics.SetCurrentState(e.name, from.String(), false)
	metrics.SetCurrentState(e.name, to.String(), true)
}

func (e *entry) recordLocked() registry.Record {
	return registry.Record{
		Name:        e.name,
		Kind:        string(e.kind),
		Path:        e.path,
		AutoRestart: e.autoRestart,
		Monitoring:  e.monitoring,
	}
}

// Status is a point-in-time view of an entry.
type Status struct {
	Name        string            `json:"name"`
	Kind        Kind              `json:"type"`
	Path        string            `json:"path"`
	State       State             `json:"state"`
	PID         int               `json:"pid,omitempty"`
	RunID       string            `json:"run_id,omitempty"`
	Restarts    int               `json:"restarts"`
	Monitoring  bool              `json:"monitoring"`
	AutoRestart bool              `json:"auto_restart"`
	Sample      *sampler.Sample   `json:"sample,omitempty"`
	LastExit    *process.ExitInfo `json:"last_exit,omitempty"`
	StartedAt   *time.Time        `json:"started_at,omitempty"`
}

func (e *entry) status() Status {
	e.mu.Lock()
	st := Status{
		Name:        e.name,
		Kind:        e.kind,
		Path:        e.path,
		State:       e.state,
		Restarts:    e.restarts,
		Monitoring:  e.monitoring,
		AutoRestart: e.autoRestart,
	}
	if e.proc != nil {
		st.PID = e.proc.PID()
		st.RunID = e.proc.RunID()
		t := e.startedAt
		st.StartedAt = &t
	}
	if e.lastExit != nil {
		x := *e.lastExit
		st.LastExit = &x
	}
	e.mu.Unlock()
	if s := e.sample.Load(); s != nil {
		c := *s
		st.Sample = &c
	}
	return st
}
