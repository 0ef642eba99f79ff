package process

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

var (
	// ErrNotRunning is returned when input is written to a process that has exited.
	ErrNotRunning = errors.New("process is not running")
	// ErrClosed is returned when input is written after CloseInput.
	ErrClosed = errors.New("process input is closed")
	// ErrInputBlocked is returned when a live process does not drain its input in time.
	ErrInputBlocked = errors.New("process input is not being read")
	// ErrStopTimeout is returned when a process survives both the graceful and the forced stop.
	ErrStopTimeout = errors.New("process did not exit after kill")
)

const (
	defaultDrainTimeout = 2 * time.Second
	defaultWriteTimeout = 2 * time.Second
	killWait            = 5 * time.Second
)

// Handle owns one spawned OS process. Standard output and standard error share
// a single pipe that is copied into Spec.Output by one goroutine; a second
// goroutine reaps the process. Done is closed only after both have finished,
// so no goroutine started by Spawn outlives the process.
type Handle struct {
	name      string
	runID     string
	pid       int
	startedAt time.Time

	inMu     sync.Mutex
	stdin    *os.File
	inClosed bool

	out      *os.File
	copyDone chan struct{}

	done chan struct{}
	exit atomic.Pointer[ExitInfo]
}

// Spawn starts the process described by spec. It returns promptly: failures to
// resolve or exec the command are reported as the returned error.
func Spawn(spec Spec) (*Handle, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	cmd := spec.BuildCommand()

	outR, outW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("create output pipe: %w", err)
	}
	inR, inW, err := os.Pipe()
	if err != nil {
		_ = outR.Close()
		_ = outW.Close()
		return nil, fmt.Errorf("create input pipe: %w", err)
	}
	cmd.Stdout = outW
	cmd.Stderr = outW
	cmd.Stdin = inR
	configureSysProcAttr(cmd)

	if err := cmd.Start(); err != nil {
		_ = outR.Close()
		_ = outW.Close()
		_ = inR.Close()
		_ = inW.Close()
		return nil, err
	}
	// The child holds its own copies of these ends.
	_ = outW.Close()
	_ = inR.Close()

	h := &Handle{
		name:      spec.Name,
		runID:     spec.RunID,
		pid:       cmd.Process.Pid,
		startedAt: time.Now(),
		stdin:     inW,
		out:       outR,
		copyDone:  make(chan struct{}),
		done:      make(chan struct{}),
	}
	dst := spec.Output
	if dst == nil {
		dst = io.Discard
	}
	drain := spec.DrainTimeout
	if drain <= 0 {
		drain = defaultDrainTimeout
	}
	go h.copyOutput(dst)
	go h.reap(cmd.Wait, drain)
	return h, nil
}

func (h *Handle) copyOutput(dst io.Writer) {
	defer close(h.copyDone)
	buf := make([]byte, 32*1024)
	_, _ = io.CopyBuffer(dst, h.out, buf)
}

func (h *Handle) reap(wait func() error, drain time.Duration) {
	err := wait()
	info := newExitInfo(err)
	_ = h.CloseInput()

	// Grandchildren may keep the write end open; bound the drain and then
	// close the read end to release the copy goroutine.
	t := time.NewTimer(drain)
	select {
	case <-h.copyDone:
		t.Stop()
	case <-t.C:
		_ = h.out.Close()
		<-h.copyDone
	}
	_ = h.out.Close()

	h.exit.Store(&info)
	close(h.done)
}

// Name returns the logical name the process was spawned for.
func (h *Handle) Name() string { return h.name }

// RunID returns the identifier assigned to this run.
func (h *Handle) RunID() string { return h.runID }

// PID returns the OS process id.
func (h *Handle) PID() int { return h.pid }

// StartedAt returns when the process was spawned.
func (h *Handle) StartedAt() time.Time { return h.startedAt }

// Done is closed once the process has exited and its output is drained.
func (h *Handle) Done() <-chan struct{} { return h.done }

// ExitStatus reports the exit information without blocking.
func (h *Handle) ExitStatus() (ExitInfo, bool) {
	if p := h.exit.Load(); p != nil {
		return *p, true
	}
	return ExitInfo{}, false
}

// Wait blocks until the process has exited and its output is drained.
func (h *Handle) Wait() ExitInfo {
	<-h.done
	return *h.exit.Load()
}

// WriteLine writes text followed by a newline to the process input.
func (h *Handle) WriteLine(text string) error {
	select {
	case <-h.done:
		return ErrNotRunning
	default:
	}
	h.inMu.Lock()
	defer h.inMu.Unlock()
	if h.inClosed {
		return ErrClosed
	}
	_ = h.stdin.SetWriteDeadline(time.Now().Add(defaultWriteTimeout))
	if _, err := io.WriteString(h.stdin, text+"\n"); err != nil {
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return fmt.Errorf("%w: %v", ErrInputBlocked, err)
		}
		return fmt.Errorf("%w: %v", ErrNotRunning, err)
	}
	return nil
}

// CloseInput closes the process input. It is safe to call more than once.
func (h *Handle) CloseInput() error {
	h.inMu.Lock()
	defer h.inMu.Unlock()
	if h.inClosed {
		return nil
	}
	h.inClosed = true
	return h.stdin.Close()
}

// SignalStop asks the process group to terminate, waits up to grace, and
// kills it if it is still alive. It returns once the process has exited.
func (h *Handle) SignalStop(grace time.Duration) error {
	select {
	case <-h.done:
		return nil
	default:
	}
	_ = terminate(h.pid)

	t := time.NewTimer(grace)
	defer t.Stop()
	select {
	case <-h.done:
		return nil
	case <-t.C:
	}

	_ = kill(h.pid)
	k := time.NewTimer(killWait)
	defer k.Stop()
	select {
	case <-h.done:
		return nil
	case <-k.C:
		return fmt.Errorf("%s (pid %d): %w", h.name, h.pid, ErrStopTimeout)
	}
}

// Kill force-kills the process group without a grace period.
func (h *Handle) Kill() error {
	select {
	case <-h.done:
		return nil
	default:
	}
	return kill(h.pid)
}
