package process

import (
	"errors"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"
)

// Spec describes a single launch of a server process.
type Spec struct {
	Name    string   // logical server name, used in errors
	Command string   // interpreter or executable
	Args    []string // arguments, typically the script path
	WorkDir string   // optional working directory
	Env     []string // extra environment, appended to the daemon's own
	RunID   string   // identifier recorded on the handle

	// Output receives the combined stdout and stderr stream.
	Output io.Writer
	// DrainTimeout bounds how long output is read after the process exits.
	DrainTimeout time.Duration
}

// Validate checks that the spec can be launched.
func (s *Spec) Validate() error {
	if strings.TrimSpace(s.Command) == "" {
		return errors.New("process command is empty")
	}
	return nil
}

// BuildCommand constructs the *exec.Cmd for the spec. The command is run
// directly without a shell.
func (s *Spec) BuildCommand() *exec.Cmd {
	// #nosec G204 -- interpreter and script path come from the registry
	cmd := exec.Command(s.Command, s.Args...)
	cmd.Dir = s.WorkDir
	if len(s.Env) > 0 {
		cmd.Env = append(os.Environ(), s.Env...)
	}
	return cmd
}
