//go:build windows

package process

import (
	"os"
	"os/exec"
)

// Windows has no SIGTERM for console children; both paths terminate.
func terminate(pid int) error { return kill(pid) }

func kill(pid int) error {
	if pid <= 0 {
		return nil
	}
	p, err := os.FindProcess(pid)
	if err != nil {
		return nil
	}
	if err := p.Kill(); err != nil && err != os.ErrProcessDone {
		return err
	}
	return nil
}

// Alive reports whether a process with the given pid exists.
func Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	_, err := os.FindProcess(pid)
	return err == nil
}

func exitSignal(*exec.ExitError) (string, bool) { return "", false }
