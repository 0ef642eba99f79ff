package process

import (
	"errors"
	"fmt"
	"os/exec"
	"time"
)

// ExitInfo records how a process ended.
type ExitInfo struct {
	Code     int       `json:"code"`
	Reason   string    `json:"reason"`
	ExitedAt time.Time `json:"exited_at"`
}

// Success reports whether the process exited with code zero.
func (e ExitInfo) Success() bool { return e.Code == 0 && e.Reason == "exited" }

func (e ExitInfo) String() string {
	if e.Reason == "exited" {
		return fmt.Sprintf("exit code %d", e.Code)
	}
	return e.Reason
}

func newExitInfo(err error) ExitInfo {
	info := ExitInfo{ExitedAt: time.Now(), Reason: "exited"}
	if err == nil {
		return info
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		info.Code = ee.ExitCode()
		if sig, ok := exitSignal(ee); ok {
			info.Code = -1
			info.Reason = "signal: " + sig
		}
		return info
	}
	info.Code = -1
	info.Reason = err.Error()
	return info
}
