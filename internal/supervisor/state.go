package supervisor

import "fmt"

// State is the lifecycle state of a server entry.
type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateCrashed
	StateStopping
)

var stateNames = [...]string{"stopped", "starting", "running", "crashed", "stopping"}

func (s State) String() string {
	if int(s) >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *State) UnmarshalText(b []byte) error {
	for i, n := range stateNames {
		if n == string(b) {
			*s = State(i)
			return nil
		}
	}
	return fmt.Errorf("unknown state %q", string(b))
}

// Active reports whether a process is attached in this state.
func (s State) Active() bool {
	return s == StateStarting || s == StateRunning || s == StateStopping
}

// Kind selects the interpreter a server runs under.
type Kind string

const (
	KindPython Kind = "python"
	KindNode   Kind = "node"
)

// KindForExt maps an entry file extension to its kind.
func KindForExt(ext string) (Kind, bool) {
	switch ext {
	case ".py":
		return KindPython, true
	case ".js", ".mjs", ".cjs":
		return KindNode, true
	}
	return "", false
}
