package supervisor

import (
	"errors"
	"fmt"
)

var (
	ErrDuplicateName  = errors.New("duplicate name")
	ErrInvalidPath    = errors.New("invalid path")
	ErrInvalidName    = errors.New("invalid name or kind")
	ErrNotFound       = errors.New("server not found")
	ErrAlreadyRunning = errors.New("server already running")
	ErrNotRunning     = errors.New("server not running")
	ErrInputBlocked   = errors.New("server is not reading its input")
	ErrSpawn          = errors.New("spawn failed")
	ErrClosed         = errors.New("supervisor is shut down")
)

// SpawnError carries the OS error from a failed launch. It matches ErrSpawn
// with errors.Is and unwraps to the underlying OS error.
type SpawnError struct {
	Name string
	Err  error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn %s: %v", e.Name, e.Err)
}

func (e *SpawnError) Unwrap() []error { return []error{ErrSpawn, e.Err} }

// ErrorKind names the category of err for command surfaces. Errors outside
// the supervisor's categories are "Internal".
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "NotFound"
	case errors.Is(err, ErrDuplicateName):
		return "DuplicateName"
	case errors.Is(err, ErrInvalidPath):
		return "InvalidPath"
	case errors.Is(err, ErrInvalidName):
		return "InvalidArgument"
	case errors.Is(err, ErrAlreadyRunning):
		return "AlreadyRunning"
	case errors.Is(err, ErrNotRunning):
		return "NotRunning"
	case errors.Is(err, ErrInputBlocked):
		return "InputBlocked"
	case errors.Is(err, ErrSpawn):
		return "SpawnError"
	case errors.Is(err, ErrClosed):
		return "Closed"
	default:
		return "Internal"
	}
}
