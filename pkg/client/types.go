package client

import "time"

// CreateRequest scaffolds a new server from a template.
type CreateRequest struct {
	Name string `json:"name"`
	Type string `json:"type,omitempty"`
}

// AddRequest registers an existing entry file. Path must be absolute.
type AddRequest struct {
	Path string `json:"path"`
}

// ServerStatus mirrors the daemon's view of one server.
type ServerStatus struct {
	Name        string     `json:"name"`
	Type        string     `json:"type"`
	Path        string     `json:"path"`
	State       string     `json:"state"`
	PID         int        `json:"pid,omitempty"`
	RunID       string     `json:"run_id,omitempty"`
	Restarts    int        `json:"restarts"`
	Monitoring  bool       `json:"monitoring"`
	AutoRestart bool       `json:"auto_restart"`
	Sample      *Sample    `json:"sample,omitempty"`
	LastExit    *ExitInfo  `json:"last_exit,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
}

// Sample is one CPU/memory reading. Valid is false when no rate could be
// computed yet.
type Sample struct {
	PID        int       `json:"pid"`
	CPUPercent float64   `json:"cpu_percent"`
	MemoryMB   float64   `json:"memory_mb"`
	Valid      bool      `json:"valid"`
	Timestamp  time.Time `json:"timestamp"`
}

// ExitInfo describes how the last run ended.
type ExitInfo struct {
	Code     int       `json:"code"`
	Reason   string    `json:"reason"`
	ExitedAt time.Time `json:"exited_at"`
}

// LogPage is a slice of a server's output and the cursor for the next call.
type LogPage struct {
	Log  []string `json:"log"`
	Next uint64   `json:"next"`
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}
