// Package history exports server run events to analytics stores. Sinks only
// append; devsrv never reads the history back.
package history

import (
	"context"
	"time"
)

// EventType defines the kind of run event.
type EventType string

const (
	EventStart EventType = "start"
	EventExit  EventType = "exit"
)

// Run triggers.
const (
	TriggerStart       = "start"
	TriggerRestart     = "restart"
	TriggerAutoRestart = "auto-restart"
)

// Exit outcomes.
const (
	OutcomeStopped = "stopped"
	OutcomeCrashed = "crashed"
)

// Run describes one spawned process of a server. The exit fields are only
// set on EventExit.
type Run struct {
	Name      string    `json:"name"`
	Kind      string    `json:"kind"`
	RunID     string    `json:"run_id"`
	PID       int       `json:"pid"`
	Trigger   string    `json:"trigger"`
	Attempt   int       `json:"attempt"`
	StartedAt time.Time `json:"started_at"`

	Outcome  string `json:"outcome,omitempty"`
	ExitCode int    `json:"exit_code"`
	Reason   string `json:"reason,omitempty"`
}

// Event is a run event exported to external systems.
type Event struct {
	Type       EventType `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Run        Run       `json:"run"`
}

// Sink is a destination for history events.
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
}
