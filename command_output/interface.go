package command_output

import (
	"context"
	"time"

	"voice-drive/classifier"
)

// Action is the edge carried by an Event.
type Action string

const (
	ActionPress   Action = "press"
	ActionRelease Action = "release"
	ActionPulse   Action = "pulse"
)

// Event is one transition on one output line.
type Event struct {
	Line   classifier.Line `json:"line"`
	Action Action          `json:"action"`
	At     time.Time       `json:"at"`
}

// Sink receives edge events. Implementations must not block for long; the
// pipeline worker calls Send inline.
type Sink interface {
	Send(ctx context.Context, ev Event) error
}
