// Package command_output turns classifier decisions into edge events on a
// Sink, tracking which held lines are asserted so a line is never pressed
// twice and a release is never skipped.
package command_output

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"voice-drive/classifier"
)

type Emitter struct {
	mu sync.Mutex

	sink             Sink
	vowelAccelerates bool
	now              func() time.Time

	lines classifier.Lines
}

type Config struct {
	Sink Sink
	// VowelAccelerates asserts Forward together with a steering line.
	VowelAccelerates bool
	// Now defaults to time.Now.
	Now func() time.Time
}

func NewEmitter(cfg *Config) (*Emitter, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	if cfg.Sink == nil {
		return nil, fmt.Errorf("sink is nil")
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Emitter{
		sink:             cfg.Sink,
		vowelAccelerates: cfg.VowelAccelerates,
		now:              now,
	}, nil
}

// Apply drives the held lines to the state of d.Held and pulses the trigger
// line when d fired. Releases are sent before presses. A line whose event
// fails keeps its previous state so the next Apply retries it.
func (e *Emitter) Apply(ctx context.Context, d classifier.Decision) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	errs := e.driveLocked(ctx, classifier.LinesFor(d.Held, e.vowelAccelerates))

	if d.Triggered() {
		err := e.sink.Send(ctx, Event{Line: classifier.TriggerLine, Action: ActionPulse, At: e.now()})
		if err != nil {
			errs = append(errs, fmt.Errorf("pulse %s: %w", classifier.TriggerLine, err))
		}
	}

	return errors.Join(errs...)
}

// ReleaseAll releases every asserted held line.
func (e *Emitter) ReleaseAll(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	return errors.Join(e.driveLocked(ctx, classifier.Lines{})...)
}

// Lines returns the held lines currently asserted on the sink.
func (e *Emitter) Lines() classifier.Lines {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.lines
}

func (e *Emitter) driveLocked(ctx context.Context, target classifier.Lines) []error {
	var errs []error

	for _, action := range []Action{ActionRelease, ActionPress} {
		for _, line := range classifier.HeldLines {
			want := target.Get(line)
			if want == e.lines.Get(line) || want != (action == ActionPress) {
				continue
			}

			err := e.sink.Send(ctx, Event{Line: line, Action: action, At: e.now()})
			if err != nil {
				errs = append(errs, fmt.Errorf("%s %s: %w", action, line, err))
				continue
			}

			e.lines = set(e.lines, line, want)
		}
	}

	return errs
}

func set(l classifier.Lines, line classifier.Line, on bool) classifier.Lines {
	switch line {
	case classifier.LineLeft:
		l.Left = on
	case classifier.LineRight:
		l.Right = on
	case classifier.LineForward:
		l.Forward = on
	case classifier.LineBackward:
		l.Backward = on
	}

	return l
}
