package classifier

// Command is the discrete output of one classification cycle.
type Command int

const (
	Idle Command = iota
	SteerLeft
	SteerRight
	Accelerate
	Brake
	Trigger
)

func (c Command) String() string {
	switch c {
	case Idle:
		return "idle"
	case SteerLeft:
		return "steer-left"
	case SteerRight:
		return "steer-right"
	case Accelerate:
		return "accelerate"
	case Brake:
		return "brake"
	case Trigger:
		return "trigger"
	}

	return "unknown"
}

// Line is one independent output channel. Left, Right, Forward and Backward
// are held; TriggerLine is momentary.
type Line string

const (
	LineLeft     Line = "left"
	LineRight    Line = "right"
	LineForward  Line = "forward"
	LineBackward Line = "backward"
	TriggerLine  Line = "trigger"
)

// HeldLines lists the lines that can stay asserted, in release order.
var HeldLines = []Line{LineLeft, LineRight, LineForward, LineBackward}

// Lines is the on/off state of the four held lines.
type Lines struct {
	Left     bool
	Right    bool
	Forward  bool
	Backward bool
}

func (l Lines) Get(line Line) bool {
	switch line {
	case LineLeft:
		return l.Left
	case LineRight:
		return l.Right
	case LineForward:
		return l.Forward
	case LineBackward:
		return l.Backward
	}

	return false
}

func (l Lines) Any() bool {
	return l.Left || l.Right || l.Forward || l.Backward
}

// LinesFor maps a held command onto line states. Steering also asserts
// Forward when vowelAccelerates is set. Trigger and Idle assert nothing.
func LinesFor(c Command, vowelAccelerates bool) Lines {
	switch c {
	case SteerLeft:
		return Lines{Left: true, Forward: vowelAccelerates}
	case SteerRight:
		return Lines{Right: true, Forward: vowelAccelerates}
	case Accelerate:
		return Lines{Forward: true}
	case Brake:
		return Lines{Backward: true}
	}

	return Lines{}
}

// Count returns how many held lines are asserted.
func (l Lines) Count() int {
	n := 0
	for _, line := range HeldLines {
		if l.Get(line) {
			n++
		}
	}
	return n
}
