// Package guidance turns crossing decisions into what the pedestrian hears
// and feels: spoken messages and vibration patterns.
package guidance

import (
	"time"

	"github.com/banshee-data/crosswalk/internal/crossing"
)

// Status is the user-facing road state.
type Status string

const (
	StatusSafe    Status = "safe"
	StatusCaution Status = "caution"
	StatusWait    Status = "wait"
)

// Spoken messages.
const (
	MsgActivated = "Application activated. Point camera at the road."
	MsgPaused    = "Detection paused. Tap to resume."
	MsgResumed   = "Detection resumed."
)

// StatusFor maps a decision onto a road status. TRANSITION has no certain
// answer, so the pedestrian is told to wait.
func StatusFor(d crossing.Decision) Status {
	switch d {
	case crossing.DecisionSafe:
		return StatusSafe
	case crossing.DecisionDanger:
		return StatusCaution
	default:
		return StatusWait
	}
}

// Message is the phrase spoken for s.
func (s Status) Message() string {
	switch s {
	case StatusSafe:
		return "Safe to go"
	case StatusCaution:
		return "Do not cross now"
	default:
		return "Wait"
	}
}

func ms(v ...int) []time.Duration {
	out := make([]time.Duration, len(v))
	for i, n := range v {
		out[i] = time.Duration(n) * time.Millisecond
	}
	return out
}

// Pattern is the vibration pattern for s: alternating on and off durations,
// starting with on.
func (s Status) Pattern() []time.Duration {
	switch s {
	case StatusSafe:
		return ms(200, 100, 200, 100, 200)
	case StatusCaution:
		return ms(300, 150, 300)
	default:
		return ms(400)
	}
}
