package crossing

import "time"

// Memory is the only state the decision machine carries between frames. The
// zero value means danger and green were never seen.
type Memory struct {
	LastDanger time.Time `json:"last_danger"`
	LastGreen  time.Time `json:"last_green"`
}

// Reset returns the memory to "never seen".
func (m *Memory) Reset() {
	*m = Memory{}
}

// DecisionMachine folds signals and Memory into a Decision with a debounce
// window on both danger and green.
type DecisionMachine struct {
	Window time.Duration
}

// Decide records this frame's danger/green sightings into mem and returns
// the decision. Priority: recent danger, then a stationary vehicle, then
// recent green, else TRANSITION.
func (m DecisionMachine) Decide(sig Signals, now time.Time, mem *Memory) Decision {
	if sig.MovingVehicle || sig.HasRedLight {
		mem.LastDanger = now
	}
	if sig.HasGreenLight {
		mem.LastGreen = now
	}

	switch {
	case m.recent(mem.LastDanger, now):
		return DecisionDanger
	case sig.StationaryVehicle:
		return DecisionPreparing
	case m.recent(mem.LastGreen, now):
		return DecisionSafe
	default:
		return DecisionTransition
	}
}

func (m DecisionMachine) recent(seen, now time.Time) bool {
	if seen.IsZero() {
		return false
	}
	return now.Sub(seen) < m.Window
}
