package stream

import (
	"time"

	"github.com/banshee-data/crosswalk/internal/crossing"
)

// Listener receives every decision event, in frame order, on the worker
// goroutine. Implementations must not block for long.
type Listener interface {
	OnDecision(ev crossing.Event)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(ev crossing.Event)

// OnDecision implements Listener.
func (f ListenerFunc) OnDecision(ev crossing.Event) { f(ev) }

// SessionInfo describes one start/stop cycle of a Session.
type SessionInfo struct {
	ID        string
	Source    string
	StartedAt time.Time
	StoppedAt time.Time
}

// Lifecycle is optionally implemented by listeners that care about session
// boundaries, such as the decision log.
type Lifecycle interface {
	OnSessionStart(info SessionInfo)
	OnSessionStop(info SessionInfo)
}

// Listeners fans events out to each listener in order.
type Listeners []Listener

// OnDecision implements Listener.
func (ls Listeners) OnDecision(ev crossing.Event) {
	for _, l := range ls {
		l.OnDecision(ev)
	}
}

// OnSessionStart implements Lifecycle.
func (ls Listeners) OnSessionStart(info SessionInfo) {
	for _, l := range ls {
		if lc, ok := l.(Lifecycle); ok {
			lc.OnSessionStart(info)
		}
	}
}

// OnSessionStop implements Lifecycle.
func (ls Listeners) OnSessionStop(info SessionInfo) {
	for _, l := range ls {
		if lc, ok := l.(Lifecycle); ok {
			lc.OnSessionStop(info)
		}
	}
}
