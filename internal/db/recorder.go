package db

import (
	"sync"

	"github.com/banshee-data/crosswalk/internal/crossing"
	"github.com/banshee-data/crosswalk/internal/monitoring"
	"github.com/banshee-data/crosswalk/internal/stream"
)

// DecisionRecorder writes session boundaries and every decision of the
// running session to the log.
type DecisionRecorder struct {
	db *DB

	mu      sync.Mutex
	session string
}

var (
	_ stream.Listener  = (*DecisionRecorder)(nil)
	_ stream.Lifecycle = (*DecisionRecorder)(nil)
)

// NewDecisionRecorder returns a recorder writing to db.
func NewDecisionRecorder(db *DB) *DecisionRecorder {
	return &DecisionRecorder{db: db}
}

// OnSessionStart implements stream.Lifecycle.
func (r *DecisionRecorder) OnSessionStart(info stream.SessionInfo) {
	if err := r.db.StartSession(info.ID, info.Source, info.StartedAt); err != nil {
		monitoring.Logf("db: start session %s: %v", info.ID, err)
		return
	}
	r.mu.Lock()
	r.session = info.ID
	r.mu.Unlock()
}

// OnSessionStop implements stream.Lifecycle.
func (r *DecisionRecorder) OnSessionStop(info stream.SessionInfo) {
	r.mu.Lock()
	if r.session == info.ID {
		r.session = ""
	}
	r.mu.Unlock()
	if err := r.db.StopSession(info.ID, info.StoppedAt); err != nil {
		monitoring.Logf("db: stop session %s: %v", info.ID, err)
	}
}

// OnDecision implements stream.Listener. Events arriving outside a session
// are dropped.
func (r *DecisionRecorder) OnDecision(ev crossing.Event) {
	r.mu.Lock()
	id := r.session
	r.mu.Unlock()
	if id == "" {
		return
	}
	if err := r.db.RecordDecision(id, ev); err != nil {
		monitoring.Logf("db: record decision: %v", err)
	}
}
