package crossing

import (
	"math"
	"time"
)

// Track is the lightweight cross-frame record of one detection.
type Track struct {
	ID       int64     `json:"id"`
	CenterX  float64   `json:"center_x"`
	CenterY  float64   `json:"center_y"`
	LastSeen time.Time `json:"last_seen"`
}

// TrackStore holds the tracks seen in the previous frame, keyed by id.
type TrackStore map[int64]Track

// Observation is the tracker's output for one detection.
type Observation struct {
	TrackID int64
	// Matched is true when the id existed in the previous frame.
	Matched bool
	// Velocity is the centre speed in pixels per second; zero when unmatched.
	Velocity float64
}

// Tracker estimates per-detection speed from exact-id matches against the
// previous frame. It keeps no history beyond one frame.
type Tracker struct {
	identity   IdentityAssigner
	minElapsed time.Duration
	tracks     TrackStore
}

// NewTracker creates a Tracker. A nil identity uses CenterHashIdentity.
func NewTracker(identity IdentityAssigner, minElapsed time.Duration) *Tracker {
	if identity == nil {
		identity = CenterHashIdentity{}
	}
	if minElapsed <= 0 {
		minElapsed = time.Millisecond
	}
	return &Tracker{
		identity:   identity,
		minElapsed: minElapsed,
		tracks:     TrackStore{},
	}
}

// Step matches detections against the current store and returns one
// Observation per detection plus the store that should replace the current
// one. The tracker itself is not modified; call Commit to apply.
func (t *Tracker) Step(dets []Detection, now time.Time) ([]Observation, TrackStore) {
	obs := make([]Observation, len(dets))
	next := make(TrackStore, len(dets))

	for i, det := range dets {
		// An unmeasurable box is neither matched nor stored.
		if !det.BoundingBox.finite() {
			continue
		}
		id := t.identity.AssignID(det)
		cx, cy := det.BoundingBox.Center()

		o := Observation{TrackID: id}
		if prev, ok := t.tracks[id]; ok {
			elapsed := now.Sub(prev.LastSeen)
			if elapsed < t.minElapsed {
				elapsed = t.minElapsed
			}
			dist := math.Hypot(cx-prev.CenterX, cy-prev.CenterY)
			o.Matched = true
			o.Velocity = dist / elapsed.Seconds()
		}
		obs[i] = o

		// Later detections with a colliding id overwrite earlier ones.
		next[id] = Track{ID: id, CenterX: cx, CenterY: cy, LastSeen: now}
	}

	return obs, next
}

// Commit replaces the track store wholesale.
func (t *Tracker) Commit(store TrackStore) {
	if store == nil {
		store = TrackStore{}
	}
	t.tracks = store
}

// Update is Step followed by Commit.
func (t *Tracker) Update(dets []Detection, now time.Time) []Observation {
	obs, next := t.Step(dets, now)
	t.Commit(next)
	return obs
}

// Tracks returns a copy of the current store.
func (t *Tracker) Tracks() TrackStore {
	out := make(TrackStore, len(t.tracks))
	for id, tr := range t.tracks {
		out[id] = tr
	}
	return out
}

// Reset drops every track.
func (t *Tracker) Reset() {
	t.tracks = TrackStore{}
}
