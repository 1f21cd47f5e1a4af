package crossing

import (
	"errors"
	"fmt"
	"runtime/debug"
)

// ErrNoTimestamp is returned for frames without a capture time; speed and
// debounce math cannot run without one.
var ErrNoTimestamp = errors.New("frame has no capture timestamp")

// Option customises a Pipeline.
type Option func(*Pipeline)

// WithIdentity replaces the default centre-hash identity assigner.
func WithIdentity(a IdentityAssigner) Option {
	return func(p *Pipeline) {
		p.tracker = NewTracker(a, p.cfg.MinElapsed)
	}
}

// Pipeline runs tracker, colour classifier, aggregator and decision machine
// over one frame at a time. It is not safe for concurrent use: a single
// worker owns it for the lifetime of a streaming session.
type Pipeline struct {
	cfg        Config
	tracker    *Tracker
	classifier *ColorClassifier
	machine    DecisionMachine
	memory     Memory

	last    Decision
	hasLast bool
}

// NewPipeline creates a pipeline with fresh tracks and memory.
func NewPipeline(cfg Config, opts ...Option) *Pipeline {
	p := &Pipeline{
		cfg:        cfg,
		tracker:    NewTracker(nil, cfg.MinElapsed),
		classifier: NewColorClassifier(cfg.Color),
		machine:    DecisionMachine{Window: cfg.DebounceWindow},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ProcessFrame analyses one frame and returns its Event. On error neither
// the track store nor the decision memory is modified.
func (p *Pipeline) ProcessFrame(frame Frame, dets []Detection) (ev Event, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrFramePanic, r)
			opsf("frame %d: recovered panic: %v\n%s", frame.Seq, r, debug.Stack())
		}
	}()

	if frame.CapturedAt.IsZero() {
		return Event{}, ErrNoTimestamp
	}
	for _, d := range dets {
		if err := d.Validate(); err != nil {
			tracef("frame %d: %v", frame.Seq, err)
		}
	}

	now := frame.CapturedAt
	obs, nextTracks := p.tracker.Step(dets, now)

	annotated := make([]Annotated, len(dets))
	var maxSpeed float64
	for i, d := range dets {
		a := Annotated{
			Detection: d,
			TrackID:   obs[i].TrackID,
			Matched:   obs[i].Matched,
			Velocity:  obs[i].Velocity,
		}
		label := normalizeLabel(d.Label)
		if p.cfg.isTrafficLight(label) {
			c := p.classifier.Classify(frame.Image, d.BoundingBox)
			a.Color = &c
		}
		if p.cfg.isVehicle(label) && a.Velocity > maxSpeed {
			maxSpeed = a.Velocity
		}
		annotated[i] = a
		tracef("frame %d: %s id=%d matched=%t v=%.1fpx/s", frame.Seq, label, a.TrackID, a.Matched, a.Velocity)
	}

	sig := Aggregate(p.cfg, annotated)

	mem := p.memory
	decision := p.machine.Decide(sig, now, &mem)

	// Commit only once nothing else can fail.
	p.tracker.Commit(nextTracks)
	p.memory = mem

	if !p.hasLast || decision != p.last {
		diagf("frame %d: decision %s (signals %+v)", frame.Seq, decision, sig)
	}
	p.last, p.hasLast = decision, true

	return Event{
		Timestamp:       now,
		TimestampMs:     now.UnixMilli(),
		Seq:             frame.Seq,
		Decision:        decision,
		Signals:         sig,
		MaxVehicleSpeed: maxSpeed,
		Detections:      annotated,
	}, nil
}

// Memory returns a copy of the decision memory.
func (p *Pipeline) Memory() Memory { return p.memory }

// Tracks returns a copy of the track store.
func (p *Pipeline) Tracks() TrackStore { return p.tracker.Tracks() }

// Reset clears tracks and decision memory, as on a fresh session.
func (p *Pipeline) Reset() {
	p.tracker.Reset()
	p.memory.Reset()
	p.hasLast = false
	diagf("pipeline reset")
}
