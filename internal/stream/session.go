package stream

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/crosswalk/internal/crossing"
	"github.com/banshee-data/crosswalk/internal/timeutil"
)

// Config wires a Session.
type Config struct {
	Pipeline crossing.Config
	Options  []crossing.Option

	Source     FrameSource
	SourceName string
	Detector   Detector
	Listener   Listener

	// Clock stamps session boundaries. Nil means the wall clock.
	Clock timeutil.Clock
}

// Stats is a snapshot of the current (or last) session.
type Stats struct {
	SessionID string          `json:"session_id,omitempty"`
	Source    string          `json:"source,omitempty"`
	Running   bool            `json:"running"`
	StartedAt time.Time       `json:"started_at,omitempty"`
	Processed uint64          `json:"processed"`
	Dropped   uint64          `json:"dropped"`
	Failed    uint64          `json:"failed"`
	Last      *crossing.Event `json:"last,omitempty"`
}

// Session owns the analysis lifecycle. Start and Stop are idempotent and
// safe to call from any goroutine.
type Session struct {
	cfg   Config
	clock timeutil.Clock

	// startMu serialises Start so a restart can wait for the previous run
	// without holding mu, which the exiting worker needs.
	startMu sync.Mutex

	mu      sync.Mutex
	run     *run
	lastRun *run
}

// run is one start/stop cycle. Its pipeline and counters are never shared
// with another cycle, so a straggling worker cannot leak state forward.
type run struct {
	info   SessionInfo
	cancel context.CancelFunc
	// done is closed once the producer and worker have both exited and the
	// source has been closed.
	done chan struct{}

	processed atomic.Uint64
	dropped   atomic.Uint64
	failed    atomic.Uint64

	mu   sync.Mutex
	last *crossing.Event
}

// NewSession returns a stopped session.
func NewSession(cfg Config) *Session {
	clock := cfg.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Session{cfg: cfg, clock: clock}
}

// Start opens the source and detector and begins analysis with fresh tracks
// and decision memory. Starting a running session is a no-op. After a Stop,
// Start first waits for the previous run's in-flight frame to drain so that
// only one worker ever exists.
func (s *Session) Start(ctx context.Context) error {
	s.startMu.Lock()
	defer s.startMu.Unlock()

	s.mu.Lock()
	running, prev := s.run != nil, s.lastRun
	s.mu.Unlock()
	if running {
		return nil
	}
	if prev != nil {
		select {
		case <-prev.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.cfg.Source.Open(); err != nil {
		opsf("open source %q: %v", s.cfg.SourceName, err)
		return fmt.Errorf("%w: open source: %v", ErrResourceUnavailable, err)
	}
	if err := s.cfg.Detector.Load(); err != nil {
		opsf("load detector: %v", err)
		if cerr := s.cfg.Source.Close(); cerr != nil {
			opsf("close source after failed load: %v", cerr)
		}
		return fmt.Errorf("%w: load detector: %v", ErrResourceUnavailable, err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	r := &run{
		info: SessionInfo{
			ID:        uuid.NewString(),
			Source:    s.cfg.SourceName,
			StartedAt: s.clock.Now(),
		},
		cancel: cancel,
		done:   make(chan struct{}),
	}
	s.run, s.lastRun = r, r

	if lc, ok := s.cfg.Listener.(Lifecycle); ok {
		lc.OnSessionStart(r.info)
	}
	diagf("session %s started (source %q)", r.info.ID, r.info.Source)

	pipeline := crossing.NewPipeline(s.cfg.Pipeline, s.cfg.Options...)
	slot := make(chan crossing.Frame, 1)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.produce(runCtx, r, slot)
	}()
	go func() {
		defer wg.Done()
		s.work(runCtx, r, pipeline, slot)
	}()
	go func() {
		wg.Wait()
		if err := s.cfg.Source.Close(); err != nil {
			opsf("close source: %v", err)
		}
		close(r.done)
	}()
	return nil
}

// Stop cancels the running session without waiting for the in-flight frame;
// at most one event may still be delivered afterwards. Stopping a stopped
// session is a no-op.
func (s *Session) Stop() {
	s.mu.Lock()
	r := s.run
	if r == nil {
		s.mu.Unlock()
		return
	}
	s.run = nil
	s.mu.Unlock()
	s.finish(r)
}

// Running reports whether a session is active.
func (s *Session) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.run != nil
}

// Done returns a channel closed when the current session's goroutines have
// exited and its source is closed, or nil when no session was ever started.
func (s *Session) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastRun == nil {
		return nil
	}
	return s.lastRun.done
}

// Stats returns counters for the current or most recent session.
func (s *Session) Stats() Stats {
	s.mu.Lock()
	r, running := s.lastRun, s.run != nil
	s.mu.Unlock()
	if r == nil {
		return Stats{}
	}
	r.mu.Lock()
	last := r.last
	r.mu.Unlock()
	return Stats{
		SessionID: r.info.ID,
		Source:    r.info.Source,
		Running:   running,
		StartedAt: r.info.StartedAt,
		Processed: r.processed.Load(),
		Dropped:   r.dropped.Load(),
		Failed:    r.failed.Load(),
		Last:      last,
	}
}

func (s *Session) finish(r *run) {
	r.cancel()
	info := r.info
	info.StoppedAt = s.clock.Now()
	if lc, ok := s.cfg.Listener.(Lifecycle); ok {
		lc.OnSessionStop(info)
	}
	diagf("session %s stopped: processed=%d dropped=%d failed=%d",
		info.ID, r.processed.Load(), r.dropped.Load(), r.failed.Load())
}

// produce runs the source, keeping only the newest unconsumed frame in slot.
// It is the only sender on slot and closes it when the source ends.
func (s *Session) produce(ctx context.Context, r *run, slot chan crossing.Frame) {
	defer close(slot)

	emit := func(f crossing.Frame) {
		select {
		case slot <- f:
			return
		default:
		}
		select {
		case old := <-slot:
			r.dropped.Add(1)
			tracef("dropped frame %d for %d", old.Seq, f.Seq)
		default:
		}
		slot <- f
	}

	err := s.cfg.Source.Run(ctx, emit)
	switch {
	case ctx.Err() != nil:
	case err != nil:
		opsf("session %s: source failed: %v", r.info.ID, err)
	default:
		diagf("session %s: source exhausted", r.info.ID)
	}
}

// work analyses frames one at a time until the slot closes or ctx ends.
func (s *Session) work(ctx context.Context, r *run, p *crossing.Pipeline, slot <-chan crossing.Frame) {
	defer func() {
		// A source that ends on its own ends the session.
		s.mu.Lock()
		ended := s.run == r
		if ended {
			s.run = nil
		}
		s.mu.Unlock()
		if ended {
			s.finish(r)
		}
	}()

	for {
		var frame crossing.Frame
		var ok bool
		select {
		case <-ctx.Done():
			return
		case frame, ok = <-slot:
			if !ok {
				return
			}
		}

		dets, err := s.cfg.Detector.Detect(ctx, frame)
		if err != nil {
			r.failed.Add(1)
			opsf("session %s: detect frame %d: %v", r.info.ID, frame.Seq, err)
			continue
		}
		ev, err := p.ProcessFrame(frame, dets)
		if err != nil {
			r.failed.Add(1)
			opsf("session %s: frame %d skipped: %v", r.info.ID, frame.Seq, err)
			continue
		}
		if ctx.Err() != nil {
			return
		}

		r.processed.Add(1)
		r.mu.Lock()
		r.last = &ev
		r.mu.Unlock()
		if s.cfg.Listener != nil {
			s.cfg.Listener.OnDecision(ev)
		}
	}
}
