// Package stream runs a crossing pipeline over a live frame source: one
// producer reading frames, one worker analysing the most recent frame, and a
// start/stop control surface.
package stream

import (
	"context"
	"errors"
	"sort"

	"github.com/banshee-data/crosswalk/internal/crossing"
)

// ErrResourceUnavailable is returned by Session.Start when the frame source
// or the detector cannot be opened. The session stays stopped; callers may
// retry Start.
var ErrResourceUnavailable = errors.New("resource unavailable")

// FrameSource produces frames until its context is cancelled or the source
// is exhausted.
type FrameSource interface {
	Open() error
	// Run calls emit for every frame, in capture order, from a single
	// goroutine. emit never blocks for long.
	Run(ctx context.Context, emit func(crossing.Frame)) error
	Close() error
}

// Detector turns a frame into labelled detections.
type Detector interface {
	Load() error
	Detect(ctx context.Context, frame crossing.Frame) ([]crossing.Detection, error)
}

// ScoreFilter applies detector-side policy: drop detections below Threshold
// and keep at most MaxResults, highest score first. Zero values disable the
// respective rule.
type ScoreFilter struct {
	Detector
	Threshold  float64
	MaxResults int
}

// Detect implements Detector.
func (f ScoreFilter) Detect(ctx context.Context, frame crossing.Frame) ([]crossing.Detection, error) {
	dets, err := f.Detector.Detect(ctx, frame)
	if err != nil {
		return nil, err
	}
	kept := make([]crossing.Detection, 0, len(dets))
	for _, d := range dets {
		if d.Score >= f.Threshold {
			kept = append(kept, d)
		}
	}
	if f.MaxResults > 0 && len(kept) > f.MaxResults {
		sort.SliceStable(kept, func(i, j int) bool { return kept[i].Score > kept[j].Score })
		kept = kept[:f.MaxResults]
	}
	return kept, nil
}
