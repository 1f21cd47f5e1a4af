// Package source provides frame sources for the streaming session: a
// recorded replay and a synthetic street scene for development.
package source

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"image"
	_ "image/jpeg" // register decoders for recorded frames
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/banshee-data/crosswalk/internal/crossing"
	"github.com/banshee-data/crosswalk/internal/security"
	"github.com/banshee-data/crosswalk/internal/timeutil"
)

const maxManifestLine = 1 << 20

// Record is one line of a replay manifest.
type Record struct {
	// Image is a PNG or JPEG path under the manifest's directory, usually
	// relative to it. Empty means the frame carries no pixels.
	Image      string               `json:"image"`
	CapturedAt int64                `json:"captured_at_ms"`
	Detections []crossing.Detection `json:"detections"`
}

// ReplaySource replays a JSONL manifest of recorded frames and detections.
type ReplaySource struct {
	Path string
	// Pace sleeps between frames for the recorded gap.
	Pace  bool
	Clock timeutil.Clock

	records []Record
	byseq   map[uint64][]crossing.Detection
}

// NewReplaySource returns a source for the manifest at path.
func NewReplaySource(path string, pace bool) *ReplaySource {
	return &ReplaySource{Path: path, Pace: pace, Clock: timeutil.RealClock{}}
}

// Open reads and validates the whole manifest.
func (s *ReplaySource) Open() error {
	f, err := os.Open(s.Path)
	if err != nil {
		return err
	}
	defer f.Close()

	records, err := ParseManifest(f)
	if err != nil {
		return fmt.Errorf("%s: %w", s.Path, err)
	}
	dir := filepath.Dir(s.Path)
	for i, r := range records {
		if r.Image == "" {
			continue
		}
		if err := security.WithinDir(resolve(dir, r.Image), dir); err != nil {
			return fmt.Errorf("%s: record %d: %w", s.Path, i+1, err)
		}
	}
	s.records = records
	s.byseq = make(map[uint64][]crossing.Detection, len(records))
	for i, r := range records {
		s.byseq[uint64(i+1)] = r.Detections
	}
	return nil
}

// ParseManifest reads JSONL records. Blank lines and lines starting with '#'
// are skipped; timestamps must be positive and non-decreasing.
func ParseManifest(r io.Reader) ([]Record, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxManifestLine)

	var out []Record
	var prev int64
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		var rec Record
		if err := json.Unmarshal([]byte(text), &rec); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if rec.CapturedAt <= 0 {
			return nil, fmt.Errorf("line %d: captured_at_ms must be positive", line)
		}
		if rec.CapturedAt < prev {
			return nil, fmt.Errorf("line %d: captured_at_ms goes backwards (%d < %d)", line, rec.CapturedAt, prev)
		}
		prev = rec.CapturedAt
		out = append(out, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Run emits every record in order, then returns nil.
func (s *ReplaySource) Run(ctx context.Context, emit func(crossing.Frame)) error {
	clock := s.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	dir := filepath.Dir(s.Path)
	for i, rec := range s.records {
		if s.Pace && i > 0 {
			gap := time.Duration(rec.CapturedAt-s.records[i-1].CapturedAt) * time.Millisecond
			if err := timeutil.SleepContext(ctx, clock, gap); err != nil {
				return err
			}
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		var img image.Image
		if rec.Image != "" {
			var err error
			img, err = decodeImage(resolve(dir, rec.Image))
			if err != nil {
				return fmt.Errorf("frame %d: %w", i+1, err)
			}
		}
		emit(crossing.Frame{
			Image:      img,
			CapturedAt: time.UnixMilli(rec.CapturedAt).UTC(),
			Seq:        uint64(i + 1),
		})
	}
	return nil
}

// Close implements stream.FrameSource.
func (s *ReplaySource) Close() error { return nil }

// Len reports how many frames the opened manifest holds.
func (s *ReplaySource) Len() int { return len(s.records) }

// Detector returns a detector that answers with the recorded detections of
// each frame.
func (s *ReplaySource) Detector() *ReplayDetector {
	return &ReplayDetector{src: s}
}

// ReplayDetector serves recorded detections by frame sequence number.
type ReplayDetector struct {
	src *ReplaySource
}

// Load fails unless the manifest has been opened.
func (d *ReplayDetector) Load() error {
	if d.src.byseq == nil {
		return fmt.Errorf("replay manifest %s not opened", d.src.Path)
	}
	return nil
}

// Detect implements stream.Detector.
func (d *ReplayDetector) Detect(_ context.Context, f crossing.Frame) ([]crossing.Detection, error) {
	return d.src.byseq[f.Seq], nil
}

func resolve(dir, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(dir, p)
}

func decodeImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return img, nil
}
