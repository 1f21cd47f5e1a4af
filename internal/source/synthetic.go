package source

import (
	"context"
	"errors"
	"image"
	"image/color"
	"time"

	"github.com/banshee-data/crosswalk/internal/crossing"
	"github.com/banshee-data/crosswalk/internal/timeutil"
)

var errEmptyScript = errors.New("synthetic script has no duration")

// Synthetic scene geometry, in pixels of a 320x240 frame.
const (
	sceneW = 320
	sceneH = 240
)

var (
	lampBox   = crossing.BoundingBox{Left: 40, Top: 20, Right: 60, Bottom: 80}
	parkedBox = crossing.BoundingBox{Left: 180, Top: 150, Right: 260, Bottom: 200}

	lampOn = map[crossing.Color]color.NRGBA{
		crossing.ColorRed:   {R: 230, G: 25, B: 25, A: 255},
		crossing.ColorGreen: {R: 10, G: 210, B: 70, A: 255},
	}
	asphalt = color.NRGBA{R: 40, G: 40, B: 45, A: 255}
)

// Phase is one step of the synthetic scene script.
type Phase struct {
	Duration time.Duration
	Light    crossing.Color // ColorUnclear paints the lamp dark
	Parked   bool
}

// DefaultScript cycles red, a parked car with the light dark, then green.
var DefaultScript = []Phase{
	{Duration: 4 * time.Second, Light: crossing.ColorRed},
	{Duration: 3 * time.Second, Parked: true},
	{Duration: 5 * time.Second, Light: crossing.ColorGreen},
}

// SyntheticSource paints a scripted street scene at a fixed frame rate and
// knows the detections for every frame it produced.
type SyntheticSource struct {
	Interval time.Duration
	Script   []Phase
	Clock    timeutil.Clock
	// Frames stops the source after that many frames; zero runs forever.
	Frames uint64

	cycle time.Duration
}

// NewSyntheticSource returns a source at fps frames per second.
func NewSyntheticSource(fps int) *SyntheticSource {
	if fps <= 0 {
		fps = 10
	}
	return &SyntheticSource{
		Interval: time.Second / time.Duration(fps),
		Script:   DefaultScript,
		Clock:    timeutil.RealClock{},
	}
}

// Open validates the script.
func (s *SyntheticSource) Open() error {
	s.cycle = 0
	for _, p := range s.Script {
		s.cycle += p.Duration
	}
	if s.cycle <= 0 || s.Interval <= 0 {
		return errEmptyScript
	}
	return nil
}

// Run emits a frame every Interval.
func (s *SyntheticSource) Run(ctx context.Context, emit func(crossing.Frame)) error {
	tk := s.Clock.NewTicker(s.Interval)
	defer tk.Stop()
	for seq := uint64(1); s.Frames == 0 || seq <= s.Frames; seq++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		ph := s.phaseAt(seq)
		emit(crossing.Frame{Image: paintScene(ph), CapturedAt: s.Clock.Now(), Seq: seq})
		if s.Frames != 0 && seq == s.Frames {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tk.C():
		}
	}
	return nil
}

// Close implements stream.FrameSource.
func (s *SyntheticSource) Close() error { return nil }

// Load implements stream.Detector.
func (s *SyntheticSource) Load() error { return nil }

// Detect returns the scripted detections for the frame's place in the
// script. The source doubles as its own detector.
func (s *SyntheticSource) Detect(_ context.Context, f crossing.Frame) ([]crossing.Detection, error) {
	ph := s.phaseAt(f.Seq)
	dets := []crossing.Detection{{Label: "traffic light", Score: 0.82, BoundingBox: lampBox}}
	if ph.Parked {
		dets = append(dets, crossing.Detection{Label: "car", Score: 0.91, BoundingBox: parkedBox})
	}
	return dets, nil
}

func (s *SyntheticSource) phaseAt(seq uint64) Phase {
	at := time.Duration(seq-1) * s.Interval % s.cycle
	for _, p := range s.Script {
		if at < p.Duration {
			return p
		}
		at -= p.Duration
	}
	return s.Script[len(s.Script)-1]
}

func paintScene(ph Phase) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, sceneW, sceneH))
	fill(img, img.Bounds(), asphalt)
	if c, ok := lampOn[ph.Light]; ok {
		fill(img, rect(lampBox), c)
	}
	return img
}

func rect(b crossing.BoundingBox) image.Rectangle {
	return image.Rect(int(b.Left), int(b.Top), int(b.Right), int(b.Bottom))
}

func fill(img *image.NRGBA, r image.Rectangle, c color.NRGBA) {
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
}
