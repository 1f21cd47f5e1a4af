package crossing

import (
	"fmt"
	"image"
	"math"
	"strings"
	"time"
)

// BoundingBox is an axis-aligned box in frame pixel coordinates.
type BoundingBox struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Right  float64 `json:"right"`
	Bottom float64 `json:"bottom"`
}

// Center returns the box centre.
func (b BoundingBox) Center() (cx, cy float64) {
	return (b.Left + b.Right) / 2, (b.Top + b.Bottom) / 2
}

// Width returns Right-Left, which may be negative for a malformed box.
func (b BoundingBox) Width() float64 { return b.Right - b.Left }

// Height returns Bottom-Top, which may be negative for a malformed box.
func (b BoundingBox) Height() float64 { return b.Bottom - b.Top }

func (b BoundingBox) finite() bool {
	for _, v := range [...]float64{b.Left, b.Top, b.Right, b.Bottom} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Detection is one object reported by the external detector for a frame.
type Detection struct {
	Label       string      `json:"label"`
	Score       float64     `json:"score"`
	BoundingBox BoundingBox `json:"bounding_box"`
}

// Validate reports whether the detection's geometry is usable. Scores are
// the detector's business and are not checked here.
func (d Detection) Validate() error {
	if !d.BoundingBox.finite() {
		return fmt.Errorf("%w: non-finite bounding box for %q", ErrInvalidDetection, d.Label)
	}
	return nil
}

func normalizeLabel(label string) string {
	return strings.ToLower(strings.TrimSpace(label))
}

// Frame is one analysed camera frame. Image must not be mutated while the
// pipeline holds the frame.
type Frame struct {
	Image      image.Image
	CapturedAt time.Time
	Seq        uint64
}

// Color is the classified state of a traffic light.
type Color int

const (
	ColorUnclear Color = iota
	ColorRed
	ColorGreen
	ColorYellow
)

var colorNames = [...]string{"UNCLEAR", "RED", "GREEN", "YELLOW"}

func (c Color) String() string {
	if c < 0 || int(c) >= len(colorNames) {
		return fmt.Sprintf("Color(%d)", int(c))
	}
	return colorNames[c]
}

// MarshalText implements encoding.TextMarshaler.
func (c Color) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Color) UnmarshalText(b []byte) error {
	s := strings.ToUpper(string(b))
	for i, name := range colorNames {
		if name == s {
			*c = Color(i)
			return nil
		}
	}
	return fmt.Errorf("unknown color %q", string(b))
}

// Decision is the user-facing crossing verdict for a frame.
type Decision int

const (
	DecisionTransition Decision = iota
	DecisionDanger
	DecisionPreparing
	DecisionSafe
)

var decisionNames = [...]string{"TRANSITION", "DANGER", "PREPARING", "SAFE"}

func (d Decision) String() string {
	if d < 0 || int(d) >= len(decisionNames) {
		return fmt.Sprintf("Decision(%d)", int(d))
	}
	return decisionNames[d]
}

// ParseDecision is the inverse of Decision.String.
func ParseDecision(s string) (Decision, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	for i, name := range decisionNames {
		if name == s {
			return Decision(i), nil
		}
	}
	return DecisionTransition, fmt.Errorf("unknown decision %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (d Decision) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Decision) UnmarshalText(b []byte) error {
	v, err := ParseDecision(string(b))
	if err != nil {
		return err
	}
	*d = v
	return nil
}

// Signals is the per-frame reduction of all detections. It is never persisted
// by the pipeline.
type Signals struct {
	HasGreenLight     bool `json:"has_green_light"`
	HasRedLight       bool `json:"has_red_light"`
	UnclearSignal     bool `json:"unclear_signal"`
	MovingVehicle     bool `json:"moving_vehicle"`
	StationaryVehicle bool `json:"stationary_vehicle"`
}

// Annotated is a detection together with what the pipeline derived for it.
type Annotated struct {
	Detection
	TrackID  int64   `json:"track_id"`
	Matched  bool    `json:"matched"`
	Velocity float64 `json:"velocity_px_s"`
	Color    *Color  `json:"color,omitempty"`
}

// Event is emitted once per processed frame.
type Event struct {
	Timestamp       time.Time   `json:"-"`
	TimestampMs     int64       `json:"ts"`
	Seq             uint64      `json:"seq"`
	Decision        Decision    `json:"decision"`
	Signals         Signals     `json:"signals"`
	MaxVehicleSpeed float64     `json:"max_vehicle_speed_px_s"`
	Detections      []Annotated `json:"detections,omitempty"`
}
