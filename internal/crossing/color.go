package crossing

import (
	"image"
	"image/color"
	"math"
)

// ColorConfig tunes the traffic-light colour vote.
type ColorConfig struct {
	// MinSaturation and MinValue discard grey or dark pixels that cannot be a
	// lit lamp.
	MinSaturation float64
	MinValue      float64

	// DominanceRatio is the share of counted pixels the winning bucket must
	// reach (inclusive) for the vote to stand.
	DominanceRatio float64

	// SampleSteps bounds the sampling grid along each axis.
	SampleSteps int
}

// DefaultColorConfig returns production-default classifier parameters.
func DefaultColorConfig() ColorConfig {
	return ColorConfig{
		MinSaturation:  0.3,
		MinValue:       0.3,
		DominanceRatio: 0.3,
		SampleSteps:    10,
	}
}

// ColorVotes counts sampled pixels per hue bucket.
type ColorVotes struct {
	Red    int `json:"red"`
	Green  int `json:"green"`
	Yellow int `json:"yellow"`
}

// Total returns the number of pixels that landed in any bucket.
func (v ColorVotes) Total() int { return v.Red + v.Green + v.Yellow }

// ColorClassifier determines the lit colour of a traffic light from the
// pixels inside its bounding box.
type ColorClassifier struct {
	cfg ColorConfig
}

// NewColorClassifier creates a classifier, filling unset fields from
// DefaultColorConfig.
func NewColorClassifier(cfg ColorConfig) *ColorClassifier {
	def := DefaultColorConfig()
	if cfg.SampleSteps <= 0 {
		cfg.SampleSteps = def.SampleSteps
	}
	if cfg.DominanceRatio <= 0 {
		cfg.DominanceRatio = def.DominanceRatio
	}
	return &ColorClassifier{cfg: cfg}
}

// Classify returns the dominant lamp colour inside box, or ColorUnclear when
// the box is empty after clamping, nothing chromatic was sampled, or no
// bucket reaches the dominance ratio. Ties resolve red, then green, then
// yellow.
func (c *ColorClassifier) Classify(img image.Image, box BoundingBox) Color {
	votes, ok := c.Votes(img, box)
	if !ok {
		return ColorUnclear
	}
	return c.decide(votes)
}

func (c *ColorClassifier) decide(votes ColorVotes) Color {
	total := votes.Total()
	if total == 0 {
		return ColorUnclear
	}

	best, bestCount := ColorRed, votes.Red
	if votes.Green > bestCount {
		best, bestCount = ColorGreen, votes.Green
	}
	if votes.Yellow > bestCount {
		best, bestCount = ColorYellow, votes.Yellow
	}

	// The small epsilon keeps e.g. 3 of 10 at ratio 0.3 on the passing side
	// despite 0.3*10 rounding up in binary floating point.
	if float64(bestCount)+1e-9 < c.cfg.DominanceRatio*float64(total) {
		return ColorUnclear
	}
	return best
}

// Votes samples the clamped box on a grid of at most SampleSteps points per
// axis and buckets chromatic pixels by hue. ok is false when the clamped box
// is empty or img is nil.
func (c *ColorClassifier) Votes(img image.Image, box BoundingBox) (votes ColorVotes, ok bool) {
	if img == nil || !box.finite() {
		return votes, false
	}
	b := img.Bounds()

	left := int(math.Max(box.Left, float64(b.Min.X)))
	top := int(math.Max(box.Top, float64(b.Min.Y)))
	right := int(math.Min(box.Right, float64(b.Max.X)))
	bottom := int(math.Min(box.Bottom, float64(b.Max.Y)))
	if right <= left || bottom <= top {
		return votes, false
	}

	stepX := max(1, (right-left)/c.cfg.SampleSteps)
	stepY := max(1, (bottom-top)/c.cfg.SampleSteps)

	for y := top; y < bottom; y += stepY {
		for x := left; x < right; x += stepX {
			px := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			h, s, v := rgbToHSV(px.R, px.G, px.B)
			if v < c.cfg.MinValue || s < c.cfg.MinSaturation {
				continue
			}
			switch hueBucket(h) {
			case ColorRed:
				votes.Red++
			case ColorGreen:
				votes.Green++
			case ColorYellow:
				votes.Yellow++
			}
		}
	}
	return votes, true
}

// hueBucket maps a hue in degrees to the lamp colour it counts towards, or
// ColorUnclear for hues outside every bucket.
func hueBucket(h float64) Color {
	switch {
	case h < 20 || h > 340:
		return ColorRed
	case h >= 80 && h <= 160:
		return ColorGreen
	case h >= 40 && h <= 70:
		return ColorYellow
	}
	return ColorUnclear
}

// rgbToHSV converts 8-bit RGB to hue in [0,360) degrees and saturation and
// value in [0,1].
func rgbToHSV(r8, g8, b8 uint8) (h, s, v float64) {
	r, g, b := float64(r8)/255, float64(g8)/255, float64(b8)/255
	hi := math.Max(r, math.Max(g, b))
	lo := math.Min(r, math.Min(g, b))
	delta := hi - lo

	v = hi
	if hi > 0 {
		s = delta / hi
	}
	if delta == 0 {
		return 0, s, v
	}

	switch hi {
	case r:
		h = (g - b) / delta
	case g:
		h = 2 + (b-r)/delta
	default:
		h = 4 + (r-g)/delta
	}
	h *= 60
	if h < 0 {
		h += 360
	}
	return h, s, v
}
