package crossing

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestColorClassifier_SolidLamps(t *testing.T) {
	t.Parallel()
	c := NewColorClassifier(DefaultColorConfig())

	tests := []struct {
		name string
		lamp color.NRGBA
		want Color
	}{
		{"red", lampRed, ColorRed},
		{"green", lampGreen, ColorGreen},
		{"yellow", lampYellow, ColorYellow},
		{"blue has no bucket", lampBlue, ColorUnclear},
		{"gray is not chromatic", unlitGray, ColorUnclear},
		{"dark is not lit", nightBlack, ColorUnclear},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img := newFrame(100, 100, nightBlack)
			paint(img, image.Rect(40, 10, 60, 40), tt.lamp)
			assert.Equal(t, tt.want, c.Classify(img, box(40, 10, 60, 40)))
		})
	}
}

func TestColorClassifier_Idempotent(t *testing.T) {
	t.Parallel()
	c := NewColorClassifier(DefaultColorConfig())
	img := newFrame(64, 64, nightBlack)
	paint(img, image.Rect(10, 10, 30, 20), lampRed)
	paint(img, image.Rect(10, 20, 30, 30), lampGreen)

	b := box(10, 10, 30, 30)
	first := c.Classify(img, b)
	assert.Equal(t, first, c.Classify(img, b))
}

func TestColorClassifier_DegenerateBoxes(t *testing.T) {
	t.Parallel()
	c := NewColorClassifier(DefaultColorConfig())
	img := newFrame(50, 50, lampRed)

	tests := []struct {
		name string
		b    BoundingBox
	}{
		{"zero width", box(10, 10, 10, 20)},
		{"zero height", box(10, 10, 20, 10)},
		{"inverted", box(30, 30, 10, 10)},
		{"left of frame", box(-40, 10, -5, 20)},
		{"below frame", box(10, 60, 20, 90)},
		{"right edge collapses", box(50, 0, 80, 10)},
		{"sub-pixel after truncation", box(10.2, 10, 10.9, 20)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, ColorUnclear, c.Classify(img, tt.b))
			_, ok := c.Votes(img, tt.b)
			assert.False(t, ok)
		})
	}
}

func TestColorClassifier_NilImage(t *testing.T) {
	t.Parallel()
	c := NewColorClassifier(DefaultColorConfig())
	assert.Equal(t, ColorUnclear, c.Classify(nil, box(0, 0, 10, 10)))
}

func TestColorClassifier_ClampsToFrame(t *testing.T) {
	t.Parallel()
	c := NewColorClassifier(DefaultColorConfig())
	img := newFrame(40, 40, nightBlack)
	paint(img, image.Rect(0, 0, 10, 10), lampGreen)

	// Only the in-frame corner is sampled.
	assert.Equal(t, ColorGreen, c.Classify(img, box(-30, -30, 10, 10)))
}

func TestColorClassifier_HonoursImageOrigin(t *testing.T) {
	t.Parallel()
	c := NewColorClassifier(DefaultColorConfig())
	img := image.NewNRGBA(image.Rect(100, 100, 140, 140))
	paint(img, img.Bounds(), lampRed)

	assert.Equal(t, ColorRed, c.Classify(img, box(100, 100, 120, 120)))
	assert.Equal(t, ColorUnclear, c.Classify(img, box(0, 0, 50, 50)))
}

func TestColorClassifier_SamplesBoundedGrid(t *testing.T) {
	t.Parallel()
	c := NewColorClassifier(DefaultColorConfig())
	img := newFrame(200, 200, lampRed)

	votes, ok := c.Votes(img, box(0, 0, 200, 200))
	assert.True(t, ok)
	assert.Equal(t, 100, votes.Red) // 10 steps of 20px on each axis

	// Boxes smaller than the grid sample every pixel.
	votes, _ = c.Votes(img, box(0, 0, 4, 3))
	assert.Equal(t, 12, votes.Red)

	// Non-divisible sizes sample a few extra points up to the edge.
	votes, _ = c.Votes(img, box(0, 0, 25, 10))
	assert.Equal(t, 13*10, votes.Red)
}

func TestColorClassifier_TieBreak(t *testing.T) {
	t.Parallel()
	c := NewColorClassifier(DefaultColorConfig())

	split := func(left, right color.NRGBA) *image.NRGBA {
		// 20×10 box sampled at x=0,2,...,18: five columns per half.
		img := newFrame(20, 10, nightBlack)
		paint(img, image.Rect(0, 0, 10, 10), left)
		paint(img, image.Rect(10, 0, 20, 10), right)
		return img
	}

	assert.Equal(t, ColorRed, c.Classify(split(lampRed, lampGreen), box(0, 0, 20, 10)))
	assert.Equal(t, ColorRed, c.Classify(split(lampGreen, lampRed), box(0, 0, 20, 10)))
	assert.Equal(t, ColorRed, c.Classify(split(lampYellow, lampRed), box(0, 0, 20, 10)))
	assert.Equal(t, ColorGreen, c.Classify(split(lampYellow, lampGreen), box(0, 0, 20, 10)))
}

// paintCounts lays out n pixels of each colour row-major inside a 10×10
// frame so every pixel is sampled exactly once.
func paintCounts(red, green, yellow int) *image.NRGBA {
	img := newFrame(10, 10, nightBlack)
	i := 0
	for _, run := range []struct {
		n int
		c color.NRGBA
	}{{red, lampRed}, {green, lampGreen}, {yellow, lampYellow}} {
		for k := 0; k < run.n; k++ {
			img.Set(i%10, i/10, run.c)
			i++
		}
	}
	return img
}

func TestColorClassifier_DominanceBoundary(t *testing.T) {
	t.Parallel()
	c := NewColorClassifier(ColorConfig{MinSaturation: 0.3, MinValue: 0.3, DominanceRatio: 0.5, SampleSteps: 10})
	b := box(0, 0, 10, 10)

	// Exactly at the boundary passes.
	assert.Equal(t, ColorRed, c.Classify(paintCounts(50, 25, 25), b))
	// One pixel below it does not.
	assert.Equal(t, ColorUnclear, c.Classify(paintCounts(49, 26, 25), b))
	assert.Equal(t, ColorGreen, c.Classify(paintCounts(20, 50, 30), b))
}

func TestColorClassifier_DecideBoundaryIsInclusive(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		ratio float64
		votes ColorVotes
		want  Color
	}{
		{"nothing counted", 0.3, ColorVotes{}, ColorUnclear},
		{"0.3 of 10 is met by 4", 0.3, ColorVotes{Red: 3, Green: 3, Yellow: 4}, ColorYellow},
		{"0.4 of 10 met exactly", 0.4, ColorVotes{Red: 4, Green: 3, Yellow: 3}, ColorRed},
		{"0.5 of 10 met exactly", 0.5, ColorVotes{Red: 2, Green: 5, Yellow: 3}, ColorGreen},
		{"0.5 of 10 missed by one", 0.5, ColorVotes{Red: 4, Green: 3, Yellow: 3}, ColorUnclear},
		{"0.3 of 1", 0.3, ColorVotes{Yellow: 1}, ColorYellow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewColorClassifier(ColorConfig{DominanceRatio: tt.ratio})
			assert.Equal(t, tt.want, c.decide(tt.votes))
		})
	}
}

// With three buckets the leader always holds at least a third of the votes,
// so the default 30% floor never rejects a mixed region on its own.
func TestColorClassifier_DefaultRatioNeverRejectsThreeWayMix(t *testing.T) {
	t.Parallel()
	c := NewColorClassifier(DefaultColorConfig())
	assert.Equal(t, ColorRed, c.Classify(paintCounts(34, 33, 33), box(0, 0, 10, 10)))
}

func TestHueBucket(t *testing.T) {
	t.Parallel()

	tests := []struct {
		hue  float64
		want Color
	}{
		{0, ColorRed},
		{19.9, ColorRed},
		{20, ColorUnclear},
		{39.9, ColorUnclear},
		{40, ColorYellow},
		{70, ColorYellow},
		{75, ColorUnclear},
		{80, ColorGreen},
		{160, ColorGreen},
		{160.5, ColorUnclear},
		{240, ColorUnclear},
		{340, ColorUnclear},
		{340.1, ColorRed},
		{359.9, ColorRed},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, hueBucket(tt.hue), "hue %v", tt.hue)
	}
}

func TestRGBToHSV(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		r, g, b uint8
		h, s, v float64
	}{
		{"black", 0, 0, 0, 0, 0, 0},
		{"white", 255, 255, 255, 0, 0, 1},
		{"red", 255, 0, 0, 0, 1, 1},
		{"green", 0, 255, 0, 120, 1, 1},
		{"blue", 0, 0, 255, 240, 1, 1},
		{"yellow", 255, 255, 0, 60, 1, 1},
		{"magenta wraps", 255, 0, 128, 329.88, 1, 1},
		{"half gray", 128, 128, 128, 0, 0, 128.0 / 255},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, s, v := rgbToHSV(tt.r, tt.g, tt.b)
			assert.InDelta(t, tt.h, h, 0.01)
			assert.InDelta(t, tt.s, s, 1e-9)
			assert.InDelta(t, tt.v, v, 1e-9)
		})
	}
}

func TestColorTextRoundTrip(t *testing.T) {
	t.Parallel()
	for _, c := range []Color{ColorUnclear, ColorRed, ColorGreen, ColorYellow} {
		b, err := c.MarshalText()
		assert.NoError(t, err)
		var got Color
		assert.NoError(t, got.UnmarshalText(b))
		assert.Equal(t, c, got)
	}
	var c Color
	assert.Error(t, c.UnmarshalText([]byte("purple")))
	assert.Equal(t, "Color(9)", Color(9).String())
}
