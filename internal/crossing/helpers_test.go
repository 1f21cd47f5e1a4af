package crossing

import (
	"image"
	"image/color"
	"time"
)

var (
	lampRed    = color.NRGBA{R: 230, G: 20, B: 20, A: 255}
	lampGreen  = color.NRGBA{R: 0, G: 200, B: 60, A: 255}
	lampYellow = color.NRGBA{R: 230, G: 220, B: 0, A: 255}
	lampBlue   = color.NRGBA{R: 20, G: 40, B: 230, A: 255}
	unlitGray  = color.NRGBA{R: 128, G: 128, B: 128, A: 255}
	nightBlack = color.NRGBA{R: 10, G: 10, B: 10, A: 255}
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func at(ms int64) time.Time { return epoch.Add(time.Duration(ms) * time.Millisecond) }

func newFrame(w, h int, fill color.Color) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, fill)
		}
	}
	return img
}

func paint(img *image.NRGBA, r image.Rectangle, c color.Color) {
	r = r.Intersect(img.Bounds())
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			img.Set(x, y, c)
		}
	}
}

func box(l, t, r, b float64) BoundingBox {
	return BoundingBox{Left: l, Top: t, Right: r, Bottom: b}
}

// boxAt returns a w×h box centred on (cx, cy).
func boxAt(cx, cy, w, h float64) BoundingBox {
	return box(cx-w/2, cy-h/2, cx+w/2, cy+h/2)
}

func det(label string, b BoundingBox) Detection {
	return Detection{Label: label, Score: 0.9, BoundingBox: b}
}

// byLabel gives every detection with the same label the same id, standing in
// for a tracker that can follow an object across positions.
var byLabel = IdentityFunc(func(d Detection) int64 {
	var h int64
	for _, c := range normalizeLabel(d.Label) {
		h = h*31 + int64(c)
	}
	return h
})
