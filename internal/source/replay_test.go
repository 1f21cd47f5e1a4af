package source

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/crosswalk/internal/crossing"
	"github.com/banshee-data/crosswalk/internal/timeutil"
)

const manifest = `# recorded at the Elm St crossing
{"image": "f1.png", "captured_at_ms": 1772366400000, "detections": [{"label": "traffic light", "score": 0.8, "bounding_box": {"left": 2, "top": 2, "right": 6, "bottom": 8}}]}

{"image": "", "captured_at_ms": 1772366400250, "detections": []}
{"captured_at_ms": 1772366401250, "detections": [{"label": "car", "score": 0.9, "bounding_box": {"left": 0, "top": 0, "right": 4, "bottom": 4}}]}
`

func writeReplay(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	img := image.NewNRGBA(image.Rect(0, 0, 8, 10))
	for y := 0; y < 10; y++ {
		for x := 0; x < 8; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: 220, G: 30, B: 30, A: 255})
		}
	}
	f, err := os.Create(filepath.Join(dir, "f1.png"))
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())

	path := filepath.Join(dir, "replay.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(manifest), 0o644))
	return path
}

func collect(t *testing.T, s *ReplaySource) []crossing.Frame {
	t.Helper()
	var frames []crossing.Frame
	require.NoError(t, s.Run(context.Background(), func(f crossing.Frame) { frames = append(frames, f) }))
	return frames
}

func TestReplaySource_Run(t *testing.T) {
	t.Parallel()
	s := NewReplaySource(writeReplay(t), false)
	require.NoError(t, s.Open())
	assert.Equal(t, 3, s.Len())

	frames := collect(t, s)
	require.Len(t, frames, 3)
	assert.Equal(t, uint64(1), frames[0].Seq)
	assert.Equal(t, image.Rect(0, 0, 8, 10), frames[0].Image.Bounds())
	assert.Nil(t, frames[1].Image)
	assert.Equal(t, int64(1772366400250), frames[1].CapturedAt.UnixMilli())
	assert.Equal(t, time.Second, frames[2].CapturedAt.Sub(frames[1].CapturedAt))

	det := s.Detector()
	require.NoError(t, det.Load())
	dets, err := det.Detect(context.Background(), frames[0])
	require.NoError(t, err)
	require.Len(t, dets, 1)
	assert.Equal(t, "traffic light", dets[0].Label)
	assert.Equal(t, 6.0, dets[0].BoundingBox.Right)

	ev, err := crossing.NewPipeline(crossing.DefaultConfig()).ProcessFrame(frames[0], dets)
	require.NoError(t, err)
	assert.Equal(t, crossing.DecisionDanger, ev.Decision)
}

func TestReplaySource_Paced(t *testing.T) {
	t.Parallel()
	clock := timeutil.NewMockClock(time.Unix(0, 0))
	s := NewReplaySource(writeReplay(t), true)
	s.Clock = clock
	require.NoError(t, s.Open())

	got := make(chan uint64, 3)
	done := make(chan error, 1)
	go func() {
		done <- s.Run(context.Background(), func(f crossing.Frame) { got <- f.Seq })
	}()

	assert.Equal(t, uint64(1), <-got)
	require.Eventually(t, func() bool { return clock.Waiters() == 1 }, time.Second, time.Millisecond)
	clock.Advance(249 * time.Millisecond)
	assert.Len(t, got, 0)
	clock.Advance(time.Millisecond)
	assert.Equal(t, uint64(2), <-got)

	require.Eventually(t, func() bool { return clock.Waiters() == 1 }, time.Second, time.Millisecond)
	clock.Advance(time.Second)
	assert.Equal(t, uint64(3), <-got)
	assert.NoError(t, <-done)
}

func TestReplaySource_Cancelled(t *testing.T) {
	t.Parallel()
	s := NewReplaySource(writeReplay(t), true)
	s.Clock = timeutil.NewMockClock(time.Unix(0, 0))
	require.NoError(t, s.Open())

	ctx, cancel := context.WithCancel(context.Background())
	n := 0
	err := s.Run(ctx, func(crossing.Frame) {
		n++
		cancel()
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, n)
}

func TestReplaySource_OpenErrors(t *testing.T) {
	t.Parallel()
	s := NewReplaySource(filepath.Join(t.TempDir(), "missing.jsonl"), false)
	assert.Error(t, s.Open())
	assert.Error(t, s.Detector().Load())
}

func TestReplaySource_MissingImage(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "r.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(`{"image":"gone.png","captured_at_ms":5}`+"\n"), 0o644))
	s := NewReplaySource(path, false)
	require.NoError(t, s.Open())
	err := s.Run(context.Background(), func(crossing.Frame) { t.Fatal("unexpected frame") })
	assert.ErrorContains(t, err, "frame 1")
}

func TestReplaySource_ImageOutsideManifestDir(t *testing.T) {
	t.Parallel()
	tests := []string{"../escape.png", "/etc/passwd"}
	for _, image := range tests {
		t.Run(image, func(t *testing.T) {
			t.Parallel()
			path := filepath.Join(t.TempDir(), "r.jsonl")
			line := fmt.Sprintf(`{"image":%q,"captured_at_ms":5}`, image)
			require.NoError(t, os.WriteFile(path, []byte(line+"\n"), 0o644))
			err := NewReplaySource(path, false).Open()
			assert.ErrorContains(t, err, "record 1")
		})
	}
}

func TestParseManifest(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		input   string
		want    int
		wantErr string
	}{
		{"empty", "", 0, ""},
		{"comments only", "# nothing\n\n", 0, ""},
		{"two records", `{"captured_at_ms":1}` + "\n" + `{"captured_at_ms":1}`, 2, ""},
		{"bad json", `{"captured_at_ms":`, 0, "line 1"},
		{"zero timestamp", `{"captured_at_ms":0}`, 0, "must be positive"},
		{"backwards", `{"captured_at_ms":5}` + "\n" + `{"captured_at_ms":4}`, 0, "line 2: captured_at_ms goes backwards"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseManifest(strings.NewReader(tt.input))
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Len(t, got, tt.want)
		})
	}
}
