package report

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/crosswalk/internal/crossing"
	"github.com/banshee-data/crosswalk/internal/db"
)

func record(t0 time.Time, ms int, d crossing.Decision, speed float64) db.DecisionRecord {
	ts := t0.Add(time.Duration(ms) * time.Millisecond)
	return db.DecisionRecord{
		SessionID:       "s",
		Timestamp:       ts,
		TimestampMs:     ts.UnixMilli(),
		Decision:        d,
		Signals:         crossing.Signals{MovingVehicle: speed > 0},
		MaxVehicleSpeed: speed,
	}
}

func fixture() []db.DecisionRecord {
	t0 := time.UnixMilli(1_700_000_000_000)
	return []db.DecisionRecord{
		record(t0, 0, crossing.DecisionDanger, 80),
		record(t0, 500, crossing.DecisionDanger, 120),
		record(t0, 1000, crossing.DecisionTransition, 0),
		record(t0, 3000, crossing.DecisionSafe, 0),
		record(t0, 4000, crossing.DecisionSafe, 0),
	}
}

func TestSummarize(t *testing.T) {
	t.Parallel()
	s := Summarize("s", fixture())

	assert.Equal(t, 5, s.Frames)
	assert.Equal(t, 4*time.Second, s.Duration)
	assert.Equal(t, map[string]int{"DANGER": 2, "TRANSITION": 1, "SAFE": 2}, s.Counts)
	assert.Equal(t, time.Second, s.TimeIn["DANGER"])
	assert.Equal(t, 2*time.Second, s.TimeIn["TRANSITION"])
	assert.Equal(t, time.Second, s.TimeIn["SAFE"])
	assert.InDelta(t, 0.4, s.DangerFraction, 1e-9)
	assert.InDelta(t, 0.4, s.SafeFraction, 1e-9)
	assert.Equal(t, 2, s.DecisionChanges)

	assert.Equal(t, 2, s.MovingFrames)
	assert.InDelta(t, 100, s.MeanVehicleSpeed, 1e-9)
	assert.InDelta(t, 120, s.P95VehicleSpeed, 1e-9)
	assert.InDelta(t, 120, s.MaxVehicleSpeed, 1e-9)
}

func TestSummarizeEmpty(t *testing.T) {
	t.Parallel()
	s := Summarize("none", nil)
	assert.Zero(t, s.Frames)
	assert.Zero(t, s.Duration)
	assert.Zero(t, s.DangerFraction)
	assert.Empty(t, s.Counts)
}

func TestTimelineHTML(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	require.NoError(t, TimelineHTML(&buf, "Session s", fixture()))
	out := buf.String()
	assert.Contains(t, out, "<title>Session s</title>")
	assert.Contains(t, out, "TRANSITION")
	assert.Contains(t, out, "max speed")
}

func TestTimelinePNG(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	require.NoError(t, TimelinePNG(&buf, "Session s", fixture()))
	require.Greater(t, buf.Len(), 8)
	assert.Equal(t, []byte("\x89PNG\r\n\x1a\n"), buf.Bytes()[:8])
}

func TestTimelinePNGEmpty(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	require.NoError(t, TimelinePNG(&buf, "empty", nil))
	assert.NotZero(t, buf.Len())
}

func TestSaveTimelinePNG(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "timeline.png")
	require.NoError(t, SaveTimelinePNG(path, "Session s", fixture()))
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.NotZero(t, info.Size())
}

func TestLevelOrdering(t *testing.T) {
	t.Parallel()
	assert.Less(t, level(crossing.DecisionDanger), level(crossing.DecisionSafe))
	assert.Equal(t, float64(len(decisionLevels)), level(crossing.Decision(42)))
}
