// Package report summarises logged crossing sessions and renders decision
// timelines as HTML (go-echarts) or PNG (gonum/plot).
package report

import (
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/crosswalk/internal/crossing"
	"github.com/banshee-data/crosswalk/internal/db"
)

// Summary describes one session's decision log.
type Summary struct {
	SessionID string        `json:"session_id"`
	Frames    int           `json:"frames"`
	Duration  time.Duration `json:"duration_ns"`

	Counts map[string]int `json:"counts"`
	// TimeIn is how long each decision was in force, each record lasting
	// until the next one.
	TimeIn map[string]time.Duration `json:"time_in_ns"`

	DangerFraction  float64 `json:"danger_fraction"`
	SafeFraction    float64 `json:"safe_fraction"`
	DecisionChanges int     `json:"decision_changes"`

	// Speed statistics over frames where a vehicle was moving, px/s.
	MovingFrames     int     `json:"moving_frames"`
	MeanVehicleSpeed float64 `json:"mean_vehicle_speed_px_s"`
	P95VehicleSpeed  float64 `json:"p95_vehicle_speed_px_s"`
	MaxVehicleSpeed  float64 `json:"max_vehicle_speed_px_s"`
}

// Summarize computes a Summary from records in timestamp order.
func Summarize(sessionID string, records []db.DecisionRecord) Summary {
	s := Summary{
		SessionID: sessionID,
		Frames:    len(records),
		Counts:    make(map[string]int),
		TimeIn:    make(map[string]time.Duration),
	}
	if len(records) == 0 {
		return s
	}

	var speeds []float64
	for i, r := range records {
		name := r.Decision.String()
		s.Counts[name]++
		if i > 0 && r.Decision != records[i-1].Decision {
			s.DecisionChanges++
		}
		if i+1 < len(records) {
			s.TimeIn[name] += records[i+1].Timestamp.Sub(r.Timestamp)
		}
		if r.Signals.MovingVehicle && r.MaxVehicleSpeed > 0 {
			speeds = append(speeds, r.MaxVehicleSpeed)
		}
	}
	s.Duration = records[len(records)-1].Timestamp.Sub(records[0].Timestamp)
	n := float64(len(records))
	s.DangerFraction = float64(s.Counts[crossing.DecisionDanger.String()]) / n
	s.SafeFraction = float64(s.Counts[crossing.DecisionSafe.String()]) / n

	s.MovingFrames = len(speeds)
	if len(speeds) > 0 {
		sort.Float64s(speeds)
		s.MeanVehicleSpeed = stat.Mean(speeds, nil)
		s.P95VehicleSpeed = stat.Quantile(0.95, stat.Empirical, speeds, nil)
		s.MaxVehicleSpeed = speeds[len(speeds)-1]
	}
	return s
}
