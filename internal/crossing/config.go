package crossing

import (
	"time"

	"github.com/banshee-data/crosswalk/internal/config"
)

// Config holds the thresholds used by every pipeline stage.
type Config struct {
	// DebounceWindow is how long a danger or green observation keeps
	// dominating the decision after it was last seen.
	DebounceWindow time.Duration

	// MovingSpeedThreshold separates moving from stationary vehicles in
	// pixels per second. A vehicle exactly at the threshold is stationary.
	MovingSpeedThreshold float64

	// MinElapsed floors the time between two sightings of a track when
	// computing speed.
	MinElapsed time.Duration

	Color ColorConfig

	VehicleLabels     []string
	TrafficLightLabel string
}

// DefaultConfig returns production-default pipeline parameters.
func DefaultConfig() Config {
	return Config{
		DebounceWindow:       2000 * time.Millisecond,
		MovingSpeedThreshold: 40,
		MinElapsed:           time.Millisecond,
		Color:                DefaultColorConfig(),
		VehicleLabels:        []string{"car", "truck", "bus", "motorcycle"},
		TrafficLightLabel:    "traffic light",
	}
}

// ConfigFromTuning derives the pipeline config from a TuningConfig.
func ConfigFromTuning(cfg *config.TuningConfig) Config {
	labels := cfg.GetVehicleLabels()
	normalized := make([]string, 0, len(labels))
	for _, l := range labels {
		if l = normalizeLabel(l); l != "" {
			normalized = append(normalized, l)
		}
	}
	return Config{
		DebounceWindow:       cfg.GetDebounceWindow(),
		MovingSpeedThreshold: cfg.GetMovingSpeedThreshold(),
		MinElapsed:           time.Millisecond,
		Color: ColorConfig{
			MinSaturation:  cfg.GetMinSaturation(),
			MinValue:       cfg.GetMinValue(),
			DominanceRatio: cfg.GetDominanceRatio(),
			SampleSteps:    cfg.GetSampleSteps(),
		},
		VehicleLabels:     normalized,
		TrafficLightLabel: normalizeLabel(cfg.GetTrafficLightLabel()),
	}
}

func (c Config) isVehicle(label string) bool {
	for _, v := range c.VehicleLabels {
		if label == v {
			return true
		}
	}
	return false
}

func (c Config) isTrafficLight(label string) bool {
	return label == c.TrafficLightLabel
}
