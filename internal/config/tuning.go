package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig is the root of the JSON tuning file. Every field is optional:
// unset fields fall back to the defaults returned by the Get* accessors, so
// partial files are safe.
type TuningConfig struct {
	// Decision params
	DebounceWindow           *string  `json:"debounce_window,omitempty"` // duration string like "2s"
	MovingSpeedThresholdPxPS *float64 `json:"moving_speed_threshold_px_s,omitempty"`

	// Colour classifier params
	MinSaturation  *float64 `json:"min_saturation,omitempty"`
	MinValue       *float64 `json:"min_value,omitempty"`
	DominanceRatio *float64 `json:"dominance_ratio,omitempty"`
	SampleSteps    *int     `json:"sample_steps,omitempty"`

	// Label params
	VehicleLabels     []string `json:"vehicle_labels,omitempty"`
	TrafficLightLabel *string  `json:"traffic_light_label,omitempty"`

	// Detector-side filtering applied before frames reach the pipeline.
	ScoreThreshold *float64 `json:"score_threshold,omitempty"`
	MaxResults     *int     `json:"max_results,omitempty"`

	// Guidance params
	SoundEnabled  *bool `json:"sound_enabled,omitempty"`
	VoiceGuidance *bool `json:"voice_guidance,omitempty"`
	HapticEnabled *bool `json:"haptic_enabled,omitempty"`
	Volume        *int  `json:"volume,omitempty"`
}

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file must have a .json extension and be at most 1MB.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical defaults from DefaultConfigPath,
// searching upwards from the working directory. Panics if the file cannot be
// loaded; intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath, // from internal/config/
		"../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

func inUnit(name string, v *float64) error {
	if v != nil && (*v < 0 || *v > 1) {
		return fmt.Errorf("%s must be between 0 and 1, got %f", name, *v)
	}
	return nil
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	if c.DebounceWindow != nil && *c.DebounceWindow != "" {
		d, err := time.ParseDuration(*c.DebounceWindow)
		if err != nil {
			return fmt.Errorf("invalid debounce_window '%s': %w", *c.DebounceWindow, err)
		}
		if d <= 0 {
			return fmt.Errorf("debounce_window must be positive, got %s", d)
		}
	}

	if c.MovingSpeedThresholdPxPS != nil && *c.MovingSpeedThresholdPxPS < 0 {
		return fmt.Errorf("moving_speed_threshold_px_s must be non-negative, got %f", *c.MovingSpeedThresholdPxPS)
	}

	for _, f := range []struct {
		name string
		v    *float64
	}{
		{"min_saturation", c.MinSaturation},
		{"min_value", c.MinValue},
		{"dominance_ratio", c.DominanceRatio},
		{"score_threshold", c.ScoreThreshold},
	} {
		if err := inUnit(f.name, f.v); err != nil {
			return err
		}
	}

	if c.SampleSteps != nil && *c.SampleSteps < 1 {
		return fmt.Errorf("sample_steps must be at least 1, got %d", *c.SampleSteps)
	}
	if c.MaxResults != nil && *c.MaxResults < 0 {
		return fmt.Errorf("max_results must be non-negative, got %d", *c.MaxResults)
	}
	if c.Volume != nil && (*c.Volume < 0 || *c.Volume > 100) {
		return fmt.Errorf("volume must be between 0 and 100, got %d", *c.Volume)
	}
	if c.TrafficLightLabel != nil && strings.TrimSpace(*c.TrafficLightLabel) == "" {
		return fmt.Errorf("traffic_light_label must not be empty")
	}

	return nil
}

// GetDebounceWindow parses and returns the DebounceWindow as a time.Duration.
func (c *TuningConfig) GetDebounceWindow() time.Duration {
	if c.DebounceWindow == nil || *c.DebounceWindow == "" {
		return 2 * time.Second // default
	}
	d, err := time.ParseDuration(*c.DebounceWindow)
	if err != nil {
		return 2 * time.Second // default on parse error
	}
	return d
}

// GetMovingSpeedThreshold returns the moving_speed_threshold_px_s value or the default.
func (c *TuningConfig) GetMovingSpeedThreshold() float64 {
	if c.MovingSpeedThresholdPxPS == nil {
		return 40
	}
	return *c.MovingSpeedThresholdPxPS
}

// GetMinSaturation returns the min_saturation value or the default.
func (c *TuningConfig) GetMinSaturation() float64 {
	if c.MinSaturation == nil {
		return 0.3
	}
	return *c.MinSaturation
}

// GetMinValue returns the min_value value or the default.
func (c *TuningConfig) GetMinValue() float64 {
	if c.MinValue == nil {
		return 0.3
	}
	return *c.MinValue
}

// GetDominanceRatio returns the dominance_ratio value or the default.
func (c *TuningConfig) GetDominanceRatio() float64 {
	if c.DominanceRatio == nil {
		return 0.3
	}
	return *c.DominanceRatio
}

// GetSampleSteps returns the sample_steps value or the default.
func (c *TuningConfig) GetSampleSteps() int {
	if c.SampleSteps == nil {
		return 10
	}
	return *c.SampleSteps
}

// GetVehicleLabels returns the vehicle_labels value or the default.
func (c *TuningConfig) GetVehicleLabels() []string {
	if len(c.VehicleLabels) == 0 {
		return []string{"car", "truck", "bus", "motorcycle"}
	}
	out := make([]string, len(c.VehicleLabels))
	copy(out, c.VehicleLabels)
	return out
}

// GetTrafficLightLabel returns the traffic_light_label value or the default.
func (c *TuningConfig) GetTrafficLightLabel() string {
	if c.TrafficLightLabel == nil {
		return "traffic light"
	}
	return strings.TrimSpace(*c.TrafficLightLabel)
}

// GetScoreThreshold returns the score_threshold value or the default.
func (c *TuningConfig) GetScoreThreshold() float64 {
	if c.ScoreThreshold == nil {
		return 0 // default: the detector already filtered
	}
	return *c.ScoreThreshold
}

// GetMaxResults returns the max_results value or the default (0 = unlimited).
func (c *TuningConfig) GetMaxResults() int {
	if c.MaxResults == nil {
		return 0
	}
	return *c.MaxResults
}

// GetSoundEnabled returns the sound_enabled value or the default.
func (c *TuningConfig) GetSoundEnabled() bool {
	if c.SoundEnabled == nil {
		return true
	}
	return *c.SoundEnabled
}

// GetVoiceGuidance returns the voice_guidance value or the default.
func (c *TuningConfig) GetVoiceGuidance() bool {
	if c.VoiceGuidance == nil {
		return true
	}
	return *c.VoiceGuidance
}

// GetHapticEnabled returns the haptic_enabled value or the default.
func (c *TuningConfig) GetHapticEnabled() bool {
	if c.HapticEnabled == nil {
		return true
	}
	return *c.HapticEnabled
}

// GetVolume returns the volume value or the default.
func (c *TuningConfig) GetVolume() int {
	if c.Volume == nil {
		return 80
	}
	return *c.Volume
}
