package guidance

import "github.com/banshee-data/crosswalk/internal/config"

// Settings are the user's feedback preferences.
type Settings struct {
	SoundEnabled  bool `json:"sound_enabled"`
	VoiceGuidance bool `json:"voice_guidance"`
	HapticEnabled bool `json:"haptic_enabled"`
	// Volume is 0-100.
	Volume int `json:"volume"`
}

// DefaultSettings enables every channel at volume 80.
func DefaultSettings() Settings {
	return Settings{SoundEnabled: true, VoiceGuidance: true, HapticEnabled: true, Volume: 80}
}

// SettingsFromTuning reads the guidance keys of a tuning file.
func SettingsFromTuning(cfg *config.TuningConfig) Settings {
	return Settings{
		SoundEnabled:  cfg.GetSoundEnabled(),
		VoiceGuidance: cfg.GetVoiceGuidance(),
		HapticEnabled: cfg.GetHapticEnabled(),
		Volume:        cfg.GetVolume(),
	}.normalized()
}

func (s Settings) speaks() bool { return s.SoundEnabled && s.VoiceGuidance }

func (s Settings) normalized() Settings {
	if s.Volume < 0 {
		s.Volume = 0
	}
	if s.Volume > 100 {
		s.Volume = 100
	}
	return s
}
