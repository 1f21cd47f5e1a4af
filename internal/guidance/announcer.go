package guidance

import (
	"sync"

	"github.com/banshee-data/crosswalk/internal/crossing"
	"github.com/banshee-data/crosswalk/internal/monitoring"
	"github.com/banshee-data/crosswalk/internal/stream"
)

// Speaker says text aloud at a volume of 0-100.
type Speaker interface {
	Speak(text string, volume int) error
}

// LogSpeaker logs what would have been spoken. It serves headless
// deployments without a speech engine.
type LogSpeaker struct{}

// Speak implements Speaker.
func (LogSpeaker) Speak(text string, volume int) error {
	monitoring.Logf("guidance: say %q (volume %d)", text, volume)
	return nil
}

// Snapshot is the announcer state exposed to the UI.
type Snapshot struct {
	Status   Status   `json:"status"`
	Message  string   `json:"message"`
	Paused   bool     `json:"paused"`
	Settings Settings `json:"settings"`
}

// Announcer is a stream.Listener that speaks and vibrates whenever the road
// status changes. Repeated frames with the same status stay silent.
type Announcer struct {
	speaker Speaker
	haptics Haptics

	mu       sync.Mutex
	settings Settings
	status   Status
	paused   bool
}

var (
	_ stream.Listener  = (*Announcer)(nil)
	_ stream.Lifecycle = (*Announcer)(nil)
)

// NewAnnouncer returns an announcer. A nil speaker or haptics disables that
// channel regardless of settings.
func NewAnnouncer(s Settings, speaker Speaker, haptics Haptics) *Announcer {
	return &Announcer{speaker: speaker, haptics: haptics, settings: s.normalized()}
}

// OnDecision implements stream.Listener.
func (a *Announcer) OnDecision(ev crossing.Event) {
	a.mu.Lock()
	st := StatusFor(ev.Decision)
	if a.paused || st == a.status {
		a.mu.Unlock()
		return
	}
	a.status = st
	s := a.settings
	a.mu.Unlock()

	if s.speaks() {
		a.say(st.Message(), s.Volume)
	}
	if s.HapticEnabled && a.haptics != nil {
		if err := a.haptics.Vibrate(st.Pattern()); err != nil {
			monitoring.Logf("guidance: vibrate %s: %v", st, err)
		}
	}
}

// OnSessionStart implements stream.Lifecycle. A new session announces itself
// and forgets the previous status so the first decision is always spoken.
func (a *Announcer) OnSessionStart(stream.SessionInfo) {
	a.mu.Lock()
	a.status = ""
	s, paused := a.settings, a.paused
	a.mu.Unlock()
	if s.speaks() && !paused {
		a.say(MsgActivated, s.Volume)
	}
}

// OnSessionStop implements stream.Lifecycle.
func (a *Announcer) OnSessionStop(stream.SessionInfo) {}

// Pause silences guidance until Resume.
func (a *Announcer) Pause() {
	a.setPaused(true, MsgPaused)
}

// Resume re-enables guidance. The next decision is announced even when the
// status did not change while paused.
func (a *Announcer) Resume() {
	a.setPaused(false, MsgResumed)
}

func (a *Announcer) setPaused(paused bool, msg string) {
	a.mu.Lock()
	if a.paused == paused {
		a.mu.Unlock()
		return
	}
	a.paused = paused
	a.status = ""
	s := a.settings
	a.mu.Unlock()
	if s.speaks() {
		a.say(msg, s.Volume)
	}
}

// SetSettings replaces the feedback preferences.
func (a *Announcer) SetSettings(s Settings) {
	a.mu.Lock()
	a.settings = s.normalized()
	a.mu.Unlock()
}

// Snapshot returns the current status and settings.
func (a *Announcer) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	st := a.status
	if st == "" {
		st = StatusWait
	}
	return Snapshot{Status: st, Message: st.Message(), Paused: a.paused, Settings: a.settings}
}

func (a *Announcer) say(text string, volume int) {
	if a.speaker == nil {
		return
	}
	if err := a.speaker.Speak(text, volume); err != nil {
		monitoring.Logf("guidance: speak %q: %v", text, err)
	}
}
