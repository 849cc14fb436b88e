package fdp

import (
	"sync"
)

// AudioAnnouncer speaks the case on focus. It is created by the caller
// and injected into a Session; nothing happens before Init or after Destroy.
type AudioAnnouncer struct {
	mu      sync.Mutex
	mode    AudioMode
	privacy bool
	speaker Speaker
	ready   bool
}

func NewAudioAnnouncer(mode AudioMode, privacy bool, speaker Speaker) *AudioAnnouncer {
	if mode == "" {
		mode = AudioOff
	}
	return &AudioAnnouncer{mode: mode, privacy: privacy, speaker: speaker}
}

// Init readies the announcer. Any mode other than off needs a speaker.
func (a *AudioAnnouncer) Init() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.mode != AudioOff && a.speaker == nil {
		return ErrNoSpeaker
	}
	a.ready = true
	return nil
}

func (a *AudioAnnouncer) Destroy() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.ready = false
}

func (a *AudioAnnouncer) Mode() AudioMode {
	return a.mode
}

// Announce plays the cue and, depending on mode, speaks the accession and
// patient name. Privacy mode never speaks the name.
func (a *AudioAnnouncer) Announce(c CaseContext) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.ready || a.mode == AudioOff {
		return
	}
	a.speaker.PlayCue()
	if text := a.textFor(c); text != "" {
		a.speaker.Speak(text)
	}
}

func (a *AudioAnnouncer) textFor(c CaseContext) string {
	switch a.mode {
	case AudioBrief:
		return "Case " + c.Accession()
	case AudioFull:
		if a.privacy || c.PatientName == "" {
			return "Case " + c.Accession()
		}
		return "Case " + c.Accession() + ", " + c.PatientName
	default:
		return ""
	}
}
