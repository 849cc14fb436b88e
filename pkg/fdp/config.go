package fdp

import (
	"fmt"
	"math"
	"time"
)

// AudioMode selects how much of an announcement is spoken.
type AudioMode string

const (
	AudioOff   AudioMode = "off"
	AudioChime AudioMode = "chime"
	AudioBrief AudioMode = "brief"
	AudioFull  AudioMode = "full"
)

// decayStep is added to the banner duration for every decayPeriod away from the window.
const (
	decayStep   = 500 * time.Millisecond
	decayPeriod = 5.0
)

// Config holds the per-window announcement settings.
type Config struct {
	BaseDuration      time.Duration `json:"base_duration"`
	MaxDuration       time.Duration `json:"max_duration"`
	TimeDecayEnabled  bool          `json:"time_decay_enabled"`
	PrivacyMode       bool          `json:"privacy_mode"`
	AudioMode         AudioMode     `json:"audio_mode"`
	DiagnosticMode    bool          `json:"diagnostic_mode"`
	HeartbeatInterval time.Duration `json:"heartbeat_interval"`
}

func DefaultConfig() Config {
	return Config{
		BaseDuration:      2 * time.Second,
		MaxDuration:       5 * time.Second,
		TimeDecayEnabled:  true,
		AudioMode:         AudioOff,
		HeartbeatInterval: 30 * time.Second,
	}
}

func (c Config) Validate() error {
	if c.BaseDuration <= 0 {
		return fmt.Errorf("%w: base duration must be positive", ErrInvalidConfig)
	}
	if c.MaxDuration < c.BaseDuration {
		return fmt.Errorf("%w: max duration %s is below base duration %s", ErrInvalidConfig, c.MaxDuration, c.BaseDuration)
	}
	if c.HeartbeatInterval <= 0 {
		return fmt.Errorf("%w: heartbeat interval must be positive", ErrInvalidConfig)
	}
	switch c.AudioMode {
	case AudioOff, AudioChime, AudioBrief, AudioFull:
	default:
		return fmt.Errorf("%w: unknown audio mode %q", ErrInvalidConfig, c.AudioMode)
	}
	return nil
}

// Decay returns how long the banner stays up after a window regains focus.
// With decay enabled it grows by 500ms per five minutes away, clamped to
// [BaseDuration, MaxDuration]. Negative or NaN elapsed time yields BaseDuration.
func Decay(cfg Config, minutesSinceLastFocus float64) time.Duration {
	if !cfg.TimeDecayEnabled || math.IsNaN(minutesSinceLastFocus) || minutesSinceLastFocus <= 0 {
		return cfg.BaseDuration
	}

	// An unvalidated config may have MaxDuration below BaseDuration; the
	// base is still the floor.
	upper := max(cfg.BaseDuration, cfg.MaxDuration)
	extra := (minutesSinceLastFocus / decayPeriod) * float64(decayStep)
	if extra >= float64(upper-cfg.BaseDuration) {
		return upper
	}
	return cfg.BaseDuration + time.Duration(extra)
}
