package fdp

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"zero base", func(c *Config) { c.BaseDuration = 0 }},
		{"max below base", func(c *Config) { c.MaxDuration = c.BaseDuration - time.Millisecond }},
		{"zero heartbeat", func(c *Config) { c.HeartbeatInterval = 0 }},
		{"unknown audio mode", func(c *Config) { c.AudioMode = "loud" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			assert.True(t, errors.Is(err, ErrInvalidConfig), "got %v", err)
		})
	}
}

func TestDecay(t *testing.T) {
	cfg := DefaultConfig()

	tests := []struct {
		minutes float64
		want    time.Duration
	}{
		{0, 2 * time.Second},
		{5, 2500 * time.Millisecond},
		{10, 3 * time.Second},
		{2.5, 2250 * time.Millisecond},
		{30, 5 * time.Second},
		{600, 5 * time.Second},
		{-10, 2 * time.Second},
		{math.NaN(), 2 * time.Second},
		{math.Inf(1), 5 * time.Second},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Decay(cfg, tt.minutes), "minutes=%v", tt.minutes)
	}
}

func TestDecay_Disabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TimeDecayEnabled = false
	assert.Equal(t, cfg.BaseDuration, Decay(cfg, 120))
}

func TestDecay_MonotonicAndBounded(t *testing.T) {
	cfg := DefaultConfig()
	prev := Decay(cfg, -5)
	for m := -5.0; m <= 60; m += 0.25 {
		d := Decay(cfg, m)
		assert.GreaterOrEqual(t, d, prev, "minutes=%v", m)
		assert.GreaterOrEqual(t, d, cfg.BaseDuration)
		assert.LessOrEqual(t, d, cfg.MaxDuration)
		prev = d
	}
}

func TestDecay_EqualBounds(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxDuration = cfg.BaseDuration
	assert.Equal(t, cfg.BaseDuration, Decay(cfg, 45))
}

func TestDecay_InvertedBoundsNeverDropBelowBase(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxDuration = time.Second
	require.Error(t, cfg.Validate())

	for _, m := range []float64{0, 1, 30, 600} {
		assert.Equal(t, cfg.BaseDuration, Decay(cfg, m), "minutes=%v", m)
	}
}
