package fdp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAudio_Modes(t *testing.T) {
	tests := []struct {
		mode    AudioMode
		privacy bool
		cues    int
		spoken  []string
	}{
		{AudioOff, false, 0, nil},
		{AudioChime, false, 1, nil},
		{AudioBrief, false, 1, []string{"Case S26-12345"}},
		{AudioFull, false, 1, []string{"Case S26-12345, Doe, Jane Q"}},
		{AudioFull, true, 1, []string{"Case S26-12345"}},
	}
	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			speaker := &recordingSpeaker{}
			a := NewAudioAnnouncer(tt.mode, tt.privacy, speaker)
			require.NoError(t, a.Init())

			a.Announce(testCase)
			assert.Equal(t, tt.cues, speaker.cues)
			assert.Equal(t, tt.spoken, speaker.spoken)
		})
	}
}

func TestAudio_Lifecycle(t *testing.T) {
	speaker := &recordingSpeaker{}
	a := NewAudioAnnouncer(AudioChime, false, speaker)

	a.Announce(testCase)
	assert.Zero(t, speaker.cues, "silent before Init")

	require.NoError(t, a.Init())
	a.Announce(testCase)
	a.Destroy()
	a.Announce(testCase)
	assert.Equal(t, 1, speaker.cues)
}

func TestAudio_RequiresSpeaker(t *testing.T) {
	assert.ErrorIs(t, NewAudioAnnouncer(AudioBrief, false, nil).Init(), ErrNoSpeaker)
	assert.NoError(t, NewAudioAnnouncer("", false, nil).Init())
}
