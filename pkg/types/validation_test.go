package types

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterPayload_Validate(t *testing.T) {
	valid := func() RegisterPayload {
		return RegisterPayload{
			UserID:            "u1",
			CaseID:            "LAB:S26-12345",
			PatientIdentifier: "MRN-001",
			ViewerType:        "viewer",
			WindowID:          "w-6f1c",
			OpenedAt:          1700000000000,
		}
	}

	tests := []struct {
		name    string
		mutate  func(p *RegisterPayload)
		wantErr error
	}{
		{"valid payload", func(p *RegisterPayload) {}, nil},
		{"empty user", func(p *RegisterPayload) { p.UserID = "" }, ErrInvalidUserID},
		{"user with spaces", func(p *RegisterPayload) { p.UserID = "dr smith" }, ErrInvalidUserID},
		{"empty window", func(p *RegisterPayload) { p.WindowID = "" }, ErrInvalidWindowID},
		{"window too long", func(p *RegisterPayload) { p.WindowID = strings.Repeat("w", 129) }, ErrInvalidWindowID},
		{"empty case", func(p *RegisterPayload) { p.CaseID = "" }, ErrInvalidCaseID},
		{"case with control char", func(p *RegisterPayload) { p.CaseID = "LAB:\x00S26" }, ErrInvalidCaseID},
		{"patient identifier too long", func(p *RegisterPayload) { p.PatientIdentifier = strings.Repeat("p", 257) }, ErrInvalidPatientIdentifier},
		{"empty patient identifier allowed", func(p *RegisterPayload) { p.PatientIdentifier = "" }, nil},
		{"negative openedAt", func(p *RegisterPayload) { p.OpenedAt = -1 }, ErrInvalidTimestamp},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := valid()
			tt.mutate(&p)
			assert.Equal(t, tt.wantErr, p.Validate())
		})
	}
}

func TestRegisterPayload_ValidateNormalizesViewerType(t *testing.T) {
	p := RegisterPayload{UserID: "u1", CaseID: "C-001", WindowID: "w1", ViewerType: "Case-Context "}
	require.NoError(t, p.Validate())
	assert.Equal(t, ViewerTypeCaseContext, p.ViewerType)

	p.ViewerType = "hologram"
	require.NoError(t, p.Validate())
	assert.Equal(t, ViewerTypeOther, p.ViewerType)
}

func TestFocusPayload_Validate(t *testing.T) {
	assert.NoError(t, (&FocusPayload{WindowID: "w1", CaseID: "C-002"}).Validate())
	assert.Equal(t, ErrInvalidWindowID, (&FocusPayload{CaseID: "C-002"}).Validate())
	assert.Equal(t, ErrInvalidCaseID, (&FocusPayload{WindowID: "w1"}).Validate())
}

func TestIsInboundType(t *testing.T) {
	for _, mt := range []string{MessageTypeRegister, MessageTypeDeregister, MessageTypeHeartbeat, MessageTypeFocus} {
		assert.True(t, IsInboundType(mt), mt)
	}
	for _, mt := range []string{MessageTypeAck, MessageTypeWarning, MessageTypeSync, MessageTypeError, "", "subscribe"} {
		assert.False(t, IsInboundType(mt), mt)
	}
}

func TestAck_OnlyNamedFlagIsSerialized(t *testing.T) {
	data, err := json.Marshal(NewAck(AckPayload{WindowID: "w1", Heartbeat: Bool(true)}))
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	payload := decoded["payload"].(map[string]interface{})

	assert.Equal(t, "ack", decoded["type"])
	assert.Equal(t, true, payload["heartbeat"])
	assert.NotContains(t, payload, "registered")
	assert.NotContains(t, payload, "deregistered")
}

func TestRegistration_Info(t *testing.T) {
	opened := time.UnixMilli(1700000000000)
	reg := &Registration{
		ConnectionID:  "conn-1",
		UserID:        "u1",
		WindowID:      "w1",
		CaseID:        "C-001",
		ViewerType:    ViewerTypeViewer,
		OpenedAt:      opened,
		LastHeartbeat: opened.Add(30 * time.Second),
	}

	info := reg.Info()
	assert.Equal(t, int64(1700000000000), info.OpenedAt)
	assert.Equal(t, int64(1700000030000), info.LastHeartbeat)

	data, err := json.Marshal(info)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "conn-1")
}

func TestMillisConversion_ZeroIsZeroTime(t *testing.T) {
	assert.True(t, MillisToTime(0).IsZero())
	assert.Equal(t, int64(0), TimeToMillis(time.Time{}))
}
