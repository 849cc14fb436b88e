package types

import (
	"encoding/json"
	"time"
)

// Wire message types. Inbound frames are sent by viewer windows, outbound
// frames by the awareness service.
const (
	MessageTypeRegister   = "register"
	MessageTypeDeregister = "deregister"
	MessageTypeHeartbeat  = "heartbeat"
	MessageTypeFocus      = "focus"

	MessageTypeAck     = "ack"
	MessageTypeWarning = "warning"
	MessageTypeSync    = "sync"
	MessageTypeError   = "error"
)

// Viewer types a window may declare on register. Anything else is stored as ViewerTypeOther.
const (
	ViewerTypeViewer      = "viewer"
	ViewerTypeCaseContext = "case-context"
	ViewerTypeThumbnail   = "thumbnail"
	ViewerTypeOther       = "other"
)

// WarningType identifies the safety condition a SessionWarning reports.
type WarningType string

const (
	WarningMultiCase    WarningType = "multi-case"
	WarningCaseMismatch WarningType = "case-mismatch"
	WarningStaleWindow  WarningType = "stale-window"
)

// Error codes carried in outbound error frames.
const (
	ErrorCodeInvalidJSON             = "invalid_json"
	ErrorCodeUnknownType             = "unknown_type"
	ErrorCodeInvalidPayload          = "invalid_payload"
	ErrorCodeConnectionLimitExceeded = "connection_limit_exceeded"
	ErrorCodeRateLimited             = "rate_limited"
	ErrorCodeInternal                = "internal_error"
)

// Envelope is the inbound frame shape: {type, payload}.
// Payload is decoded lazily once the type is known.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// OutboundMessage is the outbound frame shape.
type OutboundMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// RegisterPayload announces that a window has opened a case.
// OpenedAt is Unix epoch milliseconds as produced by the browser.
type RegisterPayload struct {
	UserID            string `json:"userId"`
	CaseID            string `json:"caseId"`
	PatientIdentifier string `json:"patientIdentifier"`
	ViewerType        string `json:"viewerType"`
	WindowID          string `json:"windowId"`
	OpenedAt          int64  `json:"openedAt"`
}

type DeregisterPayload struct {
	WindowID string `json:"windowId"`
}

type HeartbeatPayload struct {
	WindowID  string `json:"windowId"`
	FocusedAt int64  `json:"focusedAt,omitempty"`
}

// FocusPayload is sent by a case context window when the case the
// workflow expects for WindowID changes.
type FocusPayload struct {
	WindowID string `json:"windowId"`
	CaseID   string `json:"caseId"`
}

// AckPayload echoes the acknowledged request. Exactly one of the boolean
// pointers is set, naming the operation being acknowledged.
type AckPayload struct {
	UserID            string `json:"userId,omitempty"`
	WindowID          string `json:"windowId,omitempty"`
	CaseID            string `json:"caseId,omitempty"`
	PatientIdentifier string `json:"patientIdentifier,omitempty"`
	ViewerType        string `json:"viewerType,omitempty"`
	OpenedAt          int64  `json:"openedAt,omitempty"`
	FocusedAt         int64  `json:"focusedAt,omitempty"`
	Registered        *bool  `json:"registered,omitempty"`
	Deregistered      *bool  `json:"deregistered,omitempty"`
	Heartbeat         *bool  `json:"heartbeat,omitempty"`
	Focused           *bool  `json:"focused,omitempty"`
}

// CaseInfo describes one distinct case a user has open, with every window showing it.
type CaseInfo struct {
	CaseID            string   `json:"caseId"`
	PatientIdentifier string   `json:"patientIdentifier,omitempty"`
	WindowIDs         []string `json:"windowIds"`
	OpenedAt          int64    `json:"openedAt"`
}

// SessionWarning is recomputed from registry state on every triggering
// event and never stored.
type SessionWarning struct {
	Type           WarningType `json:"type"`
	Cases          []CaseInfo  `json:"cases"`
	Message        string      `json:"message"`
	TargetWindowID string      `json:"targetWindowId,omitempty"`
}

// SyncPayload lists a user's live registrations.
type SyncPayload struct {
	Registrations []RegistrationInfo `json:"registrations"`
}

type ErrorPayload struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// Registration binds one open window to one case. It is owned by the
// session store; callers receive copies.
type Registration struct {
	ConnectionID      string
	UserID            string
	WindowID          string
	CaseID            string
	PatientIdentifier string
	ViewerType        string
	OpenedAt          time.Time
	LastHeartbeat     time.Time
}

// RegistrationInfo is the wire form of a Registration. The connection ID
// stays server-side.
type RegistrationInfo struct {
	UserID            string `json:"userId"`
	WindowID          string `json:"windowId"`
	CaseID            string `json:"caseId"`
	PatientIdentifier string `json:"patientIdentifier,omitempty"`
	ViewerType        string `json:"viewerType"`
	OpenedAt          int64  `json:"openedAt"`
	LastHeartbeat     int64  `json:"lastHeartbeat"`
}

// Info converts the registration to its wire form.
func (r *Registration) Info() RegistrationInfo {
	return RegistrationInfo{
		UserID:            r.UserID,
		WindowID:          r.WindowID,
		CaseID:            r.CaseID,
		PatientIdentifier: r.PatientIdentifier,
		ViewerType:        r.ViewerType,
		OpenedAt:          TimeToMillis(r.OpenedAt),
		LastHeartbeat:     TimeToMillis(r.LastHeartbeat),
	}
}

// NewAck builds an ack frame.
func NewAck(payload AckPayload) *OutboundMessage {
	return &OutboundMessage{Type: MessageTypeAck, Payload: payload}
}

func NewWarning(w SessionWarning) *OutboundMessage {
	return &OutboundMessage{Type: MessageTypeWarning, Payload: w}
}

func NewSync(regs []RegistrationInfo) *OutboundMessage {
	if regs == nil {
		regs = []RegistrationInfo{}
	}
	return &OutboundMessage{Type: MessageTypeSync, Payload: SyncPayload{Registrations: regs}}
}

func NewError(code, message string) *OutboundMessage {
	return &OutboundMessage{Type: MessageTypeError, Payload: ErrorPayload{Code: code, Message: message}}
}

// Bool returns a pointer to b, for the ack flags.
func Bool(b bool) *bool {
	return &b
}

// MillisToTime converts browser epoch milliseconds. Zero maps to the zero time.
func MillisToTime(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

// TimeToMillis is the inverse of MillisToTime.
func TimeToMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}
