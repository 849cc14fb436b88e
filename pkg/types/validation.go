package types

import (
	"regexp"
	"strings"
	"unicode"
)

// Compiled once; IDs are checked on every inbound frame.
var identifierRegex = regexp.MustCompile(`^[a-zA-Z0-9_:.\-]{1,128}$`)

// IsValidUserID checks the user ID format.
func IsValidUserID(userID string) bool {
	return identifierRegex.MatchString(userID)
}

// IsValidWindowID checks the client-generated window token format.
func IsValidWindowID(windowID string) bool {
	return identifierRegex.MatchString(windowID)
}

// IsValidCaseID accepts lab-qualified accessions such as "LAB:S26-12345".
// Length is bounded and control characters are rejected; the accession
// format itself belongs to the LIS, not to this service.
func IsValidCaseID(caseID string) bool {
	if len(caseID) < 1 || len(caseID) > 128 {
		return false
	}
	return isPrintable(caseID)
}

// IsValidPatientIdentifier allows an empty identifier.
func IsValidPatientIdentifier(id string) bool {
	return len(id) <= 256 && isPrintable(id)
}

// NormalizeViewerType maps unknown viewer types to ViewerTypeOther.
func NormalizeViewerType(viewerType string) string {
	switch strings.ToLower(strings.TrimSpace(viewerType)) {
	case ViewerTypeViewer:
		return ViewerTypeViewer
	case ViewerTypeCaseContext:
		return ViewerTypeCaseContext
	case ViewerTypeThumbnail:
		return ViewerTypeThumbnail
	default:
		return ViewerTypeOther
	}
}

// IsInboundType reports whether msgType is one the service accepts.
func IsInboundType(msgType string) bool {
	switch msgType {
	case MessageTypeRegister, MessageTypeDeregister, MessageTypeHeartbeat, MessageTypeFocus:
		return true
	default:
		return false
	}
}

// Validate checks a register payload and normalizes its viewer type.
func (p *RegisterPayload) Validate() error {
	if !IsValidUserID(p.UserID) {
		return ErrInvalidUserID
	}
	if !IsValidWindowID(p.WindowID) {
		return ErrInvalidWindowID
	}
	if !IsValidCaseID(p.CaseID) {
		return ErrInvalidCaseID
	}
	if !IsValidPatientIdentifier(p.PatientIdentifier) {
		return ErrInvalidPatientIdentifier
	}
	if p.OpenedAt < 0 {
		return ErrInvalidTimestamp
	}
	p.ViewerType = NormalizeViewerType(p.ViewerType)
	return nil
}

func (p *DeregisterPayload) Validate() error {
	if !IsValidWindowID(p.WindowID) {
		return ErrInvalidWindowID
	}
	return nil
}

func (p *HeartbeatPayload) Validate() error {
	if !IsValidWindowID(p.WindowID) {
		return ErrInvalidWindowID
	}
	if p.FocusedAt < 0 {
		return ErrInvalidTimestamp
	}
	return nil
}

func (p *FocusPayload) Validate() error {
	if !IsValidWindowID(p.WindowID) {
		return ErrInvalidWindowID
	}
	if !IsValidCaseID(p.CaseID) {
		return ErrInvalidCaseID
	}
	return nil
}

func isPrintable(s string) bool {
	for _, r := range s {
		if !unicode.IsPrint(r) {
			return false
		}
	}
	return true
}
