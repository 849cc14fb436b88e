package fdp

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// CaseContext identifies the case a window is showing. It is replaced, not
// mutated, when the window switches case.
type CaseContext struct {
	CaseID      string `json:"caseId"`
	PatientName string `json:"patientName"`
	PatientDOB  string `json:"patientDob,omitempty"`
	Specimen    string `json:"specimen,omitempty"`
	SlideID     string `json:"slideId,omitempty"`
}

func (c CaseContext) Validate() error {
	if strings.TrimSpace(c.CaseID) == "" {
		return ErrInvalidCase
	}
	return nil
}

// Accession strips the lab qualifier: "LAB:S26-12345" becomes "S26-12345".
func (c CaseContext) Accession() string {
	if i := strings.LastIndex(c.CaseID, ":"); i >= 0 && i < len(c.CaseID)-1 {
		return c.CaseID[i+1:]
	}
	return c.CaseID
}

// DisplayPatient returns the patient name, or only its initials in privacy mode.
func (c CaseContext) DisplayPatient(privacy bool) string {
	if privacy {
		return Initials(c.PatientName)
	}
	return c.PatientName
}

// Initials reduces a patient name to dotted initials in given-name order.
// "Doe, Jane Q" and "Jane Q Doe" both give "J.Q.D.".
func Initials(name string) string {
	if last, given, ok := strings.Cut(name, ","); ok {
		name = given + " " + last
	}

	var b strings.Builder
	for _, part := range strings.FieldsFunc(name, func(r rune) bool {
		return unicode.IsSpace(r) || r == '.'
	}) {
		r, _ := utf8.DecodeRuneInString(part)
		if !unicode.IsLetter(r) {
			continue
		}
		b.WriteRune(unicode.ToUpper(r))
		b.WriteByte('.')
	}
	return b.String()
}
