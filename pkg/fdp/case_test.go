package fdp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInitials(t *testing.T) {
	tests := map[string]string{
		"Jane Q Doe":     "J.Q.D.",
		"Doe, Jane Q":    "J.Q.D.",
		"jane doe":       "J.D.",
		"J. R. R. Smith": "J.R.R.S.",
		"":               "",
		"  ":             "",
		"Élodie Martin":  "É.M.",
		"O'Neil 3rd":     "O.",
	}
	for name, want := range tests {
		assert.Equal(t, want, Initials(name), "name=%q", name)
	}
}

func TestCaseContext(t *testing.T) {
	assert.Equal(t, "S26-12345", testCase.Accession())
	assert.Equal(t, "S26-99", CaseContext{CaseID: "S26-99"}.Accession())
	assert.Equal(t, "LAB:", CaseContext{CaseID: "LAB:"}.Accession())

	assert.Equal(t, "Doe, Jane Q", testCase.DisplayPatient(false))
	assert.Equal(t, "J.Q.D.", testCase.DisplayPatient(true))

	assert.NoError(t, testCase.Validate())
	assert.ErrorIs(t, CaseContext{CaseID: " "}.Validate(), ErrInvalidCase)
}
