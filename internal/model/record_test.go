package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validRecord() *PatientRecord {
	return &PatientRecord{
		FirstName: "An",
		LastName:  "Nguyen",
		DOB:       "1990-01-01",
		Sex:       "Male",
	}
}

func TestValidate(t *testing.T) {
	assert.NoError(t, validRecord().Validate())
}

func TestValidateMissingDemographics(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*PatientRecord)
	}{
		{"missing first name", func(r *PatientRecord) { r.FirstName = "" }},
		{"missing last name", func(r *PatientRecord) { r.LastName = "" }},
		{"missing DOB", func(r *PatientRecord) { r.DOB = "" }},
		{"missing sex", func(r *PatientRecord) { r.Sex = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := validRecord()
			tt.mutate(rec)
			assert.Error(t, rec.Validate())
		})
	}
}

func TestValidateAcceptsAnyEmailString(t *testing.T) {
	// The feed carries whatever the exporter wrote; only the target
	// decides what an acceptable email is.
	for _, email := range []string{"", "n/a", "not-an-email", "an.nguyen@example.com"} {
		rec := validRecord()
		rec.Email = email
		assert.NoError(t, rec.Validate(), "email %q", email)
	}
}

func TestValidateDoesNotRejectSubItems(t *testing.T) {
	// Sub-item problems are handled best-effort at submission time,
	// not by record validation.
	rec := validRecord()
	rec.Problems = []Problem{{Title: ""}}
	rec.Encounters = []Encounter{{Date: ""}}
	assert.NoError(t, rec.Validate())
}

func TestProblemDiagnosis(t *testing.T) {
	assert.Equal(t, "E11.9", Problem{ICD10: "E11.9"}.Diagnosis())
	assert.Equal(t, "E11.9", Problem{Code: "E11.9"}.Diagnosis())
	assert.Equal(t, "I10", Problem{ICD10: "I10", Code: "E11.9"}.Diagnosis())
}

func TestFullName(t *testing.T) {
	rec := validRecord()
	assert.Equal(t, "An Nguyen", rec.FullName())

	rec.MiddleName = "Van"
	assert.Equal(t, "An Van Nguyen", rec.FullName())
}

func TestFlexStringUnmarshal(t *testing.T) {
	var v struct {
		A FlexString `json:"a"`
		B FlexString `json:"b"`
		C FlexString `json:"c"`
		D FlexString `json:"d"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":"128","b":152,"c":98.6,"d":null}`), &v))
	assert.Equal(t, "128", v.A.String())
	assert.Equal(t, "152", v.B.String())
	assert.Equal(t, "98.6", v.C.String())
	assert.Equal(t, "", v.D.String())
}
