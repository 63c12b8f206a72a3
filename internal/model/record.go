package model

import "strings"

// PatientRecord is one line of the JSONL feed: demographics plus the
// nested clinical sub-entities created after the patient exists.
// Field names follow the feed, which in turn follows the target's
// form field names.
type PatientRecord struct {
	FirstName   string `json:"fname" validate:"required"`
	LastName    string `json:"lname" validate:"required"`
	MiddleName  string `json:"mname"`
	DOB         string `json:"DOB" validate:"required"`
	Sex         string `json:"sex" validate:"required"`
	Street      string `json:"street"`
	City        string `json:"city"`
	PostalCode  string `json:"postal_code"`
	CountryCode string `json:"country_code"`
	PhoneCell   string `json:"phone_cell"`
	Email       string `json:"email"`
	Language    string `json:"language"`
	Status      string `json:"status"`
	SSN         string `json:"ssn"`
	ExternalID  string `json:"external_id"`

	Problems    []Problem    `json:"problems"`
	Medications []Medication `json:"medications"`
	Allergies   []Allergy    `json:"allergies"`
	History     *History     `json:"history"`
	Insurance   *Insurance   `json:"insurance"`
	Encounters  []Encounter  `json:"encounters"`
}

// FullName returns the display name used in logs and the run report.
func (r *PatientRecord) FullName() string {
	parts := []string{r.FirstName, r.MiddleName, r.LastName}
	name := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			name = append(name, p)
		}
	}
	return strings.Join(name, " ")
}
