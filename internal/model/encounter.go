package model

// Encounter is a visit record. Vitals and labs are created against
// the encounter id the target assigns on creation.
type Encounter struct {
	Date   string      `json:"date"`
	Reason string      `json:"reason"`
	Vitals *Vitals     `json:"vitals"`
	Labs   []LabResult `json:"labs"`
}

// Vitals is the flat measurement set of one visit. The feed carries
// measurements as strings or bare numbers depending on the exporter,
// so every field is a FlexString.
type Vitals struct {
	Weight           FlexString `json:"weight"`
	Height           FlexString `json:"height"`
	BPSystolic       FlexString `json:"bps"`
	BPDiastolic      FlexString `json:"bpd"`
	Pulse            FlexString `json:"pulse"`
	Respiration      FlexString `json:"respiration"`
	Temperature      FlexString `json:"temperature"`
	OxygenSaturation FlexString `json:"oxygen_saturation"`
	Note             string     `json:"note"`
}

// LabResult is a coded observation with a value and unit.
type LabResult struct {
	Code           string     `json:"code"`
	Description    string     `json:"description"`
	Value          FlexString `json:"value"`
	Unit           string     `json:"unit"`
	Date           string     `json:"date"`
	Comments       string     `json:"comments"`
	ReferenceRange string     `json:"reference_range"`
}
