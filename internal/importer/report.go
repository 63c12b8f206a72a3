package importer

import (
	"github.com/google/uuid"

	"github.com/meddies/emr-importer/pkg/logger"
)

// ImportedPatient is one successfully created record.
type ImportedPatient struct {
	Name string
	PID  int
}

// FailedRecord is a record that produced no patient.
type FailedRecord struct {
	Name   string
	Reason string
}

// Report accumulates the outcome of one run.
type Report struct {
	RunID    uuid.UUID
	Imported []ImportedPatient
	Failed   []FailedRecord

	Problems    int
	Medications int
	Allergies   int
	Histories   int
	Insurances  int
	Encounters  int
	Vitals      int
	Labs        int

	// Errors counts best-effort sub-item failures; failed records
	// are tracked separately.
	Errors int
}

func NewReport() *Report {
	return &Report{RunID: uuid.New()}
}

func (r *Report) RecordImported(name string, pid int) {
	r.Imported = append(r.Imported, ImportedPatient{Name: name, PID: pid})
}

func (r *Report) RecordFailed(name string, err error) {
	r.Failed = append(r.Failed, FailedRecord{Name: name, Reason: err.Error()})
}

func (r *Report) SubmissionFailed() {
	r.Errors++
}

// Log writes the run summary.
func (r *Report) Log(log *logger.Logger) {
	log.Info("import complete",
		"run_id", r.RunID.String(),
		"imported", len(r.Imported),
		"failed", len(r.Failed),
		"problems", r.Problems,
		"medications", r.Medications,
		"allergies", r.Allergies,
		"histories", r.Histories,
		"insurances", r.Insurances,
		"encounters", r.Encounters,
		"vitals", r.Vitals,
		"labs", r.Labs,
		"submission_errors", r.Errors,
	)
	for _, p := range r.Imported {
		log.Info("imported patient", "name", p.Name, "pid", p.PID)
	}
	for _, f := range r.Failed {
		log.Warn("failed record", "name", f.Name, "reason", f.Reason)
	}
}
