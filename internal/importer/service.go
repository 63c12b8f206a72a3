// Package importer drives the dependency-ordered import of patient
// records: demographics first, then the sub-entities that need the
// generated patient id, then encounters and their nested vitals and
// labs. Failures below the login are best-effort: logged, counted,
// and skipped.
package importer

import (
	"context"
	"fmt"

	"github.com/meddies/emr-importer/internal/model"
	apperrors "github.com/meddies/emr-importer/pkg/errors"
	"github.com/meddies/emr-importer/pkg/logger"
)

// Client is the slice of the web session the importer drives.
type Client interface {
	Login(ctx context.Context) error
	CreatePatient(ctx context.Context, rec *model.PatientRecord) (int, error)
	AddProblem(ctx context.Context, pid int, p model.Problem) error
	AddMedication(ctx context.Context, pid int, m model.Medication) error
	AddAllergy(ctx context.Context, pid int, a model.Allergy) error
	UpdateHistory(ctx context.Context, pid int, h *model.History) error
	AddInsurance(ctx context.Context, pid int, ins *model.Insurance) error
	CreateEncounter(ctx context.Context, pid int, enc model.Encounter) (int, error)
	AddVitals(ctx context.Context, pid, encounterID int, v *model.Vitals) error
	AddLabResults(ctx context.Context, pid, encounterID int, labs []model.LabResult) error
}

type Service struct {
	client Client
	log    *logger.Logger
}

func NewService(client Client, log *logger.Logger) *Service {
	return &Service{client: client, log: log}
}

// Run authenticates once and imports every record in order. Only a
// login failure aborts the run; per-record failures land in the
// report. Re-running against the same target duplicates every
// patient, which is expected for a seeding tool.
func (s *Service) Run(ctx context.Context, records []*model.PatientRecord) (*Report, error) {
	if err := s.client.Login(ctx); err != nil {
		return nil, fmt.Errorf("authentication failed: %w", err)
	}

	report := NewReport()
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		s.importRecord(ctx, rec, report)
	}
	return report, nil
}

func (s *Service) importRecord(ctx context.Context, rec *model.PatientRecord, report *Report) {
	name := rec.FullName()
	log := s.log.WithFields(map[string]interface{}{"patient": name})

	if err := rec.Validate(); err != nil {
		vErr := apperrors.InvalidRecord(name, err)
		log.Error(vErr, "skipping invalid record")
		report.RecordFailed(name, vErr)
		return
	}

	pid, err := s.client.CreatePatient(ctx, rec)
	if err != nil {
		log.Error(err, "failed to create patient, skipping record")
		report.RecordFailed(name, err)
		return
	}
	log.Info("created patient", "pid", pid)

	for _, p := range rec.Problems {
		if err := s.client.AddProblem(ctx, pid, p); err != nil {
			log.Error(err, "failed to add problem", "title", p.Title)
			report.SubmissionFailed()
			continue
		}
		report.Problems++
	}

	for _, m := range rec.Medications {
		if err := s.client.AddMedication(ctx, pid, m); err != nil {
			log.Error(err, "failed to add medication", "title", m.Title)
			report.SubmissionFailed()
			continue
		}
		report.Medications++
	}

	for _, a := range rec.Allergies {
		if err := s.client.AddAllergy(ctx, pid, a); err != nil {
			log.Error(err, "failed to add allergy", "title", a.Title)
			report.SubmissionFailed()
			continue
		}
		report.Allergies++
	}

	if rec.History != nil {
		if err := s.client.UpdateHistory(ctx, pid, rec.History); err != nil {
			log.Error(err, "failed to update history")
			report.SubmissionFailed()
		} else {
			report.Histories++
		}
	}

	if rec.Insurance != nil {
		if err := s.client.AddInsurance(ctx, pid, rec.Insurance); err != nil {
			log.Error(err, "failed to add insurance")
			report.SubmissionFailed()
		} else {
			report.Insurances++
		}
	}

	for _, enc := range rec.Encounters {
		s.importEncounter(ctx, log, pid, enc, report)
	}

	report.RecordImported(name, pid)
	log.Info("record imported", "pid", pid)
}

// importEncounter creates one visit; its vitals and labs are only
// attempted once the encounter id is known.
func (s *Service) importEncounter(ctx context.Context, log *logger.Logger, pid int, enc model.Encounter, report *Report) {
	encounterID, err := s.client.CreateEncounter(ctx, pid, enc)
	if err != nil {
		log.Error(err, "failed to create encounter", "date", enc.Date)
		report.SubmissionFailed()
		return
	}
	report.Encounters++

	if enc.Vitals != nil {
		if err := s.client.AddVitals(ctx, pid, encounterID, enc.Vitals); err != nil {
			log.Error(err, "failed to add vitals", "encounter", encounterID)
			report.SubmissionFailed()
		} else {
			report.Vitals++
		}
	}

	if len(enc.Labs) > 0 {
		if err := s.client.AddLabResults(ctx, pid, encounterID, enc.Labs); err != nil {
			log.Error(err, "failed to add lab results", "encounter", encounterID)
			report.SubmissionFailed()
		} else {
			report.Labs += len(enc.Labs)
		}
	}
}
