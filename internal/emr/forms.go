package emr

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/google/uuid"

	"github.com/meddies/emr-importer/internal/model"
	apperrors "github.com/meddies/emr-importer/pkg/errors"
	"github.com/meddies/emr-importer/pkg/httputil"
)

// Issue form_type discriminators.
const (
	issueTypeProblem    = "medical_problem"
	issueTypeMedication = "medication"
	issueTypeAllergy    = "allergy"
)

// Backdating applied to imported history entries so seeded charts
// read as established rather than minted today.
const (
	problemBackfillDays    = 90
	medicationBackfillDays = 7
)

// Fixed encounter attributes: office visit, ambulatory, default
// provider and facility of a stock install.
const (
	defaultEncounterReason = "Office Visit"
	encounterCategoryID    = "5"
	encounterProviderID    = "1"
	encounterFacilityID    = "3"
	encounterPOSCode       = "11"
	encounterClassCode     = "AMB"
)

// CreatePatient submits the comprehensive demographics form and
// returns the patient id the target assigned.
func (s *Session) CreatePatient(ctx context.Context, rec *model.PatientRecord) (int, error) {
	formURL := s.baseURL + patientFormPath
	token, err := s.formToken(ctx, formURL)
	if err != nil {
		return 0, err
	}

	pubpid := rec.ExternalID
	if pubpid == "" {
		pubpid = uuid.NewString()
	}

	form := &httputil.Form{}
	form.Set("csrf_token_form", token)
	form.Set("form_fname", rec.FirstName)
	form.Set("form_lname", rec.LastName)
	form.Set("form_mname", rec.MiddleName)
	form.Set("form_DOB", rec.DOB)
	form.Set("form_sex", rec.Sex)
	form.Set("form_street", rec.Street)
	form.Set("form_city", rec.City)
	form.Set("form_postal_code", rec.PostalCode)
	form.Set("form_country_code", rec.CountryCode)
	form.Set("form_phone_cell", rec.PhoneCell)
	form.Set("form_email", rec.Email)
	form.Set("form_language", rec.Language)
	form.Set("form_status", rec.Status)
	form.Set("form_ss", rec.SSN)
	form.Set("form_pubpid", pubpid)
	form.Set("form_phone_home", "")
	form.Set("form_phone_biz", "")
	form.Set("form_state", "")
	form.Set("form_street_line_2", "")
	form.Set("form_title", "")
	form.Set("form_birth_fname", "")
	form.Set("form_birth_lname", "")
	form.Set("form_hipaa_notice", "YES")
	form.Set("form_hipaa_voice", "YES")
	form.Set("form_hipaa_mail", "YES")
	form.Set("form_hipaa_allowsms", "YES")
	form.Set("form_hipaa_allowemail", "YES")
	form.Set("create", "Create New Patient")

	res, err := s.postForm(ctx, s.baseURL+patientSavePath, form, formURL)
	if err != nil {
		return 0, apperrors.Submission("patient", err)
	}
	if !res.ok() {
		return 0, apperrors.Submission("patient", fmt.Errorf("status %d", res.status))
	}
	if savedWithError(res.body) {
		return 0, apperrors.Submission("patient", fmt.Errorf("target reported a save error"))
	}

	if pid, ok := extractPID(res.finalURL, res.body); ok {
		return pid, nil
	}
	// The save page does not always echo the new id; fall back to a
	// name search before giving up on the record.
	if pid, ok := s.findPatientByName(ctx, rec.FirstName, rec.LastName); ok {
		return pid, nil
	}
	return 0, apperrors.IDMissing("patient id")
}

func (s *Session) findPatientByName(ctx context.Context, fname, lname string) (int, bool) {
	q := url.Values{}
	q.Set("fname", fname)
	q.Set("lname", lname)

	resp, err := s.get(ctx, s.baseURL+patientSearchPath+"?"+q.Encode())
	if err != nil {
		return 0, false
	}
	body, err := httputil.ReadBody(resp)
	if err != nil || resp.StatusCode != 200 {
		return 0, false
	}
	return extractSearchPID(body)
}

// AddProblem files a coded condition against the patient, backdated
// so the chart shows an established diagnosis.
func (s *Session) AddProblem(ctx context.Context, pid int, p model.Problem) error {
	begin := s.now().AddDate(0, 0, -problemBackfillDays).Format("2006-01-02")

	fields := &httputil.Form{}
	fields.Set("form_type", "0")
	fields.Set("form_active", "1")
	fields.Set("form_title", p.Title)
	fields.Set("form_title_id", "")
	fields.Set("form_begin", begin)
	fields.Set("form_end", "")
	fields.Set("form_diagnosis", p.Diagnosis())
	fields.Set("form_occur", "0")
	fields.Set("form_outcome", "0")
	fields.Set("form_classification", "0")
	fields.Set("form_verification", "unconfirmed")
	fields.Set("form_comments", p.Comments)
	fields.Set("form_referredby", "")
	fields.Set("form_destination", "")
	fields.Set("form_return", "")

	return s.postIssue(ctx, pid, issueTypeProblem, "problem", fields)
}

// AddMedication files an active medication against the patient.
func (s *Session) AddMedication(ctx context.Context, pid int, m model.Medication) error {
	begin := s.now().AddDate(0, 0, -medicationBackfillDays).Format("2006-01-02 15:04")

	fields := &httputil.Form{}
	fields.Set("form_type", "2")
	fields.Set("form_active", "1")
	fields.Set("form_title", m.Title)
	fields.Set("form_title_id", "")
	fields.Set("form_begin", begin)
	fields.Set("form_end", "")
	fields.Set("form_reaction", "unassigned")
	fields.Set("form_severity_id", "unassigned")
	fields.Set("form_medication[usage_category]", "community")
	fields.Set("form_medication[request_intent]", "order")
	fields.Set("form_medication[drug_dosage_instructions]", m.Dosage)
	fields.Set("form_comments", "")
	fields.Set("form_diagnosis", "")
	fields.Set("form_occur", "0")
	fields.Set("form_outcome", "0")
	fields.Set("form_subtype", "")
	fields.Set("form_classification", "0")
	fields.Set("form_verification", "unconfirmed")
	fields.Set("form_referredby", "")
	fields.Set("form_destination", "")
	fields.Set("form_return", "")
	fields.Set("row_reinjury_id", "")

	return s.postIssue(ctx, pid, issueTypeMedication, "medication", fields)
}

// AddAllergy files an allergy against the patient.
func (s *Session) AddAllergy(ctx context.Context, pid int, a model.Allergy) error {
	reaction := a.Reaction
	if reaction == "" {
		reaction = "unassigned"
	}
	severity := a.Severity
	if severity == "" {
		severity = "unassigned"
	}

	fields := &httputil.Form{}
	fields.Set("form_type", "3")
	fields.Set("form_active", "1")
	fields.Set("form_title", a.Title)
	fields.Set("form_title_id", "")
	fields.Set("form_begin", s.now().Format("2006-01-02"))
	fields.Set("form_end", "")
	fields.Set("form_reaction", reaction)
	fields.Set("form_severity_id", severity)
	fields.Set("form_occur", "0")
	fields.Set("form_outcome", "0")
	fields.Set("form_verification", "unconfirmed")
	fields.Set("form_comments", "")

	return s.postIssue(ctx, pid, issueTypeAllergy, "allergy", fields)
}

// postIssue wraps the shared add_edit_issue form: set the active
// patient, scrape the token, then post the type-specific fields.
func (s *Session) postIssue(ctx context.Context, pid int, issueType, what string, fields *httputil.Form) error {
	if err := s.setActivePatient(ctx, pid); err != nil {
		return apperrors.Submission(what, err)
	}

	issueURL := fmt.Sprintf("%s%s?issue=0&thistype=%s", s.baseURL, issuePath, issueType)
	token, err := s.formToken(ctx, issueURL)
	if err != nil {
		return err
	}

	form := &httputil.Form{}
	form.Set("csrf_token_form", token)
	form.Set("issue", "0")
	form.Set("thispid", strconv.Itoa(pid))
	form.Set("thisenc", "0")
	form.Merge(fields)
	form.Set("form_save", "Save")

	res, err := s.postForm(ctx, issueURL, form, issueURL)
	if err != nil {
		return apperrors.Submission(what, err)
	}
	if !res.ok() {
		return apperrors.Submission(what, fmt.Errorf("status %d", res.status))
	}
	return nil
}

// UpdateHistory posts the social and family history form.
func (s *Session) UpdateHistory(ctx context.Context, pid int, h *model.History) error {
	if err := s.setActivePatient(ctx, pid); err != nil {
		return apperrors.Submission("history", err)
	}

	formURL := s.baseURL + historyPath
	token, err := s.formToken(ctx, formURL)
	if err != nil {
		return err
	}

	form := &httputil.Form{}
	form.Set("csrf_token_form", token)
	form.Set("form_tobacco", h.Tobacco)
	form.Set("form_alcohol", h.Alcohol)
	form.Set("form_exercise_patterns", h.ExercisePatterns)
	form.Set("form_recreational_drugs", h.RecreationalDrugs)
	form.Set("form_coffee", h.Coffee)
	form.Set("form_counseling", h.Counseling)
	form.Set("form_hazardous_activities", h.HazardousActivities)
	form.Set("form_additional_history", h.AdditionalHistory)
	form.Set("form_history_mother", h.HistoryMother)
	form.Set("form_history_father", h.HistoryFather)
	form.Set("form_history_siblings", h.HistorySiblings)
	form.Set("form_history_spouse", h.HistorySpouse)
	form.Set("form_history_offspring", h.HistoryOffspring)
	form.Set("form_relatives_cancer", h.RelativesCancer)
	form.Set("form_relatives_diabetes", h.RelativesDiabetes)
	form.Set("form_relatives_high_blood_pressure", h.RelativesHighBloodPressure)
	form.Set("form_relatives_heart_problems", h.RelativesHeartProblems)
	form.Set("form_relatives_stroke", h.RelativesStroke)
	form.Set("form_relatives_epilepsy", h.RelativesEpilepsy)
	form.Set("form_relatives_mental_illness", h.RelativesMentalIllness)
	form.Set("form_relatives_suicide", h.RelativesSuicide)

	res, err := s.postForm(ctx, formURL, form, formURL)
	if err != nil {
		return apperrors.Submission("history", err)
	}
	if !res.ok() {
		return apperrors.Submission("history", fmt.Errorf("status %d", res.status))
	}
	return nil
}

// AddInsurance posts primary coverage through the full demographics
// form. Secondary and tertiary coverage are not part of the feed.
func (s *Session) AddInsurance(ctx context.Context, pid int, ins *model.Insurance) error {
	if err := s.setActivePatient(ctx, pid); err != nil {
		return apperrors.Submission("insurance", err)
	}

	formURL := s.baseURL + insurancePath
	token, err := s.formToken(ctx, formURL)
	if err != nil {
		return err
	}

	relationship := ins.SubscriberRelationship
	if relationship == "" {
		relationship = "self"
	}

	form := &httputil.Form{}
	form.Set("csrf_token_form", token)
	form.Set("form_i1subscriber_relationship", relationship)
	form.Set("i1subscriber_fname", ins.SubscriberFirstName)
	form.Set("i1subscriber_lname", ins.SubscriberLastName)
	form.Set("i1subscriber_DOB", ins.SubscriberDOB)
	form.Set("form_i1provider", ins.Provider)
	form.Set("i1plan_name", ins.PlanName)
	form.Set("i1policy_number", ins.PolicyNumber)
	form.Set("i1group_number", ins.GroupNumber)
	form.Set("i1subscriber_employer", ins.SubscriberEmployer)
	form.Set("form_copay", ins.Copay.String())

	res, err := s.postForm(ctx, formURL, form, formURL)
	if err != nil {
		return apperrors.Submission("insurance", err)
	}
	if !res.ok() {
		return apperrors.Submission("insurance", fmt.Errorf("status %d", res.status))
	}
	return nil
}

// CreateEncounter opens a visit and returns the encounter id the
// target assigned.
func (s *Session) CreateEncounter(ctx context.Context, pid int, enc model.Encounter) (int, error) {
	if err := s.setActivePatient(ctx, pid); err != nil {
		return 0, apperrors.Submission("encounter", err)
	}

	formURL := s.baseURL + encounterFormPath
	token, err := s.formToken(ctx, formURL)
	if err != nil {
		return 0, err
	}

	reason := enc.Reason
	if reason == "" {
		reason = defaultEncounterReason
	}

	form := &httputil.Form{}
	form.Set("csrf_token_form", token)
	form.Set("mode", "new")
	form.Set("form_date", enc.Date)
	form.Set("reason", reason)
	form.Set("facility_id", encounterFacilityID)
	form.Set("pc_catid", encounterCategoryID)
	form.Set("provider_id", encounterProviderID)
	form.Set("pos_code", encounterPOSCode)
	form.Set("class_code", encounterClassCode)

	res, err := s.postForm(ctx, s.baseURL+encounterSavePath, form, formURL)
	if err != nil {
		return 0, apperrors.Submission("encounter", err)
	}
	if !res.ok() {
		return 0, apperrors.Submission("encounter", fmt.Errorf("status %d", res.status))
	}

	id, ok := extractEncounterID(res.body)
	if !ok {
		return 0, apperrors.IDMissing("encounter id")
	}
	return id, nil
}

// AddVitals submits the measurement set of one visit. The vitals
// form carries hidden id/uuid inputs that must be echoed back, so
// the page is always fetched fresh rather than served from the
// token cache.
func (s *Session) AddVitals(ctx context.Context, pid, encounterID int, v *model.Vitals) error {
	if err := s.setActivePatient(ctx, pid); err != nil {
		return apperrors.Submission("vitals", err)
	}
	if err := s.setActiveEncounter(ctx, encounterID); err != nil {
		return apperrors.Submission("vitals", err)
	}

	formURL := s.baseURL + vitalsFormPath
	doc, err := s.formPage(ctx, formURL)
	if err != nil {
		return apperrors.Submission("vitals", err)
	}
	token := hiddenValue(doc, "csrf_token_form")
	if token == "" {
		return apperrors.TokenMissing(formURL)
	}

	form := &httputil.Form{}
	form.Set("csrf_token_form", token)
	form.Set("id", hiddenValue(doc, "id"))
	form.Set("uuid", hiddenValue(doc, "uuid"))
	form.Set("pid", strconv.Itoa(pid))
	form.Set("process", "true")
	form.Set("activity", "1")
	form.Set("weight", v.Weight.String())
	form.Set("height", v.Height.String())
	form.Set("bps", v.BPSystolic.String())
	form.Set("bpd", v.BPDiastolic.String())
	form.Set("pulse", v.Pulse.String())
	form.Set("respiration", v.Respiration.String())
	form.Set("temperature", v.Temperature.String())
	form.Set("oxygen_saturation", v.OxygenSaturation.String())
	form.Set("note", v.Note)
	form.Set("BMI", "")
	form.Set("BMI_status", "")
	form.Set("head_circ", "")
	form.Set("waist_circ", "")
	form.Set("oxygen_flow_rate", "")
	form.Set("inhaled_oxygen_concentration", "")

	res, err := s.postForm(ctx, s.baseURL+vitalsSavePath, form, formURL)
	if err != nil {
		return apperrors.Submission("vitals", err)
	}
	if !res.ok() {
		return apperrors.Submission("vitals", fmt.Errorf("status %d", res.status))
	}
	if !savedOK(res.body) {
		s.log.Debug("vitals save response unclear, assuming success", "pid", pid, "encounter", encounterID)
	}
	return nil
}

// AddLabResults submits every lab of one visit in a single POST
// using the observation form's repeated array fields.
func (s *Session) AddLabResults(ctx context.Context, pid, encounterID int, labs []model.LabResult) error {
	if err := s.setActivePatient(ctx, pid); err != nil {
		return apperrors.Submission("labs", err)
	}
	if err := s.setActiveEncounter(ctx, encounterID); err != nil {
		return apperrors.Submission("labs", err)
	}

	formURL := s.baseURL + observationFormPath
	token, err := s.formToken(ctx, formURL)
	if err != nil {
		return err
	}

	form := &httputil.Form{}
	form.Set("csrf_token_form", token)
	for _, lab := range labs {
		form.Set("ob_type[]", "procedure_diagnostic")
		form.Set("code_type[]", "LOINC")
		form.Set("table_code[]", "")
		form.Set("code[]", lab.Code)
		form.Set("description[]", lab.Description)
		form.Set("ob_value[]", lab.Value.String())
		form.Set("ob_unit[]", lab.Unit)
		form.Set("ob_value_phin[]", "")
		form.Set("code_date[]", lab.Date)
		form.Set("code_date_end[]", "")
		form.Set("comments[]", lab.Comments)
		form.Set("reasonCode[]", "")
		form.Set("reasonCodeStatus[]", "completed")
		form.Set("reasonCodeText[]", "")
	}

	res, err := s.postForm(ctx, s.baseURL+observationSavePath, form, formURL)
	if err != nil {
		return apperrors.Submission("labs", err)
	}
	if !res.ok() {
		return apperrors.Submission("labs", fmt.Errorf("status %d", res.status))
	}
	if !savedOK(res.body) {
		s.log.Debug("lab save response unclear, assuming success", "pid", pid, "encounter", encounterID)
	}
	return nil
}
