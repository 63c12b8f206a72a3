package emr

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meddies/emr-importer/internal/model"
	apperrors "github.com/meddies/emr-importer/pkg/errors"
	"github.com/meddies/emr-importer/pkg/logger"
)

const testCSRFToken = "f00dfacef00dfacef00dfacef00dfacef00dfacef00dfacef00dfacef00dface"

// fakeTarget stands in for the records application: it serves form
// pages with CSRF tokens, accepts form posts, and hands out ids the
// way the real interface does.
type fakeTarget struct {
	srv *httptest.Server

	rejectLogin  bool
	nextPID      int
	nextEncID    int
	omitPID      bool
	searchBody   string
	patientError bool

	loginCalls     int
	formPageCalls  map[string]int
	patientSaves   []url.Values
	issueSaves     []url.Values
	historySaves   []url.Values
	insuranceSaves []url.Values
	encounterSaves []url.Values
	vitalsSaves    []url.Values
	labSaves       []url.Values
}

func newFakeTarget() *fakeTarget {
	f := &fakeTarget{
		nextPID:       42,
		nextEncID:     77,
		formPageCalls: map[string]int{},
	}

	mux := http.NewServeMux()

	mux.HandleFunc("/interface/login/login.php", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html>login</html>")
	})
	mux.HandleFunc("/interface/main/main_screen.php", func(w http.ResponseWriter, r *http.Request) {
		f.loginCalls++
		if !f.rejectLogin {
			http.SetCookie(w, &http.Cookie{Name: "OpenEMR", Value: "sess123", Path: "/"})
		}
		fmt.Fprint(w, "<html>main</html>")
	})

	mux.HandleFunc("/interface/new/new_comprehensive.php", func(w http.ResponseWriter, r *http.Request) {
		f.formPageCalls[r.URL.Path]++
		fmt.Fprint(w, csrfPage())
	})
	mux.HandleFunc("/interface/new/new_comprehensive_save.php", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		f.patientSaves = append(f.patientSaves, r.PostForm)
		if f.patientError {
			fmt.Fprint(w, "ERROR: query failed")
			return
		}
		if f.omitPID {
			fmt.Fprint(w, "<html>ok</html>")
			return
		}
		http.Redirect(w, r, fmt.Sprintf("/interface/patient_file/summary/demographics.php?pid=%d", f.nextPID), http.StatusFound)
	})
	mux.HandleFunc("/interface/patient_file/find_interface/find_interface.php", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, f.searchBody)
	})

	mux.HandleFunc("/interface/patient_file/summary/demographics.php", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html>demographics</html>")
	})
	mux.HandleFunc("/interface/patient_file/encounter/encounter_top.php", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html>encounter</html>")
	})

	mux.HandleFunc("/interface/patient_file/summary/add_edit_issue.php", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			f.formPageCalls[r.URL.Path+"?"+r.URL.RawQuery]++
			fmt.Fprint(w, csrfPage())
			return
		}
		_ = r.ParseForm()
		f.issueSaves = append(f.issueSaves, r.PostForm)
		fmt.Fprint(w, "<html>issue saved</html>")
	})

	mux.HandleFunc("/interface/patient_file/history/history_full.php", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			fmt.Fprint(w, csrfPage())
			return
		}
		_ = r.ParseForm()
		f.historySaves = append(f.historySaves, r.PostForm)
		fmt.Fprint(w, "<html>history saved</html>")
	})

	mux.HandleFunc("/interface/patient_file/summary/demographics_full.php", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			fmt.Fprint(w, csrfPage())
			return
		}
		_ = r.ParseForm()
		f.insuranceSaves = append(f.insuranceSaves, r.PostForm)
		fmt.Fprint(w, "<html>insurance saved</html>")
	})

	mux.HandleFunc("/interface/forms/newpatient/new.php", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, csrfPage())
	})
	mux.HandleFunc("/interface/forms/newpatient/save.php", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		f.encounterSaves = append(f.encounterSaves, r.PostForm)
		fmt.Fprintf(w, "<script>EncounterIdArray[Count] = %d;</script>", f.nextEncID)
	})

	mux.HandleFunc("/interface/forms/vitals/new.php", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<html><form>
			<input type="hidden" name="csrf_token_form" value="%s" />
			<input type="hidden" name="id" value="310" />
			<input type="hidden" name="uuid" value="9b2f" />
		</form></html>`, testCSRFToken)
	})
	mux.HandleFunc("/interface/forms/vitals/save.php", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		f.vitalsSaves = append(f.vitalsSaves, r.PostForm)
		fmt.Fprint(w, "<script>parent.closeTab(window.name, false)</script>")
	})

	mux.HandleFunc("/interface/forms/observation/new.php", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, csrfPage())
	})
	mux.HandleFunc("/interface/forms/observation/save.php", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		f.labSaves = append(f.labSaves, r.PostForm)
		fmt.Fprint(w, "<html>Form saved</html>")
	})

	f.srv = httptest.NewServer(mux)
	return f
}

func csrfPage() string {
	return fmt.Sprintf(`<html><body><form>
		<input type="hidden" name="csrf_token_form" value="%s" />
	</form></body></html>`, testCSRFToken)
}

func newTestSession(t *testing.T, target *fakeTarget) *Session {
	t.Helper()
	t.Cleanup(target.srv.Close)

	s, err := NewSession(Config{
		BaseURL:  target.srv.URL,
		Username: "admin",
		Password: "pass",
		Timeout:  5 * time.Second,
	}, logger.NewLogger(&logger.Config{Level: logger.FatalLevel, Output: io.Discard}))
	require.NoError(t, err)
	return s
}

func testRecord() *model.PatientRecord {
	return &model.PatientRecord{
		FirstName: "An",
		LastName:  "Nguyen",
		DOB:       "1990-01-01",
		Sex:       "Male",
		City:      "Hanoi",
	}
}

func TestLogin(t *testing.T) {
	target := newFakeTarget()
	s := newTestSession(t, target)

	require.NoError(t, s.Login(context.Background()))
	assert.Equal(t, 1, target.loginCalls)
	assert.True(t, s.hasSessionCookie())
}

func TestLoginRejected(t *testing.T) {
	target := newFakeTarget()
	target.rejectLogin = true
	s := newTestSession(t, target)

	err := s.Login(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.IsUnauthorized(err))
}

func TestCreatePatient(t *testing.T) {
	target := newFakeTarget()
	s := newTestSession(t, target)
	require.NoError(t, s.Login(context.Background()))

	pid, err := s.CreatePatient(context.Background(), testRecord())
	require.NoError(t, err)
	assert.Equal(t, 42, pid)

	require.Len(t, target.patientSaves, 1)
	form := target.patientSaves[0]
	assert.Equal(t, testCSRFToken, form.Get("csrf_token_form"))
	assert.Equal(t, "An", form.Get("form_fname"))
	assert.Equal(t, "Nguyen", form.Get("form_lname"))
	assert.Equal(t, "1990-01-01", form.Get("form_DOB"))
	assert.Equal(t, "Male", form.Get("form_sex"))
	assert.Equal(t, "Create New Patient", form.Get("create"))
	// A public id is generated when the record carries none.
	assert.NotEmpty(t, form.Get("form_pubpid"))
}

func TestCreatePatientKeepsExternalID(t *testing.T) {
	target := newFakeTarget()
	s := newTestSession(t, target)

	rec := testRecord()
	rec.ExternalID = "EXT-001"
	_, err := s.CreatePatient(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, "EXT-001", target.patientSaves[0].Get("form_pubpid"))
}

func TestCreatePatientServerError(t *testing.T) {
	target := newFakeTarget()
	target.patientError = true
	s := newTestSession(t, target)

	_, err := s.CreatePatient(context.Background(), testRecord())
	assert.Error(t, err)
}

func TestCreatePatientFallbackSearch(t *testing.T) {
	target := newFakeTarget()
	target.omitPID = true
	target.searchBody = `<tr onclick="selpid(55)" data-pid="55">pid: 55</tr>`
	s := newTestSession(t, target)

	pid, err := s.CreatePatient(context.Background(), testRecord())
	require.NoError(t, err)
	assert.Equal(t, 55, pid)
}

func TestCreatePatientNoIDAnywhere(t *testing.T) {
	target := newFakeTarget()
	target.omitPID = true
	target.searchBody = "<html>no results</html>"
	s := newTestSession(t, target)

	_, err := s.CreatePatient(context.Background(), testRecord())
	assert.Error(t, err)
}

func TestAddProblem(t *testing.T) {
	target := newFakeTarget()
	s := newTestSession(t, target)

	err := s.AddProblem(context.Background(), 42, model.Problem{
		Title: "Type 2 diabetes mellitus",
		ICD10: "E11.9",
	})
	require.NoError(t, err)

	require.Len(t, target.issueSaves, 1)
	form := target.issueSaves[0]
	assert.Equal(t, "42", form.Get("thispid"))
	assert.Equal(t, "0", form.Get("form_type"))
	assert.Equal(t, "Type 2 diabetes mellitus", form.Get("form_title"))
	assert.Equal(t, "E11.9", form.Get("form_diagnosis"))
	assert.Equal(t, "Save", form.Get("form_save"))
}

func TestAddMedication(t *testing.T) {
	target := newFakeTarget()
	s := newTestSession(t, target)

	err := s.AddMedication(context.Background(), 42, model.Medication{
		Title:  "Metformin 500mg",
		Dosage: "twice daily",
	})
	require.NoError(t, err)

	form := target.issueSaves[0]
	assert.Equal(t, "2", form.Get("form_type"))
	assert.Equal(t, "twice daily", form.Get("form_medication[drug_dosage_instructions]"))
}

func TestAddAllergyDefaults(t *testing.T) {
	target := newFakeTarget()
	s := newTestSession(t, target)

	err := s.AddAllergy(context.Background(), 42, model.Allergy{Title: "Penicillin"})
	require.NoError(t, err)

	form := target.issueSaves[0]
	assert.Equal(t, "3", form.Get("form_type"))
	assert.Equal(t, "unassigned", form.Get("form_reaction"))
	assert.Equal(t, "unassigned", form.Get("form_severity_id"))
}

func TestUpdateHistory(t *testing.T) {
	target := newFakeTarget()
	s := newTestSession(t, target)

	err := s.UpdateHistory(context.Background(), 42, &model.History{
		Tobacco:           "never",
		RelativesDiabetes: "yes",
	})
	require.NoError(t, err)

	form := target.historySaves[0]
	assert.Equal(t, "never", form.Get("form_tobacco"))
	assert.Equal(t, "yes", form.Get("form_relatives_diabetes"))
}

func TestAddInsurance(t *testing.T) {
	target := newFakeTarget()
	s := newTestSession(t, target)

	err := s.AddInsurance(context.Background(), 42, &model.Insurance{
		Provider:     "Bao Viet Insurance",
		PolicyNumber: "BV-440131",
	})
	require.NoError(t, err)

	form := target.insuranceSaves[0]
	assert.Equal(t, "Bao Viet Insurance", form.Get("form_i1provider"))
	assert.Equal(t, "BV-440131", form.Get("i1policy_number"))
	assert.Equal(t, "self", form.Get("form_i1subscriber_relationship"))
}

func TestCreateEncounter(t *testing.T) {
	target := newFakeTarget()
	s := newTestSession(t, target)

	id, err := s.CreateEncounter(context.Background(), 42, model.Encounter{Date: "2025-03-12"})
	require.NoError(t, err)
	assert.Equal(t, 77, id)

	form := target.encounterSaves[0]
	assert.Equal(t, "new", form.Get("mode"))
	assert.Equal(t, "2025-03-12", form.Get("form_date"))
	assert.Equal(t, "Office Visit", form.Get("reason"))
	assert.Equal(t, "AMB", form.Get("class_code"))
}

func TestAddVitals(t *testing.T) {
	target := newFakeTarget()
	s := newTestSession(t, target)

	err := s.AddVitals(context.Background(), 42, 77, &model.Vitals{
		Weight:      "152",
		BPSystolic:  "128",
		BPDiastolic: "82",
	})
	require.NoError(t, err)

	form := target.vitalsSaves[0]
	assert.Equal(t, "42", form.Get("pid"))
	assert.Equal(t, "152", form.Get("weight"))
	assert.Equal(t, "128", form.Get("bps"))
	// Hidden fields scraped from the form page must be echoed back.
	assert.Equal(t, "310", form.Get("id"))
	assert.Equal(t, "9b2f", form.Get("uuid"))
}

func TestAddLabResults(t *testing.T) {
	target := newFakeTarget()
	s := newTestSession(t, target)

	labs := []model.LabResult{
		{Code: "2345-7", Description: "Glucose, Serum", Value: "112", Unit: "mg/dL", Date: "2025-03-12"},
		{Code: "4548-4", Description: "Hemoglobin A1c", Value: "6.8", Unit: "%", Date: "2025-03-12"},
	}
	require.NoError(t, s.AddLabResults(context.Background(), 42, 77, labs))

	require.Len(t, target.labSaves, 1)
	form := target.labSaves[0]
	assert.Equal(t, []string{"2345-7", "4548-4"}, form["code[]"])
	assert.Equal(t, []string{"112", "6.8"}, form["ob_value[]"])
	assert.Equal(t, []string{"completed", "completed"}, form["reasonCodeStatus[]"])
}

func TestCSRFTokenCached(t *testing.T) {
	target := newFakeTarget()
	s := newTestSession(t, target)

	_, err := s.CreatePatient(context.Background(), testRecord())
	require.NoError(t, err)
	_, err = s.CreatePatient(context.Background(), testRecord())
	require.NoError(t, err)

	// Both creates reuse the token scraped on the first form fetch.
	assert.Equal(t, 1, target.formPageCalls["/interface/new/new_comprehensive.php"])
}

func TestMissingCSRFToken(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html>no token here</html>")
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	s, err := NewSession(Config{
		BaseURL:  srv.URL,
		Username: "admin",
		Password: "pass",
		Timeout:  5 * time.Second,
	}, logger.NewLogger(&logger.Config{Level: logger.FatalLevel, Output: io.Discard}))
	require.NoError(t, err)

	_, err = s.CreatePatient(context.Background(), testRecord())
	require.Error(t, err)

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.ErrTokenMissing, appErr.Code)
}
