// Package emr talks to the records application the way a browser
// does: a cookie session, scraped CSRF tokens, and form-encoded
// POSTs against the interface endpoints.
package emr

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	apperrors "github.com/meddies/emr-importer/pkg/errors"
	"github.com/meddies/emr-importer/pkg/httputil"
	"github.com/meddies/emr-importer/pkg/logger"
)

// Interface endpoint paths, relative to the base URL.
const (
	loginPagePath       = "/interface/login/login.php"
	loginPath           = "/interface/main/main_screen.php?auth=login&site=default"
	patientFormPath     = "/interface/new/new_comprehensive.php"
	patientSavePath     = "/interface/new/new_comprehensive_save.php"
	patientSearchPath   = "/interface/patient_file/find_interface/find_interface.php"
	setPatientPath      = "/interface/patient_file/summary/demographics.php"
	setEncounterPath    = "/interface/patient_file/encounter/encounter_top.php"
	issuePath           = "/interface/patient_file/summary/add_edit_issue.php"
	historyPath         = "/interface/patient_file/history/history_full.php"
	insurancePath       = "/interface/patient_file/summary/demographics_full.php"
	encounterFormPath   = "/interface/forms/newpatient/new.php?autoloaded=1&calenc="
	encounterSavePath   = "/interface/forms/newpatient/save.php"
	vitalsFormPath      = "/interface/forms/vitals/new.php"
	vitalsSavePath      = "/interface/forms/vitals/save.php"
	observationFormPath = "/interface/forms/observation/new.php"
	observationSavePath = "/interface/forms/observation/save.php?id=0"
)

// sessionCookieName is the cookie the target sets on a successful login.
const sessionCookieName = "OpenEMR"

// csrfTokenTTL bounds how long a scraped token is reused before the
// form page is fetched again.
const csrfTokenTTL = 5 * time.Minute

// Config holds connection settings for one session.
type Config struct {
	BaseURL            string
	Username           string
	Password           string
	Timeout            time.Duration
	InsecureSkipVerify bool
	Limiter            *rate.Limiter
}

// Session emulates one authenticated browser session. It is not safe
// for concurrent use; the importer drives it sequentially.
type Session struct {
	baseURL  string
	username string
	password string
	client   *http.Client
	tokens   *cache.Cache
	limiter  *rate.Limiter
	log      *logger.Logger
	now      func() time.Time
}

// NewSession builds a session with a fresh cookie jar. No request is
// made until Login.
func NewSession(cfg Config, log *logger.Logger) (*Session, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return &Session{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		username: cfg.Username,
		password: cfg.Password,
		client: &http.Client{
			Jar:       jar,
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
		tokens:  cache.New(csrfTokenTTL, 2*csrfTokenTTL),
		limiter: cfg.Limiter,
		log:     log,
		now:     time.Now,
	}, nil
}

// Login posts the credentials form and verifies the session cookie
// landed in the jar. A failure here is fatal for the whole run.
func (s *Session) Login(ctx context.Context) error {
	// Prime session state from the login page first, as a browser would.
	if resp, err := s.get(ctx, s.baseURL+loginPagePath); err == nil {
		resp.Body.Close()
	}

	form := &httputil.Form{}
	form.Set("new_login_session_management", "1")
	form.Set("authProvider", "Default")
	form.Set("authUser", s.username)
	form.Set("clearPass", s.password)
	form.Set("languageChoice", "1")

	res, err := s.postForm(ctx, s.baseURL+loginPath, form, s.baseURL+loginPagePath)
	if err != nil {
		return apperrors.Unauthorized(err)
	}
	if !res.ok() {
		return apperrors.Unauthorized(fmt.Errorf("login returned status %d", res.status))
	}
	if !s.hasSessionCookie() {
		return apperrors.Unauthorized(fmt.Errorf("no %s cookie after login", sessionCookieName))
	}

	s.log.Info("web login successful", "target", s.baseURL)
	return nil
}

func (s *Session) hasSessionCookie() bool {
	u, err := url.Parse(s.baseURL + "/")
	if err != nil {
		return false
	}
	for _, c := range s.client.Jar.Cookies(u) {
		if c.Name == sessionCookieName {
			return true
		}
	}
	return false
}

// setActivePatient switches the server-side session to the given
// patient before a dependent form is submitted.
func (s *Session) setActivePatient(ctx context.Context, pid int) error {
	resp, err := s.get(ctx, fmt.Sprintf("%s%s?set_pid=%d", s.baseURL, setPatientPath, pid))
	if err != nil {
		return fmt.Errorf("failed to set active patient: %w", err)
	}
	resp.Body.Close()
	return nil
}

// setActiveEncounter switches the server-side session to the given
// encounter before vitals or labs are submitted.
func (s *Session) setActiveEncounter(ctx context.Context, encounterID int) error {
	resp, err := s.get(ctx, fmt.Sprintf("%s%s?set_encounter=%d", s.baseURL, setEncounterPath, encounterID))
	if err != nil {
		return fmt.Errorf("failed to set active encounter: %w", err)
	}
	resp.Body.Close()
	return nil
}

// formToken returns the csrf_token_form value for a form page,
// scraping and caching it on first use.
func (s *Session) formToken(ctx context.Context, formURL string) (string, error) {
	if tok, found := s.tokens.Get(formURL); found {
		return tok.(string), nil
	}

	doc, err := s.formPage(ctx, formURL)
	if err != nil {
		return "", err
	}
	tok := hiddenValue(doc, "csrf_token_form")
	if tok == "" {
		return "", apperrors.TokenMissing(formURL)
	}

	s.tokens.Set(formURL, tok, cache.DefaultExpiration)
	return tok, nil
}

// formPage fetches and parses a form page.
func (s *Session) formPage(ctx context.Context, formURL string) (*goquery.Document, error) {
	resp, err := s.get(ctx, formURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch form page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("form page %s returned status %d", formURL, resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse form page: %w", err)
	}
	return doc, nil
}

func (s *Session) get(ctx context.Context, rawURL string) (*http.Response, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", httputil.UserAgent)
	return s.client.Do(req)
}

// postResult is a drained POST response.
type postResult struct {
	status   int
	finalURL string
	body     string
}

func (r *postResult) ok() bool {
	return r.status == http.StatusOK
}

func (s *Session) postForm(ctx context.Context, rawURL string, form *httputil.Form, referer string) (*postResult, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	httputil.BrowserHeaders(req, s.baseURL, referer)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	body, err := httputil.ReadBody(resp)
	if err != nil {
		return nil, err
	}

	return &postResult{
		status:   resp.StatusCode,
		finalURL: resp.Request.URL.String(),
		body:     body,
	}, nil
}

// wait blocks on the optional client-side throttle.
func (s *Session) wait(ctx context.Context) error {
	if s.limiter == nil {
		return nil
	}
	return s.limiter.Wait(ctx)
}
