package emr

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// The save pages do not return structured data; identifiers are
// fished out of the redirect URL or inline script blocks.
var (
	pidURLRe  = regexp.MustCompile(`[?&]pid=(\d+)`)
	pidBodyRe = []*regexp.Regexp{
		regexp.MustCompile(`set_pid\s*=\s*["']?(\d+)["']?`),
		regexp.MustCompile(`pid["']?\s*:\s*["']?(\d+)["']?`),
		regexp.MustCompile(`patient_id["']?\s*=\s*["']?(\d+)["']?`),
	}
	pidSearchRe   = regexp.MustCompile(`pid["']?\s*[:=]\s*["']?(\d+)["']?`)
	encounterIDRe = regexp.MustCompile(`EncounterIdArray\[Count\]\s*=\s*(\d+)`)
)

// extractPID pulls the new patient id from the save response:
// the pid query parameter of the final (post-redirect) URL first,
// then known script patterns in the body.
func extractPID(finalURL, body string) (int, bool) {
	if m := pidURLRe.FindStringSubmatch(finalURL); m != nil {
		return atoi(m[1])
	}
	for _, re := range pidBodyRe {
		if m := re.FindStringSubmatch(body); m != nil {
			return atoi(m[1])
		}
	}
	return 0, false
}

// extractSearchPID pulls a pid out of a patient-search result page.
func extractSearchPID(body string) (int, bool) {
	if m := pidSearchRe.FindStringSubmatch(body); m != nil {
		return atoi(m[1])
	}
	return 0, false
}

// extractEncounterID pulls the new encounter id from the inline
// script the encounter save page emits.
func extractEncounterID(body string) (int, bool) {
	if m := encounterIDRe.FindStringSubmatch(body); m != nil {
		return atoi(m[1])
	}
	return 0, false
}

// savedWithError reports whether the save page echoed a server-side
// error instead of creating the record.
func savedWithError(body string) bool {
	return strings.Contains(body, "ERROR:")
}

// savedOK reports whether a form save page looks like a success; the
// target closes the form tab or echoes a saved notice.
func savedOK(body string) bool {
	return strings.Contains(body, "closeTab") || strings.Contains(strings.ToLower(body), "saved")
}

// hiddenValue reads the value of a named hidden input, or "".
func hiddenValue(doc *goquery.Document, name string) string {
	v, _ := doc.Find(fmt.Sprintf(`input[name=%q]`, name)).Attr("value")
	return v
}

func atoi(s string) (int, bool) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}
