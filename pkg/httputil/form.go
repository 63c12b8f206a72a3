package httputil

import (
	"io"
	"net/http"
	"net/url"
	"strings"
)

// Browser-looking request headers expected by the target's form handlers.
const (
	FormContentType = "application/x-www-form-urlencoded"
	UserAgent       = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36"
)

// Form builds an x-www-form-urlencoded body. Unlike url.Values it
// preserves insertion order and allows repeated keys, which the
// target's array-style fields (code[], ob_value[], ...) rely on.
type Form struct {
	pairs []pair
}

type pair struct {
	key   string
	value string
}

// Set appends a key/value pair.
func (f *Form) Set(key, value string) {
	f.pairs = append(f.pairs, pair{key: key, value: value})
}

// Merge appends every pair from other, preserving its order.
func (f *Form) Merge(other *Form) {
	f.pairs = append(f.pairs, other.pairs...)
}

// Encode returns the URL-encoded body.
func (f *Form) Encode() string {
	var b strings.Builder
	for i, p := range f.pairs {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(p.key))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(p.value))
	}
	return b.String()
}

// Get returns the first value set for key, for tests and logging.
func (f *Form) Get(key string) string {
	for _, p := range f.pairs {
		if p.key == key {
			return p.value
		}
	}
	return ""
}

// Len returns the number of pairs in the form.
func (f *Form) Len() int {
	return len(f.pairs)
}

// BrowserHeaders stamps the headers the web interface expects on
// form submissions.
func BrowserHeaders(req *http.Request, origin, referer string) {
	req.Header.Set("Content-Type", FormContentType)
	req.Header.Set("User-Agent", UserAgent)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	if referer != "" {
		req.Header.Set("Referer", referer)
	}
}

// ReadBody drains and closes a response body.
func ReadBody(resp *http.Response) (string, error) {
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
