// Package normalize converts raw upstream records into canonical items.
//
// Every function handles exactly one record. A returned error means the record
// is malformed and must be skipped; it never carries a partial item.
package normalize

import (
	"errors"
	"regexp"
	"strings"
	"time"

	"news_digest/internal/textclean"
)

const (
	maxAuthors       = 50
	maxAbstractRunes = 800
)

// Record-level errors. Callers log and skip the record.
var (
	ErrMissingTitle = errors.New("missing title")
	ErrMissingURL   = errors.New("missing url")
	ErrMissingDate  = errors.New("missing or unparseable publication date")
)

var doiResolver = regexp.MustCompile(`(?i)^(https?://(dx\.)?doi\.org/|doi:\s*)`)

// NormalizeDOI strips resolver prefixes from a DOI.
func NormalizeDOI(doi string) string {
	return strings.TrimSpace(doiResolver.ReplaceAllString(strings.TrimSpace(doi), ""))
}

func cleanAuthors(names []string) []string {
	var out []string
	for _, n := range names {
		if len(out) >= maxAuthors {
			break
		}
		if n = textclean.StripTags(n); n != "" {
			out = append(out, n)
		}
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// parseISODate accepts a bare date or an ISO-8601 datetime. Values without an
// offset are interpreted in loc.
func parseISODate(s string, loc *time.Location) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.In(loc), true
	}
	for _, layout := range []string{"2006-01-02T15:04:05", "2006-01-02T15:04", "2006-01-02"} {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// civilDate builds midnight of y-m-d in loc, rejecting out-of-range parts.
func civilDate(y, m, d int, loc *time.Location) (time.Time, bool) {
	if y <= 0 || m < 1 || m > 12 || d < 1 || d > 31 {
		return time.Time{}, false
	}
	t := time.Date(y, time.Month(m), d, 0, 0, 0, 0, loc)
	if t.Day() != d {
		return time.Time{}, false
	}
	return t, true
}
