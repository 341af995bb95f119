// Package filter implements keyword matching of items against user preferences.
package filter

import (
	"regexp"
	"strings"
	"unicode"

	"news_digest/internal/model"
)

// shortToken is the length up to which an ASCII keyword must match a whole word,
// so that "ai" does not match "said".
const shortToken = 3

// Text is the searchable part of an item.
type Text struct {
	Title   string
	Summary string
}

// TextOf returns the searchable text of item.
func TextOf(item model.Item) Text {
	return Text{Title: item.Title, Summary: item.Summary}
}

// Excluded reports whether any exclude keyword occurs in the title or summary.
func Excluded(t Text, exclude []string) bool {
	text := t.lower()
	for _, k := range exclude {
		if containsKeyword(text, k) {
			return true
		}
	}
	return false
}

// MatchCount returns how many distinct include keywords occur in the title or
// summary.
func MatchCount(t Text, include []string) int {
	text := t.lower()
	n := 0
	for _, k := range include {
		if containsKeyword(text, k) {
			n++
		}
	}
	return n
}

// Prefilter drops candidates excluded by pref: any exclude keyword hit, and
// papers when the user opted out of academic content. Order is preserved.
func Prefilter(cands []model.Candidate, pref model.UserPreference) []model.Candidate {
	out := make([]model.Candidate, 0, len(cands))
	for _, c := range cands {
		if c.Item.Type == model.ItemPaper && !pref.IncludeAcademic {
			continue
		}
		if Excluded(TextOf(c.Item), pref.ExcludeKeywords) {
			continue
		}
		out = append(out, c)
	}
	return out
}

func (t Text) lower() string {
	return strings.ToLower(t.Title + " " + t.Summary)
}

// containsKeyword expects text to be lower-cased already. Phrases and long
// tokens match as substrings; short ASCII tokens match whole words only.
func containsKeyword(text, keyword string) bool {
	k := strings.ToLower(strings.TrimSpace(keyword))
	if k == "" {
		return false
	}
	if len(k) <= shortToken && isASCIIWord(k) {
		re := regexp.MustCompile(`\b` + regexp.QuoteMeta(k) + `\b`)
		return re.MatchString(text)
	}
	return strings.Contains(text, k)
}

func isASCIIWord(s string) bool {
	for _, r := range s {
		if r > unicode.MaxASCII || !(unicode.IsLetter(r) || unicode.IsDigit(r)) {
			return false
		}
	}
	return true
}
