// Package textclean strips markup and vendor noise from upstream text.
package textclean

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

var vendorMarker = regexp.MustCompile(`(?s)\|--.*?--\|`)

// StripTags removes markup, decodes entities and collapses whitespace.
// Each tag boundary counts as a word break.
func StripTags(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if !strings.ContainsAny(s, "<&") {
		return CollapseSpace(s)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return CollapseSpace(s)
	}
	doc.Find("script, style, noscript").Remove()
	doc.Find("body *").Each(func(_ int, sel *goquery.Selection) {
		sel.PrependHtml(" ")
		sel.AppendHtml(" ")
	})
	return CollapseSpace(doc.Find("body").Text())
}

// Sanitize prepares raw text for summarization: markup and |--...--| markers
// removed, whitespace collapsed.
func Sanitize(s string) string {
	s = StripTags(s)
	s = vendorMarker.ReplaceAllString(s, "")
	return CollapseSpace(s)
}

// CollapseSpace replaces every whitespace run with a single space and trims.
func CollapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

// Ellipsize cuts s to n runes, trims trailing space and appends an ellipsis
// when anything was removed.
func Ellipsize(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return strings.TrimRightFunc(Truncate(s, n), isSpace) + "…"
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r'
}
