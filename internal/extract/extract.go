// Package extract pulls the readable body text out of article pages.
package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"news_digest/internal/fetcher"
	"news_digest/internal/textclean"
)

const (
	minParagraphRunes = 20
	enoughParagraphs  = 3
	maxTextRunes      = 20000
)

// ErrNoContent is returned when a page has no recognizable article body.
var ErrNoContent = errors.New("no article content")

// Selectors tried in order; the first that yields enough paragraphs wins.
var paragraphSelectors = []string{
	"article p",
	"[itemprop=articleBody] p",
	".article-body p",
	".article-content p",
	".post-content p",
	".entry-content p",
	"main p",
	"#content p",
	"p",
}

// Getter downloads a URL. *fetcher.Client implements it.
type Getter interface {
	Get(ctx context.Context, url string, v fetcher.Validators) (*fetcher.Response, error)
}

// Extractor downloads pages and extracts their body text.
type Extractor struct {
	client Getter
}

// New creates an Extractor.
func New(client Getter) *Extractor {
	return &Extractor{client: client}
}

// Text downloads url and returns its article text.
func (e *Extractor) Text(ctx context.Context, url string) (string, error) {
	resp, err := e.client.Get(ctx, url, fetcher.Validators{})
	if err != nil {
		return "", fmt.Errorf("download page: %w", err)
	}
	return FromHTML(resp.Body)
}

// FromHTML returns the paragraphs of the article body joined by blank lines.
func FromHTML(page []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	doc.Find("script, style, noscript, nav, header, footer, aside, form, figure").Remove()

	var best []string
	for _, selector := range paragraphSelectors {
		var paragraphs []string
		seen := map[string]bool{}
		doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
			text := textclean.CollapseSpace(s.Text())
			if utf8.RuneCountInString(text) < minParagraphRunes || seen[text] {
				return
			}
			seen[text] = true
			paragraphs = append(paragraphs, text)
		})
		if len(paragraphs) > len(best) {
			best = paragraphs
		}
		if len(best) >= enoughParagraphs {
			break
		}
	}
	if len(best) == 0 {
		return "", ErrNoContent
	}
	return textclean.Truncate(strings.Join(best, "\n\n"), maxTextRunes), nil
}
