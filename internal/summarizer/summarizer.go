// Package summarizer produces short per-language synopses of items.
package summarizer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode"

	"news_digest/internal/model"
	"news_digest/internal/textclean"
)

// Backend names accepted by configuration.
const (
	BackendFallback = "fallback"
	BackendGemini   = "gemini"
)

// DefaultLanguage is used when a caller passes no language.
const DefaultLanguage = "zh"

const (
	maxSentences    = 4
	maxSummaryRunes = 520
)

// Summarizer condenses text into a synopsis in lang.
type Summarizer interface {
	Summarize(ctx context.Context, text, lang string) (string, error)
}

// Fallback is the extractive summarizer used when no model is configured
// and whenever a model fails.
type Fallback struct{}

// Summarize implements Summarizer. It never fails.
func (Fallback) Summarize(_ context.Context, text, _ string) (string, error) {
	return FallbackSummary(text), nil
}

// FallbackSummary keeps the first four sentences, joined by spaces and cut to
// 520 characters. A sentence ends at 。！？!?. followed by whitespace; text
// without such a boundary is one sentence.
func FallbackSummary(text string) string {
	sents := splitSentences(strings.TrimSpace(text))
	if len(sents) > maxSentences {
		sents = sents[:maxSentences]
	}
	return textclean.Truncate(strings.Join(sents, " "), maxSummaryRunes)
}

func splitSentences(text string) []string {
	var (
		out   []string
		start int
	)
	runes := []rune(text)
	for i := 0; i < len(runes)-1; i++ {
		if !isTerminator(runes[i]) || !unicode.IsSpace(runes[i+1]) {
			continue
		}
		if s := strings.TrimSpace(string(runes[start : i+1])); s != "" {
			out = append(out, s)
		}
		j := i + 1
		for j < len(runes) && unicode.IsSpace(runes[j]) {
			j++
		}
		start = j
		i = j - 1
	}
	if start < len(runes) {
		if s := strings.TrimSpace(string(runes[start:])); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func isTerminator(r rune) bool {
	switch r {
	case '。', '！', '？', '!', '?', '.':
		return true
	}
	return false
}

// Store persists the per-language summary cache of an item.
type Store interface {
	SetItemSummary(ctx context.Context, itemID int64, lang, summary string) error
	ClearItemSummary(ctx context.Context, itemID int64, lang string) error
}

// Service summarizes items through a backend and caches results per language.
type Service struct {
	backend Summarizer
	store   Store
	logger  *slog.Logger
}

// NewService creates a summarizing service. A nil backend means Fallback.
func NewService(backend Summarizer, store Store, logger *slog.Logger) *Service {
	if backend == nil {
		backend = Fallback{}
	}
	return &Service{backend: backend, store: store, logger: logger}
}

// Summarize returns the cached summary of item in lang or computes and
// caches it. Backend failures are logged and answered by the fallback; a
// cache write failure is logged and the summary is still returned.
func (s *Service) Summarize(ctx context.Context, item *model.Item, lang string) string {
	lang = normalizeLang(lang)
	if cached := item.Summaries[lang]; cached != "" {
		return cached
	}

	text := textclean.Sanitize(firstNonEmpty(item.ContentText, item.Summary, item.Title))
	summary, err := s.backend.Summarize(ctx, text, lang)
	if err != nil {
		s.logger.Warn("summary backend failed", "item_id", item.ID, "lang", lang, "error", err)
	}
	summary = strings.TrimSpace(summary)
	if summary == "" {
		summary = FallbackSummary(textclean.Sanitize(firstNonEmpty(item.Summary, item.Title)))
	}

	if item.Summaries == nil {
		item.Summaries = make(map[string]string)
	}
	item.Summaries[lang] = summary
	if item.ID != 0 {
		if err := s.store.SetItemSummary(ctx, item.ID, lang, summary); err != nil {
			s.logger.Error("failed to cache summary", "item_id", item.ID, "lang", lang, "error", err)
		}
	}
	return summary
}

// Clear drops the cached summary of item in lang.
func (s *Service) Clear(ctx context.Context, item *model.Item, lang string) error {
	lang = normalizeLang(lang)
	if err := s.store.ClearItemSummary(ctx, item.ID, lang); err != nil {
		return fmt.Errorf("clear summary: %w", err)
	}
	delete(item.Summaries, lang)
	return nil
}

func normalizeLang(lang string) string {
	if lang = strings.TrimSpace(lang); lang != "" {
		return lang
	}
	return DefaultLanguage
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
