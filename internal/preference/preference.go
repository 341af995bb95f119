// Package preference validates and normalizes user digest settings.
package preference

import (
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"

	"news_digest/internal/model"
)

// MaxKeywords is the largest accepted number of include or exclude keywords.
const MaxKeywords = 50

// DefaultDailyLimit is used for new preferences.
const DefaultDailyLimit = 20

// DefaultTiers are the allowed daily limits when none are configured.
var DefaultTiers = []int{10, 20, 30}

var (
	ErrTooManyKeywords   = errors.New("too many keywords")
	ErrInvalidDailyLimit = errors.New("invalid daily limit")
	ErrInvalidPushTime   = errors.New("invalid push time")
)

var keywordSep = regexp.MustCompile(`[,，;；\n\r\t]+`)

var pushTimeExpr = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)

// NormalizeKeywords splits free text on commas, semicolons (ASCII and
// full-width), newlines and tabs. Entries are trimmed and deduplicated
// case-insensitively; the first spelling wins.
func NormalizeKeywords(raw string) []string {
	return Dedupe(keywordSep.Split(raw, -1))
}

// Dedupe trims, drops empty entries and removes case-insensitive duplicates
// while keeping order.
func Dedupe(words []string) []string {
	seen := make(map[string]struct{}, len(words))
	var out []string
	for _, w := range words {
		w = strings.TrimSpace(w)
		if w == "" {
			continue
		}
		key := strings.ToLower(w)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, w)
	}
	return out
}

// Default returns the settings a new user starts with.
func Default(userID int64) model.UserPreference {
	return model.UserPreference{
		UserID:          userID,
		Enabled:         true,
		IncludeAcademic: true,
		DailyLimit:      DefaultDailyLimit,
		PushTime:        "08:00",
	}
}

// Validate checks pref against the allowed daily-limit tiers. Keyword lists
// over MaxKeywords are rejected, never truncated.
func Validate(pref model.UserPreference, tiers []int) error {
	if len(tiers) == 0 {
		tiers = DefaultTiers
	}
	if n := len(pref.IncludeKeywords); n > MaxKeywords {
		return fmt.Errorf("%w: %d include keywords, max %d", ErrTooManyKeywords, n, MaxKeywords)
	}
	if n := len(pref.ExcludeKeywords); n > MaxKeywords {
		return fmt.Errorf("%w: %d exclude keywords, max %d", ErrTooManyKeywords, n, MaxKeywords)
	}
	if !slices.Contains(tiers, pref.DailyLimit) {
		return fmt.Errorf("%w: %d not in %v", ErrInvalidDailyLimit, pref.DailyLimit, tiers)
	}
	if pref.PushTime != "" && !pushTimeExpr.MatchString(pref.PushTime) {
		return fmt.Errorf("%w: %q", ErrInvalidPushTime, pref.PushTime)
	}
	return nil
}
