// Package ranker scores candidate items against a user's preferences.
//
// Scoring is pure: the current time is passed in and nothing is read from
// storage. Exclusion is not expressed here; excluded items must be removed
// before scoring (see filter.Prefilter).
package ranker

import (
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"news_digest/internal/filter"
	"news_digest/internal/model"
)

// Params are the tunable ranking knobs.
type Params struct {
	FreshnessWindowHours float64
	WFreshness           float64
	WSource              float64
	WMatch               float64
	SourceWeightScale    float64
	BaseMatch            float64
}

// DefaultParams returns the stock weights.
func DefaultParams() Params {
	return Params{
		FreshnessWindowHours: 48,
		WFreshness:           1.0,
		WSource:              0.6,
		WMatch:               1.2,
		SourceWeightScale:    1.0,
	}
}

// Scored is a candidate with its computed score.
type Scored struct {
	model.Candidate
	Score  float64
	Reason string
}

// Freshness decays linearly from 1 at publication to 0 at the end of the
// window. Items dated in the future count as brand new.
func Freshness(published, now time.Time, windowHours float64) float64 {
	if windowHours <= 0 {
		return 0
	}
	age := now.Sub(published).Hours()
	if age < 0 {
		age = 0
	}
	return max(0, 1-age/windowHours)
}

// Match counts keyword hits and category overlap on top of the base value.
func Match(c model.Candidate, pref model.UserPreference, base float64) float64 {
	m := base + float64(filter.MatchCount(filter.TextOf(c.Item), pref.IncludeKeywords))
	if overlaps(c.SourceCategories, pref.Categories) {
		m++
	}
	return m
}

// Score returns w_freshness*freshness + w_source*(weight*scale) + w_match*match.
func Score(c model.Candidate, pref model.UserPreference, p Params, now time.Time) float64 {
	s, _ := score(c, pref, p, now)
	return s
}

func score(c model.Candidate, pref model.UserPreference, p Params, now time.Time) (float64, string) {
	fresh := Freshness(c.Item.PublishedAt, now, p.FreshnessWindowHours)
	sw := c.SourceWeight * p.SourceWeightScale
	match := Match(c, pref, p.BaseMatch)
	total := p.WFreshness*fresh + p.WSource*sw + p.WMatch*match
	return total, fmt.Sprintf("freshness=%.3f source=%.3f match=%.1f", fresh, sw, match)
}

// Rank scores every candidate and returns them best first. Equal scores fall
// back to newer publication time, then to lower item id.
func Rank(cands []model.Candidate, pref model.UserPreference, p Params, now time.Time) []Scored {
	out := make([]Scored, len(cands))
	for i, c := range cands {
		s, reason := score(c, pref, p, now)
		out[i] = Scored{Candidate: c, Score: s, Reason: reason}
	}
	Sort(out)
	return out
}

// Sort orders scored candidates deterministically.
func Sort(s []Scored) {
	sort.SliceStable(s, func(i, j int) bool {
		a, b := s[i], s[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if !a.Item.PublishedAt.Equal(b.Item.PublishedAt) {
			return a.Item.PublishedAt.After(b.Item.PublishedAt)
		}
		return a.Item.ID < b.Item.ID
	})
}

func overlaps(a, b []string) bool {
	for _, x := range a {
		if slices.ContainsFunc(b, func(y string) bool { return strings.EqualFold(x, y) }) {
			return true
		}
	}
	return false
}
