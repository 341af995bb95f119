// Package digest assembles the ranked per-user daily selection.
package digest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"news_digest/internal/model"
	"news_digest/internal/ranker"
)

// DefaultLanguage is the digest language when the user has not chosen one.
const DefaultLanguage = "zh"

// Store is the persistence the builder needs.
type Store interface {
	BlockedItemIDs(ctx context.Context, userID int64) (map[int64]bool, error)
	ReplaceDigest(ctx context.Context, d *model.Digest) error
}

// Builder ranks candidates and stores the resulting digest.
type Builder struct {
	store  Store
	params ranker.Params
	logger *slog.Logger
	now    func() time.Time
}

// NewBuilder creates a digest builder.
func NewBuilder(store Store, params ranker.Params, logger *slog.Logger) *Builder {
	return &Builder{
		store:  store,
		params: params,
		logger: logger,
		now:    time.Now,
	}
}

// Build replaces the digest of (userID, date) with the top pref.DailyLimit
// candidates the user has not blocked. Candidate boundaries (time window,
// sources, language) are the caller's concern. An empty result is still
// stored so the previous entries are cleared.
func (b *Builder) Build(ctx context.Context, userID int64, date string, pref model.UserPreference, cands []model.Candidate) (*model.Digest, error) {
	blocked, err := b.store.BlockedItemIDs(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get blocked items: %w", err)
	}

	d := &model.Digest{
		UserID:   userID,
		Date:     date,
		Language: pref.Language,
		Entries:  Select(cands, blocked, pref, b.params, b.now()),
	}
	if d.Language == "" {
		d.Language = DefaultLanguage
	}

	if err := b.store.ReplaceDigest(ctx, d); err != nil {
		return nil, fmt.Errorf("replace digest: %w", err)
	}

	b.logger.Info("digest built",
		"user_id", userID,
		"date", date,
		"candidates", len(cands),
		"blocked", len(blocked),
		"entries", len(d.Entries),
	)
	return d, nil
}

// Select drops blocked candidates, ranks the rest and keeps the first
// pref.DailyLimit with contiguous 1-based ranks.
func Select(cands []model.Candidate, blocked map[int64]bool, pref model.UserPreference, p ranker.Params, now time.Time) []model.DigestEntry {
	eligible := make([]model.Candidate, 0, len(cands))
	for _, c := range cands {
		if !blocked[c.Item.ID] {
			eligible = append(eligible, c)
		}
	}

	ranked := ranker.Rank(eligible, pref, p, now)
	if pref.DailyLimit >= 0 && len(ranked) > pref.DailyLimit {
		ranked = ranked[:pref.DailyLimit]
	}

	entries := make([]model.DigestEntry, len(ranked))
	for i, s := range ranked {
		entries[i] = model.DigestEntry{
			ItemID: s.Item.ID,
			Rank:   i + 1,
			Score:  s.Score,
			Reason: s.Reason,
		}
	}
	return entries
}
