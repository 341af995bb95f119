// Package pipeline ties the components together: fetching sources into the
// item catalog, building per-user digests and serving briefs.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"news_digest/internal/digest"
	"news_digest/internal/fetcher"
	"news_digest/internal/filter"
	"news_digest/internal/model"
	"news_digest/internal/preference"
	"news_digest/internal/sources"
	"news_digest/internal/storage"
	"news_digest/internal/summarizer"
)

// DateLayout formats digest dates.
const DateLayout = "2006-01-02"

// HistoryLimit caps how many past digests History returns.
const HistoryLimit = 60

// TextExtractor downloads an article page and returns its body text.
type TextExtractor interface {
	Text(ctx context.Context, url string) (string, error)
}

// Options configure a Pipeline.
type Options struct {
	CandidateWindow time.Duration
	Location        *time.Location
	Tiers           []int
	// Extractor fills content_text of new RSS items; nil disables extraction.
	Extractor TextExtractor
}

// Pipeline runs fetches and digest builds against one store.
type Pipeline struct {
	store      storage.Storage
	registry   *sources.Registry
	builder    *digest.Builder
	summarizer *summarizer.Service
	opts       Options
	logger     *slog.Logger
	now        func() time.Time
}

// New creates a Pipeline.
func New(
	store storage.Storage,
	registry *sources.Registry,
	builder *digest.Builder,
	summ *summarizer.Service,
	opts Options,
	logger *slog.Logger,
) *Pipeline {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.CandidateWindow <= 0 {
		opts.CandidateWindow = 72 * time.Hour
	}
	return &Pipeline{
		store:      store,
		registry:   registry,
		builder:    builder,
		summarizer: summ,
		opts:       opts,
		logger:     logger,
		now:        time.Now,
	}
}

// Today returns the current date in the configured zone.
func (p *Pipeline) Today() string {
	return p.now().In(p.opts.Location).Format(DateLayout)
}

// Location returns the zone digest dates and push times are expressed in.
func (p *Pipeline) Location() *time.Location {
	return p.opts.Location
}

// SyncSources upserts the configured sources by name and disables stored
// sources missing from seeds. Fetch state of known sources is kept.
func (p *Pipeline) SyncSources(ctx context.Context, seeds []model.Source) error {
	names := make(map[string]struct{}, len(seeds))
	for i := range seeds {
		if err := p.store.UpsertSource(ctx, &seeds[i]); err != nil {
			return fmt.Errorf("sync source %q: %w", seeds[i].Name, err)
		}
		names[seeds[i].Name] = struct{}{}
	}

	stored, err := p.store.ListSources(ctx, true)
	if err != nil {
		return fmt.Errorf("list sources: %w", err)
	}
	disabled := 0
	for _, src := range stored {
		if _, ok := names[src.Name]; ok {
			continue
		}
		src.Enabled = false
		if err := p.store.UpsertSource(ctx, &src); err != nil {
			return fmt.Errorf("disable source %q: %w", src.Name, err)
		}
		disabled++
	}
	p.logger.Info("sources synced", "count", len(seeds), "disabled", disabled)
	return nil
}

// FetchStats summarizes one FetchAll run.
type FetchStats struct {
	RunID       string
	Sources     int
	Failed      int
	NotModified int
	Fetched     int
	Created     int
	Skipped     int
	Extracted   int
}

// FetchAll fetches every enabled source and stores new items. A failing
// source is logged and counted; the others still run. Fetch state is
// recorded for every attempted source, including failures.
func (p *Pipeline) FetchAll(ctx context.Context) (FetchStats, error) {
	stats := FetchStats{RunID: uuid.NewString()}
	log := p.logger.With("run_id", stats.RunID)

	srcs, err := p.store.ListSources(ctx, true)
	if err != nil {
		return stats, fmt.Errorf("list sources: %w", err)
	}

	for _, src := range srcs {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}
		stats.Sources++
		if err := p.fetchSource(ctx, src, &stats, log); err != nil {
			stats.Failed++
			log.Error("fetch source", "source_id", src.ID, "source", src.Name, "error", err)
		}
	}

	log.Info("fetch finished",
		"sources", stats.Sources,
		"failed", stats.Failed,
		"not_modified", stats.NotModified,
		"fetched", stats.Fetched,
		"created", stats.Created,
		"skipped", stats.Skipped,
	)
	return stats, nil
}

func (p *Pipeline) fetchSource(ctx context.Context, src model.Source, stats *FetchStats, log *slog.Logger) error {
	adapter, err := p.registry.Resolve(src.Kind)
	if err != nil {
		return err
	}

	batch, err := adapter.Fetch(ctx, src)
	if err != nil {
		p.recordFetch(ctx, src.ID, fetcher.Validators{}, log)
		return err
	}
	if batch.NotModified {
		p.recordFetch(ctx, src.ID, batch.Validators, log)
		stats.NotModified++
		log.Debug("source not modified", "source_id", src.ID, "source", src.Name)
		return nil
	}

	stats.Fetched += len(batch.Items)
	stats.Skipped += batch.Skipped
	created, err := p.store.UpsertItems(ctx, batch.Items)
	if err != nil {
		// New validators would turn the next fetch into a 304 and lose
		// this batch.
		p.recordFetch(ctx, src.ID, fetcher.Validators{}, log)
		return fmt.Errorf("upsert items: %w", err)
	}
	p.recordFetch(ctx, src.ID, batch.Validators, log)
	stats.Created += created
	log.Debug("source fetched", "source_id", src.ID, "source", src.Name, "items", len(batch.Items), "created", created)

	if p.opts.Extractor == nil || src.Kind != model.KindRSS {
		return nil
	}
	for _, it := range batch.Items {
		if it.ID == 0 || it.ContentText != "" || it.URL == "" {
			continue
		}
		text, err := p.opts.Extractor.Text(ctx, it.URL)
		if err != nil {
			log.Debug("extract body", "item_id", it.ID, "url", it.URL, "error", err)
			continue
		}
		if err := p.store.SetItemContent(ctx, it.ID, text); err != nil {
			log.Error("store body", "item_id", it.ID, "error", err)
			continue
		}
		stats.Extracted++
	}
	return nil
}

// recordFetch stamps the fetch attempt. Empty validators keep the stored ones.
func (p *Pipeline) recordFetch(ctx context.Context, sourceID int64, v fetcher.Validators, log *slog.Logger) {
	if err := p.store.UpdateFetchState(ctx, sourceID, v.ETag, v.LastModified, p.now()); err != nil {
		log.Error("update fetch state", "source_id", sourceID, "error", err)
	}
}

// Preference returns the user's settings, creating the defaults on first use.
func (p *Pipeline) Preference(ctx context.Context, userID int64) (model.UserPreference, error) {
	pref, err := p.store.GetPreference(ctx, userID)
	if err == nil {
		return *pref, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return model.UserPreference{}, fmt.Errorf("get preference: %w", err)
	}
	def := preference.Default(userID)
	if err := p.store.SavePreference(ctx, &def); err != nil {
		return model.UserPreference{}, fmt.Errorf("create preference: %w", err)
	}
	return def, nil
}

// SavePreference normalizes keyword lists, validates and stores pref.
// Validation failures are returned as the preference package's errors.
func (p *Pipeline) SavePreference(ctx context.Context, pref model.UserPreference) (model.UserPreference, error) {
	pref.IncludeKeywords = preference.Dedupe(pref.IncludeKeywords)
	pref.ExcludeKeywords = preference.Dedupe(pref.ExcludeKeywords)
	pref.Categories = preference.Dedupe(pref.Categories)
	if err := preference.Validate(pref, p.opts.Tiers); err != nil {
		return pref, err
	}
	if err := p.store.SavePreference(ctx, &pref); err != nil {
		return pref, fmt.Errorf("save preference: %w", err)
	}
	return pref, nil
}

// BuildDigests builds the digest for date of every enabled user whose last
// digest is older than date, or of every enabled user when force is set.
// A failure for one user is logged and the others continue.
func (p *Pipeline) BuildDigests(ctx context.Context, date string, force bool) (int, error) {
	prefs, err := p.store.ListPreferences(ctx)
	if err != nil {
		return 0, fmt.Errorf("list preferences: %w", err)
	}

	built := 0
	for _, pref := range prefs {
		if ctx.Err() != nil {
			return built, ctx.Err()
		}
		if !pref.Enabled {
			continue
		}
		if !force && pref.LastDigestDate >= date {
			continue
		}
		if _, err := p.BuildDigest(ctx, pref, date); err != nil {
			p.logger.Error("build digest", "user_id", pref.UserID, "date", date, "error", err)
			continue
		}
		built++
	}
	return built, nil
}

// BuildDigest assembles candidates for pref and replaces the user's digest
// for date. The digest watermark advances on success.
func (p *Pipeline) BuildDigest(ctx context.Context, pref model.UserPreference, date string) (*model.Digest, error) {
	cands, err := p.store.ListCandidates(ctx, storage.CandidateQuery{
		Since:      p.now().Add(-p.opts.CandidateWindow),
		Categories: pref.Categories,
		Language:   pref.Language,
		Region:     pref.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}

	d, err := p.builder.Build(ctx, pref.UserID, date, pref, filter.Prefilter(cands, pref))
	if err != nil {
		return nil, err
	}
	if date > pref.LastDigestDate {
		if err := p.store.SetLastDigestDate(ctx, pref.UserID, date); err != nil {
			return d, fmt.Errorf("advance digest date: %w", err)
		}
	}
	return d, nil
}

// Refresh fetches all sources and rebuilds today's digest for the user.
func (p *Pipeline) Refresh(ctx context.Context, userID int64) (*model.Digest, error) {
	if _, err := p.FetchAll(ctx); err != nil {
		return nil, err
	}
	pref, err := p.Preference(ctx, userID)
	if err != nil {
		return nil, err
	}
	return p.BuildDigest(ctx, pref, p.Today())
}

// Brief returns the user's digest for date ready for display, building it
// first when none exists. Summaries are computed on demand in the digest
// language and cached.
func (p *Pipeline) Brief(ctx context.Context, userID int64, date string) ([]model.BriefEntry, error) {
	d, err := p.store.GetDigest(ctx, userID, date)
	if errors.Is(err, storage.ErrNotFound) {
		pref, perr := p.Preference(ctx, userID)
		if perr != nil {
			return nil, perr
		}
		d, err = p.BuildDigest(ctx, pref, date)
	}
	if err != nil {
		return nil, fmt.Errorf("get digest: %w", err)
	}

	rows, err := p.store.ListEntryItems(ctx, d.ID)
	if err != nil {
		return nil, fmt.Errorf("list digest entries: %w", err)
	}
	out := make([]model.BriefEntry, 0, len(rows))
	for _, r := range rows {
		item := r.Item
		out = append(out, model.BriefEntry{
			Rank:       r.Entry.Rank,
			Score:      r.Entry.Score,
			ItemID:     item.ID,
			Title:      item.Title,
			Summary:    p.summarizer.Summarize(ctx, &item, d.Language),
			URL:        item.URL,
			SourceName: r.SourceName,
		})
	}
	return out, nil
}

// History lists the user's most recent digests, newest first. A limit
// outside 1..HistoryLimit means HistoryLimit.
func (p *Pipeline) History(ctx context.Context, userID int64, limit int) ([]storage.DigestInfo, error) {
	if limit <= 0 || limit > HistoryLimit {
		limit = HistoryLimit
	}
	digests, err := p.store.ListDigests(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list digests: %w", err)
	}
	return digests, nil
}

// SetItemState sets one of the user's flags on an item. Blocking an item
// rebuilds today's digest so it disappears at once.
func (p *Pipeline) SetItemState(ctx context.Context, userID, itemID int64, field model.ItemStateField, value bool) (model.UserItemState, error) {
	if _, err := p.store.GetItem(ctx, itemID); err != nil {
		return model.UserItemState{}, fmt.Errorf("get item: %w", err)
	}
	st, err := p.store.SetItemState(ctx, userID, itemID, field, value)
	if err != nil {
		return st, err
	}
	if field == model.StateBlocked {
		p.rebuildToday(ctx, userID)
	}
	return st, nil
}

// ToggleItemState flips one of the user's flags on an item.
func (p *Pipeline) ToggleItemState(ctx context.Context, userID, itemID int64, field model.ItemStateField) (model.UserItemState, error) {
	if _, err := p.store.GetItem(ctx, itemID); err != nil {
		return model.UserItemState{}, fmt.Errorf("get item: %w", err)
	}
	st, err := p.store.ToggleItemState(ctx, userID, itemID, field)
	if err != nil {
		return st, err
	}
	if field == model.StateBlocked {
		p.rebuildToday(ctx, userID)
	}
	return st, nil
}

func (p *Pipeline) rebuildToday(ctx context.Context, userID int64) {
	today := p.Today()
	if _, err := p.store.GetDigest(ctx, userID, today); err != nil {
		return
	}
	pref, err := p.Preference(ctx, userID)
	if err != nil {
		p.logger.Error("load preference for rebuild", "user_id", userID, "error", err)
		return
	}
	if _, err := p.BuildDigest(ctx, pref, today); err != nil {
		p.logger.Error("rebuild digest", "user_id", userID, "date", today, "error", err)
	}
}

// Summary returns the item's summary in lang, computing and caching it when
// missing.
func (p *Pipeline) Summary(ctx context.Context, itemID int64, lang string) (string, error) {
	item, err := p.store.GetItem(ctx, itemID)
	if err != nil {
		return "", fmt.Errorf("get item: %w", err)
	}
	return p.summarizer.Summarize(ctx, item, lang), nil
}

// ClearSummary drops the cached summary of the item in lang.
func (p *Pipeline) ClearSummary(ctx context.Context, itemID int64, lang string) error {
	item, err := p.store.GetItem(ctx, itemID)
	if err != nil {
		return fmt.Errorf("get item: %w", err)
	}
	return p.summarizer.Clear(ctx, item, lang)
}

// SchemaVersion reports the store's migration version.
func (p *Pipeline) SchemaVersion() (int64, error) {
	return p.store.SchemaVersion()
}
