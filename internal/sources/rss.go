package sources

import (
	"context"
	"log/slog"
	"time"

	"news_digest/internal/fetcher"
	"news_digest/internal/model"
	"news_digest/internal/normalize"
)

// RSS fetches RSS and Atom feeds with conditional GET.
type RSS struct {
	base
}

// NewRSS creates the RSS adapter.
func NewRSS(client Getter, loc *time.Location, logger *slog.Logger) *RSS {
	return &RSS{base: newBase(client, loc, logger)}
}

// Kind implements Adapter.
func (a *RSS) Kind() string { return model.KindRSS }

// Fetch implements Adapter. The returned batch carries validators even when
// the feed cannot be parsed, so the caller can record the attempt.
func (a *RSS) Fetch(ctx context.Context, src model.Source) (Batch, error) {
	resp, err := a.client.Get(ctx, src.Endpoint, fetcher.Validators{ETag: src.ETag, LastModified: src.LastModified})
	if err != nil {
		return Batch{}, err
	}
	batch := Batch{Validators: resp.Validators}
	if resp.NotModified {
		batch.NotModified = true
		return batch, nil
	}

	feed, err := fetcher.ParseFeed(resp.Body)
	if err != nil {
		return batch, err
	}

	now := a.now()
	entries := feed.Items
	if n := maxEntries(src); len(entries) > n {
		entries = entries[:n]
	}
	for _, entry := range entries {
		item, err := normalize.FeedEntry(entry, src, now, a.loc)
		if err != nil {
			batch.Skipped++
			a.skip(src, err)
			continue
		}
		batch.Items = append(batch.Items, item)
	}
	batch.Items = finish(batch.Items, src)
	return batch, nil
}
