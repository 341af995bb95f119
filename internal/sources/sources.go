// Package sources fetches upstream feeds and APIs and turns their records into
// normalized items. Each upstream kind is served by one Adapter.
package sources

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"news_digest/internal/dedup"
	"news_digest/internal/fetcher"
	"news_digest/internal/model"
)

// DefaultMaxEntries caps the records taken from one fetch.
const DefaultMaxEntries = 50

// Getter downloads a URL. *fetcher.Client implements it.
type Getter interface {
	Get(ctx context.Context, url string, v fetcher.Validators) (*fetcher.Response, error)
}

// Batch is the outcome of fetching one source.
type Batch struct {
	Items       []model.Item
	Validators  fetcher.Validators
	NotModified bool
	Skipped     int
}

// Adapter fetches one kind of source.
type Adapter interface {
	Kind() string
	Fetch(ctx context.Context, src model.Source) (Batch, error)
}

// Registry maps source kinds to adapters.
type Registry struct {
	adapters map[string]Adapter
}

// NewRegistry builds a registry holding the given adapters.
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: map[string]Adapter{}}
	for _, a := range adapters {
		r.Register(a)
	}
	return r
}

// DefaultRegistry registers an adapter for every supported kind.
func DefaultRegistry(client Getter, loc *time.Location, logger *slog.Logger) *Registry {
	return NewRegistry(
		NewRSS(client, loc, logger),
		NewArxiv(client, loc, logger),
		NewCrossref(client, loc, logger),
		NewOpenAlex(client, loc, logger),
		NewPubMed(client, loc, logger),
	)
}

// Register adds or replaces an adapter.
func (r *Registry) Register(a Adapter) {
	r.adapters[a.Kind()] = a
}

// Resolve returns the adapter for kind.
func (r *Registry) Resolve(kind string) (Adapter, error) {
	if a, ok := r.adapters[kind]; ok {
		return a, nil
	}
	return nil, fmt.Errorf("no adapter for source kind %q", kind)
}

// Kinds lists the registered kinds in order.
func (r *Registry) Kinds() []string {
	kinds := make([]string, 0, len(r.adapters))
	for k := range r.adapters {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// base holds what every adapter shares.
type base struct {
	client Getter
	loc    *time.Location
	logger *slog.Logger
	now    func() time.Time
}

func newBase(client Getter, loc *time.Location, logger *slog.Logger) base {
	if loc == nil {
		loc = time.UTC
	}
	return base{client: client, loc: loc, logger: logger, now: time.Now}
}

// finish attributes items to src and computes their dedup keys.
func finish(items []model.Item, src model.Source) []model.Item {
	for i := range items {
		if src.ID != 0 {
			id := src.ID
			items[i].SourceID = &id
		}
		if items[i].Language == "" {
			items[i].Language = src.Language
		}
		if items[i].Region == "" {
			items[i].Region = src.Region
		}
		dedup.Apply(&items[i])
	}
	return items
}

func maxEntries(src model.Source) int {
	if src.MaxEntries > 0 {
		return src.MaxEntries
	}
	return DefaultMaxEntries
}

func (b base) skip(src model.Source, err error) {
	b.logger.Debug("skipping record", "source_id", src.ID, "source", src.Name, "error", err)
}
