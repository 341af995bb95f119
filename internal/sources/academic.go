package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"news_digest/internal/fetcher"
	"news_digest/internal/model"
	"news_digest/internal/normalize"
)

// Default API endpoints, used when a source leaves its endpoint empty.
const (
	ArxivEndpoint    = "http://export.arxiv.org/api/query"
	CrossrefEndpoint = "https://api.crossref.org/works"
	OpenAlexEndpoint = "https://api.openalex.org/works"
	PubMedEndpoint   = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils"
)

// crossrefLookback bounds Crossref queries to recently published works.
const crossrefLookback = 7 * 24 * time.Hour

func endpoint(src model.Source, fallback string) string {
	if e := strings.TrimSpace(src.Endpoint); e != "" {
		return strings.TrimRight(e, "/")
	}
	return fallback
}

func (b base) getJSON(ctx context.Context, rawURL string, dst any) error {
	resp, err := b.client.Get(ctx, rawURL, fetcher.Validators{})
	if err != nil {
		return err
	}
	if err := json.Unmarshal(resp.Body, dst); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Arxiv queries the arXiv Atom API.
type Arxiv struct {
	base
}

// NewArxiv creates the arXiv adapter.
func NewArxiv(client Getter, loc *time.Location, logger *slog.Logger) *Arxiv {
	return &Arxiv{base: newBase(client, loc, logger)}
}

// Kind implements Adapter.
func (a *Arxiv) Kind() string { return model.KindArxiv }

// Fetch implements Adapter.
func (a *Arxiv) Fetch(ctx context.Context, src model.Source) (Batch, error) {
	q := url.Values{}
	q.Set("search_query", "all:"+src.Query)
	q.Set("start", "0")
	q.Set("max_results", strconv.Itoa(maxEntries(src)))
	q.Set("sortBy", "submittedDate")
	q.Set("sortOrder", "descending")

	resp, err := a.client.Get(ctx, endpoint(src, ArxivEndpoint)+"?"+q.Encode(), fetcher.Validators{})
	if err != nil {
		return Batch{}, err
	}
	feed, err := fetcher.ParseFeed(resp.Body)
	if err != nil {
		return Batch{}, err
	}

	var batch Batch
	now := a.now()
	for _, entry := range feed.Items {
		item, err := normalize.ArxivEntry(entry, now, a.loc)
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

// Crossref searches the Crossref works API.
type Crossref struct {
	base
}

// NewCrossref creates the Crossref adapter.
func NewCrossref(client Getter, loc *time.Location, logger *slog.Logger) *Crossref {
	return &Crossref{base: newBase(client, loc, logger)}
}

// Kind implements Adapter.
func (a *Crossref) Kind() string { return model.KindCrossref }

// Fetch implements Adapter.
func (a *Crossref) Fetch(ctx context.Context, src model.Source) (Batch, error) {
	q := url.Values{}
	q.Set("query", src.Query)
	q.Set("rows", strconv.Itoa(maxEntries(src)))
	q.Set("filter", "from-pub-date:"+a.now().In(a.loc).Add(-crossrefLookback).Format("2006-01-02"))
	q.Set("sort", "published")
	q.Set("order", "desc")

	var body struct {
		Message struct {
			Items []json.RawMessage `json:"items"`
		} `json:"message"`
	}
	if err := a.getJSON(ctx, endpoint(src, CrossrefEndpoint)+"?"+q.Encode(), &body); err != nil {
		return Batch{}, err
	}

	var batch Batch
	for _, raw := range body.Message.Items {
		item, err := normalize.CrossrefWork(raw, a.loc)
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

// OpenAlex searches the OpenAlex works API.
type OpenAlex struct {
	base
}

// NewOpenAlex creates the OpenAlex adapter.
func NewOpenAlex(client Getter, loc *time.Location, logger *slog.Logger) *OpenAlex {
	return &OpenAlex{base: newBase(client, loc, logger)}
}

// Kind implements Adapter.
func (a *OpenAlex) Kind() string { return model.KindOpenAlex }

// Fetch implements Adapter.
func (a *OpenAlex) Fetch(ctx context.Context, src model.Source) (Batch, error) {
	q := url.Values{}
	q.Set("search", src.Query)
	q.Set("per_page", strconv.Itoa(maxEntries(src)))

	var body struct {
		Results []json.RawMessage `json:"results"`
	}
	if err := a.getJSON(ctx, endpoint(src, OpenAlexEndpoint)+"?"+q.Encode(), &body); err != nil {
		return Batch{}, err
	}

	var batch Batch
	for _, raw := range body.Results {
		item, err := normalize.OpenAlexWork(raw, a.loc)
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

// PubMed searches PubMed through E-utilities: ESearch for ids, then
// ESummary for the records.
type PubMed struct {
	base
}

// NewPubMed creates the PubMed adapter.
func NewPubMed(client Getter, loc *time.Location, logger *slog.Logger) *PubMed {
	return &PubMed{base: newBase(client, loc, logger)}
}

// Kind implements Adapter.
func (a *PubMed) Kind() string { return model.KindPubMed }

// Fetch implements Adapter.
func (a *PubMed) Fetch(ctx context.Context, src model.Source) (Batch, error) {
	root := endpoint(src, PubMedEndpoint)

	q := url.Values{}
	q.Set("db", "pubmed")
	q.Set("term", src.Query)
	q.Set("retmode", "json")
	q.Set("retmax", strconv.Itoa(maxEntries(src)))

	var search struct {
		Result struct {
			IDList []string `json:"idlist"`
		} `json:"esearchresult"`
	}
	if err := a.getJSON(ctx, root+"/esearch.fcgi?"+q.Encode(), &search); err != nil {
		return Batch{}, fmt.Errorf("esearch: %w", err)
	}
	ids := search.Result.IDList
	if len(ids) == 0 {
		return Batch{}, nil
	}

	q = url.Values{}
	q.Set("db", "pubmed")
	q.Set("id", strings.Join(ids, ","))
	q.Set("retmode", "json")

	var summary struct {
		Result map[string]json.RawMessage `json:"result"`
	}
	if err := a.getJSON(ctx, root+"/esummary.fcgi?"+q.Encode(), &summary); err != nil {
		return Batch{}, fmt.Errorf("esummary: %w", err)
	}

	var batch Batch
	for _, pmid := range ids {
		raw, ok := summary.Result[pmid]
		if !ok {
			batch.Skipped++
			continue
		}
		item, err := normalize.PubMedSummary(raw, pmid, a.loc)
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
