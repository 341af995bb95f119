package normalize

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"news_digest/internal/model"
	"news_digest/internal/textclean"
)

type crossrefDate struct {
	DateParts [][]*int `json:"date-parts"`
}

type crossrefWork struct {
	Title           []string      `json:"title"`
	DOI             string        `json:"DOI"`
	URL             string        `json:"URL"`
	Issued          *crossrefDate `json:"issued"`
	PublishedOnline *crossrefDate `json:"published-online"`
	PublishedPrint  *crossrefDate `json:"published-print"`
	Created         *crossrefDate `json:"created"`
	Author          []struct {
		Given  string `json:"given"`
		Family string `json:"family"`
	} `json:"author"`
	ContainerTitle []string `json:"container-title"`
	Abstract       string   `json:"abstract"`
	Language       string   `json:"language"`
}

// CrossrefWork converts one item of a Crossref /works response.
func CrossrefWork(raw json.RawMessage, loc *time.Location) (model.Item, error) {
	var w crossrefWork
	if err := json.Unmarshal(raw, &w); err != nil {
		return model.Item{}, fmt.Errorf("decode crossref work: %w", err)
	}

	title := textclean.StripTags(firstNonEmpty(w.Title...))
	if title == "" {
		return model.Item{}, ErrMissingTitle
	}
	doi := NormalizeDOI(w.DOI)
	url := strings.TrimSpace(w.URL)
	if url == "" && doi != "" {
		url = "https://doi.org/" + doi
	}
	if url == "" {
		return model.Item{}, ErrMissingURL
	}

	published, ok := firstCrossrefDate(loc, w.Issued, w.PublishedOnline, w.PublishedPrint, w.Created)
	if !ok {
		return model.Item{}, ErrMissingDate
	}

	authors := make([]string, 0, len(w.Author))
	for _, a := range w.Author {
		authors = append(authors, strings.TrimSpace(textclean.StripTags(a.Given)+" "+textclean.StripTags(a.Family)))
	}

	return model.Item{
		Type:        model.ItemPaper,
		Title:       title,
		Summary:     textclean.Ellipsize(textclean.StripTags(w.Abstract), maxAbstractRunes),
		URL:         url,
		PublishedAt: published,
		Language:    strings.TrimSpace(w.Language),
		Authors:     cleanAuthors(authors),
		Venue:       textclean.StripTags(firstNonEmpty(w.ContainerTitle...)),
		Year:        published.Year(),
		DOI:         doi,
		Raw:         append([]byte(nil), raw...),
	}, nil
}

// firstCrossrefDate returns the first complete date among the candidates in
// order. Missing month or day default to 1.
func firstCrossrefDate(loc *time.Location, candidates ...*crossrefDate) (time.Time, bool) {
	for _, c := range candidates {
		if c == nil || len(c.DateParts) == 0 || len(c.DateParts[0]) == 0 {
			continue
		}
		parts := c.DateParts[0]
		if parts[0] == nil {
			continue
		}
		y, m, d := *parts[0], 1, 1
		if len(parts) > 1 && parts[1] != nil {
			m = *parts[1]
		}
		if len(parts) > 2 && parts[2] != nil {
			d = *parts[2]
		}
		if t, ok := civilDate(y, m, d, loc); ok {
			return t, true
		}
	}
	return time.Time{}, false
}

type openAlexWork struct {
	ID              string `json:"id"`
	Title           string `json:"title"`
	PublicationDate string `json:"publication_date"`
	PublicationYear int    `json:"publication_year"`
	DOI             string `json:"doi"`
	IDs             struct {
		DOI      string `json:"doi"`
		OpenAlex string `json:"openalex"`
	} `json:"ids"`
	PrimaryLocation *struct {
		LandingPageURL string `json:"landing_page_url"`
		Source         *struct {
			DisplayName string `json:"display_name"`
		} `json:"source"`
	} `json:"primary_location"`
	Authorships []struct {
		Author struct {
			DisplayName string `json:"display_name"`
		} `json:"author"`
	} `json:"authorships"`
	AbstractInvertedIndex map[string][]int `json:"abstract_inverted_index"`
	Language              string           `json:"language"`
}

// OpenAlexWork converts one entry of an OpenAlex /works response.
func OpenAlexWork(raw json.RawMessage, loc *time.Location) (model.Item, error) {
	var w openAlexWork
	if err := json.Unmarshal(raw, &w); err != nil {
		return model.Item{}, fmt.Errorf("decode openalex work: %w", err)
	}

	title := textclean.StripTags(w.Title)
	if title == "" {
		return model.Item{}, ErrMissingTitle
	}

	var url, venue string
	if pl := w.PrimaryLocation; pl != nil {
		url = pl.LandingPageURL
		if pl.Source != nil {
			venue = textclean.StripTags(pl.Source.DisplayName)
		}
	}
	url = firstNonEmpty(url, w.IDs.OpenAlex, w.ID)
	if url == "" {
		return model.Item{}, ErrMissingURL
	}

	published, ok := parseISODate(w.PublicationDate, loc)
	if !ok {
		return model.Item{}, ErrMissingDate
	}
	year := w.PublicationYear
	if year == 0 {
		year = published.Year()
	}

	authors := make([]string, 0, len(w.Authorships))
	for _, a := range w.Authorships {
		authors = append(authors, a.Author.DisplayName)
	}

	return model.Item{
		Type:        model.ItemPaper,
		Title:       title,
		Summary:     textclean.Ellipsize(RebuildAbstract(w.AbstractInvertedIndex), maxAbstractRunes),
		URL:         strings.TrimSpace(url),
		PublishedAt: published,
		Language:    strings.TrimSpace(w.Language),
		Authors:     cleanAuthors(authors),
		Venue:       venue,
		Year:        year,
		DOI:         NormalizeDOI(firstNonEmpty(w.DOI, w.IDs.DOI)),
		Raw:         append([]byte(nil), raw...),
	}, nil
}

// RebuildAbstract reconstructs plain text from an inverted word index
// (word -> positions). Words are placed at each recorded position of an array
// sized to the largest position; unfilled slots are skipped.
func RebuildAbstract(inv map[string][]int) string {
	maxPos := -1
	for _, positions := range inv {
		for _, p := range positions {
			if p > maxPos {
				maxPos = p
			}
		}
	}
	if maxPos < 0 {
		return ""
	}

	words := make([]string, maxPos+1)
	keys := make([]string, 0, len(inv))
	for w := range inv {
		keys = append(keys, w)
	}
	sort.Strings(keys)
	for _, w := range keys {
		for _, p := range inv[w] {
			if p >= 0 {
				words[p] = w
			}
		}
	}

	filled := words[:0]
	for _, w := range words {
		if w != "" {
			filled = append(filled, w)
		}
	}
	return textclean.StripTags(strings.Join(filled, " "))
}

type pubmedSummary struct {
	UID     string `json:"uid"`
	Title   string `json:"title"`
	Authors []struct {
		Name string `json:"name"`
	} `json:"authors"`
	FullJournalName string `json:"fulljournalname"`
	Source          string `json:"source"`
	PubDate         string `json:"pubdate"`
	ArticleIDs      []struct {
		IDType string `json:"idtype"`
		Value  string `json:"value"`
	} `json:"articleids"`
	ELocationID string `json:"elocationid"`
	DOI         string `json:"doi"`
}

var yearExpr = regexp.MustCompile(`\d{4}`)

// PubMedSummary converts one record of an ESummary response. pmid overrides
// the record's uid when non-empty.
func PubMedSummary(raw json.RawMessage, pmid string, loc *time.Location) (model.Item, error) {
	var s pubmedSummary
	if err := json.Unmarshal(raw, &s); err != nil {
		return model.Item{}, fmt.Errorf("decode pubmed summary: %w", err)
	}

	title := textclean.StripTags(s.Title)
	if title == "" {
		return model.Item{}, ErrMissingTitle
	}
	pmid = firstNonEmpty(pmid, s.UID)
	doi := pubmedDOI(s)

	var url string
	switch {
	case pmid != "":
		url = "https://pubmed.ncbi.nlm.nih.gov/" + pmid + "/"
	case doi != "":
		url = "https://doi.org/" + doi
	default:
		return model.Item{}, ErrMissingURL
	}

	published, ok := parsePubDate(s.PubDate, loc)
	if !ok {
		return model.Item{}, ErrMissingDate
	}

	authors := make([]string, 0, len(s.Authors))
	for _, a := range s.Authors {
		authors = append(authors, a.Name)
	}

	return model.Item{
		Type:        model.ItemPaper,
		Title:       title,
		URL:         url,
		PublishedAt: published,
		Authors:     cleanAuthors(authors),
		Venue:       textclean.StripTags(firstNonEmpty(s.FullJournalName, s.Source)),
		Year:        published.Year(),
		DOI:         doi,
		Raw:         append([]byte(nil), raw...),
	}, nil
}

// pubmedDOI searches the id list, then the location identifier, then the bare
// doi field.
func pubmedDOI(s pubmedSummary) string {
	for _, aid := range s.ArticleIDs {
		if strings.EqualFold(aid.IDType, "doi") {
			if v := NormalizeDOI(aid.Value); v != "" {
				return v
			}
		}
	}
	if eloc := strings.TrimSpace(s.ELocationID); strings.HasPrefix(strings.ToLower(eloc), "doi:") {
		if v := NormalizeDOI(eloc); v != "" {
			return v
		}
	}
	return NormalizeDOI(s.DOI)
}

// parsePubDate reads PubMed dates such as "2018 May 15", "2020 Oct" or "1999".
// Anything else falls back to January 1 of the first four-digit year.
func parsePubDate(s string, loc *time.Location) (time.Time, bool) {
	s = textclean.CollapseSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{"2006 Jan 2", "2006 Jan", "2006"} {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	if m := yearExpr.FindString(s); m != "" {
		y, _ := strconv.Atoi(m)
		return civilDate(y, 1, 1, loc)
	}
	return time.Time{}, false
}
