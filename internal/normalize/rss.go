package normalize

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/mmcdole/gofeed"

	"news_digest/internal/model"
	"news_digest/internal/textclean"
)

// FeedEntry converts one RSS/Atom entry of src. The published time falls back
// to the updated time and then to now; both parsed times are read as UTC and
// converted to loc.
func FeedEntry(entry *gofeed.Item, src model.Source, now time.Time, loc *time.Location) (model.Item, error) {
	if entry == nil {
		return model.Item{}, fmt.Errorf("nil entry")
	}
	link := firstNonEmpty(entry.Link, firstLink(entry.Links))
	if link == "" {
		return model.Item{}, ErrMissingURL
	}
	title := textclean.StripTags(entry.Title)
	if title == "" {
		return model.Item{}, ErrMissingTitle
	}

	published := now.In(loc)
	switch {
	case entry.PublishedParsed != nil:
		published = entry.PublishedParsed.UTC().In(loc)
	case entry.UpdatedParsed != nil:
		published = entry.UpdatedParsed.UTC().In(loc)
	}

	raw, err := json.Marshal(entry)
	if err != nil {
		return model.Item{}, fmt.Errorf("encode raw entry: %w", err)
	}

	var authors []string
	for _, a := range entry.Authors {
		if a != nil {
			authors = append(authors, a.Name)
		}
	}

	item := model.Item{
		Type:        model.ItemNews,
		Title:       title,
		Summary:     textclean.StripTags(firstNonEmpty(entry.Description, entry.Content)),
		URL:         link,
		PublishedAt: published,
		Language:    src.Language,
		Region:      src.Region,
		Authors:     cleanAuthors(authors),
		Raw:         raw,
	}
	if src.ID != 0 {
		id := src.ID
		item.SourceID = &id
	}
	return item, nil
}

// ArxivEntry converts one entry of the arXiv Atom API.
func ArxivEntry(entry *gofeed.Item, now time.Time, loc *time.Location) (model.Item, error) {
	item, err := FeedEntry(entry, model.Source{}, now, loc)
	if err != nil {
		return model.Item{}, err
	}
	item.Type = model.ItemPaper
	item.Venue = "arXiv"
	if ref := arxivExtension(entry, "journal_ref"); ref != "" {
		item.Venue = ref
	}
	item.DOI = NormalizeDOI(arxivExtension(entry, "doi"))
	item.Year = item.PublishedAt.Year()
	item.Summary = textclean.Ellipsize(item.Summary, maxAbstractRunes)
	return item, nil
}

func arxivExtension(entry *gofeed.Item, name string) string {
	ns, ok := entry.Extensions["arxiv"]
	if !ok {
		return ""
	}
	for _, ext := range ns[name] {
		if v := textclean.CollapseSpace(ext.Value); v != "" {
			return v
		}
	}
	return ""
}

func firstLink(links []string) string {
	for _, l := range links {
		if l != "" {
			return l
		}
	}
	return ""
}
