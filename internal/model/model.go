// Package model defines the domain types used across the application.
package model

import "time"

// ItemType distinguishes news articles from academic papers.
type ItemType string

// Supported item types.
const (
	ItemNews  ItemType = "NEWS"
	ItemPaper ItemType = "PAPER"
)

// SourceType is the upstream protocol family of a source.
type SourceType string

// Supported source types.
const (
	SourceRSS SourceType = "RSS"
	SourceAPI SourceType = "API"
)

// Adapter kinds. A source's Kind selects the adapter that fetches it.
const (
	KindRSS      = "rss"
	KindArxiv    = "arxiv"
	KindCrossref = "crossref"
	KindOpenAlex = "openalex"
	KindPubMed   = "pubmed"
)

// Source is a configured upstream feed or API with its fetch state and trust weight.
type Source struct {
	ID         int64
	Name       string
	Type       SourceType
	Kind       string
	Endpoint   string
	Query      string
	Categories []string
	Language   string
	Region     string
	Weight     float64
	MaxEntries int
	Enabled    bool

	ETag          string
	LastModified  string
	LastFetchedAt *time.Time
}

// Item is the canonical normalized content record.
type Item struct {
	ID            int64
	Type          ItemType
	SourceID      *int64
	Title         string
	Summary       string
	URL           string
	NormalizedURL string
	PublishedAt   time.Time
	Language      string
	Region        string
	Authors       []string
	Venue         string
	Year          int
	DOI           string
	ContentHash   string
	ContentText   string
	Raw           []byte
	Summaries     map[string]string
	FetchedAt     time.Time
}

// Candidate is an item offered to ranking, with the attributes of its source.
// Items without a source carry weight 1.
type Candidate struct {
	Item             Item
	SourceName       string
	SourceWeight     float64
	SourceCategories []string
}

// UserPreference holds one user's digest settings.
type UserPreference struct {
	UserID          int64
	Enabled         bool
	Categories      []string
	Language        string
	Region          string
	IncludeKeywords []string
	ExcludeKeywords []string
	IncludeAcademic bool
	DailyLimit      int
	PushTime        string // HH:MM in the configured zone
	LastDigestDate  string // YYYY-MM-DD, empty when no digest was built yet
	LastPushDate    string // YYYY-MM-DD of the last delivered digest
}

// Digest is the ranked, size-bounded selection of items for one user and day.
type Digest struct {
	ID        int64
	UserID    int64
	Date      string
	Language  string
	Entries   []DigestEntry
	CreatedAt time.Time
}

// DigestEntry places one item at a rank inside a digest.
type DigestEntry struct {
	ItemID int64
	Rank   int
	Score  float64
	Reason string
}

// BriefEntry is a digest entry joined with what a reader needs to display it.
type BriefEntry struct {
	Rank       int
	Score      float64
	ItemID     int64
	Title      string
	Summary    string
	URL        string
	SourceName string
}

// ItemStateField names one per-user item flag.
type ItemStateField string

// Supported item state flags.
const (
	StateRead     ItemStateField = "read"
	StateFavorite ItemStateField = "favorite"
	StateLater    ItemStateField = "later"
	StateBlocked  ItemStateField = "blocked"
)

// UserItemState tracks a user's flags on a single item.
type UserItemState struct {
	UserID    int64
	ItemID    int64
	Read      bool
	Favorite  bool
	Later     bool
	Blocked   bool
	UpdatedAt time.Time
}
