// Package storage defines the persistence interface and its implementations.
package storage

import (
	"context"
	"errors"
	"time"

	"news_digest/internal/model"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// CandidateQuery bounds the items offered to ranking.
type CandidateQuery struct {
	Since      time.Time
	Categories []string // source categories; empty means any
	Language   string   // empty means any
	Region     string   // empty means any
	Limit      int      // zero means no limit
}

// EntryItem is a digest entry joined with its item and source name.
type EntryItem struct {
	Entry      model.DigestEntry
	Item       model.Item
	SourceName string
}

// DigestInfo describes a stored digest without its entries.
type DigestInfo struct {
	ID         int64
	Date       string
	Language   string
	EntryCount int
	CreatedAt  time.Time
}

// Storage is the interface for all persistence operations.
type Storage interface {
	UpsertSource(ctx context.Context, src *model.Source) error
	GetSource(ctx context.Context, id int64) (*model.Source, error)
	ListSources(ctx context.Context, enabledOnly bool) ([]model.Source, error)
	UpdateFetchState(ctx context.Context, sourceID int64, etag, lastModified string, fetchedAt time.Time) error

	UpsertItems(ctx context.Context, items []model.Item) (int, error)
	GetItem(ctx context.Context, id int64) (*model.Item, error)
	GetItemByURL(ctx context.Context, normalizedURL string) (*model.Item, error)
	SetItemContent(ctx context.Context, id int64, text string) error
	SetItemSummary(ctx context.Context, itemID int64, lang, summary string) error
	ClearItemSummary(ctx context.Context, itemID int64, lang string) error
	ListCandidates(ctx context.Context, q CandidateQuery) ([]model.Candidate, error)

	GetPreference(ctx context.Context, userID int64) (*model.UserPreference, error)
	SavePreference(ctx context.Context, pref *model.UserPreference) error
	ListPreferences(ctx context.Context) ([]model.UserPreference, error)
	SetLastDigestDate(ctx context.Context, userID int64, date string) error
	SetLastPushDate(ctx context.Context, userID int64, date string) error

	GetItemState(ctx context.Context, userID, itemID int64) (model.UserItemState, error)
	SetItemState(ctx context.Context, userID, itemID int64, field model.ItemStateField, value bool) (model.UserItemState, error)
	ToggleItemState(ctx context.Context, userID, itemID int64, field model.ItemStateField) (model.UserItemState, error)
	BlockedItemIDs(ctx context.Context, userID int64) (map[int64]bool, error)

	ReplaceDigest(ctx context.Context, d *model.Digest) error
	GetDigest(ctx context.Context, userID int64, date string) (*model.Digest, error)
	ListDigests(ctx context.Context, userID int64, limit int) ([]DigestInfo, error)
	ListEntryItems(ctx context.Context, digestID int64) ([]EntryItem, error)

	SchemaVersion() (int64, error)
	Close() error
}
