package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"news_digest/internal/model"
	"news_digest/internal/textclean"
)

const (
	maxTitleRunes   = 500
	maxSummaryRunes = 4000
)

const itemColumns = `i.id, i.type, i.source_id, i.title, i.summary, i.url, i.normalized_url, i.published_at,
	i.language, i.region, i.authors, i.venue, i.year, i.doi, i.content_hash, i.content_text, i.raw,
	i.summaries, i.fetched_at`

// UpsertItems inserts items whose normalized URL is not stored yet and
// returns how many were created. Existing rows are left untouched, so the
// first writer of a URL wins. Created items get their ID set in place.
// The whole batch is one transaction.
func (s *SQLite) UpsertItems(ctx context.Context, items []model.Item) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO items (type, source_id, title, summary, url, normalized_url, published_at, language, region,
		   authors, venue, year, doi, content_hash, content_text, raw, summaries, fetched_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(normalized_url) DO NOTHING`)
	if err != nil {
		return 0, fmt.Errorf("prepare insert item: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	now := s.timestamp()
	created := 0
	for i := range items {
		it := &items[i]
		if it.NormalizedURL == "" {
			return 0, fmt.Errorf("item %q has no normalized url", it.Title)
		}
		authors, err := encodeJSON(it.Authors, "[]")
		if err != nil {
			return 0, fmt.Errorf("encode authors: %w", err)
		}
		summaries, err := encodeJSON(it.Summaries, "{}")
		if err != nil {
			return 0, fmt.Errorf("encode summaries: %w", err)
		}

		res, err := stmt.ExecContext(ctx,
			string(it.Type), it.SourceID, textclean.Truncate(it.Title, maxTitleRunes),
			textclean.Truncate(it.Summary, maxSummaryRunes), it.URL, it.NormalizedURL,
			it.PublishedAt.UTC().Format(timeLayout), it.Language, it.Region, authors, it.Venue, it.Year,
			it.DOI, it.ContentHash, it.ContentText, it.Raw, summaries, now,
		)
		if err != nil {
			return 0, fmt.Errorf("insert item: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("rows affected: %w", err)
		}
		if n == 0 {
			continue
		}
		id, err := res.LastInsertId()
		if err != nil {
			return 0, fmt.Errorf("last insert id: %w", err)
		}
		it.ID = id
		it.FetchedAt = parseTime(now)
		created++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit items: %w", err)
	}
	return created, nil
}

// GetItem returns a single item by its ID.
func (s *SQLite) GetItem(ctx context.Context, id int64) (*model.Item, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM items i WHERE i.id = ?`, id)
	return scanItem(row)
}

// GetItemByURL returns the item stored under a normalized URL.
func (s *SQLite) GetItemByURL(ctx context.Context, normalizedURL string) (*model.Item, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM items i WHERE i.normalized_url = ?`, normalizedURL)
	return scanItem(row)
}

// SetItemContent stores the extracted body text of an item.
func (s *SQLite) SetItemContent(ctx context.Context, id int64, text string) error {
	return s.execOne(ctx, `UPDATE items SET content_text = ? WHERE id = ?`, text, id)
}

// SetItemSummary caches summary for lang on the item.
func (s *SQLite) SetItemSummary(ctx context.Context, itemID int64, lang, summary string) error {
	return s.updateSummaries(ctx, itemID, func(m map[string]string) { m[lang] = summary })
}

// ClearItemSummary drops the cached summary for lang.
func (s *SQLite) ClearItemSummary(ctx context.Context, itemID int64, lang string) error {
	return s.updateSummaries(ctx, itemID, func(m map[string]string) { delete(m, lang) })
}

func (s *SQLite) updateSummaries(ctx context.Context, itemID int64, fn func(map[string]string)) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var raw string
	err = tx.QueryRowContext(ctx, `SELECT summaries FROM items WHERE id = ?`, itemID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("load summaries: %w", err)
	}

	m := map[string]string{}
	if err := decodeJSON(raw, &m); err != nil {
		return fmt.Errorf("decode summaries: %w", err)
	}
	if m == nil {
		m = map[string]string{}
	}
	fn(m)
	encoded, err := encodeJSON(m, "{}")
	if err != nil {
		return fmt.Errorf("encode summaries: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `UPDATE items SET summaries = ? WHERE id = ?`, encoded, itemID); err != nil {
		return fmt.Errorf("update summaries: %w", err)
	}
	return tx.Commit()
}

// ListCandidates returns items published since q.Since from enabled sources
// (or without a source), newest first, with the source attributes ranking
// needs. Items without a source get weight 1.
func (s *SQLite) ListCandidates(ctx context.Context, q CandidateQuery) ([]model.Candidate, error) {
	b := sq.Select(itemColumns, "COALESCE(s.name, '')", "COALESCE(s.weight, 1.0)", "COALESCE(s.categories, '[]')").
		From("items i").
		LeftJoin("sources s ON s.id = i.source_id").
		Where(sq.GtOrEq{"i.published_at": q.Since.UTC().Format(timeLayout)}).
		Where(sq.Or{sq.Eq{"i.source_id": nil}, sq.Eq{"s.enabled": 1}}).
		OrderBy("i.published_at DESC", "i.id ASC")

	if q.Language != "" {
		b = b.Where("lower(i.language) = ?", strings.ToLower(q.Language))
	}
	if q.Region != "" {
		b = b.Where("lower(i.region) = ?", strings.ToLower(q.Region))
	}
	if cats := lowerAll(q.Categories); len(cats) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(cats)), ",")
		args := make([]any, len(cats))
		for i, c := range cats {
			args[i] = c
		}
		b = b.Where(sq.Expr(
			"EXISTS (SELECT 1 FROM json_each(s.categories) je WHERE lower(je.value) IN ("+placeholders+"))", args...))
	}
	if q.Limit > 0 {
		b = b.Limit(uint64(q.Limit))
	}

	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build candidate query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query candidates: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.Candidate
	for rows.Next() {
		var (
			c    model.Candidate
			cats string
		)
		item, err := scanItemWith(rows, &c.SourceName, &c.SourceWeight, &cats)
		if err != nil {
			return nil, err
		}
		c.Item = *item
		if err := decodeJSON(cats, &c.SourceCategories); err != nil {
			return nil, fmt.Errorf("decode source categories: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLite) execOne(ctx context.Context, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("exec: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func lowerAll(values []string) []string {
	var out []string
	for _, v := range values {
		if v = strings.ToLower(strings.TrimSpace(v)); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func scanItem(row scannable) (*model.Item, error) {
	return scanItemWith(row)
}

// scanItemWith scans itemColumns followed by extra destinations.
func scanItemWith(row scannable, extra ...any) (*model.Item, error) {
	var (
		it                      model.Item
		typ, published, fetched string
		authors, summaries      string
		sourceID                sql.NullInt64
	)
	dest := []any{&it.ID, &typ, &sourceID, &it.Title, &it.Summary, &it.URL, &it.NormalizedURL, &published,
		&it.Language, &it.Region, &authors, &it.Venue, &it.Year, &it.DOI, &it.ContentHash, &it.ContentText,
		&it.Raw, &summaries, &fetched}
	err := row.Scan(append(dest, extra...)...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan item: %w", err)
	}

	it.Type = model.ItemType(typ)
	if sourceID.Valid {
		id := sourceID.Int64
		it.SourceID = &id
	}
	it.PublishedAt = parseTime(published)
	it.FetchedAt = parseTime(fetched)
	if err := decodeJSON(authors, &it.Authors); err != nil {
		return nil, fmt.Errorf("decode authors: %w", err)
	}
	if err := decodeJSON(summaries, &it.Summaries); err != nil {
		return nil, fmt.Errorf("decode summaries: %w", err)
	}
	return &it, nil
}
