package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"news_digest/internal/model"
)

// ReplaceDigest stores d as the user's digest for d.Date, replacing any
// previous digest and its entries for that date in one transaction.
// d.ID and d.CreatedAt are set.
func (s *SQLite) ReplaceDigest(ctx context.Context, d *model.Digest) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	created := s.timestamp()
	err = tx.QueryRowContext(ctx,
		`INSERT INTO digests (user_id, date, language, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(user_id, date) DO UPDATE SET language = excluded.language, created_at = excluded.created_at
		 RETURNING id`,
		d.UserID, d.Date, d.Language, created,
	).Scan(&d.ID)
	if err != nil {
		return fmt.Errorf("upsert digest: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM digest_entries WHERE digest_id = ?`, d.ID); err != nil {
		return fmt.Errorf("delete digest entries: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO digest_entries (digest_id, item_id, rank, score, reason) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare digest entry: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, e := range d.Entries {
		if _, err := stmt.ExecContext(ctx, d.ID, e.ItemID, e.Rank, e.Score, e.Reason); err != nil {
			return fmt.Errorf("insert digest entry %d: %w", e.Rank, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit digest: %w", err)
	}
	d.CreatedAt = parseTime(created)
	return nil
}

// GetDigest returns the user's digest for date with entries in rank order.
func (s *SQLite) GetDigest(ctx context.Context, userID int64, date string) (*model.Digest, error) {
	d := model.Digest{UserID: userID, Date: date}
	var created string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, language, created_at FROM digests WHERE user_id = ? AND date = ?`, userID, date,
	).Scan(&d.ID, &d.Language, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query digest: %w", err)
	}
	d.CreatedAt = parseTime(created)

	rows, err := s.db.QueryContext(ctx,
		`SELECT item_id, rank, score, reason FROM digest_entries WHERE digest_id = ? ORDER BY rank`, d.ID)
	if err != nil {
		return nil, fmt.Errorf("query digest entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var e model.DigestEntry
		if err := rows.Scan(&e.ItemID, &e.Rank, &e.Score, &e.Reason); err != nil {
			return nil, fmt.Errorf("scan digest entry: %w", err)
		}
		d.Entries = append(d.Entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &d, nil
}

// ListDigests returns the user's most recent digests, newest date first.
// A limit of zero or less returns all of them.
func (s *SQLite) ListDigests(ctx context.Context, userID int64, limit int) ([]DigestInfo, error) {
	query := `SELECT d.id, d.date, d.language, d.created_at,
		  (SELECT COUNT(*) FROM digest_entries e WHERE e.digest_id = d.id)
		 FROM digests d
		 WHERE d.user_id = ?
		 ORDER BY d.date DESC`
	args := []any{userID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query digests: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []DigestInfo
	for rows.Next() {
		var (
			d       DigestInfo
			created string
		)
		if err := rows.Scan(&d.ID, &d.Date, &d.Language, &created, &d.EntryCount); err != nil {
			return nil, fmt.Errorf("scan digest: %w", err)
		}
		d.CreatedAt = parseTime(created)
		out = append(out, d)
	}
	return out, rows.Err()
}

// ListEntryItems returns the entries of a digest joined with their items
// and source names, in rank order.
func (s *SQLite) ListEntryItems(ctx context.Context, digestID int64) ([]EntryItem, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+itemColumns+`, e.rank, e.score, e.reason, COALESCE(s.name, '')
		 FROM digest_entries e
		 JOIN items i ON i.id = e.item_id
		 LEFT JOIN sources s ON s.id = i.source_id
		 WHERE e.digest_id = ?
		 ORDER BY e.rank`, digestID)
	if err != nil {
		return nil, fmt.Errorf("query entry items: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []EntryItem
	for rows.Next() {
		var ei EntryItem
		item, err := scanItemWith(rows, &ei.Entry.Rank, &ei.Entry.Score, &ei.Entry.Reason, &ei.SourceName)
		if err != nil {
			return nil, err
		}
		ei.Item = *item
		ei.Entry.ItemID = item.ID
		out = append(out, ei)
	}
	return out, rows.Err()
}
