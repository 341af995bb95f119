package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"news_digest/internal/model"
)

const preferenceColumns = `user_id, enabled, categories, language, region, include_keywords, exclude_keywords,
	include_academic, daily_limit, push_time, last_digest_date, last_push_date`

// GetPreference returns the stored preference of a user.
func (s *SQLite) GetPreference(ctx context.Context, userID int64) (*model.UserPreference, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+preferenceColumns+` FROM user_preferences WHERE user_id = ?`, userID)
	return scanPreference(row)
}

// SavePreference inserts or replaces the user's settings. The digest and
// push watermarks are kept when pref leaves them empty.
func (s *SQLite) SavePreference(ctx context.Context, pref *model.UserPreference) error {
	cats, err := encodeJSON(pref.Categories, "[]")
	if err != nil {
		return fmt.Errorf("encode categories: %w", err)
	}
	include, err := encodeJSON(pref.IncludeKeywords, "[]")
	if err != nil {
		return fmt.Errorf("encode include keywords: %w", err)
	}
	exclude, err := encodeJSON(pref.ExcludeKeywords, "[]")
	if err != nil {
		return fmt.Errorf("encode exclude keywords: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO user_preferences (`+preferenceColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET
		   enabled = excluded.enabled, categories = excluded.categories, language = excluded.language,
		   region = excluded.region, include_keywords = excluded.include_keywords,
		   exclude_keywords = excluded.exclude_keywords, include_academic = excluded.include_academic,
		   daily_limit = excluded.daily_limit, push_time = excluded.push_time,
		   last_digest_date = CASE WHEN excluded.last_digest_date = '' THEN last_digest_date ELSE excluded.last_digest_date END,
		   last_push_date = CASE WHEN excluded.last_push_date = '' THEN last_push_date ELSE excluded.last_push_date END`,
		pref.UserID, boolToInt(pref.Enabled), cats, pref.Language, pref.Region, include, exclude,
		boolToInt(pref.IncludeAcademic), pref.DailyLimit, pref.PushTime, pref.LastDigestDate, pref.LastPushDate,
	)
	if err != nil {
		return fmt.Errorf("save preference: %w", err)
	}
	return nil
}

// ListPreferences returns every stored preference ordered by user ID.
func (s *SQLite) ListPreferences(ctx context.Context) ([]model.UserPreference, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+preferenceColumns+` FROM user_preferences ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("query preferences: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var prefs []model.UserPreference
	for rows.Next() {
		p, err := scanPreference(rows)
		if err != nil {
			return nil, err
		}
		prefs = append(prefs, *p)
	}
	return prefs, rows.Err()
}

// SetLastDigestDate advances the user's digest watermark.
func (s *SQLite) SetLastDigestDate(ctx context.Context, userID int64, date string) error {
	return s.execOne(ctx, `UPDATE user_preferences SET last_digest_date = ? WHERE user_id = ?`, date, userID)
}

// SetLastPushDate records the date whose digest was delivered to the user.
func (s *SQLite) SetLastPushDate(ctx context.Context, userID int64, date string) error {
	return s.execOne(ctx, `UPDATE user_preferences SET last_push_date = ? WHERE user_id = ?`, date, userID)
}

func scanPreference(row scannable) (*model.UserPreference, error) {
	var (
		p                      model.UserPreference
		enabled, academic      int
		cats, include, exclude string
	)
	err := row.Scan(&p.UserID, &enabled, &cats, &p.Language, &p.Region, &include, &exclude, &academic,
		&p.DailyLimit, &p.PushTime, &p.LastDigestDate, &p.LastPushDate)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan preference: %w", err)
	}
	p.Enabled = enabled == 1
	p.IncludeAcademic = academic == 1
	for _, f := range []struct {
		raw string
		dst *[]string
	}{{cats, &p.Categories}, {include, &p.IncludeKeywords}, {exclude, &p.ExcludeKeywords}} {
		if err := decodeJSON(f.raw, f.dst); err != nil {
			return nil, fmt.Errorf("decode preference lists: %w", err)
		}
	}
	return &p, nil
}

var stateColumns = map[model.ItemStateField]string{
	model.StateRead:     "is_read",
	model.StateFavorite: "is_favorite",
	model.StateLater:    "is_later",
	model.StateBlocked:  "is_blocked",
}

// ErrUnknownStateField is returned for an item state flag that does not exist.
var ErrUnknownStateField = errors.New("unknown item state field")

// GetItemState returns the user's flags on an item. A missing row yields
// all flags false.
func (s *SQLite) GetItemState(ctx context.Context, userID, itemID int64) (model.UserItemState, error) {
	return getItemState(ctx, s.db, userID, itemID)
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getItemState(ctx context.Context, q queryRower, userID, itemID int64) (model.UserItemState, error) {
	st := model.UserItemState{UserID: userID, ItemID: itemID}
	var (
		read, fav, later, blocked int
		updated                   string
	)
	err := q.QueryRowContext(ctx,
		`SELECT is_read, is_favorite, is_later, is_blocked, updated_at FROM user_item_states
		 WHERE user_id = ? AND item_id = ?`, userID, itemID,
	).Scan(&read, &fav, &later, &blocked, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return st, nil
	}
	if err != nil {
		return st, fmt.Errorf("query item state: %w", err)
	}
	st.Read, st.Favorite, st.Later, st.Blocked = read == 1, fav == 1, later == 1, blocked == 1
	st.UpdatedAt = parseTime(updated)
	return st, nil
}

// SetItemState sets one flag and returns the resulting state.
func (s *SQLite) SetItemState(ctx context.Context, userID, itemID int64, field model.ItemStateField, value bool) (model.UserItemState, error) {
	col, ok := stateColumns[field]
	if !ok {
		return model.UserItemState{}, fmt.Errorf("%w: %q", ErrUnknownStateField, field)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.UserItemState{}, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO user_item_states (user_id, item_id, `+col+`, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(user_id, item_id) DO UPDATE SET `+col+` = excluded.`+col+`, updated_at = excluded.updated_at`,
		userID, itemID, boolToInt(value), s.timestamp(),
	)
	if err != nil {
		return model.UserItemState{}, fmt.Errorf("set item state: %w", err)
	}
	st, err := getItemState(ctx, tx, userID, itemID)
	if err != nil {
		return st, err
	}
	return st, tx.Commit()
}

// ToggleItemState flips one flag and returns the resulting state.
func (s *SQLite) ToggleItemState(ctx context.Context, userID, itemID int64, field model.ItemStateField) (model.UserItemState, error) {
	col, ok := stateColumns[field]
	if !ok {
		return model.UserItemState{}, fmt.Errorf("%w: %q", ErrUnknownStateField, field)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.UserItemState{}, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO user_item_states (user_id, item_id, `+col+`, updated_at) VALUES (?, ?, 1, ?)
		 ON CONFLICT(user_id, item_id) DO UPDATE SET `+col+` = 1 - `+col+`, updated_at = excluded.updated_at`,
		userID, itemID, s.timestamp(),
	)
	if err != nil {
		return model.UserItemState{}, fmt.Errorf("toggle item state: %w", err)
	}
	st, err := getItemState(ctx, tx, userID, itemID)
	if err != nil {
		return st, err
	}
	return st, tx.Commit()
}

// BlockedItemIDs returns the set of items the user has blocked.
func (s *SQLite) BlockedItemIDs(ctx context.Context, userID int64) (map[int64]bool, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT item_id FROM user_item_states WHERE user_id = ? AND is_blocked = 1`, userID)
	if err != nil {
		return nil, fmt.Errorf("query blocked items: %w", err)
	}
	defer func() { _ = rows.Close() }()

	blocked := make(map[int64]bool)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan blocked item: %w", err)
		}
		blocked[id] = true
	}
	return blocked, rows.Err()
}
