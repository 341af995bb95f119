package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite" // SQLite driver registration.

	"news_digest/internal/model"
	"news_digest/migrations"
)

const timeLayout = "2006-01-02T15:04:05Z"

// SQLite implements Storage backed by a SQLite database.
type SQLite struct {
	db  *sql.DB
	now func() time.Time
}

var _ Storage = (*SQLite)(nil)

// NewSQLite opens a SQLite database at dsn and runs pending migrations.
// Migration output is logged at debug level when logger is non-nil.
func NewSQLite(dsn string, logger *slog.Logger) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection serializes writers and keeps ":memory:" databases
	// from splitting across connections.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	// Writers from other handles on the same file wait instead of failing
	// with SQLITE_BUSY.
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=OFF"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("disable foreign keys: %w", err)
	}

	if err := migrations.Run(db, logger); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db, now: time.Now}, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// SchemaVersion reports the applied migration version.
func (s *SQLite) SchemaVersion() (int64, error) {
	return migrations.Version(s.db)
}

func (s *SQLite) timestamp() string {
	return s.now().UTC().Format(timeLayout)
}

// UpsertSource inserts src or, when a source with the same name exists,
// updates its configuration. Fetch state is never touched. src.ID is set.
func (s *SQLite) UpsertSource(ctx context.Context, src *model.Source) error {
	cats, err := encodeJSON(src.Categories, "[]")
	if err != nil {
		return fmt.Errorf("encode categories: %w", err)
	}
	err = s.db.QueryRowContext(ctx,
		`INSERT INTO sources (name, type, kind, endpoint, query, categories, language, region, weight, max_entries, enabled, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET
		   type = excluded.type, kind = excluded.kind, endpoint = excluded.endpoint, query = excluded.query,
		   categories = excluded.categories, language = excluded.language, region = excluded.region,
		   weight = excluded.weight, max_entries = excluded.max_entries, enabled = excluded.enabled
		 RETURNING id`,
		src.Name, string(src.Type), src.Kind, src.Endpoint, src.Query, cats, src.Language, src.Region,
		src.Weight, src.MaxEntries, boolToInt(src.Enabled), s.timestamp(),
	).Scan(&src.ID)
	if err != nil {
		return fmt.Errorf("upsert source: %w", err)
	}
	return nil
}

const sourceColumns = `id, name, type, kind, endpoint, query, categories, language, region, weight,
	max_entries, enabled, etag, last_modified, last_fetched_at`

// GetSource returns a single source by its ID.
func (s *SQLite) GetSource(ctx context.Context, id int64) (*model.Source, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sourceColumns+` FROM sources WHERE id = ?`, id)
	return scanSource(row)
}

// ListSources returns sources ordered by ID.
func (s *SQLite) ListSources(ctx context.Context, enabledOnly bool) ([]model.Source, error) {
	query := `SELECT ` + sourceColumns + ` FROM sources`
	if enabledOnly {
		query += ` WHERE enabled = 1`
	}
	rows, err := s.db.QueryContext(ctx, query+` ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query sources: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var sources []model.Source
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		sources = append(sources, *src)
	}
	return sources, rows.Err()
}

// UpdateFetchState records a fetch attempt. Empty validators keep the stored
// values.
func (s *SQLite) UpdateFetchState(ctx context.Context, sourceID int64, etag, lastModified string, fetchedAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE sources SET
		   etag = CASE WHEN ? = '' THEN etag ELSE ? END,
		   last_modified = CASE WHEN ? = '' THEN last_modified ELSE ? END,
		   last_fetched_at = ?
		 WHERE id = ?`,
		etag, etag, lastModified, lastModified, fetchedAt.UTC().Format(timeLayout), sourceID,
	)
	if err != nil {
		return fmt.Errorf("update fetch state: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func encodeJSON(v any, empty string) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	if string(b) == "null" {
		return empty, nil
	}
	return string(b), nil
}

func decodeJSON(raw string, dst any) error {
	if raw == "" {
		return nil
	}
	return json.Unmarshal([]byte(raw), dst)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(timeLayout, s)
	return t
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSource(row scannable) (*model.Source, error) {
	var (
		src         model.Source
		typ, cats   string
		enabled     int
		lastFetched sql.NullString
	)
	err := row.Scan(&src.ID, &src.Name, &typ, &src.Kind, &src.Endpoint, &src.Query, &cats, &src.Language,
		&src.Region, &src.Weight, &src.MaxEntries, &enabled, &src.ETag, &src.LastModified, &lastFetched)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan source: %w", err)
	}
	src.Type = model.SourceType(typ)
	src.Enabled = enabled == 1
	if err := decodeJSON(cats, &src.Categories); err != nil {
		return nil, fmt.Errorf("decode source categories: %w", err)
	}
	if lastFetched.Valid {
		t := parseTime(lastFetched.String)
		src.LastFetchedAt = &t
	}
	return &src, nil
}
