package migrations

import (
	"database/sql"
	"io"
	"log/slog"
	"testing"

	_ "modernc.org/sqlite"
)

func openDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestRunAndReset(t *testing.T) {
	db := openDB(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	if err := Run(db, logger); err != nil {
		t.Fatalf("Run: %v", err)
	}
	v, err := Version(db)
	if err != nil {
		t.Fatalf("Version: %v", err)
	}
	if v < 1 {
		t.Errorf("expected schema version >= 1, got %d", v)
	}

	for _, table := range []string{"sources", "items", "user_preferences", "user_item_states", "digests", "digest_entries"} {
		var name string
		err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&name)
		if err != nil {
			t.Errorf("table %s missing: %v", table, err)
		}
	}

	if err := Command(db, "reset", logger); err != nil {
		t.Fatalf("reset: %v", err)
	}
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'items'`).Scan(&n); err != nil {
		t.Fatalf("query: %v", err)
	}
	if n != 0 {
		t.Error("items table should be dropped after reset")
	}
}

func TestCommandUnknown(t *testing.T) {
	if err := Command(openDB(t), "sideways", nil); err == nil {
		t.Fatal("expected error for unknown command")
	}
}
