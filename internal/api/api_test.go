package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"news_digest/internal/digest"
	"news_digest/internal/fetcher"
	"news_digest/internal/model"
	"news_digest/internal/pipeline"
	"news_digest/internal/ranker"
	"news_digest/internal/sources"
	"news_digest/internal/storage"
	"news_digest/internal/summarizer"
)

type mockHTTPClient struct {
	body string
}

func (m *mockHTTPClient) Do(_ *http.Request) (*http.Response, error) {
	return &http.Response{
		StatusCode: 200,
		Header:     http.Header{},
		Body:       io.NopCloser(bytes.NewBufferString(m.body)),
	}, nil
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	store, err := storage.NewSQLite(":memory:", nil)
	if err != nil {
		t.Fatalf("new sqlite: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	data, err := os.ReadFile("../../testdata/sample.xml")
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	client := fetcher.New(&mockHTTPClient{body: string(data)}, fetcher.Options{MaxRetries: -1})
	pipe := pipeline.New(
		store,
		sources.NewRegistry(sources.NewRSS(client, time.UTC, log)),
		digest.NewBuilder(store, ranker.DefaultParams(), log),
		summarizer.NewService(nil, store, log),
		pipeline.Options{CandidateWindow: 48 * time.Hour, Location: time.UTC, Tiers: []int{10, 20, 30}},
		log,
	)
	err = pipe.SyncSources(context.Background(), []model.Source{{
		Name: "Tech Daily", Type: model.SourceRSS, Kind: model.KindRSS,
		Endpoint: "https://news.example.com/rss", Weight: 1, Enabled: true,
	}})
	if err != nil {
		t.Fatalf("sync sources: %v", err)
	}
	return New(pipe, log)
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

// refreshedItemID fetches the fixture feed for user 7 and returns the id of
// the only item inside the candidate window.
func refreshedItemID(t *testing.T, s *Server) int64 {
	t.Helper()
	rec := do(t, s, http.MethodPost, "/api/users/7/refresh", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("refresh: status %d: %s", rec.Code, rec.Body.String())
	}
	brief := decode[briefResponse](t, rec)
	if len(brief.Entries) != 1 {
		t.Fatalf("refresh: got %d entries, want 1", len(brief.Entries))
	}
	return brief.Entries[0].ItemID
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)

	rec := do(t, s, http.MethodGet, "/healthz", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	got := decode[map[string]any](t, rec)
	if got["status"] != "ok" {
		t.Errorf("status field = %v, want ok", got["status"])
	}
	if v, _ := got["schema_version"].(float64); v <= 0 {
		t.Errorf("schema_version = %v, want > 0", got["schema_version"])
	}
}

func TestBrief(t *testing.T) {
	s := newTestServer(t)
	refreshedItemID(t, s)

	rec := do(t, s, http.MethodGet, "/api/users/7/brief", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	got := decode[briefResponse](t, rec)
	if len(got.Entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(got.Entries))
	}
	e := got.Entries[0]
	want := briefEntry{
		Rank:   1,
		Title:  "Market wrap",
		URL:    "https://news.example.com/markets",
		Source: "Tech Daily",
	}
	e.Score, e.ItemID, e.Summary = 0, 0, ""
	if diff := cmp.Diff(want, e); diff != "" {
		t.Errorf("entry mismatch (-want +got):\n%s", diff)
	}
}

func TestListDigests(t *testing.T) {
	s := newTestServer(t)
	refreshedItemID(t, s)
	if rec := do(t, s, http.MethodGet, "/api/users/7/brief?date=2020-01-01", ""); rec.Code != http.StatusOK {
		t.Fatalf("past brief: status = %d", rec.Code)
	}

	type listing struct {
		UserID  int64        `json:"user_id"`
		Digests []digestInfo `json:"digests"`
	}
	tests := []struct {
		name      string
		path      string
		wantDates []string
	}{
		{name: "all", path: "/api/users/7/digests", wantDates: []string{time.Now().UTC().Format(pipeline.DateLayout), "2020-01-01"}},
		{name: "limited", path: "/api/users/7/digests?limit=1", wantDates: []string{time.Now().UTC().Format(pipeline.DateLayout)}},
		{name: "no digests", path: "/api/users/8/digests"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, s, http.MethodGet, tt.path, "")
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
			}
			var dates []string
			for _, d := range decode[listing](t, rec).Digests {
				dates = append(dates, d.Date)
			}
			if diff := cmp.Diff(tt.wantDates, dates); diff != "" {
				t.Errorf("dates mismatch (-want +got):\n%s", diff)
			}
		})
	}

	if rec := do(t, s, http.MethodGet, "/api/users/7/digests?limit=zero", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("bad limit: status = %d, want 400", rec.Code)
	}
}

func TestBadRequests(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
	}{
		{name: "non numeric user", method: http.MethodGet, path: "/api/users/abc/brief"},
		{name: "zero user", method: http.MethodGet, path: "/api/users/0/preferences"},
		{name: "bad date", method: http.MethodGet, path: "/api/users/7/brief?date=31-05-2025"},
		{name: "bad item", method: http.MethodGet, path: "/api/items/x/summary"},
		{name: "state without body", method: http.MethodPost, path: "/api/users/7/items/1/state"},
		{name: "malformed preferences", method: http.MethodPut, path: "/api/users/7/preferences", body: "{"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, s, tt.method, tt.path, tt.body)
			if diff := cmp.Diff(http.StatusBadRequest, rec.Code); diff != "" {
				t.Errorf("status mismatch (-want +got):\n%s\nbody: %s", diff, rec.Body.String())
			}
		})
	}
}

func TestPreferences(t *testing.T) {
	s := newTestServer(t)

	rec := do(t, s, http.MethodGet, "/api/users/7/preferences", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get: status = %d", rec.Code)
	}
	def := decode[preferences](t, rec)
	if def.UserID != 7 || def.DailyLimit != 20 || !def.Enabled {
		t.Errorf("defaults = %+v", def)
	}

	rec = do(t, s, http.MethodPut, "/api/users/7/preferences",
		`{"daily_limit": 10, "language": "en", "include_keywords": ["Go", "go", "rust"]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("put: status = %d: %s", rec.Code, rec.Body.String())
	}
	got := decode[preferences](t, rec)
	want := def
	want.DailyLimit = 10
	want.Language = "en"
	want.IncludeKeywords = []string{"Go", "rust"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("saved mismatch (-want +got):\n%s", diff)
	}

	tests := []struct {
		name string
		body string
	}{
		{name: "limit outside tiers", body: `{"daily_limit": 7}`},
		{name: "bad push time", body: `{"push_time": "25:00"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, s, http.MethodPut, "/api/users/7/preferences", tt.body)
			if diff := cmp.Diff(http.StatusBadRequest, rec.Code); diff != "" {
				t.Errorf("status mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestItemState(t *testing.T) {
	s := newTestServer(t)
	id := refreshedItemID(t, s)
	path := "/api/users/7/items/" + itoa(id) + "/state"

	rec := do(t, s, http.MethodPost, path, `{"field": "favorite"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("toggle: status = %d: %s", rec.Code, rec.Body.String())
	}
	want := itemState{UserID: 7, ItemID: id, Favorite: true}
	if diff := cmp.Diff(want, decode[itemState](t, rec)); diff != "" {
		t.Errorf("toggle mismatch (-want +got):\n%s", diff)
	}

	rec = do(t, s, http.MethodPost, path, `{"field": "blocked", "value": true}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("block: status = %d: %s", rec.Code, rec.Body.String())
	}
	want.Blocked = true
	if diff := cmp.Diff(want, decode[itemState](t, rec)); diff != "" {
		t.Errorf("block mismatch (-want +got):\n%s", diff)
	}

	// Blocking rebuilds today's digest without the item.
	rec = do(t, s, http.MethodGet, "/api/users/7/brief", "")
	if got := decode[briefResponse](t, rec); len(got.Entries) != 0 {
		t.Errorf("blocked item still in brief: %+v", got.Entries)
	}

	tests := []struct {
		name       string
		path       string
		body       string
		wantStatus int
	}{
		{name: "unknown field", path: path, body: `{"field": "pinned"}`, wantStatus: http.StatusBadRequest},
		{name: "missing item", path: "/api/users/7/items/999/state", body: `{"field": "read"}`, wantStatus: http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, s, http.MethodPost, tt.path, tt.body)
			if diff := cmp.Diff(tt.wantStatus, rec.Code); diff != "" {
				t.Errorf("status mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSummary(t *testing.T) {
	s := newTestServer(t)
	id := refreshedItemID(t, s)
	path := "/api/items/" + itoa(id) + "/summary?lang=en"

	rec := do(t, s, http.MethodGet, path, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get: status = %d: %s", rec.Code, rec.Body.String())
	}
	got := decode[summaryResponse](t, rec)
	if got.ItemID != id || !strings.Contains(got.Summary, "Stocks closed higher") {
		t.Errorf("summary = %+v", got)
	}

	if rec := do(t, s, http.MethodDelete, path, ""); rec.Code != http.StatusNoContent {
		t.Errorf("delete: status = %d, want 204", rec.Code)
	}
	if rec := do(t, s, http.MethodGet, "/api/items/999/summary", ""); rec.Code != http.StatusNotFound {
		t.Errorf("missing item: status = %d, want 404", rec.Code)
	}
	if rec := do(t, s, http.MethodDelete, "/api/items/999/summary", ""); rec.Code != http.StatusNotFound {
		t.Errorf("delete missing item: status = %d, want 404", rec.Code)
	}
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
