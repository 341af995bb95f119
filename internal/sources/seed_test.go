package sources

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"news_digest/internal/model"
)

func TestParseSeed(t *testing.T) {
	raw := []byte(`
sources:
  - name: Tech Daily
    kind: rss
    endpoint: https://news.example.com/rss
    language: en
    region: US
    categories: [tech, chips]
  - name: arXiv LLM
    kind: arxiv
    query: large language model
    weight: 1.4
    max_entries: 25
  - name: Paused
    kind: RSS
    endpoint: https://paused.example.com/rss
    enabled: false
    weight: 0
`)

	got, err := ParseSeed(raw)
	if err != nil {
		t.Fatalf("ParseSeed: %v", err)
	}

	want := []model.Source{
		{
			Name: "Tech Daily", Type: model.SourceRSS, Kind: "rss", Endpoint: "https://news.example.com/rss",
			Categories: []string{"tech", "chips"}, Language: "en", Region: "US", Weight: 1, Enabled: true,
		},
		{
			Name: "arXiv LLM", Type: model.SourceAPI, Kind: "arxiv", Query: "large language model",
			Weight: 1.4, MaxEntries: 25, Enabled: true,
		},
		{
			Name: "Paused", Type: model.SourceRSS, Kind: "rss", Endpoint: "https://paused.example.com/rss",
			Weight: 0, Enabled: false,
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ParseSeed() mismatch (-want +got):\n%s", diff)
	}
}

func TestParseSeedErrors(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{name: "invalid yaml", raw: "sources: [::"},
		{name: "missing name", raw: "sources:\n  - kind: rss\n    endpoint: https://x"},
		{name: "unknown kind", raw: "sources:\n  - name: X\n    kind: gopher"},
		{name: "rss without endpoint", raw: "sources:\n  - name: X\n    kind: rss"},
		{name: "api without query", raw: "sources:\n  - name: X\n    kind: pubmed"},
		{name: "negative weight", raw: "sources:\n  - name: X\n    kind: rss\n    endpoint: https://x\n    weight: -1"},
		{name: "duplicate name", raw: "sources:\n  - name: X\n    kind: rss\n    endpoint: https://x\n  - name: X\n    kind: rss\n    endpoint: https://y"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseSeed([]byte(tt.raw)); err == nil {
				t.Fatal("expected error, got nil")
			}
		})
	}
}

func TestLoadSeed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sources.yaml")
	if err := os.WriteFile(path, []byte("sources:\n  - name: A\n    kind: openalex\n    query: graphs\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := LoadSeed(path)
	if err != nil {
		t.Fatalf("LoadSeed: %v", err)
	}
	if len(got) != 1 || got[0].Kind != model.KindOpenAlex {
		t.Errorf("unexpected sources: %+v", got)
	}

	if _, err := LoadSeed(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
