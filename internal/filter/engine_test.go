package filter

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"news_digest/internal/model"
)

func TestExcluded(t *testing.T) {
	tests := []struct {
		name    string
		text    Text
		exclude []string
		want    bool
	}{
		{
			name:    "no keywords passes everything",
			text:    Text{Title: "anything", Summary: "whatever"},
			exclude: nil,
			want:    false,
		},
		{
			name:    "keyword in title",
			text:    Text{Title: "Job vacancy at Google", Summary: "Apply now"},
			exclude: []string{"vacancy"},
			want:    true,
		},
		{
			name:    "keyword in summary",
			text:    Text{Title: "Weekly roundup", Summary: "Sponsored content below"},
			exclude: []string{"sponsored"},
			want:    true,
		},
		{
			name:    "case insensitive",
			text:    Text{Title: "CRYPTO prices"},
			exclude: []string{"Crypto"},
			want:    true,
		},
		{
			name:    "no match",
			text:    Text{Title: "Kubernetes update", Summary: "New features"},
			exclude: []string{"vacancy"},
			want:    false,
		},
		{
			name:    "short token needs whole word",
			text:    Text{Title: "He said the plan works"},
			exclude: []string{"ai"},
			want:    false,
		},
		{
			name:    "short token whole word",
			text:    Text{Title: "AI plan works"},
			exclude: []string{"ai"},
			want:    true,
		},
		{
			name:    "cjk keyword matches as substring",
			text:    Text{Title: "国产芯片量产"},
			exclude: []string{"芯片"},
			want:    true,
		},
		{
			name:    "blank keyword ignored",
			text:    Text{Title: "anything"},
			exclude: []string{"  "},
			want:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Excluded(tt.text, tt.exclude)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Excluded() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestMatchCount(t *testing.T) {
	tests := []struct {
		name    string
		text    Text
		include []string
		want    int
	}{
		{name: "none", text: Text{Title: "Python update"}, include: []string{"kubernetes"}, want: 0},
		{name: "one", text: Text{Title: "Kubernetes 1.32 released"}, include: []string{"kubernetes", "rust"}, want: 1},
		{name: "each keyword counted once", text: Text{Title: "Rust and Go", Summary: "Go, go, go"}, include: []string{"go", "rust"}, want: 2},
		{name: "phrase", text: Text{Summary: "a new large language model"}, include: []string{"language model"}, want: 1},
		{name: "short token inside a word", text: Text{Title: "Google ships"}, include: []string{"go"}, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MatchCount(tt.text, tt.include)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("MatchCount() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestPrefilter(t *testing.T) {
	cands := []model.Candidate{
		{Item: model.Item{ID: 1, Type: model.ItemNews, Title: "Chip fab opens"}},
		{Item: model.Item{ID: 2, Type: model.ItemNews, Title: "Celebrity gossip"}},
		{Item: model.Item{ID: 3, Type: model.ItemPaper, Title: "Chip yield modelling"}},
		{Item: model.Item{ID: 4, Type: model.ItemNews, Title: "Market report"}},
	}

	tests := []struct {
		name    string
		pref    model.UserPreference
		wantIDs []int64
	}{
		{
			name:    "academic included, gossip excluded",
			pref:    model.UserPreference{IncludeAcademic: true, ExcludeKeywords: []string{"gossip"}},
			wantIDs: []int64{1, 3, 4},
		},
		{
			name:    "academic dropped",
			pref:    model.UserPreference{IncludeAcademic: false},
			wantIDs: []int64{1, 2, 4},
		},
		{
			name:    "exclude matches several",
			pref:    model.UserPreference{IncludeAcademic: true, ExcludeKeywords: []string{"chip"}},
			wantIDs: []int64{2, 4},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []int64
			for _, c := range Prefilter(cands, tt.pref) {
				got = append(got, c.Item.ID)
			}
			if diff := cmp.Diff(tt.wantIDs, got); diff != "" {
				t.Errorf("Prefilter() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
