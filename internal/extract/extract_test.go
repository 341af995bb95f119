package extract

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"news_digest/internal/fetcher"
)

const articlePage = `<html><head><title>T</title><script>var x = "ignored paragraph text here";</script></head>
<body>
<nav><p>Home | World | Business | Technology | Sport</p></nav>
<article>
  <h1>Chip fab opens</h1>
  <p>The new plant   will produce advanced chips from next spring.</p>
  <p>Short.</p>
  <p>Officials expect thousands of jobs in the region over five years.</p>
  <p>Output is planned to double by 2027 according to the operator.</p>
</article>
<footer><p>Copyright 2025 Example News. All rights reserved.</p></footer>
</body></html>`

func TestFromHTML(t *testing.T) {
	tests := []struct {
		name    string
		page    string
		want    string
		wantErr error
	}{
		{
			name: "article paragraphs",
			page: articlePage,
			want: "The new plant will produce advanced chips from next spring.\n\n" +
				"Officials expect thousands of jobs in the region over five years.\n\n" +
				"Output is planned to double by 2027 according to the operator.",
		},
		{
			name: "falls back to bare paragraphs",
			page: `<div><p>First long enough paragraph of the page.</p><p>Second long enough paragraph of the page.</p></div>`,
			want: "First long enough paragraph of the page.\n\nSecond long enough paragraph of the page.",
		},
		{
			name:    "no paragraphs",
			page:    `<html><body><div>just a div</div></body></html>`,
			wantErr: ErrNoContent,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FromHTML([]byte(tt.page))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("FromHTML() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

type stubGetter struct {
	body []byte
	err  error
}

func (s stubGetter) Get(context.Context, string, fetcher.Validators) (*fetcher.Response, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &fetcher.Response{StatusCode: 200, Body: s.body}, nil
}

func TestExtractorText(t *testing.T) {
	got, err := New(stubGetter{body: []byte(articlePage)}).Text(context.Background(), "https://news.example.com/a")
	if err != nil {
		t.Fatalf("Text: %v", err)
	}
	if got == "" {
		t.Error("expected text")
	}

	boom := errors.New("timeout")
	if _, err := New(stubGetter{err: boom}).Text(context.Background(), "https://news.example.com/a"); !errors.Is(err, boom) {
		t.Errorf("expected wrapped download error, got %v", err)
	}
}
