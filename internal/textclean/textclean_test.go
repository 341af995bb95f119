package textclean

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestStripTags(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "empty", in: "", want: ""},
		{name: "plain text collapsed", in: "  hello \n\t world ", want: "hello world"},
		{name: "paragraphs become word breaks", in: "<p>first</p><p>second</p>", want: "first second"},
		{name: "inline tags", in: "Go <b>1.24</b> released", want: "Go 1.24 released"},
		{name: "entities decoded", in: "Tom &amp; Jerry&nbsp;show", want: "Tom & Jerry show"},
		{name: "script dropped", in: "<div>text<script>alert(1)</script></div>", want: "text"},
		{name: "jats abstract", in: "<jats:p>We study <jats:italic>x</jats:italic>.</jats:p>", want: "We study x ."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := StripTags(tt.in)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("StripTags() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSanitize(t *testing.T) {
	in := "<p>Lead paragraph.</p>|--begin:htmlVideoCode--<video src=x>--| Next   line."
	want := "Lead paragraph. Next line."
	if diff := cmp.Diff(want, Sanitize(in)); diff != "" {
		t.Errorf("Sanitize() mismatch (-want +got):\n%s", diff)
	}
}

func TestEllipsize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		n    int
		want string
	}{
		{name: "short kept", in: "abc", n: 5, want: "abc"},
		{name: "exact kept", in: "abcde", n: 5, want: "abcde"},
		{name: "long cut", in: "abcdefgh", n: 5, want: "abcde…"},
		{name: "trailing space trimmed", in: "abcd efgh", n: 5, want: "abcd…"},
		{name: "runes not bytes", in: strings.Repeat("é", 6), n: 3, want: "ééé…"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, Ellipsize(tt.in, tt.n)); diff != "" {
				t.Errorf("Ellipsize() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
