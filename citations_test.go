package pipelines

import (
	"fmt"
	"strings"
	"testing"
)

func TestMergeCitations(t *testing.T) {
	t.Run("empty list is a no-op", func(t *testing.T) {
		for _, citations := range [][]string{nil, {}} {
			if got := MergeCitations("answer", citations); got != "answer" {
				t.Errorf("Expected unchanged text, got %q", got)
			}
		}
	})

	t.Run("numbered in order", func(t *testing.T) {
		got := MergeCitations("answer [2]", []string{"http://a", "http://b", "http://c"})
		want := "answer [2]\n\nReferences:\n[1] http://a\n[2] http://b\n[3] http://c\n"
		if got != want {
			t.Errorf("Expected %q, got %q", want, got)
		}
	})

	t.Run("n lines for n citations", func(t *testing.T) {
		citations := make([]string, 12)
		for i := range citations {
			citations[i] = fmt.Sprintf("https://example.com/%d", i)
		}
		got := MergeCitations("x", citations)
		lines := strings.Split(strings.TrimSuffix(got[strings.Index(got, ReferencesHeader)+len(ReferencesHeader):], "\n"), "\n")
		if len(lines) != len(citations) {
			t.Fatalf("Expected %d lines, got %d", len(citations), len(lines))
		}
		for i, line := range lines {
			if line != fmt.Sprintf("[%d] %s", i+1, citations[i]) {
				t.Errorf("Line %d = %q", i, line)
			}
		}
	})

	t.Run("re-merging duplicates the block", func(t *testing.T) {
		once := MergeCitations("a", []string{"http://x"})
		twice := MergeCitations(once, []string{"http://x"})
		if strings.Count(twice, "References:") != 2 {
			t.Errorf("Expected two blocks, got %q", twice)
		}
	})
}

func TestExtractCitations(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{name: "none", text: "no links here", want: []string{}},
		{name: "single", text: "see https://go.dev/doc for more", want: []string{"https://go.dev/doc"}},
		{
			name: "dedup keeps first-seen order",
			text: "b http://b.io a https://a.io again http://b.io",
			want: []string{"http://b.io", "https://a.io"},
		},
		{name: "percent encoding", text: "http://x.org/a%20b end", want: []string{"http://x.org/a%20b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractCitations(tt.text)
			if got == nil {
				t.Fatal("Expected non-nil slice")
			}
			if strings.Join(got, " ") != strings.Join(tt.want, " ") {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
			for _, url := range got {
				if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
					t.Errorf("Malformed citation %q", url)
				}
			}
		})
	}
}
