package pipelines

import (
	"fmt"
	"regexp"
	"strings"
)

// ReferencesHeader separates an answer from its numbered sources.
const ReferencesHeader = "\n\nReferences:\n"

// urlPattern matches URL-shaped substrings. It is deliberately loose and may
// swallow trailing punctuation.
var urlPattern = regexp.MustCompile(`https?://(?:[a-zA-Z]|[0-9]|[$-_@.&+]|[!*\(\),]|(?:%[0-9a-fA-F][0-9a-fA-F]))+`)

// MergeCitations appends a References block listing citations as [1], [2], ...
// in list order. An empty list leaves text unchanged.
// Merging twice appends a second block.
func MergeCitations(text string, citations []string) string {
	if len(citations) == 0 {
		return text
	}

	var b strings.Builder
	b.WriteString(text)
	b.WriteString(ReferencesHeader)
	for i, url := range citations {
		fmt.Fprintf(&b, "[%d] %s\n", i+1, url)
	}
	return b.String()
}

// ExtractCitations scrapes URLs out of text for providers that return no
// structured citations. Duplicates are dropped and first-seen order is kept.
// The result is not aligned with any [n] markers in the text.
func ExtractCitations(text string) []string {
	matches := urlPattern.FindAllString(text, -1)
	citations := make([]string, 0, len(matches))
	seen := make(map[string]struct{}, len(matches))
	for _, url := range matches {
		if _, ok := seen[url]; ok {
			continue
		}
		seen[url] = struct{}{}
		citations = append(citations, url)
	}
	return citations
}
