// Package llmoracle implements the external LLM oracle contract: given a
// prompt, the oracle returns zero or more candidate diff strings. The LLM
// itself is an opaque collaborator; this package owns only the contract,
// response parsing, and retry policy.
package llmoracle

import (
	"regexp"
	"strings"
)

// Hunk is one SEARCH/REPLACE block from the pinned response format.
type Hunk struct {
	Search  string
	Replace string
}

var fencePattern = regexp.MustCompile("(?s)```[a-zA-Z0-9]*\\n?(.*?)```")

var hunkPattern = regexp.MustCompile(
	`(?s)<<<<<<< SEARCH\r?\n(.*?)\r?\n=======\r?\n(.*?)\r?\n>>>>>>> REPLACE`,
)

// ParseHunks strips surrounding fences, normalizes CR/LF line endings, and
// extracts all SEARCH/REPLACE hunks in order.
func ParseHunks(raw string) []Hunk {
	text := unfence(raw)
	text = strings.ReplaceAll(text, "\r\n", "\n")

	matches := hunkPattern.FindAllStringSubmatch(text, -1)
	hunks := make([]Hunk, 0, len(matches))
	for _, m := range matches {
		hunks = append(hunks, Hunk{Search: m[1], Replace: m[2]})
	}
	return hunks
}

// unfence removes a single outermost fenced code block wrapper if present,
// otherwise returns text unchanged.
func unfence(text string) string {
	trimmed := strings.TrimSpace(text)
	if m := fencePattern.FindStringSubmatch(trimmed); m != nil && strings.HasPrefix(trimmed, "```") {
		return m[1]
	}
	return text
}

// Serialize re-emits hunks in the pinned response format, in order, the
// inverse of ParseHunks.
func Serialize(hunks []Hunk) string {
	var b strings.Builder
	for i, h := range hunks {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString("<<<<<<< SEARCH\n")
		b.WriteString(h.Search)
		b.WriteString("\n=======\n")
		b.WriteString(h.Replace)
		b.WriteString("\n>>>>>>> REPLACE")
	}
	return b.String()
}
