package prompt

import "strings"

// section is one named block of prompt text with a ready-made render.
type section struct {
	name string
	text string
}

// approxTokens is the assembler's one-token-per-whitespace-word budget
// approximation. A dedicated tiktoken-go count is available separately for
// CLI-level stats (internal/tokencount) without replacing this
// approximation here.
func approxTokens(text string) int {
	return len(strings.Fields(text))
}

// budgetAssemble emits sections in order, stopping at (and dropping) the
// first section that would push the running token total above budget. The
// header and meta-prompt sections (the first two passed in) are exempt from
// the cutoff.
func budgetAssemble(sections []section, budget int) string {
	var kept []string
	total := 0

	for i, s := range sections {
		tokens := approxTokens(s.text)
		if i >= 2 && total+tokens > budget {
			break
		}
		kept = append(kept, s.text)
		total += tokens
	}

	return strings.Join(kept, "\n\n")
}
