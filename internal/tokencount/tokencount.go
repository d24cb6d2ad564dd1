// Package tokencount wraps tiktoken-go for the CLI's precise token-count
// stats. The prompt assembler keeps its own cheap whitespace-word
// approximation for the budget cutoff (internal/prompt/budget.go); this
// package is only for reporting.
package tokencount

import "github.com/pkoukk/tiktoken-go"

const encodingName = "cl100k_base"

// Count returns the exact cl100k_base token count for text.
func Count(text string) (int, error) {
	enc, err := tiktoken.GetEncoding(encodingName)
	if err != nil {
		return 0, err
	}
	return len(enc.Encode(text, nil, nil)), nil
}
