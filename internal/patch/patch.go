// Package patch decodes and applies candidate patches produced by the LLM
// oracle. Patches arrive either as a structured list of search/replace
// operations or as a restricted unified diff; both are carried as opaque text
// until Apply decodes them.
package patch

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/mmprotest/openevolve/internal/block"
	"github.com/mmprotest/openevolve/internal/obslog"
)

// Scope selects whether operations target named regions or the whole file.
type Scope string

const (
	ScopeBlocks Scope = "blocks"
	ScopeFile   Scope = "file"
)

// Op is a single structured edit operation.
type Op struct {
	BlockID string `json:"block_id,omitempty"`
	Search  string `json:"search"`
	Replace string `json:"replace"`
}

// wrappedPayload is the `{ "format": "...", "diff": [...] }` envelope.
type wrappedPayload struct {
	Format string          `json:"format"`
	Diff   json.RawMessage `json:"diff"`
}

// Error identifies the first operation that failed to apply.
type Error struct {
	OpIndex int
	Reason  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("operation %d failed: %s", e.OpIndex, e.Reason)
}

// Outcome is the result of Apply.
type Outcome struct {
	Success   bool
	NewSource string
	Err       error
}

// Apply applies patch to file (the current source text) under scope. On
// failure file is conceptually left untouched; Apply never mutates disk
// itself; callers write NewSource only on Success.
func Apply(file string, patchText string, scope Scope) Outcome {
	timer := obslog.StartTimer(obslog.CategoryPatch, "Apply")
	defer timer.Stop()

	ops, isStructured := decodeStructured(patchText)
	if isStructured {
		newSource, err := applyStructured(file, ops, scope)
		if err != nil {
			return Outcome{Success: false, Err: err}
		}
		return Outcome{Success: true, NewSource: newSource}
	}

	newSource, err := applyUnifiedDiff(file, patchText)
	if err != nil {
		return Outcome{Success: false, Err: err}
	}
	return Outcome{Success: true, NewSource: newSource}
}

// decodeStructured attempts to parse patchText as a structured op list,
// either bare or wrapped in {"format":...,"diff":[...]}. Returns ok=false if
// it is not valid JSON shaped like a structured patch, in which case the
// caller falls back to textual unified-diff decoding.
func decodeStructured(patchText string) ([]Op, bool) {
	trimmed := strings.TrimSpace(patchText)
	if trimmed == "" {
		return nil, false
	}

	var ops []Op
	if err := json.Unmarshal([]byte(trimmed), &ops); err == nil {
		return ops, true
	}

	var wrapped wrappedPayload
	if err := json.Unmarshal([]byte(trimmed), &wrapped); err == nil && len(wrapped.Diff) > 0 {
		if err := json.Unmarshal(wrapped.Diff, &ops); err == nil {
			return ops, true
		}
	}

	return nil, false
}

// applyStructured applies a structured op list. In block scope, an operation
// without a block name is rejected, as is one whose named region is absent.
// In whole-file scope, operations without a block name perform a
// first-occurrence substring replacement on the entire file.
func applyStructured(source string, ops []Op, scope Scope) (string, error) {
	updated := source

	for i, op := range ops {
		if op.BlockID == "" {
			if scope == ScopeBlocks {
				return "", &Error{OpIndex: i, Reason: "operation missing block_id in block scope"}
			}
			newUpdated, err := replaceFirstOccurrence(updated, op.Search, op.Replace)
			if err != nil {
				return "", &Error{OpIndex: i, Reason: err.Error()}
			}
			updated = newUpdated
			continue
		}

		region, ok := lookupRegion(updated, op.BlockID)
		if !ok {
			return "", &Error{OpIndex: i, Reason: fmt.Sprintf("block %q not found", op.BlockID)}
		}

		newContent, err := resolveBlockContent(region.Content, op.Search, op.Replace)
		if err != nil {
			return "", &Error{OpIndex: i, Reason: err.Error()}
		}

		updated = block.Replace(updated, region, newContent)
	}

	return updated, nil
}

// lookupRegion finds a region by exact name, or by the last whitespace-
// separated token of its name (so "solver fn" can be targeted as "fn").
func lookupRegion(source, blockID string) (block.Region, bool) {
	regions := block.Extract(source)
	for _, r := range regions {
		if r.Name == blockID {
			return r, true
		}
	}
	for _, r := range regions {
		fields := strings.Fields(r.Name)
		if len(fields) > 0 && fields[len(fields)-1] == blockID {
			return r, true
		}
	}
	return block.Region{}, false
}

// resolveBlockContent implements the block-scope search/replace rule,
// including the whole-content-replace exception when search is absent from
// the raw content but matches it after trimming surrounding whitespace.
func resolveBlockContent(content, search, replace string) (string, error) {
	if search == "" {
		return replace, nil
	}
	if strings.Contains(content, search) {
		return strings.Replace(content, search, replace, 1), nil
	}
	if strings.TrimSpace(content) == strings.TrimSpace(search) {
		return replace, nil
	}
	return "", fmt.Errorf("search not found in block")
}

func replaceFirstOccurrence(source, search, replace string) (string, error) {
	if search == "" {
		return replace, nil
	}
	if !strings.Contains(source, search) {
		return "", fmt.Errorf("search not found in file")
	}
	return strings.Replace(source, search, replace, 1), nil
}

// applyUnifiedDiff applies a restricted unified diff: `@@` headers carry
// 1-based start lines, `---`/`+++` headers are ignored, `-` lines consume one
// source line, `+` lines emit the remainder of the line, context lines copy
// one source line verbatim.
func applyUnifiedDiff(source, diffText string) (string, error) {
	srcLines := strings.Split(source, "\n")
	hasTrailingNewline := strings.HasSuffix(source, "\n")
	if hasTrailingNewline {
		srcLines = srcLines[:len(srcLines)-1]
	}

	var result []string
	idx := 0

	for _, line := range strings.Split(diffText, "\n") {
		switch {
		case strings.HasPrefix(line, "---") || strings.HasPrefix(line, "+++"):
			continue
		case strings.HasPrefix(line, "@@"):
			start, err := parseHunkStart(line)
			if err != nil {
				return "", fmt.Errorf("malformed hunk header %q: %w", line, err)
			}
			for idx < start && idx < len(srcLines) {
				result = append(result, srcLines[idx])
				idx++
			}
		case strings.HasPrefix(line, "-"):
			idx++
		case strings.HasPrefix(line, "+"):
			result = append(result, line[1:])
		default:
			if idx < len(srcLines) {
				result = append(result, srcLines[idx])
				idx++
			}
		}
	}

	result = append(result, srcLines[idx:]...)

	out := strings.Join(result, "\n")
	if hasTrailingNewline {
		out += "\n"
	}
	return out, nil
}

// parseHunkStart extracts the 0-based old-file start line from a `@@ -a,b +c,d @@` header.
func parseHunkStart(header string) (int, error) {
	fields := strings.Fields(header)
	if len(fields) < 2 {
		return 0, fmt.Errorf("missing range field")
	}
	rangeField := strings.TrimPrefix(fields[1], "-")
	numPart := strings.SplitN(rangeField, ",", 2)[0]
	n, err := strconv.Atoi(numPart)
	if err != nil {
		return 0, err
	}
	return n - 1, nil
}
