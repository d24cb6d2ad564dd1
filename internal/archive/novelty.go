package archive

import (
	"context"
	"regexp"
	"sort"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"

	"github.com/mmprotest/openevolve/internal/obslog"
)

// syntaxFeatures extracts the shallow syntactic feature set used for
// Jaccard novelty: the name of every syntax node type plus the text of
// every identifier-like leaf, drawn from a tree-sitter parse of the
// candidate's code snapshot. Task code in this system is typically Python
// (the reference evaluators shell out to an external test runner over a
// target file); the grammar choice only needs to be coarse and consistent,
// so parse failures fall back to a regex tokenizer rather than dropping
// the candidate from novelty scoring entirely.
func syntaxFeatures(source string) map[string]struct{} {
	features := make(map[string]struct{})
	if source == "" {
		return features
	}

	parser := sitter.NewParser()
	parser.SetLanguage(python.GetLanguage())
	tree, err := parser.ParseCtx(context.Background(), nil, []byte(source))
	if err != nil || tree == nil {
		obslog.Get(obslog.CategoryArchive).Debug("tree-sitter parse failed, falling back to token features: %v", err)
		return tokenFeatures(source)
	}
	defer tree.Close()

	walk(tree.RootNode(), []byte(source), features)
	if len(features) == 0 {
		return tokenFeatures(source)
	}
	return features
}

func walk(node *sitter.Node, src []byte, out map[string]struct{}) {
	if node == nil {
		return
	}
	out[node.Type()] = struct{}{}
	if node.ChildCount() == 0 {
		if isIdentifierLike(node.Type()) {
			out["id:"+node.Content(src)] = struct{}{}
		}
		return
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		walk(node.Child(i), src, out)
	}
}

func isIdentifierLike(nodeType string) bool {
	switch nodeType {
	case "identifier", "property_identifier", "field_identifier", "type_identifier":
		return true
	default:
		return false
	}
}

var tokenPattern = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_]*|[^\sA-Za-z0-9_]`)

// tokenFeatures is the fallback feature extractor for source the configured
// grammar cannot usefully parse: every identifier-like word and every
// punctuation symbol, used verbatim as a feature.
func tokenFeatures(source string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, tok := range tokenPattern.FindAllString(source, -1) {
		out[tok] = struct{}{}
	}
	return out
}

// jaccardNovelty computes, for each candidate id in features, the mean of
// the top-k Jaccard distances (1 - |A∩B|/|A∪B|) to all other candidates'
// feature sets. A sole candidate has novelty 1.
func jaccardNovelty(features map[string]map[string]struct{}, k int) map[string]float64 {
	ids := make([]string, 0, len(features))
	for id := range features {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make(map[string]float64, len(ids))
	for _, id := range ids {
		if len(ids) <= 1 {
			out[id] = 1
			continue
		}
		var distances []float64
		for _, other := range ids {
			if other == id {
				continue
			}
			distances = append(distances, jaccardDistance(features[id], features[other]))
		}
		sort.Sort(sort.Reverse(sort.Float64Slice(distances)))
		limit := k
		if limit > len(distances) {
			limit = len(distances)
		}
		sum := 0.0
		for i := 0; i < limit; i++ {
			sum += distances[i]
		}
		if limit > 0 {
			out[id] = sum / float64(limit)
		} else {
			out[id] = 1
		}
	}
	return out
}

func jaccardDistance(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	intersection := 0
	for k := range a {
		if _, ok := b[k]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	similarity := float64(intersection) / float64(union)
	return 1 - similarity
}
