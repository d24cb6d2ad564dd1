package llmoracle

import "encoding/json"

// patchOp mirrors internal/patch.Op's JSON shape without importing that
// package, keeping llmoracle's dependency surface limited to the oracle
// contract and response format.
type patchOp struct {
	BlockID string `json:"block_id,omitempty"`
	Search  string `json:"search"`
	Replace string `json:"replace"`
}

// HunksToPatchText converts parsed SEARCH/REPLACE hunks into the structured
// patch JSON consumed by internal/patch.Apply. blockID is attached to every
// op when non-empty; the driver supplies it when the run targets exactly
// one named region under block scope. Left empty, ops carry no block_id:
// under file scope they apply against the whole file, and under block scope
// patch.Apply rejects them.
func HunksToPatchText(hunks []Hunk, blockID string) string {
	ops := make([]patchOp, len(hunks))
	for i, h := range hunks {
		ops[i] = patchOp{BlockID: blockID, Search: h.Search, Replace: h.Replace}
	}
	out, _ := json.Marshal(ops)
	return string(out)
}
