package patch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyStructuredBlockScope(t *testing.T) {
	source := "# EVOLVE-BLOCK-START solver\n    total = 0\n    return total\n# EVOLVE-BLOCK-END\n"
	ops := `[{"block_id":"solver","search":"total = 0\n    return total","replace":"return sum(values)"}]`

	out := Apply(source, ops, ScopeBlocks)
	require.True(t, out.Success, out.Err)
	assert.Contains(t, out.NewSource, "return sum(values)")
	assert.Contains(t, out.NewSource, "# EVOLVE-BLOCK-START solver")
}

func TestApplyStructuredMissingBlockIDInBlockScopeFails(t *testing.T) {
	source := "# EVOLVE-BLOCK-START solver\nx\n# EVOLVE-BLOCK-END\n"
	ops := `[{"search":"x","replace":"y"}]`
	out := Apply(source, ops, ScopeBlocks)
	assert.False(t, out.Success)
}

func TestApplyStructuredUnknownBlockFails(t *testing.T) {
	source := "# EVOLVE-BLOCK-START solver\nx\n# EVOLVE-BLOCK-END\n"
	ops := `[{"block_id":"nope","search":"x","replace":"y"}]`
	out := Apply(source, ops, ScopeBlocks)
	assert.False(t, out.Success)
}

func TestApplyStructuredEmptySearchReplacesWholeRegion(t *testing.T) {
	source := "# EVOLVE-BLOCK-START solver\nold content\n# EVOLVE-BLOCK-END\n"
	ops := `[{"block_id":"solver","search":"","replace":"brand new"}]`
	out := Apply(source, ops, ScopeBlocks)
	require.True(t, out.Success)
	assert.Contains(t, out.NewSource, "brand new")
	assert.NotContains(t, out.NewSource, "old content")
}

func TestApplyStructuredWholeFileScope(t *testing.T) {
	source := "foo = 1\n"
	ops := `[{"search":"foo","replace":"bar"}]`
	out := Apply(source, ops, ScopeFile)
	require.True(t, out.Success)
	assert.Equal(t, "bar = 1\n", out.NewSource)
}

func TestApplyWrappedPayload(t *testing.T) {
	source := "foo = 1\n"
	ops := `{"format":"json","diff":[{"search":"foo","replace":"bar"}]}`
	out := Apply(source, ops, ScopeFile)
	require.True(t, out.Success)
	assert.Equal(t, "bar = 1\n", out.NewSource)
}

func TestApplyUnifiedDiffSingleHunk(t *testing.T) {
	source := "foo = 1\n"
	diff := "@@ -1 +1 @@\n-foo = 1\n+bar = 1\n"
	out := Apply(source, diff, ScopeFile)
	require.True(t, out.Success)
	assert.Equal(t, "bar = 1\n", out.NewSource)
}

func TestIdempotenceSecondApplyFailsWhenReplaceDiffersFromSearch(t *testing.T) {
	source := "foo = 1\n"
	ops := `[{"search":"foo","replace":"bar"}]`

	first := Apply(source, ops, ScopeFile)
	require.True(t, first.Success)

	second := Apply(first.NewSource, ops, ScopeFile)
	assert.False(t, second.Success)
	assert.Contains(t, second.Err.Error(), "search not found")
}

func TestApplyStructuredRescansRegionsBetweenOps(t *testing.T) {
	source := "# EVOLVE-BLOCK-START a\nfoo\n# EVOLVE-BLOCK-END\n# EVOLVE-BLOCK-START b\nbar\n# EVOLVE-BLOCK-END\n"
	ops := `[{"block_id":"a","search":"foo","replace":"foofoo"},{"block_id":"b","search":"bar","replace":"barbar"}]`
	out := Apply(source, ops, ScopeBlocks)
	require.True(t, out.Success, out.Err)
	assert.Contains(t, out.NewSource, "foofoo")
	assert.Contains(t, out.NewSource, "barbar")
}
