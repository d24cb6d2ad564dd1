package llmoracle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Multi-hunk response wrapped in fences with CR/LF line endings.
func TestParseHunksMultiWithFencesAndCRLF(t *testing.T) {
	raw := "```diff\r\n" +
		"<<<<<<< SEARCH\r\n" +
		"foo\r\n" +
		"=======\r\n" +
		"bar\r\n" +
		">>>>>>> REPLACE\r\n" +
		"<<<<<<< SEARCH\r\n" +
		"spam\r\n" +
		"=======\r\n" +
		"eggs\r\n" +
		">>>>>>> REPLACE\r\n" +
		"```"

	hunks := ParseHunks(raw)
	require.Len(t, hunks, 2)
	assert.Equal(t, "foo", hunks[0].Search)
	assert.Equal(t, "bar", hunks[0].Replace)
	assert.Equal(t, "spam", hunks[1].Search)
	assert.Equal(t, "eggs", hunks[1].Replace)
}

func TestRoundTripParseThenSerializePreservesOrderAndContent(t *testing.T) {
	raw := "<<<<<<< SEARCH\nfoo\n=======\nbar\n>>>>>>> REPLACE\n" +
		"<<<<<<< SEARCH\nspam\n=======\neggs\n>>>>>>> REPLACE"

	hunks := ParseHunks(raw)
	require.Len(t, hunks, 2)

	reparsed := ParseHunks(Serialize(hunks))
	require.Len(t, reparsed, 2)
	assert.Equal(t, hunks, reparsed)
}

func TestHunksToPatchTextProducesApplicableJSON(t *testing.T) {
	hunks := []Hunk{{Search: "foo", Replace: "bar"}}
	text := HunksToPatchText(hunks, "")
	assert.Contains(t, text, `"search":"foo"`)
	assert.Contains(t, text, `"replace":"bar"`)
}

func TestParseHunksNoMatchesReturnsEmpty(t *testing.T) {
	assert.Empty(t, ParseHunks("no hunks here"))
}
