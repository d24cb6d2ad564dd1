package tokencount

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountNonNegative(t *testing.T) {
	n, err := Count("return sum(values)")
	require.NoError(t, err)
	assert.Greater(t, n, 0)
}

func TestCountEmpty(t *testing.T) {
	n, err := Count("")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
