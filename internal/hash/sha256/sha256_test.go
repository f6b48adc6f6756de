package sha256

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasherHashDeterministic(t *testing.T) {
	t.Parallel()

	h := New()
	got, err := h.Hash([]byte("Artist,Song,Album,Date_Played,Time_Played\n"))
	require.NoError(t, err)
	assert.Len(t, got, 64)

	again, err := h.Hash([]byte("Artist,Song,Album,Date_Played,Time_Played\n"))
	require.NoError(t, err)
	assert.Equal(t, got, again)

	other, err := h.Hash([]byte("Artist,Song\n"))
	require.NoError(t, err)
	assert.NotEqual(t, got, other)
}

func TestHasherKnownDigest(t *testing.T) {
	t.Parallel()

	got, err := New().Hash([]byte("hello world"))
	require.NoError(t, err)
	assert.Equal(t, "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9", got)
}
