package hasher

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContentHash_Length(t *testing.T) {
	assert.Len(t, ContentHash([]byte("hello"), 0), 16)
	assert.Len(t, ContentHash([]byte("hello"), 8), 8)
	assert.Equal(t, ContentHash([]byte("hello"), 0), ContentHash([]byte("hello"), 0))
	assert.NotEqual(t, ContentHash([]byte("hello"), 0), ContentHash([]byte("world"), 0))
}

func TestFileHash_MatchesContentHash(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.bin")
	data := []byte("some media bytes")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	h, err := FileHash(path, DefaultLen)
	require.NoError(t, err)
	assert.Equal(t, ContentHash(data, DefaultLen), h)
}

func TestSameContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.bin")
	assert.False(t, SameContent(path, []byte("x")))

	require.NoError(t, os.WriteFile(path, []byte("abc"), 0o644))
	assert.True(t, SameContent(path, []byte("abc")))
	assert.False(t, SameContent(path, []byte("abd")))
	assert.False(t, SameContent(path, []byte("abcd")))
}
