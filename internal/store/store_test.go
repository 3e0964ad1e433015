package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendReadRoundTrip(t *testing.T) {
	s, err := New(t.TempDir(), "docs", 0)
	require.NoError(t, err)

	locs, err := s.Append([]ChunkData{
		{FilePath: "a.md", ChunkNum: 0, Lines: []string{"hello", "world"}},
		{FilePath: "b/c.txt", ChunkNum: 0, Lines: []string{"xyz"}},
	})
	require.NoError(t, err)
	require.Len(t, locs, 2)

	lines, err := s.Read(locs[0])
	require.NoError(t, err)
	assert.Equal(t, []string{"hello", "world"}, lines)

	lines, err = s.Read(locs[1])
	require.NoError(t, err)
	assert.Equal(t, []string{"xyz"}, lines)
}

func TestRemoveRewritesArchive(t *testing.T) {
	s, err := New(t.TempDir(), "docs", 0)
	require.NoError(t, err)

	locs, err := s.Append([]ChunkData{
		{FilePath: "a.txt", ChunkNum: 0, Lines: []string{"keep"}},
		{FilePath: "b.txt", ChunkNum: 0, Lines: []string{"drop"}},
	})
	require.NoError(t, err)

	require.NoError(t, s.Remove([]Loc{locs[1]}))

	lines, err := s.Read(locs[0])
	require.NoError(t, err)
	assert.Equal(t, []string{"keep"}, lines)

	_, err = s.Read(locs[1])
	assert.Error(t, err)
}

func TestRotationStartsNewArchive(t *testing.T) {
	s, err := New(t.TempDir(), "docs", 16) // tiny threshold to force rotation
	require.NoError(t, err)

	first, err := s.Append([]ChunkData{{FilePath: "a.txt", ChunkNum: 0, Lines: []string{"0123456789"}}})
	require.NoError(t, err)
	second, err := s.Append([]ChunkData{{FilePath: "b.txt", ChunkNum: 0, Lines: []string{"0123456789"}}})
	require.NoError(t, err)

	assert.NotEqual(t, first[0].Archive, second[0].Archive)
}
