package indexdb

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corpusd/corpusd/internal/types"
)

func seedFiles(t *testing.T, db *DB) {
	t.Helper()
	now := time.Now()
	for _, f := range []types.FileRecord{
		{Path: "a.md", MTime: 1, Size: 10, Kind: types.KindText},
		{Path: "docs/b.md", MTime: 1, Size: 20, Kind: types.KindText},
		{Path: "docs/sub/c.pdf", MTime: 1, Size: 30, Kind: types.KindPDF},
	} {
		_, _, err := db.UpsertFile(f, now)
		require.NoError(t, err)
	}
}

func TestStatsCountsCanonicalFilesByKind(t *testing.T) {
	db, err := Open(t.TempDir(), "docs")
	require.NoError(t, err)
	defer db.Close()
	seedFiles(t, db)

	// An alias must not count toward totals.
	canon, err := db.GetFileByPath("a.md")
	require.NoError(t, err)
	_, _, err = db.UpsertFile(types.FileRecord{
		Path: "copy.md", MTime: 1, Size: 10, Kind: types.KindText, CanonicalFileID: &canon.ID,
	}, time.Now())
	require.NoError(t, err)

	s, err := db.Stats()
	require.NoError(t, err)
	assert.Equal(t, 3, s.FileCount)
	assert.Equal(t, int64(60), s.TotalSize)
	assert.Equal(t, 2, s.ByKind["text"])
	assert.Equal(t, 1, s.ByKind["pdf"])
}

func TestListChildrenGroupsByImmediateChild(t *testing.T) {
	db, err := Open(t.TempDir(), "docs")
	require.NoError(t, err)
	defer db.Close()
	seedFiles(t, db)

	rootEntries, err := db.ListChildren("")
	require.NoError(t, err)
	names := map[string]bool{}
	for _, e := range rootEntries {
		names[e.Name] = e.IsDir
	}
	assert.False(t, names["a.md"])
	assert.True(t, names["docs/"])
	assert.Len(t, rootEntries, 2)

	docEntries, err := db.ListChildren("docs/")
	require.NoError(t, err)
	require.Len(t, docEntries, 2)
	kinds := map[string]string{}
	for _, e := range docEntries {
		if !e.IsDir {
			kinds[e.Name] = e.Kind
		}
	}
	assert.Equal(t, "text", kinds["b.md"])
}
