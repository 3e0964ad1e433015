package indexdb

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corpusd/corpusd/internal/types"
)

func TestValidateSourceNameRejectsTraversal(t *testing.T) {
	assert.NoError(t, ValidateSourceName("docs"))
	assert.NoError(t, ValidateSourceName("my-source_1"))
	assert.Error(t, ValidateSourceName("../etc"))
	assert.Error(t, ValidateSourceName("a/b"))
}

func TestUpsertAndFetchFile(t *testing.T) {
	db, err := Open(t.TempDir(), "docs")
	require.NoError(t, err)
	defer db.Close()

	now := time.Unix(1000, 0)
	id, isNew, err := db.UpsertFile(types.FileRecord{Path: "a.md", MTime: 10, Size: 5, Kind: types.KindText}, now)
	require.NoError(t, err)
	assert.True(t, isNew)
	assert.NotZero(t, id)

	rec, err := db.GetFileByPath("a.md")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, int64(10), rec.MTime)

	_, isNew, err = db.UpsertFile(types.FileRecord{Path: "a.md", MTime: 20, Size: 6, Kind: types.KindText}, now)
	require.NoError(t, err)
	assert.False(t, isNew)

	rec, err = db.GetFileByPath("a.md")
	require.NoError(t, err)
	assert.Equal(t, int64(20), rec.MTime)
}

func TestReplaceLinesAndFTSSearch(t *testing.T) {
	db, err := Open(t.TempDir(), "docs")
	require.NoError(t, err)
	defer db.Close()

	id, _, err := db.UpsertFile(types.FileRecord{Path: "a.md", MTime: 1, Size: 1, Kind: types.KindText}, time.Now())
	require.NoError(t, err)

	tx, err := db.Begin()
	require.NoError(t, err)
	lines := []types.LineRecord{
		{LineNumber: 1, Chunk: types.ChunkRef{Archive: "content_00001", Chunk: "a.md.chunk0.txt", Offset: 0}},
		{LineNumber: 2, Chunk: types.ChunkRef{Archive: "content_00001", Chunk: "a.md.chunk0.txt", Offset: 1}},
	}
	require.NoError(t, db.ReplaceLines(tx, id, lines, []string{"hello", "world"}))
	require.NoError(t, tx.Commit())

	n, err := db.MatchCount(`"world"`)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	ids, err := db.MatchCandidates(`"world"`, 10)
	require.NoError(t, err)
	require.Len(t, ids, 1)

	matched, err := db.FetchLinesByIDs(ids)
	require.NoError(t, err)
	require.Len(t, matched, 1)
	assert.Equal(t, "a.md", matched[0].FilePath)
	assert.Equal(t, 2, matched[0].LineNumber)
}

func TestMembersUnderPrefix(t *testing.T) {
	db, err := Open(t.TempDir(), "docs")
	require.NoError(t, err)
	defer db.Close()

	now := time.Now()
	_, _, err = db.UpsertFile(types.FileRecord{Path: "zip.zip", MTime: 1, Size: 1, Kind: types.KindArchive}, now)
	require.NoError(t, err)
	_, _, err = db.UpsertFile(types.FileRecord{Path: "zip.zip::inner.txt", MTime: 1, Size: 1, Kind: types.KindText}, now)
	require.NoError(t, err)
	_, _, err = db.UpsertFile(types.FileRecord{Path: "other.txt", MTime: 1, Size: 1, Kind: types.KindText}, now)
	require.NoError(t, err)

	members, err := db.ListMembersUnderPrefix("zip.zip")
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, "zip.zip::inner.txt", members[0].Path)
}
