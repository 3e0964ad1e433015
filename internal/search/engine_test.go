package search

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corpusd/corpusd/internal/inbox"
	"github.com/corpusd/corpusd/internal/indexdb"
	"github.com/corpusd/corpusd/internal/protocol"
	"github.com/corpusd/corpusd/internal/store"
)

func seed(t *testing.T, dataDir, source string, files ...protocol.IndexFile) {
	t.Helper()
	db, err := indexdb.Open(dataDir, source)
	require.NoError(t, err)
	defer db.Close()
	st, err := store.New(dataDir, source, 0)
	require.NoError(t, err)
	for _, f := range files {
		require.NoError(t, inbox.ProcessFile(db, st, f, time.Now()))
	}
}

func textFile(path string, texts ...string) protocol.IndexFile {
	f := protocol.IndexFile{Path: path, MTime: 1, Size: 1, Kind: "text"}
	for i, txt := range texts {
		f.Lines = append(f.Lines, protocol.LineEntry{Number: i + 1, Content: txt})
	}
	return f
}

func TestExactSearchFindsLine(t *testing.T) {
	dataDir := t.TempDir()
	seed(t, dataDir, "docs", textFile("a.md", "hello", "world"))

	e := NewEngine(dataDir, nil)
	resp, err := e.Search(context.Background(), Params{Query: "world", Mode: ModeExact})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	r := resp.Results[0]
	assert.Equal(t, "docs", r.Source)
	assert.Equal(t, "a.md", r.Path)
	assert.Equal(t, 2, r.LineNumber)
	assert.Equal(t, "world", r.Content)
	assert.Equal(t, float64(0), r.Score)
	assert.Equal(t, 1, resp.Total)
}

func TestShortQueryUsesScanFallback(t *testing.T) {
	dataDir := t.TempDir()
	seed(t, dataDir, "docs", textFile("a.md", "xy marks the spot", "nothing here"))

	e := NewEngine(dataDir, nil)
	resp, err := e.Search(context.Background(), Params{Query: "xy", Mode: ModeExact})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, 1, resp.Results[0].LineNumber)
}

func TestRegexModeFiltersByPattern(t *testing.T) {
	dataDir := t.TempDir()
	seed(t, dataDir, "code", textFile("main.go",
		"func parseConfig() error {",
		"func parse(s string) {",
		"parseConfig is called here",
	))

	e := NewEngine(dataDir, nil)
	resp, err := e.Search(context.Background(), Params{Query: `^func parse`, Mode: ModeRegex})
	require.NoError(t, err)
	require.Len(t, resp.Results, 2)
	for _, r := range resp.Results {
		assert.Contains(t, []int{1, 2}, r.LineNumber)
	}
}

func TestBadRegexIsAnError(t *testing.T) {
	e := NewEngine(t.TempDir(), nil)
	_, err := e.Search(context.Background(), Params{Query: `([`, Mode: ModeRegex})
	require.Error(t, err)
}

func TestFuzzyScoringPrefersTighterLines(t *testing.T) {
	dataDir := t.TempDir()
	seed(t, dataDir, "docs", textFile("a.md",
		"parse",
		"this long line mentions parse somewhere in a lot of other text entirely",
	))

	e := NewEngine(dataDir, nil)
	resp, err := e.Search(context.Background(), Params{Query: "parse", Mode: ModeFuzzy})
	require.NoError(t, err)
	require.Len(t, resp.Results, 2)
	assert.Equal(t, 1, resp.Results[0].LineNumber)
	assert.Greater(t, resp.Results[0].Score, resp.Results[1].Score)
}

func TestMultiSourcePaginationAndDedup(t *testing.T) {
	dataDir := t.TempDir()
	for s := 0; s < 3; s++ {
		var files []protocol.IndexFile
		for f := 0; f < 5; f++ {
			files = append(files, textFile(fmt.Sprintf("f%d.txt", f), "needle haystack line"))
		}
		seed(t, dataDir, fmt.Sprintf("src%d", s), files...)
	}

	e := NewEngine(dataDir, nil)
	all, err := e.Search(context.Background(), Params{Query: "needle", Mode: ModeExact, Limit: 100})
	require.NoError(t, err)
	require.Len(t, all.Results, 15)
	assert.Equal(t, 15, all.Total)

	page, err := e.Search(context.Background(), Params{Query: "needle", Mode: ModeExact, Limit: 10, Offset: 10})
	require.NoError(t, err)
	assert.Len(t, page.Results, 5)

	seen := map[string]bool{}
	for _, r := range all.Results {
		key := r.Source + "|" + r.Path + "|" + fmt.Sprint(r.LineNumber)
		assert.False(t, seen[key], "duplicate result %s", key)
		seen[key] = true
	}
}

func TestSourceFilterRestrictsSearch(t *testing.T) {
	dataDir := t.TempDir()
	seed(t, dataDir, "one", textFile("a.txt", "shared term"))
	seed(t, dataDir, "two", textFile("b.txt", "shared term"))

	e := NewEngine(dataDir, nil)
	resp, err := e.Search(context.Background(), Params{Query: "shared", Mode: ModeExact, Sources: []string{"one"}})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "one", resp.Results[0].Source)
}

func TestContextWindowAssembly(t *testing.T) {
	dataDir := t.TempDir()
	seed(t, dataDir, "docs", textFile("a.md", "one", "two", "three", "four", "five"))

	e := NewEngine(dataDir, nil)
	resp, err := e.Search(context.Background(), Params{Query: "three", Mode: ModeExact, Context: 1})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	cw := resp.Results[0].Context
	require.NotNil(t, cw)
	assert.Equal(t, 2, cw.StartLine)
	assert.Equal(t, 1, cw.MatchIndex)
	assert.Equal(t, []string{"two", "three", "four"}, cw.Lines)
}

func TestAliasContentReturnsSingleHit(t *testing.T) {
	dataDir := t.TempDir()
	a := textFile("x.log", "duplicated content here")
	a.ContentHash = "samehash"
	b := textFile("y.log", "duplicated content here")
	b.ContentHash = "samehash"
	seed(t, dataDir, "docs", a, b)

	e := NewEngine(dataDir, nil)
	resp, err := e.Search(context.Background(), Params{Query: "duplicated", Mode: ModeExact})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "x.log", resp.Results[0].Path)
}

func TestResourceURLAttachedFromBaseURL(t *testing.T) {
	dataDir := t.TempDir()
	seed(t, dataDir, "docs", textFile("sub/a.md", "hello"))

	db, err := indexdb.Open(dataDir, "docs")
	require.NoError(t, err)
	require.NoError(t, db.SetMeta("base_url", "https://files.test/"))
	db.Close()

	e := NewEngine(dataDir, nil)
	resp, err := e.Search(context.Background(), Params{Query: "hello", Mode: ModeExact})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "https://files.test/sub/a.md", resp.Results[0].ResourceURL)
}

func TestSplitModeSeparatesCompositePaths(t *testing.T) {
	dataDir := t.TempDir()
	seed(t, dataDir, "docs", protocol.IndexFile{
		Path: "zip.zip::inner.txt", MTime: 1, Size: 1, Kind: "text",
		Lines: []protocol.LineEntry{{Number: 1, Content: "alpha content"}},
	})

	e := NewEngine(dataDir, nil)
	resp, err := e.Search(context.Background(), Params{Query: "alpha", Mode: ModeExact})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "zip.zip::inner.txt", resp.Results[0].Path)
	assert.Empty(t, resp.Results[0].ArchivePath)

	resp, err = e.Search(context.Background(), Params{Query: "alpha", Mode: ModeExact, Split: true})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "zip.zip", resp.Results[0].Path)
	assert.Equal(t, "inner.txt", resp.Results[0].ArchivePath)
}
