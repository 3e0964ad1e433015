package scanner

import (
	"archive/zip"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corpusd/corpusd/internal/config"
	"github.com/corpusd/corpusd/internal/indexdb"
	"github.com/corpusd/corpusd/internal/protocol"
)

type fakeServer struct {
	list     []indexdb.PathMTime
	requests []*protocol.BulkRequest
}

func (f *fakeServer) FileList(source string) ([]indexdb.PathMTime, error) { return f.list, nil }
func (f *fakeServer) Submit(req *protocol.BulkRequest) error {
	f.requests = append(f.requests, req)
	return nil
}

func (f *fakeServer) allFiles() map[string]protocol.IndexFile {
	out := map[string]protocol.IndexFile{}
	for _, req := range f.requests {
		for _, file := range req.Files {
			out[file.Path] = file
		}
	}
	return out
}

func write(t *testing.T, root string, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func newTestScanner(client Submitter) *Scanner {
	return New(config.Default(), client)
}

func scanOnce(t *testing.T, srv *fakeServer, root string, full bool) {
	t.Helper()
	s := newTestScanner(srv)
	err := s.ScanSource(context.Background(), config.Source{Name: "docs", Roots: []string{root}}, full)
	require.NoError(t, err)
}

func TestScanSubmitsFilesAndScanTimestamp(t *testing.T) {
	root := t.TempDir()
	write(t, root, "a.md", "hello\nworld\n")
	write(t, root, "b/c.txt", "xyz\n")

	srv := &fakeServer{}
	scanOnce(t, srv, root, false)

	files := srv.allFiles()
	require.Len(t, files, 2)
	a := files["a.md"]
	assert.Equal(t, "text", a.Kind)
	assert.NotEmpty(t, a.ContentHash)
	require.NotNil(t, a.ExtractMS)
	require.Len(t, a.Lines, 2)
	assert.Equal(t, 2, a.Lines[1].Number)
	assert.Equal(t, "world", a.Lines[1].Content)
	assert.Contains(t, files, "b/c.txt")

	last := srv.requests[len(srv.requests)-1]
	require.NotNil(t, last.ScanTimestamp)
}

func TestMTimeUnchangedSkipsExtraction(t *testing.T) {
	root := t.TempDir()
	write(t, root, "a.md", "hello\n")
	info, err := os.Stat(filepath.Join(root, "a.md"))
	require.NoError(t, err)

	srv := &fakeServer{list: []indexdb.PathMTime{{Path: "a.md", MTime: info.ModTime().Unix()}}}
	scanOnce(t, srv, root, false)
	assert.Empty(t, srv.allFiles())

	// A full pass ignores mtimes.
	srv2 := &fakeServer{list: srv.list}
	scanOnce(t, srv2, root, true)
	assert.Contains(t, srv2.allFiles(), "a.md")
}

func TestDeletionsAreServerMinusLocal(t *testing.T) {
	root := t.TempDir()
	write(t, root, "keep.md", "x\n")

	srv := &fakeServer{list: []indexdb.PathMTime{
		{Path: "keep.md", MTime: 0},
		{Path: "gone.md", MTime: 0},
	}}
	scanOnce(t, srv, root, false)

	last := srv.requests[len(srv.requests)-1]
	assert.Equal(t, []string{"gone.md"}, last.DeletePaths)
}

func TestNoIndexPrunesSubtree(t *testing.T) {
	root := t.TempDir()
	write(t, root, "a.md", "hello\n")
	write(t, root, "b/c.txt", "xyz\n")
	write(t, root, "b/.noindex", "")

	srv := &fakeServer{}
	scanOnce(t, srv, root, false)

	files := srv.allFiles()
	assert.Contains(t, files, "a.md")
	assert.NotContains(t, files, "b/c.txt")
}

func TestHiddenDirsPrunedByDefault(t *testing.T) {
	root := t.TempDir()
	write(t, root, ".git/config", "secret\n")
	write(t, root, "visible.txt", "x\n")

	srv := &fakeServer{}
	scanOnce(t, srv, root, false)

	files := srv.allFiles()
	assert.Contains(t, files, "visible.txt")
	assert.NotContains(t, files, ".git/config")
}

func TestIndexOverrideAddsExcludeGlobs(t *testing.T) {
	root := t.TempDir()
	write(t, root, ".index", "exclude = [\"*.log\"]\n")
	write(t, root, "keep.txt", "x\n")
	write(t, root, "skip.log", "y\n")

	srv := &fakeServer{}
	scanOnce(t, srv, root, false)

	files := srv.allFiles()
	assert.Contains(t, files, "keep.txt")
	assert.NotContains(t, files, "skip.log")
}

func TestArchiveExpandsToCompositePaths(t *testing.T) {
	root := t.TempDir()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	inner, err := zw.Create("inner.txt")
	require.NoError(t, err)
	inner.Write([]byte("alpha\n"))
	require.NoError(t, zw.Close())
	write(t, root, "zip.zip", buf.String())

	srv := &fakeServer{}
	scanOnce(t, srv, root, false)

	files := srv.allFiles()
	outer, ok := files["zip.zip"]
	require.True(t, ok)
	assert.Equal(t, "archive", outer.Kind)
	require.Len(t, outer.Lines, 1)
	assert.Equal(t, 0, outer.Lines[0].Number)

	member, ok := files["zip.zip::inner.txt"]
	require.True(t, ok)
	assert.Equal(t, "text", member.Kind)
	require.Len(t, member.Lines, 1)
	assert.Equal(t, "alpha", member.Lines[0].Content)
	assert.NotEmpty(t, member.ContentHash)

	// Ordering guarantee: the outer record precedes its members.
	var order []string
	for _, req := range srv.requests {
		for _, f := range req.Files {
			order = append(order, f.Path)
		}
	}
	outerIdx, memberIdx := -1, -1
	for i, p := range order {
		switch p {
		case "zip.zip":
			outerIdx = i
		case "zip.zip::inner.txt":
			memberIdx = i
		}
	}
	assert.Less(t, outerIdx, memberIdx)
}

func TestBatchFlushesAtFileLimit(t *testing.T) {
	root := t.TempDir()
	for i := 0; i < 5; i++ {
		write(t, root, filepath.Join("d", string(rune('a'+i))+".txt"), "x\n")
	}

	cfg := config.Default()
	cfg.Scan.BatchMaxFiles = 2
	srv := &fakeServer{}
	s := New(cfg, srv)
	require.NoError(t, s.ScanSource(context.Background(), config.Source{Name: "docs", Roots: []string{root}}, false))

	require.GreaterOrEqual(t, len(srv.requests), 3)
	for _, req := range srv.requests[:len(srv.requests)-1] {
		assert.LessOrEqual(t, len(req.Files), 2)
	}
}

func TestOversizedFileIndexedByNameOnly(t *testing.T) {
	root := t.TempDir()
	write(t, root, "big.bin", "0123456789")

	cfg := config.Default()
	cfg.Scan.MaxFileSize = 4
	srv := &fakeServer{}
	s := New(cfg, srv)
	require.NoError(t, s.ScanSource(context.Background(), config.Source{Name: "docs", Roots: []string{root}}, false))

	f, ok := srv.allFiles()["big.bin"]
	require.True(t, ok)
	assert.Empty(t, f.ContentHash)
	require.Len(t, f.Lines, 1)
	assert.Equal(t, 0, f.Lines[0].Number)
	assert.Equal(t, "big.bin", f.Lines[0].Content)
}
