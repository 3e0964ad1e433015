// Package integration drives the full pipeline end to end: scanner ->
// HTTP submit -> inbox worker -> index -> search, against a real
// server over a loopback listener.
package integration

import (
	"archive/zip"
	"bytes"
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corpusd/corpusd/internal/client"
	"github.com/corpusd/corpusd/internal/config"
	"github.com/corpusd/corpusd/internal/inbox"
	"github.com/corpusd/corpusd/internal/scanner"
	"github.com/corpusd/corpusd/internal/search"
	"github.com/corpusd/corpusd/internal/serverapi"
)

type pipeline struct {
	t      *testing.T
	cfg    *config.Config
	root   string
	client *client.Client
	cancel context.CancelFunc
	done   chan struct{}
}

func startPipeline(t *testing.T) *pipeline {
	t.Helper()
	cfg := config.Default()
	cfg.Server.DataDir = t.TempDir()
	root := t.TempDir()
	cfg.Sources = []config.Source{{Name: "docs", Roots: []string{root}}}

	worker := inbox.NewWorker(cfg.Server.DataDir, 50*time.Millisecond, 0, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		worker.Run(ctx)
	}()

	srv := httptest.NewServer(serverapi.New(cfg, worker, nil).Handler())
	t.Cleanup(func() {
		srv.Close()
		cancel()
		<-done
	})

	return &pipeline{
		t:      t,
		cfg:    cfg,
		root:   root,
		client: client.New(srv.URL, ""),
		cancel: cancel,
		done:   done,
	}
}

func (p *pipeline) scan() {
	p.t.Helper()
	s := scanner.New(p.cfg, p.client)
	require.NoError(p.t, s.ScanSource(context.Background(), p.cfg.Sources[0], false))
	p.waitDrained()
}

// waitDrained blocks until the worker has consumed every pending
// envelope and gone idle.
func (p *pipeline) waitDrained() {
	p.t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		status, err := p.client.Status()
		require.NoError(p.t, err)
		if status.Pending == 0 && status.Worker.State == inbox.StateIdle {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	p.t.Fatal("inbox never drained")
}

func (p *pipeline) write(rel, content string) {
	p.t.Helper()
	path := filepath.Join(p.root, rel)
	require.NoError(p.t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(p.t, os.WriteFile(path, []byte(content), 0o644))
}

func (p *pipeline) search(q string) *search.Response {
	p.t.Helper()
	resp, err := p.client.Search(search.Params{Query: q, Mode: search.ModeExact, Limit: 50})
	require.NoError(p.t, err)
	return resp
}

func TestScanIndexAndQuery(t *testing.T) {
	p := startPipeline(t)
	p.write("a.md", "hello\nworld\n")
	p.write("b/c.txt", "xyz\n")
	p.scan()

	list, err := p.client.FileList("docs")
	require.NoError(t, err)
	assert.Len(t, list, 2)

	resp := p.search("world")
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "a.md", resp.Results[0].Path)
	assert.Equal(t, 2, resp.Results[0].LineNumber)
}

func TestNoIndexMarkerRemovesSubtreeOnRescan(t *testing.T) {
	p := startPipeline(t)
	p.write("a.md", "hello\nworld\n")
	p.write("b/c.txt", "xyz\n")
	p.scan()
	require.Len(t, p.search("xyz").Results, 1)

	p.write("b/.noindex", "")
	p.scan()

	assert.Empty(t, p.search("xyz").Results)
	list, err := p.client.FileList("docs")
	require.NoError(t, err)
	for _, f := range list {
		assert.NotEqual(t, "b/c.txt", f.Path)
	}
}

func writeZip(t *testing.T, members map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range members {
		f, err := zw.Create(name)
		require.NoError(t, err)
		_, err = f.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestArchiveMemberLifecycle(t *testing.T) {
	p := startPipeline(t)
	p.write("zip.zip", string(writeZip(t, map[string]string{"inner.txt": "alpha\n", "keep.txt": "beta\n"})))
	p.scan()

	resp := p.search("alpha")
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "zip.zip::inner.txt", resp.Results[0].Path)
	assert.Equal(t, 1, resp.Results[0].LineNumber)

	// Rewrite the zip without inner.txt, with a bumped mtime: the
	// stale member must be swept on re-index.
	p.write("zip.zip", string(writeZip(t, map[string]string{"keep.txt": "beta\n"})))
	future := time.Now().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(filepath.Join(p.root, "zip.zip"), future, future))
	p.scan()

	assert.Empty(t, p.search("alpha").Results)
	require.Len(t, p.search("beta").Results, 1)
}
