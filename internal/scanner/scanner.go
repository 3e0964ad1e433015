// Package scanner walks a source's roots, resolves per-directory
// configuration, compares against the server's file list, extracts
// changed files and submits batched upserts.
package scanner

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/zeebo/blake3"

	"github.com/corpusd/corpusd/internal/archive"
	"github.com/corpusd/corpusd/internal/config"
	"github.com/corpusd/corpusd/internal/debug"
	"github.com/corpusd/corpusd/internal/extract"
	"github.com/corpusd/corpusd/internal/indexdb"
	"github.com/corpusd/corpusd/internal/protocol"
	"github.com/corpusd/corpusd/internal/types"
	"github.com/corpusd/corpusd/pkg/pathutil"
)

// Submitter is the server as the scanner sees it: a file list for
// delta computation and a sink for batch envelopes.
type Submitter interface {
	FileList(source string) ([]indexdb.PathMTime, error)
	Submit(req *protocol.BulkRequest) error
}

// memberChanCap bounds in-flight archive memory: parsing stalls when
// the submitter falls behind.
const memberChanCap = 16

const maxFailuresPerBatch = 100

// Scanner drives incremental scans for the configured sources.
type Scanner struct {
	cfg      *config.Config
	client   Submitter
	registry *extract.Registry
}

func New(cfg *config.Config, client Submitter) *Scanner {
	return &Scanner{cfg: cfg, client: client, registry: extract.NewRegistry()}
}

// ScanAll scans every configured source in order.
func (s *Scanner) ScanAll(ctx context.Context, full bool) error {
	for _, src := range s.cfg.Sources {
		if err := s.ScanSource(ctx, src, full); err != nil {
			return fmt.Errorf("scan source %s: %w", src.Name, err)
		}
	}
	return nil
}

// ScanSource runs one incremental (or, with full set, mtime-ignoring)
// scan of a source and submits the result.
func (s *Scanner) ScanSource(ctx context.Context, src config.Source, full bool) error {
	if err := indexdb.ValidateSourceName(src.Name); err != nil {
		return err
	}

	serverList, err := s.client.FileList(src.Name)
	if err != nil {
		return fmt.Errorf("fetch file list: %w", err)
	}
	serverMTimes := make(map[string]int64, len(serverList))
	for _, pm := range serverList {
		serverMTimes[pm.Path] = pm.MTime
	}

	w := newWalker(s.cfg.ScanConfig(), s.cfg.Scan.NoIndexFile, s.cfg.Scan.IndexFile)
	files, err := w.walkRoots(src.Roots)
	if err != nil {
		return fmt.Errorf("walk roots: %w", err)
	}

	local := make(map[string]bool, len(files))
	for _, f := range files {
		local[f.relPath] = true
	}
	var deletions []string
	for path := range serverMTimes {
		if !local[path] {
			deletions = append(deletions, path)
		}
	}

	b := newBatcher(src, s.cfg.Scan, s.client)
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !full {
			if serverMTime, ok := serverMTimes[f.relPath]; ok && f.mtime <= serverMTime {
				debug.Log("scanner", "skip %s (mtime unchanged)", f.relPath)
				continue
			}
		}
		if err := s.scanFile(b, f); err != nil {
			return err
		}
	}

	return b.finish(deletions, time.Now().Unix())
}

// scanFile extracts one on-disk file and appends the resulting index
// records to the batch. Extraction failures become failure records,
// never scan aborts.
func (s *Scanner) scanFile(b *batcher, f walkedFile) error {
	if f.size > f.cfg.MaxFileSize {
		// Too large to hold in memory for extraction: record the file
		// by name only, unhashed.
		return b.addFile(protocol.IndexFile{
			Path:  f.relPath,
			MTime: f.mtime,
			Size:  f.size,
			Kind:  string(extract.DetectKind(f.relPath, nil)),
			Lines: []protocol.LineEntry{{Number: 0, Content: f.relPath}},
		})
	}

	data, err := os.ReadFile(f.absPath)
	if err != nil {
		return b.addFailure(f.relPath, fmt.Sprintf("read: %v", err))
	}
	hash := hashHex(data)

	if _, isArchive := archive.DetectFormat(f.relPath); isArchive {
		return s.scanArchive(b, f, data, hash)
	}

	started := time.Now()
	lines, err := s.registry.Extract(data, f.relPath, f.cfg)
	if err != nil {
		if err := b.addFailure(f.relPath, err.Error()); err != nil {
			return err
		}
		lines = nil
	}
	extractMS := time.Since(started).Milliseconds()

	kind := extract.DetectKind(f.relPath, data)
	if len(lines) == 0 {
		// A file with no extractable content is still findable by name.
		lines = []types.Line{{LineNumber: 0, Content: f.relPath}}
	}
	return b.addFile(protocol.IndexFile{
		Path:        f.relPath,
		MTime:       f.mtime,
		Size:        f.size,
		Kind:        string(kind),
		ExtractMS:   &extractMS,
		ContentHash: hash,
		Lines:       toEntries(lines),
	})
}

// scanArchive submits the outer archive record first, then drives the
// streamer through a bounded channel, expanding each member batch into
// one composite-path index file.
func (s *Scanner) scanArchive(b *batcher, f walkedFile, data []byte, hash string) error {
	outer := protocol.IndexFile{
		Path:        f.relPath,
		MTime:       f.mtime,
		Size:        f.size,
		Kind:        string(types.KindArchive),
		ContentHash: hash,
		Lines:       []protocol.LineEntry{{Number: 0, Content: f.relPath}},
	}
	if err := b.addFile(outer); err != nil {
		return err
	}

	batches := make(chan archive.MemberBatch, memberChanCap)
	go func() {
		defer close(batches)
		err := archive.Stream(f.relPath, data, f.cfg, 0, s.registry, func(mb archive.MemberBatch) {
			batches <- mb
		})
		if err != nil {
			batches <- archive.MemberBatch{SkipReason: err.Error()}
		}
	}()

	for mb := range batches {
		if err := s.addMemberBatch(b, f, mb); err != nil {
			// The streamer goroutine must not block forever on a full
			// channel once the consumer stops.
			go func() {
				for range batches {
				}
			}()
			return err
		}
	}
	return nil
}

func (s *Scanner) addMemberBatch(b *batcher, f walkedFile, mb archive.MemberBatch) error {
	if mb.SkipReason != "" {
		path := f.relPath
		if mb.MemberPath != "" {
			path = pathutil.Join(f.relPath, mb.MemberPath)
		}
		return b.addFailure(path, mb.SkipReason)
	}

	kind := extract.DetectKind(mb.MemberPath, nil)
	if kind == types.KindUnknown {
		kind = kindFromLines(mb.Lines)
	}
	var size int64
	for _, ln := range mb.Lines {
		size += int64(len(ln.Content))
	}
	return b.addFile(protocol.IndexFile{
		Path:        pathutil.Join(f.relPath, mb.MemberPath),
		MTime:       f.mtime,
		Size:        size,
		Kind:        string(kind),
		ContentHash: mb.ContentHash,
		Lines:       toEntries(mb.Lines),
	})
}

// kindFromLines recovers a kind for extension-less members from the
// MIME fallback pseudo-line, when one is present.
func kindFromLines(lines []types.Line) types.Kind {
	for _, ln := range lines {
		if ln.LineNumber == 0 && strings.HasPrefix(ln.Content, "[FILE:mime] ") {
			return extract.KindForMime(strings.TrimPrefix(ln.Content, "[FILE:mime] "))
		}
	}
	if len(lines) == 0 {
		return types.KindUnknown
	}
	return types.KindText
}

func toEntries(lines []types.Line) []protocol.LineEntry {
	out := make([]protocol.LineEntry, len(lines))
	for i, ln := range lines {
		out[i] = protocol.LineEntry{Number: ln.LineNumber, Content: ln.Content}
	}
	return out
}

func hashHex(data []byte) string {
	h := blake3.New()
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// batcher accumulates upserts and failures, flushing a submission
// when it reaches the file-count or line-byte limit.
type batcher struct {
	src      config.Source
	client   Submitter
	maxFiles int
	maxBytes int64

	files     []protocol.IndexFile
	failures  []protocol.Failure
	lineBytes int64
}

func newBatcher(src config.Source, scan config.Scan, client Submitter) *batcher {
	maxFiles := scan.BatchMaxFiles
	if maxFiles <= 0 {
		maxFiles = 200
	}
	maxBytes := scan.BatchMaxBytes
	if maxBytes <= 0 {
		maxBytes = 8 << 20
	}
	return &batcher{src: src, client: client, maxFiles: maxFiles, maxBytes: maxBytes}
}

func (b *batcher) addFile(f protocol.IndexFile) error {
	b.files = append(b.files, f)
	for _, ln := range f.Lines {
		b.lineBytes += int64(len(ln.Content))
	}
	return b.flushIfFull()
}

func (b *batcher) addFailure(path, msg string) error {
	b.failures = append(b.failures, protocol.Failure{Path: path, Error: types.TruncateError(msg)})
	if len(b.failures) >= maxFailuresPerBatch {
		return b.flush(nil, nil)
	}
	return nil
}

func (b *batcher) flushIfFull() error {
	if len(b.files) >= b.maxFiles || b.lineBytes >= b.maxBytes {
		return b.flush(nil, nil)
	}
	return nil
}

func (b *batcher) flush(deletePaths []string, scanTimestamp *int64) error {
	if len(b.files) == 0 && len(b.failures) == 0 && len(deletePaths) == 0 && scanTimestamp == nil {
		return nil
	}
	req := &protocol.BulkRequest{
		Source:           b.src.Name,
		Files:            b.files,
		DeletePaths:      deletePaths,
		ScanTimestamp:    scanTimestamp,
		IndexingFailures: b.failures,
	}
	if b.src.BaseURL != "" {
		base := b.src.BaseURL
		req.BaseURL = &base
	}
	if err := b.client.Submit(req); err != nil {
		return fmt.Errorf("submit batch: %w", err)
	}
	b.files = nil
	b.failures = nil
	b.lineBytes = 0
	return nil
}

// finish submits the final batch: remaining files, the full deletion
// list, and the scan-complete timestamp.
func (b *batcher) finish(deletePaths []string, scanTimestamp int64) error {
	return b.flush(deletePaths, &scanTimestamp)
}
