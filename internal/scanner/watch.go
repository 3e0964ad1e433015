package scanner

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/corpusd/corpusd/internal/config"
	"github.com/corpusd/corpusd/internal/debug"
	"github.com/corpusd/corpusd/internal/types"
	"github.com/corpusd/corpusd/pkg/pathutil"
)

// pendingKind is what the debounce accumulator decided to do with a
// path once the window closes.
type pendingKind int

const (
	pendingUpdate pendingKind = iota
	pendingDelete
)

// Watcher is the continuous counterpart of a one-shot scan: it holds
// recursive filesystem watches over every source root, debounces the
// event stream, and submits per-file incremental updates and deletes
// through the same extraction and submission path the batch scanner
// uses.
type Watcher struct {
	s        *Scanner
	debounce time.Duration
}

func NewWatcher(cfg *config.Config, client Submitter) *Watcher {
	debounce := time.Duration(cfg.Watch.DebounceMS) * time.Millisecond
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	return &Watcher{s: New(cfg, client), debounce: debounce}
}

// watchedRoot is one (root, source) binding; the longest matching root
// claims an event's path.
type watchedRoot struct {
	root string
	src  config.Source
}

// Run watches until ctx is cancelled. Events are accumulated per path
// and collapsed (an update followed by a delete is a delete, and vice
// versa); the pending set flushes once the stream has been quiet for
// the debounce window.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	var roots []watchedRoot
	pending := map[string]pendingKind{}
	for _, src := range w.s.cfg.Sources {
		for _, root := range src.Roots {
			abs, err := filepath.Abs(root)
			if err != nil {
				return err
			}
			roots = append(roots, watchedRoot{root: abs, src: src})
			if err := w.addRecursive(fw, abs, pending); err != nil {
				return err
			}
			debug.Log("watch", "watching %s (source %s)", abs, src.Name)
		}
	}
	// Files seen while installing the initial watches are not flushed:
	// a prior scan already covers them.
	pending = map[string]pendingKind{}

	timer := time.NewTimer(w.debounce)
	stopTimer(timer)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			w.accumulate(fw, pending, ev)
			if len(pending) > 0 {
				stopTimer(timer)
				timer.Reset(w.debounce)
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			debug.Warn("watch", "watcher error: %v", err)
		case <-timer.C:
			batch := pending
			pending = map[string]pendingKind{}
			w.flush(batch, roots)
		}
	}
}

func stopTimer(t *time.Timer) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
}

// accumulate folds one filesystem event into the pending set. A
// rename fires on the old path; whether the path still exists decides
// update versus delete. A created directory gets watches installed
// immediately and its current files queued, since events inside it
// would otherwise be lost.
func (w *Watcher) accumulate(fw *fsnotify.Watcher, pending map[string]pendingKind, ev fsnotify.Event) {
	var kind pendingKind
	switch {
	case ev.Op&fsnotify.Create != 0:
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := w.addRecursive(fw, ev.Name, pending); err != nil {
				debug.Warn("watch", "watch new dir %s: %v", ev.Name, err)
			}
			return
		}
		kind = pendingUpdate
	case ev.Op&fsnotify.Write != 0:
		kind = pendingUpdate
	case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		if _, err := os.Stat(ev.Name); err == nil {
			kind = pendingUpdate
		} else {
			kind = pendingDelete
		}
	default:
		// Chmod and metadata-only events carry no content change.
		return
	}
	pending[ev.Name] = kind
}

// addRecursive installs a watch on dir and every non-hidden directory
// beneath it, queueing the regular files it passes as updates so a
// directory moved into a root is indexed without waiting for writes.
func (w *Watcher) addRecursive(fw *fsnotify.Watcher, dir string, pending map[string]pendingKind) error {
	includeHidden := w.s.cfg.Scan.IncludeHidden
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != dir && isHidden(d.Name()) && !includeHidden {
				return fs.SkipDir
			}
			if err := fw.Add(path); err != nil {
				debug.Warn("watch", "add %s: %v", path, err)
			}
			return nil
		}
		if d.Type().IsRegular() {
			pending[path] = pendingUpdate
		}
		return nil
	})
}

// flush applies one debounced batch: each surviving path becomes a
// single-file submission (update) or a delete-paths submission.
// Per-directory config is resolved fresh on every flush — watch events
// are infrequent, and a long-lived cache would go stale as ".index"
// and ".noindex" files themselves change.
func (w *Watcher) flush(pending map[string]pendingKind, roots []watchedRoot) {
	paths := make([]string, 0, len(pending))
	for path := range pending {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	for _, absPath := range paths {
		// Composite paths are archive members managed server-side, not
		// filesystem paths.
		if strings.Contains(absPath, "::") {
			continue
		}
		owner := findRoot(absPath, roots)
		if owner == nil {
			continue
		}
		rel := pathutil.ToRelative(absPath, owner.root)

		resolver := config.NewDirResolver(w.s.cfg.ScanConfig(), w.s.cfg.Scan.NoIndexFile, w.s.cfg.Scan.IndexFile)
		dir := filepath.Dir(absPath)
		if inNoIndexSubtree(resolver, owner.root, dir) {
			debug.Log("watch", "skip %s (.noindex subtree)", rel)
			continue
		}
		cfg := resolver.Resolve(owner.root, dir)
		if hasHiddenComponent(rel) && !cfg.IncludeHidden {
			continue
		}
		if base := filepath.Base(absPath); base == w.s.cfg.Scan.NoIndexFile || base == w.s.cfg.Scan.IndexFile {
			continue
		}
		if excludesFile(cfg.ExcludeGlobs, rel) {
			continue
		}

		switch pending[absPath] {
		case pendingDelete:
			if err := w.submitDelete(owner.src, rel); err != nil {
				debug.Warn("watch", "delete %s: %v", rel, err)
			}
		case pendingUpdate:
			if err := w.submitUpdate(owner.src, absPath, rel, cfg); err != nil {
				debug.Warn("watch", "update %s: %v", rel, err)
			}
		}
	}
}

// findRoot returns the most specific (longest) root containing path.
func findRoot(path string, roots []watchedRoot) *watchedRoot {
	var best *watchedRoot
	for i := range roots {
		r := &roots[i]
		if path != r.root && !strings.HasPrefix(path, r.root+string(filepath.Separator)) {
			continue
		}
		if best == nil || len(r.root) > len(best.root) {
			best = r
		}
	}
	return best
}

// inNoIndexSubtree walks the ancestor chain from root down to dir
// checking each directory for the ".noindex" marker.
func inNoIndexSubtree(resolver *config.DirResolver, root, dir string) bool {
	cur := dir
	for {
		if !strings.HasPrefix(cur, root) {
			return false
		}
		if resolver.HasNoIndex(cur) {
			return true
		}
		if cur == root {
			return false
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return false
		}
		cur = parent
	}
}

func hasHiddenComponent(rel string) bool {
	for _, part := range strings.Split(rel, "/") {
		if isHidden(part) {
			return true
		}
	}
	return false
}

func (w *Watcher) submitUpdate(src config.Source, absPath, rel string, cfg types.ScanConfig) error {
	info, err := os.Stat(absPath)
	if err != nil || !info.Mode().IsRegular() {
		// Gone again or not a plain file: nothing to submit.
		return nil
	}
	debug.Log("watch", "update %s/%s", src.Name, rel)
	b := newBatcher(src, w.s.cfg.Scan, w.s.client)
	wf := walkedFile{
		absPath: absPath,
		relPath: rel,
		mtime:   info.ModTime().Unix(),
		size:    info.Size(),
		cfg:     cfg,
	}
	if err := w.s.scanFile(b, wf); err != nil {
		return err
	}
	return b.flush(nil, nil)
}

func (w *Watcher) submitDelete(src config.Source, rel string) error {
	debug.Log("watch", "delete %s/%s", src.Name, rel)
	b := newBatcher(src, w.s.cfg.Scan, w.s.client)
	return b.flush([]string{rel}, nil)
}
