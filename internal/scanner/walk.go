package scanner

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/corpusd/corpusd/internal/config"
	"github.com/corpusd/corpusd/internal/debug"
	"github.com/corpusd/corpusd/internal/types"
	"github.com/corpusd/corpusd/pkg/pathutil"
)

// walkedFile is one regular file found by the walk phase, with the
// per-directory config already resolved for it.
type walkedFile struct {
	absPath string
	relPath string // slash-separated, relative to its root
	mtime   int64
	size    int64
	cfg     types.ScanConfig
}

// walker walks one source's roots applying the pruning rules: hidden
// directories, exclude globs, ".noindex" subtree removal (after full
// traversal, since markers can sit deep), and per-directory ".index"
// overrides.
type walker struct {
	resolver    *config.DirResolver
	noIndexFile string
	files       []walkedFile
	noIndexDirs []string
}

func newWalker(base types.ScanConfig, noIndexFile, indexFile string) *walker {
	if noIndexFile == "" {
		noIndexFile = ".noindex"
	}
	return &walker{
		resolver:    config.NewDirResolver(base, noIndexFile, indexFile),
		noIndexFile: noIndexFile,
	}
}

// walkRoots traverses each root and returns the surviving files.
func (w *walker) walkRoots(roots []string) ([]walkedFile, error) {
	for _, root := range roots {
		absRoot, err := filepath.Abs(root)
		if err != nil {
			return nil, err
		}
		if err := w.walkRoot(absRoot); err != nil {
			return nil, err
		}
	}
	return w.pruneNoIndex(), nil
}

func (w *walker) walkRoot(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			debug.Warn("scanner", "walk %s: %v", path, err)
			return nil
		}
		return w.visit(root, path, d)
	})
}

func (w *walker) visit(root, path string, d fs.DirEntry) error {
	rel := pathutil.ToRelative(path, root)
	if rel == "." {
		rel = ""
	}

	if d.IsDir() {
		if rel == "" {
			w.observeNoIndex(path)
			return nil
		}
		cfg := w.resolver.Resolve(root, filepath.Dir(path))
		if isHidden(d.Name()) && !cfg.IncludeHidden {
			return fs.SkipDir
		}
		if excludesDir(cfg.ExcludeGlobs, rel) {
			return fs.SkipDir
		}
		w.observeNoIndex(path)
		return nil
	}

	cfg := w.resolver.Resolve(root, filepath.Dir(path))

	if d.Type()&fs.ModeSymlink != 0 {
		if !cfg.FollowSymlinks {
			return nil
		}
		info, err := os.Stat(path)
		if err != nil {
			return nil
		}
		if info.IsDir() {
			// A followed directory symlink is walked in place, under
			// the same root so relative paths stay rooted correctly.
			return w.walkLinkedDir(root, path)
		}
		w.addFile(path, rel, info, cfg)
		return nil
	}

	if !d.Type().IsRegular() {
		return nil
	}
	if isHidden(d.Name()) && !cfg.IncludeHidden {
		return nil
	}
	if d.Name() == w.noIndexFile || d.Name() == w.resolver.IndexFileName() {
		return nil
	}
	if excludesFile(cfg.ExcludeGlobs, rel) {
		return nil
	}

	info, err := d.Info()
	if err != nil {
		return nil
	}
	w.addFile(path, rel, info, cfg)
	return nil
}

// walkLinkedDir descends through a followed directory symlink. Rel
// paths are computed against the link path, not the target, so the
// index stays inside the root's namespace.
func (w *walker) walkLinkedDir(root, linkPath string) error {
	entries, err := os.ReadDir(linkPath)
	if err != nil {
		return nil
	}
	for _, e := range entries {
		sub := filepath.Join(linkPath, e.Name())
		if e.IsDir() {
			cfg := w.resolver.Resolve(root, linkPath)
			if isHidden(e.Name()) && !cfg.IncludeHidden {
				continue
			}
			w.observeNoIndex(sub)
			if err := w.walkLinkedDir(root, sub); err != nil {
				return err
			}
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if err := w.visit(root, sub, fs.FileInfoToDirEntry(info)); err != nil {
			return err
		}
	}
	return nil
}

func (w *walker) addFile(path, rel string, info fs.FileInfo, cfg types.ScanConfig) {
	w.files = append(w.files, walkedFile{
		absPath: path,
		relPath: rel,
		mtime:   info.ModTime().Unix(),
		size:    info.Size(),
		cfg:     cfg,
	})
}

func (w *walker) observeNoIndex(dir string) {
	if w.resolver.HasNoIndex(dir) {
		w.noIndexDirs = append(w.noIndexDirs, dir)
	}
}

// pruneNoIndex drops every file under a directory that carried a
// ".noindex" marker. Pruning runs after the full traversal so a
// marker deep in the tree still removes its whole subtree.
func (w *walker) pruneNoIndex() []walkedFile {
	if len(w.noIndexDirs) == 0 {
		return w.files
	}
	kept := w.files[:0]
	for _, f := range w.files {
		pruned := false
		for _, dir := range w.noIndexDirs {
			if f.absPath == dir || strings.HasPrefix(f.absPath, dir+string(filepath.Separator)) {
				pruned = true
				break
			}
		}
		if !pruned {
			kept = append(kept, f)
		}
	}
	return kept
}

func isHidden(name string) bool {
	return strings.HasPrefix(name, ".") && name != "." && name != ".."
}

// excludesFile reports whether any exclude glob matches a file's
// root-relative path.
func excludesFile(globs []string, rel string) bool {
	for _, g := range globs {
		if ok, err := doublestar.Match(g, rel); err == nil && ok {
			return true
		}
	}
	return false
}

// excludesDir reports whether a directory should not be descended
// into: a pattern ending in "/**" additionally matches the directory
// entry itself.
func excludesDir(globs []string, rel string) bool {
	for _, g := range globs {
		if ok, err := doublestar.Match(g, rel); err == nil && ok {
			return true
		}
		if trimmed, found := strings.CutSuffix(g, "/**"); found {
			if ok, err := doublestar.Match(trimmed, rel); err == nil && ok {
				return true
			}
		}
	}
	return false
}
