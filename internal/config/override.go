package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/corpusd/corpusd/internal/types"
)

// Override is the schema of a ".index" control file: additional
// exclude globs, a hidden-file toggle, and per-directory adjustments
// to archive recursion depth and max file size.
type Override struct {
	Exclude           []string `toml:"exclude"`
	IncludeHidden     *bool    `toml:"include_hidden"`
	MaxRecursionDepth *int     `toml:"max_recursion_depth"`
	MaxFileSize       *int64   `toml:"max_file_size"`
}

// DirResolver memoises, per directory, the ScanConfig obtained by
// composing the global config with any ".index" files found walking
// from a root down to that directory. It does not track pruning:
// HasNoIndex only reports whether one directory holds a ".noindex"
// marker, and skipping that subtree is left to the caller.
type DirResolver struct {
	base        types.ScanConfig
	noIndexFile string
	indexFile   string
	cache       map[string]types.ScanConfig
}

func NewDirResolver(base types.ScanConfig, noIndexFile, indexFile string) *DirResolver {
	if noIndexFile == "" {
		noIndexFile = ".noindex"
	}
	if indexFile == "" {
		indexFile = ".index"
	}
	return &DirResolver{
		base:        base,
		noIndexFile: noIndexFile,
		indexFile:   indexFile,
		cache:       make(map[string]types.ScanConfig),
	}
}

// IndexFileName returns the configured name of the per-directory
// override file.
func (r *DirResolver) IndexFileName() string { return r.indexFile }

// HasNoIndex reports whether dir directly contains a ".noindex" marker.
func (r *DirResolver) HasNoIndex(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, r.noIndexFile))
	return err == nil
}

// Resolve returns the effective ScanConfig for dir, composing the
// global config with every ".index" file from root down to dir,
// memoised by directory so repeated files in the same directory are
// cheap.
func (r *DirResolver) Resolve(root, dir string) types.ScanConfig {
	if cfg, ok := r.cache[dir]; ok {
		return cfg
	}

	rel, err := filepath.Rel(root, dir)
	if err != nil || rel == "." {
		rel = ""
	}
	segments := []string{}
	if rel != "" {
		segments = strings.Split(rel, string(filepath.Separator))
	}

	cfg := r.base
	cur := root
	cfg = applyOverride(cfg, cur, r.indexFile)
	for _, seg := range segments {
		cur = filepath.Join(cur, seg)
		cfg = applyOverride(cfg, cur, r.indexFile)
	}

	r.cache[dir] = cfg
	return cfg
}

func applyOverride(cfg types.ScanConfig, dir, indexFile string) types.ScanConfig {
	data, err := os.ReadFile(filepath.Join(dir, indexFile))
	if err != nil {
		return cfg
	}
	var ov Override
	if err := toml.Unmarshal(data, &ov); err != nil {
		return cfg
	}
	if len(ov.Exclude) > 0 {
		cfg.ExcludeGlobs = append(append([]string{}, cfg.ExcludeGlobs...), ov.Exclude...)
	}
	if ov.IncludeHidden != nil {
		cfg.IncludeHidden = *ov.IncludeHidden
	}
	if ov.MaxRecursionDepth != nil {
		cfg.MaxRecursionDepth = *ov.MaxRecursionDepth
	}
	if ov.MaxFileSize != nil {
		cfg.MaxFileSize = *ov.MaxFileSize
	}
	return cfg
}
