// Package config loads the scanner's global configuration and the
// per-directory ".index"/".noindex" override files, all TOML.
package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"

	"github.com/corpusd/corpusd/internal/types"
)

// Source describes one named, independently indexed collection.
type Source struct {
	Name    string   `toml:"name"`
	Roots   []string `toml:"roots"`
	BaseURL string   `toml:"base_url"`
}

// Scan holds the global scan configuration shared by every source
// before per-directory overrides are applied.
type Scan struct {
	MaxFileSize       int64    `toml:"max_file_size"`
	MaxRecursionDepth int      `toml:"max_recursion_depth"`
	MaxLineLength     int      `toml:"max_line_length"`
	IncludeHidden     bool     `toml:"include_hidden"`
	FollowSymlinks    bool     `toml:"follow_symlinks"`
	ExcludeGlobs      []string `toml:"exclude_globs"`
	NoIndexFile       string   `toml:"noindex_file"`
	IndexFile         string   `toml:"index_file"`
	BatchMaxFiles     int      `toml:"batch_max_files"`
	BatchMaxBytes     int64    `toml:"batch_max_bytes"`
}

// Watch holds the continuous watch mode's settings.
type Watch struct {
	DebounceMS int `toml:"debounce_ms"`
}

// Server holds the server-side configuration: where the data
// directory lives and what the inbox worker's tick interval is.
type Server struct {
	DataDir          string `toml:"data_dir"`
	InboxIntervalSec int    `toml:"inbox_interval_sec"`
	BearerToken      string `toml:"bearer_token"`
	ListenAddr       string `toml:"listen_addr"`
	RotationBytes    int64  `toml:"rotation_bytes"`
}

// Config is the top-level configuration document.
type Config struct {
	Sources []Source `toml:"source"`
	Scan    Scan     `toml:"scan"`
	Watch   Watch    `toml:"watch"`
	Server  Server   `toml:"server"`
}

// Default returns the stock configuration.
func Default() *Config {
	return &Config{
		Scan: Scan{
			MaxFileSize:       64 << 20,
			MaxRecursionDepth: 6,
			MaxLineLength:     4096,
			NoIndexFile:       ".noindex",
			IndexFile:         ".index",
			BatchMaxFiles:     200,
			BatchMaxBytes:     8 << 20,
		},
		Watch: Watch{
			DebounceMS: 500,
		},
		Server: Server{
			DataDir:          "./data",
			InboxIntervalSec: 1,
			ListenAddr:       ":8099",
			RotationBytes:    10 << 20,
		},
	}
}

// Load reads and parses a TOML config file, filling in defaults for
// anything left unset.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	loaded := &Config{}
	if err := toml.Unmarshal(data, loaded); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	mergeInto(cfg, loaded)
	return cfg, nil
}

func mergeInto(dst, src *Config) {
	if len(src.Sources) > 0 {
		dst.Sources = src.Sources
	}
	if src.Scan.MaxFileSize > 0 {
		dst.Scan.MaxFileSize = src.Scan.MaxFileSize
	}
	if src.Scan.MaxRecursionDepth > 0 {
		dst.Scan.MaxRecursionDepth = src.Scan.MaxRecursionDepth
	}
	if src.Scan.MaxLineLength > 0 {
		dst.Scan.MaxLineLength = src.Scan.MaxLineLength
	}
	if src.Scan.NoIndexFile != "" {
		dst.Scan.NoIndexFile = src.Scan.NoIndexFile
	}
	if src.Scan.IndexFile != "" {
		dst.Scan.IndexFile = src.Scan.IndexFile
	}
	if src.Scan.BatchMaxFiles > 0 {
		dst.Scan.BatchMaxFiles = src.Scan.BatchMaxFiles
	}
	if src.Scan.BatchMaxBytes > 0 {
		dst.Scan.BatchMaxBytes = src.Scan.BatchMaxBytes
	}
	dst.Scan.IncludeHidden = src.Scan.IncludeHidden
	dst.Scan.FollowSymlinks = src.Scan.FollowSymlinks
	if src.Watch.DebounceMS > 0 {
		dst.Watch.DebounceMS = src.Watch.DebounceMS
	}
	if len(src.Scan.ExcludeGlobs) > 0 {
		dst.Scan.ExcludeGlobs = src.Scan.ExcludeGlobs
	}
	if src.Server.DataDir != "" {
		dst.Server.DataDir = src.Server.DataDir
	}
	if src.Server.InboxIntervalSec > 0 {
		dst.Server.InboxIntervalSec = src.Server.InboxIntervalSec
	}
	if src.Server.ListenAddr != "" {
		dst.Server.ListenAddr = src.Server.ListenAddr
	}
	if src.Server.RotationBytes > 0 {
		dst.Server.RotationBytes = src.Server.RotationBytes
	}
	if src.Server.BearerToken != "" {
		dst.Server.BearerToken = src.Server.BearerToken
	}
}

// ScanConfig converts the global Scan section into a types.ScanConfig
// for the scanner/extractor registry to consume.
func (c *Config) ScanConfig() types.ScanConfig {
	return types.ScanConfig{
		MaxFileSize:       c.Scan.MaxFileSize,
		MaxRecursionDepth: c.Scan.MaxRecursionDepth,
		MaxLineLength:     c.Scan.MaxLineLength,
		IncludeHidden:     c.Scan.IncludeHidden,
		FollowSymlinks:    c.Scan.FollowSymlinks,
		ExcludeGlobs:      c.Scan.ExcludeGlobs,
	}
}
