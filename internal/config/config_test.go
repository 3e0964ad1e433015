package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMergesOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corpusd.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[[source]]
name = "docs"
roots = ["/tmp/docs"]
base_url = "https://files.test"

[scan]
max_file_size = 1048576
exclude_globs = ["node_modules/**"]

[server]
data_dir = "/var/lib/corpusd"
bearer_token = "secret"
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Len(t, cfg.Sources, 1)
	assert.Equal(t, "docs", cfg.Sources[0].Name)
	assert.Equal(t, "https://files.test", cfg.Sources[0].BaseURL)

	assert.Equal(t, int64(1048576), cfg.Scan.MaxFileSize)
	assert.Equal(t, []string{"node_modules/**"}, cfg.Scan.ExcludeGlobs)
	// Untouched fields keep their defaults.
	assert.Equal(t, 6, cfg.Scan.MaxRecursionDepth)
	assert.Equal(t, ".noindex", cfg.Scan.NoIndexFile)
	assert.Equal(t, 200, cfg.Scan.BatchMaxFiles)

	assert.Equal(t, "/var/lib/corpusd", cfg.Server.DataDir)
	assert.Equal(t, "secret", cfg.Server.BearerToken)
	assert.Equal(t, ":8099", cfg.Server.ListenAddr)
}

func TestLoadMissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.Error(t, err)
}

func TestLoadRejectsMalformedTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte("[scan\n"), 0o644))
	_, err := Load(path)
	require.Error(t, err)
}
