package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/itemupdate/internal/config"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "itemupdate.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, "itemupdate.db", cfg.Store.Path)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, "http://hdl.handle.net/", cfg.Archive.HandlePrefix)
	assert.Empty(t, cfg.Archive.ItemField)
	assert.Empty(t, cfg.EPerson)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
store:
  path: /var/lib/itemupdate/repo.db
  asset_dir: /var/lib/itemupdate/assets
log:
  level: debug
archive:
  item_field: dc.identifier.other
eperson: curator@example.org
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/itemupdate/repo.db", cfg.Store.Path)
	assert.Equal(t, "/var/lib/itemupdate/assets", cfg.Store.AssetDir)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, "dc.identifier.other", cfg.Archive.ItemField)
	assert.Equal(t, "curator@example.org", cfg.EPerson)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "log:\n  level: debug\n")
	t.Setenv("ITEMUPDATE_LOG_LEVEL", "warn")
	t.Setenv("ITEMUPDATE_STORE_ASSET_DIR", "/tmp/assets")
	t.Setenv("ITEMUPDATE_ARCHIVE_HANDLE_PREFIX", "https://hdl.example.org/")

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "/tmp/assets", cfg.Store.AssetDir)
	assert.Equal(t, "https://hdl.example.org/", cfg.Archive.HandlePrefix)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "absent.yaml")
}

func TestLoad_InvalidValues(t *testing.T) {
	path := writeConfig(t, `
log:
  level: loud
  format: xml
archive:
  item_field: "dc"
`)

	_, err := config.Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "log.level")
	assert.Contains(t, err.Error(), "log.format")
	assert.Contains(t, err.Error(), "archive.item_field")
}

func TestValidate_HandlePrefixRequiredWithoutItemField(t *testing.T) {
	cfg := config.Config{
		Store: config.StoreConfig{Path: "repo.db"},
		Log:   config.LogConfig{Level: "info", Format: "text"},
	}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "archive.handle_prefix")

	cfg.Archive.ItemField = "dc.identifier.other"
	assert.NoError(t, cfg.Validate())
}
