package model

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "imap.gmail.com", cfg.IMAP.Host)
	assert.Equal(t, "993", cfg.IMAP.Port)
	assert.Equal(t, "https://gmail.googleapis.com/gmail/v1", cfg.GmailAPI.BaseURL)
	assert.True(t, cfg.Scan.UsePersistence)
	assert.Equal(t, 60, cfg.Rescan.IntervalMinutes)
}

func TestLoadConfigOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  addr: ":9090"
  log_format: text
imap:
  host: imap.example.com
rescan:
  interval_minutes: 15
`), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, "text", cfg.Server.LogFormat)
	assert.Equal(t, "imap.example.com", cfg.IMAP.Host)
	// Untouched keys keep their defaults.
	assert.Equal(t, "993", cfg.IMAP.Port)
	assert.Equal(t, 15, cfg.Rescan.IntervalMinutes)
}

func TestSaveConfigRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")

	cfg := defaultAppConfig()
	cfg.Server.Addr = ":7070"
	cfg.Database.Path = "/tmp/test.db"
	require.NoError(t, SaveConfig(path, cfg))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, ":7070", loaded.Server.Addr)
	assert.Equal(t, "/tmp/test.db", loaded.Database.Path)
}
