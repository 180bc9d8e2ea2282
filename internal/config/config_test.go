package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 100, cfg.Capture.SettleMS)
	assert.Empty(t, cfg.Capture.DenylistDomains)
	assert.Empty(t, cfg.Capture.DenylistRegex)
	assert.Equal(t, "127.0.0.1", cfg.Daemon.Host)
	assert.Equal(t, 8126, cfg.Daemon.Port)
	assert.Empty(t, cfg.Daemon.AuthToken)
	assert.Equal(t, 1048576, cfg.Daemon.MaxRequestSize)
	assert.Equal(t, []string{"*"}, cfg.Daemon.AllowedOrigins)
	assert.Equal(t, "~/.config/codeweaver/auditrec", cfg.Storage.Path)
	assert.Equal(t, "auditrec.db", cfg.Storage.SQLiteFile)
	assert.Equal(t, "wal", cfg.Storage.SQLiteJournalMode)
	assert.Equal(t, 30, cfg.Retention.Days)
	assert.Equal(t, 24, cfg.Retention.PruneIntervalHours)
	assert.False(t, cfg.Relay.Enabled)
	assert.Equal(t, "localhost:6379", cfg.Relay.RedisAddr)
	assert.Equal(t, "auditrec.messages", cfg.Relay.Channel)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.True(t, cfg.Logging.RedactText)
}

func TestLoadValidYAMLOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")

	yamlContent := `
capture:
  settle_ms: 250
daemon:
  port: 9999
  auth_token: "local-secret"
retention:
  days: 90
  prune_interval_hours: 12
logging:
  level: "debug"
`
	err := os.WriteFile(cfgPath, []byte(yamlContent), 0644)
	require.NoError(t, err)

	cfg, err := Load(cfgPath)
	require.NoError(t, err)

	// Overridden values
	assert.Equal(t, 250, cfg.Capture.SettleMS)
	assert.Equal(t, 9999, cfg.Daemon.Port)
	assert.Equal(t, "local-secret", cfg.Daemon.AuthToken)
	assert.Equal(t, 90, cfg.Retention.Days)
	assert.Equal(t, 12, cfg.Retention.PruneIntervalHours)
	assert.Equal(t, "debug", cfg.Logging.Level)

	// Non-overridden values remain defaults
	assert.Equal(t, "127.0.0.1", cfg.Daemon.Host)
	assert.Equal(t, "~/.config/codeweaver/auditrec", cfg.Storage.Path)
	assert.False(t, cfg.Relay.Enabled)
}

func TestLoadClampsNonPositiveSettle(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")

	yamlContent := `
capture:
  settle_ms: -5
`
	err := os.WriteFile(cfgPath, []byte(yamlContent), 0644)
	require.NoError(t, err)

	cfg, err := Load(cfgPath)
	require.NoError(t, err)
	assert.Equal(t, 100, cfg.Capture.SettleMS)
}

func TestLoadInvalidYAMLReturnsError(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")

	err := os.WriteFile(cfgPath, []byte(":::not valid yaml{{{"), 0644)
	require.NoError(t, err)

	_, err = Load(cfgPath)
	assert.Error(t, err)
}

func TestLoadNonExistentFileReturnsError(t *testing.T) {
	_, err := Load("/tmp/nonexistent_path_12345/config.yaml")
	assert.Error(t, err)
}

func TestLoadOrCreateCreatesDefaultsWhenMissing(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "sub", "deep", "config.yaml")

	cfg, err := LoadOrCreateAt(cfgPath)
	require.NoError(t, err)

	// Should return defaults
	assert.Equal(t, 100, cfg.Capture.SettleMS)
	assert.Equal(t, "127.0.0.1", cfg.Daemon.Host)
	assert.Equal(t, 30, cfg.Retention.Days)

	// File should now exist on disk
	_, statErr := os.Stat(cfgPath)
	assert.NoError(t, statErr)

	// File should be valid YAML loadable again
	cfg2, err := Load(cfgPath)
	require.NoError(t, err)
	assert.Equal(t, cfg.Daemon.Port, cfg2.Daemon.Port)
}

func TestLoadOrCreateLoadsExistingFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")

	yamlContent := `
retention:
  days: 7
`
	err := os.WriteFile(cfgPath, []byte(yamlContent), 0644)
	require.NoError(t, err)

	cfg, err := LoadOrCreateAt(cfgPath)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Retention.Days)
	// Other fields remain defaults
	assert.Equal(t, 8126, cfg.Daemon.Port)
}

func TestLoadPartialYAMLMergesWithDefaults(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")

	// Only override one nested section
	yamlContent := `
relay:
  enabled: true
  channel: "audit.live"
`
	err := os.WriteFile(cfgPath, []byte(yamlContent), 0644)
	require.NoError(t, err)

	cfg, err := Load(cfgPath)
	require.NoError(t, err)

	assert.True(t, cfg.Relay.Enabled)
	assert.Equal(t, "audit.live", cfg.Relay.Channel)
	// Other relay fields remain default
	assert.Equal(t, "localhost:6379", cfg.Relay.RedisAddr)
}

func TestLoadWithDenylistDomains(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")

	yamlContent := `
capture:
  denylist_domains:
    - "example.com"
    - "secret.org"
  denylist_regex:
    - ".*\\.internal\\..*"
`
	err := os.WriteFile(cfgPath, []byte(yamlContent), 0644)
	require.NoError(t, err)

	cfg, err := Load(cfgPath)
	require.NoError(t, err)
	assert.Equal(t, []string{"example.com", "secret.org"}, cfg.Capture.DenylistDomains)
	assert.Equal(t, []string{".*\\.internal\\..*"}, cfg.Capture.DenylistRegex)
}

func TestDatabasePath(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Storage.Path = "/var/lib/auditrec"
	cfg.Storage.SQLiteFile = "audit.db"

	path, err := cfg.DatabasePath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/var/lib/auditrec", "audit.db"), path)
}

func TestDatabasePathExpandsHome(t *testing.T) {
	cfg := DefaultConfig()

	path, err := cfg.DatabasePath()
	require.NoError(t, err)

	home, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".config/codeweaver/auditrec", "auditrec.db"), path)
}

func TestDaemonAddress(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "127.0.0.1:8126", cfg.DaemonAddress())

	cfg.Daemon.Host = "0.0.0.0"
	cfg.Daemon.Port = 9000
	assert.Equal(t, "0.0.0.0:9000", cfg.DaemonAddress())
}
