package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, int64(1024*1024), cfg.Loader.ChunkSizeBytes)
	assert.Equal(t, "./assets", cfg.Cache.RootDir)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, 30*time.Second, cfg.Loader.GetResponseHeaderTimeout())
	assert.Zero(t, cfg.Loader.GetRequestTimeout())
	assert.Equal(t, 30*24*time.Hour, cfg.Database.GetHistoryMaxAge())
	assert.Equal(t, time.Hour, cfg.Maintenance.GetCleanupInterval())
	assert.Equal(t, "./data/assetloader.db", cfg.DatabasePath())
}

func TestLoad_File(t *testing.T) {
	path := writeFile(t, "config.yaml", `
loader:
  chunk_size_bytes: 4096
  base_url: https://books.example
  user_agent: reader/2
cache:
  root_dir: /tmp/assets
  max_size_mb: 512
  max_disk_usage_percent: 90
  temp_file_max_age: 2h
http:
  bind_addr: 0.0.0.0:9000
  write_timeout: 5m
logging:
  level: debug
  format: json
database:
  path: /tmp/loads.db
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, int64(4096), cfg.Loader.ChunkSizeBytes)
	assert.Equal(t, "https://books.example", cfg.Loader.BaseURL)
	assert.Equal(t, "reader/2", cfg.Loader.UserAgent)
	assert.Equal(t, int64(512*1024*1024), cfg.Cache.GetMaxSizeBytes())
	assert.Equal(t, 90, cfg.Cache.MaxDiskUsagePercent)
	assert.Equal(t, 2*time.Hour, cfg.Cache.GetTempFileMaxAge())
	assert.Equal(t, "0.0.0.0:9000", cfg.HTTP.BindAddr)
	assert.Equal(t, 5*time.Minute, cfg.HTTP.GetWriteTimeout())
	assert.Equal(t, 60*time.Second, cfg.HTTP.GetIdleTimeout(), "unset keys keep defaults")
	assert.Equal(t, "/tmp/loads.db", cfg.DatabasePath())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("ASSETLOADER_LOADER_CHUNK_SIZE_BYTES", "2048")
	t.Setenv("ASSETLOADER_LOGGING_LEVEL", "warn")

	path := writeFile(t, "config.yaml", "loader:\n  chunk_size_bytes: 4096\n")
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, int64(2048), cfg.Loader.ChunkSizeBytes)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"zero chunk size", "loader:\n  chunk_size_bytes: 0\n"},
		{"negative chunk size", "loader:\n  chunk_size_bytes: -1\n"},
		{"negative max size", "cache:\n  max_size_mb: -1\n"},
		{"disk percent over 100", "cache:\n  max_disk_usage_percent: 101\n"},
		{"empty root", "cache:\n  root_dir: \"\"\n"},
		{"bad duration", "http:\n  read_timeout: soon\n"},
		{"negative duration", "maintenance:\n  cleanup_interval: -1h\n"},
		{"bad level", "logging:\n  level: loud\n"},
		{"bad format", "logging:\n  format: xml\n"},
		{"database in cache root", "cache:\n  root_dir: /srv/assets\ndatabase:\n  path: /srv/assets/.assetloader.db\n"},
		{"database below cache root", "cache:\n  root_dir: ./assets\ndatabase:\n  path: assets/db/loads.db\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, "config.yaml", tt.content))
			assert.Error(t, err)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoad_DatabaseBesideCacheRoot(t *testing.T) {
	path := writeFile(t, "config.yaml", "cache:\n  root_dir: /srv/assets\ndatabase:\n  path: /srv/assets-history/loads.db\n")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/srv/assets-history/loads.db", cfg.DatabasePath())
}

func TestLoadDotEnv(t *testing.T) {
	const key = "ASSETLOADER_HTTP_BIND_ADDR"
	os.Unsetenv(key)
	t.Cleanup(func() { os.Unsetenv(key) })

	envPath := writeFile(t, ".env", key+"=127.0.0.1:7777\n")
	require.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), "absent.env"), envPath))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:7777", cfg.HTTP.BindAddr)
}

func TestLoadDotEnv_KeepsExisting(t *testing.T) {
	t.Setenv("ASSETLOADER_LOGGING_FORMAT", "json")

	envPath := writeFile(t, ".env", "ASSETLOADER_LOGGING_FORMAT=text\n")
	require.NoError(t, LoadDotEnv(envPath))
	assert.Equal(t, "json", os.Getenv("ASSETLOADER_LOGGING_FORMAT"))
}

func TestGetters_Fallbacks(t *testing.T) {
	var cfg Config
	assert.Equal(t, 30*time.Second, cfg.HTTP.GetReadTimeout())
	assert.Equal(t, 2*time.Second, cfg.Loader.GetProgressLogInterval())
	assert.Equal(t, 1024*1024, cfg.Cache.GetBufferSize())
	assert.Equal(t, 24*time.Hour, cfg.Cache.GetTempFileMaxAge())
	assert.Equal(t, 30*time.Second, cfg.Cache.GetEvictionInterval())
	assert.Zero(t, cfg.Cache.GetMaxSizeBytes())
}
