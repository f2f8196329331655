package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. ASSETLOADER_LOADER_CHUNK_SIZE_BYTES
const EnvPrefix = "ASSETLOADER"

// DefaultDatabasePath is where load history lives unless database.path is set.
// It must stay outside cache.root_dir.
const DefaultDatabasePath = "./data/assetloader.db"

// Config represents the entire application configuration
type Config struct {
	Loader      LoaderConfig      `mapstructure:"loader"`
	Cache       CacheConfig       `mapstructure:"cache"`
	HTTP        HTTPConfig        `mapstructure:"http"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Maintenance MaintenanceConfig `mapstructure:"maintenance"`
}

// LoaderConfig contains chunked loader and transport settings
type LoaderConfig struct {
	ChunkSizeBytes        int64  `mapstructure:"chunk_size_bytes"`
	BaseURL               string `mapstructure:"base_url"`
	UserAgent             string `mapstructure:"user_agent"`
	BearerToken           string `mapstructure:"bearer_token"`
	SkipTLSVerify         bool   `mapstructure:"skip_tls_verify"`
	MaxIdleConnsPerHost   int    `mapstructure:"max_idle_conns_per_host"`
	ResponseHeaderTimeout string `mapstructure:"response_header_timeout"`
	RequestTimeout        string `mapstructure:"request_timeout"`
	ProgressLogInterval   string `mapstructure:"progress_log_interval"`
}

// CacheConfig contains asset cache settings
type CacheConfig struct {
	RootDir             string `mapstructure:"root_dir"`
	MaxSizeMB           int64  `mapstructure:"max_size_mb"`
	MaxDiskUsagePercent int    `mapstructure:"max_disk_usage_percent"`
	EvictOldest         bool   `mapstructure:"evict_oldest"`
	EvictionInterval    string `mapstructure:"eviction_interval"`
	BufferSizeMB        int    `mapstructure:"buffer_size_mb"`
	TempFileMaxAge      string `mapstructure:"temp_file_max_age"`
}

// HTTPConfig contains HTTP server configuration
type HTTPConfig struct {
	BindAddr     string `mapstructure:"bind_addr"`
	ReadTimeout  string `mapstructure:"read_timeout"`
	WriteTimeout string `mapstructure:"write_timeout"`
	IdleTimeout  string `mapstructure:"idle_timeout"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DatabaseConfig contains database settings
type DatabaseConfig struct {
	Path          string `mapstructure:"path"`
	HistoryMaxAge string `mapstructure:"history_max_age"`
}

// MaintenanceConfig contains periodic cleanup settings
type MaintenanceConfig struct {
	CleanupInterval string `mapstructure:"cleanup_interval"`
}

// LoadDotEnv loads environment variables from the given files.
// Missing files are skipped; variables already set are kept.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if p == "" {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load env file %s: %w", p, err)
		}
	}
	return nil
}

// Load loads configuration from the specified file path. An empty path uses
// defaults and environment overrides only.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")

		// Read config file
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("loader.chunk_size_bytes", 1024*1024)
	v.SetDefault("loader.base_url", "")
	v.SetDefault("loader.user_agent", "assetloader/1.0")
	v.SetDefault("loader.bearer_token", "")
	v.SetDefault("loader.skip_tls_verify", false)
	v.SetDefault("loader.max_idle_conns_per_host", 10)
	v.SetDefault("loader.response_header_timeout", "30s")
	v.SetDefault("loader.request_timeout", "0s")
	v.SetDefault("loader.progress_log_interval", "2s")
	v.SetDefault("cache.root_dir", "./assets")
	v.SetDefault("cache.max_size_mb", 0)
	v.SetDefault("cache.max_disk_usage_percent", 0)
	v.SetDefault("cache.evict_oldest", false)
	v.SetDefault("cache.eviction_interval", "30s")
	v.SetDefault("cache.buffer_size_mb", 1)
	v.SetDefault("cache.temp_file_max_age", "24h")
	v.SetDefault("http.bind_addr", "127.0.0.1:8080")
	v.SetDefault("http.read_timeout", "30s")
	v.SetDefault("http.write_timeout", "30s")
	v.SetDefault("http.idle_timeout", "60s")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("database.path", DefaultDatabasePath)
	v.SetDefault("database.history_max_age", "720h")
	v.SetDefault("maintenance.cleanup_interval", "1h")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	// Validate loader config
	if c.Loader.ChunkSizeBytes <= 0 {
		return fmt.Errorf("loader.chunk_size_bytes must be positive")
	}
	if c.Loader.MaxIdleConnsPerHost < 0 {
		return fmt.Errorf("loader.max_idle_conns_per_host must not be negative")
	}

	// Validate cache config
	if c.Cache.RootDir == "" {
		return fmt.Errorf("cache.root_dir is required")
	}
	inside, err := within(c.Cache.RootDir, c.DatabasePath())
	if err != nil {
		return fmt.Errorf("invalid database.path: %w", err)
	}
	if inside {
		return fmt.Errorf("database.path %s must be outside cache.root_dir %s", c.DatabasePath(), c.Cache.RootDir)
	}
	if c.Cache.MaxSizeMB < 0 {
		return fmt.Errorf("cache.max_size_mb must not be negative")
	}
	if c.Cache.MaxDiskUsagePercent < 0 || c.Cache.MaxDiskUsagePercent > 100 {
		return fmt.Errorf("cache.max_disk_usage_percent must be between 0 and 100")
	}
	if c.Cache.BufferSizeMB < 0 {
		return fmt.Errorf("cache.buffer_size_mb must not be negative")
	}

	// Validate durations
	durations := []struct {
		key   string
		value string
	}{
		{"loader.response_header_timeout", c.Loader.ResponseHeaderTimeout},
		{"loader.request_timeout", c.Loader.RequestTimeout},
		{"loader.progress_log_interval", c.Loader.ProgressLogInterval},
		{"cache.eviction_interval", c.Cache.EvictionInterval},
		{"cache.temp_file_max_age", c.Cache.TempFileMaxAge},
		{"http.read_timeout", c.HTTP.ReadTimeout},
		{"http.write_timeout", c.HTTP.WriteTimeout},
		{"http.idle_timeout", c.HTTP.IdleTimeout},
		{"database.history_max_age", c.Database.HistoryMaxAge},
		{"maintenance.cleanup_interval", c.Maintenance.CleanupInterval},
	}
	for _, d := range durations {
		parsed, err := time.ParseDuration(d.value)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", d.key, err)
		}
		if parsed < 0 {
			return fmt.Errorf("%s must not be negative", d.key)
		}
	}

	// Validate logging config
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		// Valid levels
	default:
		return fmt.Errorf("invalid logging.level: %s", c.Logging.Level)
	}

	switch c.Logging.Format {
	case "json", "text":
		// Valid formats
	default:
		return fmt.Errorf("invalid logging.format: %s", c.Logging.Format)
	}

	return nil
}

// GetResponseHeaderTimeout returns the response header timeout as time.Duration
func (c *LoaderConfig) GetResponseHeaderTimeout() time.Duration {
	d, _ := time.ParseDuration(c.ResponseHeaderTimeout)
	if d == 0 {
		return 30 * time.Second
	}
	return d
}

// GetRequestTimeout returns the whole-request timeout; 0 means none
func (c *LoaderConfig) GetRequestTimeout() time.Duration {
	d, _ := time.ParseDuration(c.RequestTimeout)
	return d
}

// GetProgressLogInterval returns the per-load progress log interval
func (c *LoaderConfig) GetProgressLogInterval() time.Duration {
	d, _ := time.ParseDuration(c.ProgressLogInterval)
	if d == 0 {
		return 2 * time.Second
	}
	return d
}

// GetBufferSize returns the buffer size in bytes
func (c *CacheConfig) GetBufferSize() int {
	if c.BufferSizeMB <= 0 {
		return 1024 * 1024 // 1MB default
	}
	return c.BufferSizeMB * 1024 * 1024
}

// GetMaxSizeBytes returns the cache size limit in bytes; 0 means unlimited
func (c *CacheConfig) GetMaxSizeBytes() int64 {
	return c.MaxSizeMB * 1024 * 1024
}

// GetEvictionInterval returns the minimum time between evictions
func (c *CacheConfig) GetEvictionInterval() time.Duration {
	d, _ := time.ParseDuration(c.EvictionInterval)
	if d == 0 {
		return 30 * time.Second
	}
	return d
}

// GetTempFileMaxAge returns the temp file max age as time.Duration
func (c *CacheConfig) GetTempFileMaxAge() time.Duration {
	d, _ := time.ParseDuration(c.TempFileMaxAge)
	if d == 0 {
		return 24 * time.Hour
	}
	return d
}

// GetReadTimeout returns the read timeout as time.Duration
func (c *HTTPConfig) GetReadTimeout() time.Duration {
	d, _ := time.ParseDuration(c.ReadTimeout)
	if d == 0 {
		return 30 * time.Second
	}
	return d
}

// GetWriteTimeout returns the write timeout as time.Duration
func (c *HTTPConfig) GetWriteTimeout() time.Duration {
	d, _ := time.ParseDuration(c.WriteTimeout)
	if d == 0 {
		return 30 * time.Second
	}
	return d
}

// GetIdleTimeout returns the idle timeout as time.Duration
func (c *HTTPConfig) GetIdleTimeout() time.Duration {
	d, _ := time.ParseDuration(c.IdleTimeout)
	if d == 0 {
		return 60 * time.Second
	}
	return d
}

// GetHistoryMaxAge returns the load history retention as time.Duration
func (c *DatabaseConfig) GetHistoryMaxAge() time.Duration {
	d, _ := time.ParseDuration(c.HistoryMaxAge)
	if d == 0 {
		return 30 * 24 * time.Hour
	}
	return d
}

// GetCleanupInterval returns the cleanup interval as time.Duration
func (c *MaintenanceConfig) GetCleanupInterval() time.Duration {
	d, _ := time.ParseDuration(c.CleanupInterval)
	if d == 0 {
		return time.Hour
	}
	return d
}

// DatabasePath returns the database path
func (c *Config) DatabasePath() string {
	if c.Database.Path != "" {
		return c.Database.Path
	}
	return DefaultDatabasePath
}

// within reports whether path is root or lies below it
func within(root, path string) (bool, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return false, err
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return false, err
	}
	rel, err := filepath.Rel(absRoot, absPath)
	if err != nil {
		return false, nil
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))), nil
}
