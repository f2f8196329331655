package port

import (
	"io"
	"os"
	"time"
)

// DiskUsage represents disk usage statistics
type DiskUsage struct {
	Total   uint64  `json:"total"`    // Total disk space in bytes
	Used    uint64  `json:"used"`     // Used disk space in bytes
	Free    uint64  `json:"free"`     // Free disk space in bytes
	UsedPct float64 `json:"used_pct"` // Used percentage (0-100)
}

// AssetInfo describes one cached asset
type AssetInfo struct {
	Name    string    `json:"name"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}

// AssetStore defines the interface for the on-disk asset cache
type AssetStore interface {
	// RootDir returns the cache root directory
	RootDir() string

	// AssetPath returns the local path for an asset name
	AssetPath(name string) (string, error)

	// WriteAsset writes content through a temp file and renames it into place
	// Returns: asset path, bytes written, error
	WriteAsset(name string, reader io.Reader) (string, int64, error)

	// OpenAsset opens a cached asset for reading
	OpenAsset(name string) (*os.File, os.FileInfo, error)

	// DeleteAsset removes a cached asset
	DeleteAsset(name string) error

	// ListAssets returns every cached asset, sorted by name
	ListAssets() ([]AssetInfo, error)

	// GetCacheSize returns total size of cached assets
	GetCacheSize() (int64, error)

	// GetDiskUsage returns disk usage statistics
	GetDiskUsage() (*DiskUsage, error)

	// CleanOldTempFiles removes temp files older than the specified duration
	// Returns the number of files deleted
	CleanOldTempFiles(olderThan time.Duration) (int, error)
}
