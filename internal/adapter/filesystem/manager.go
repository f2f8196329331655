package filesystem

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/inkpress/assetloader/internal/domain"
	"github.com/inkpress/assetloader/internal/port"
)

// tempSuffix marks assets that are still being written
const tempSuffix = ".downloading"

// reserved reports whether a root-relative path is not an asset: temp files
// and anything under a dot-prefixed segment (databases, journals, VCS dirs).
func reserved(rel string) bool {
	if strings.HasSuffix(rel, tempSuffix) {
		return true
	}
	for _, seg := range strings.Split(filepath.ToSlash(rel), "/") {
		if strings.HasPrefix(seg, ".") {
			return true
		}
	}
	return false
}

// Manager stores assembled assets under a root directory
type Manager struct {
	rootDir    string
	bufferSize int
}

// Ensure Manager implements port.AssetStore
var _ port.AssetStore = (*Manager)(nil)

// NewManager creates a new filesystem manager
func NewManager(rootDir string) (*Manager, error) {
	return NewManagerWithBufferSize(rootDir, 1024*1024) // 1MB default
}

// NewManagerWithBufferSize creates a new filesystem manager with custom buffer size
func NewManagerWithBufferSize(rootDir string, bufferSize int) (*Manager, error) {
	// Ensure root directory exists
	if err := os.MkdirAll(rootDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache root dir: %w", err)
	}

	if bufferSize <= 0 {
		bufferSize = 1024 * 1024
	}

	return &Manager{
		rootDir:    rootDir,
		bufferSize: bufferSize,
	}, nil
}

// RootDir returns the cache root directory
func (m *Manager) RootDir() string {
	return m.rootDir
}

// AssetPath returns the local path for an asset name. Names are slash
// separated, may not escape the root and may not contain dot-prefixed
// segments.
func (m *Manager) AssetPath(name string) (string, error) {
	clean := filepath.Clean("/" + filepath.FromSlash(name))
	rel := strings.TrimPrefix(clean, string(filepath.Separator))
	if rel == "" || rel == "." || reserved(rel) {
		return "", fmt.Errorf("%w: asset name %q", domain.ErrInvalidInput, name)
	}
	return filepath.Join(m.rootDir, rel), nil
}

// WriteAsset writes content to a temp file and renames it into place
func (m *Manager) WriteAsset(name string, reader io.Reader) (string, int64, error) {
	assetPath, err := m.AssetPath(name)
	if err != nil {
		return "", 0, err
	}

	// Ensure parent directory exists
	if err := os.MkdirAll(filepath.Dir(assetPath), 0755); err != nil {
		return "", 0, fmt.Errorf("failed to create parent dir: %w", err)
	}

	tempPath := assetPath + tempSuffix
	f, err := os.Create(tempPath)
	if err != nil {
		return "", 0, fmt.Errorf("failed to create temp file: %w", err)
	}

	buf := make([]byte, m.bufferSize)
	written, err := io.CopyBuffer(f, reader, buf)
	if err != nil {
		f.Close()
		os.Remove(tempPath)
		return "", 0, fmt.Errorf("failed to write file: %w", err)
	}

	if err := f.Close(); err != nil {
		os.Remove(tempPath)
		return "", 0, fmt.Errorf("failed to close file: %w", err)
	}

	// Rename to final path
	if err := os.Rename(tempPath, assetPath); err != nil {
		os.Remove(tempPath)
		return "", 0, fmt.Errorf("failed to rename temp file: %w", err)
	}

	return assetPath, written, nil
}

// OpenAsset opens a cached asset for reading.
// Returns domain.ErrNotFound if the asset does not exist.
func (m *Manager) OpenAsset(name string) (*os.File, os.FileInfo, error) {
	assetPath, err := m.AssetPath(name)
	if err != nil {
		return nil, nil, err
	}

	f, err := os.Open(assetPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, domain.ErrNotFound
		}
		return nil, nil, err
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	if info.IsDir() {
		f.Close()
		return nil, nil, domain.ErrNotFound
	}

	return f, info, nil
}

// DeleteAsset removes a cached asset
func (m *Manager) DeleteAsset(name string) error {
	assetPath, err := m.AssetPath(name)
	if err != nil {
		return err
	}
	if err := os.Remove(assetPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

// ListAssets returns every finished asset under the root, sorted by name
func (m *Manager) ListAssets() ([]port.AssetInfo, error) {
	var assets []port.AssetInfo

	err := filepath.Walk(m.rootDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(m.rootDir, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		if reserved(rel) {
			if info.IsDir() && !strings.HasSuffix(rel, tempSuffix) {
				return filepath.SkipDir
			}
			return nil
		}
		if info.IsDir() {
			return nil
		}
		assets = append(assets, port.AssetInfo{
			Name:    filepath.ToSlash(rel),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(assets, func(i, j int) bool { return assets[i].Name < assets[j].Name })
	return assets, nil
}

// GetCacheSize returns total size of cached assets, including assets still
// being written
func (m *Manager) GetCacheSize() (int64, error) {
	var size int64
	err := filepath.Walk(m.rootDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(m.rootDir, path)
		if err != nil {
			return err
		}
		hidden := rel != "." && reserved(strings.TrimSuffix(rel, tempSuffix))
		if hidden && info.IsDir() {
			return filepath.SkipDir
		}
		if !hidden && !info.IsDir() {
			size += info.Size()
		}
		return nil
	})
	return size, err
}

// CleanOldTempFiles removes temp files older than the specified duration
func (m *Manager) CleanOldTempFiles(olderThan time.Duration) (int, error) {
	count := 0
	threshold := time.Now().Add(-olderThan)

	err := filepath.Walk(m.rootDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if rel, relErr := filepath.Rel(m.rootDir, path); relErr == nil && rel != "." && reserved(rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasSuffix(path, tempSuffix) && info.ModTime().Before(threshold) {
			if removeErr := os.Remove(path); removeErr == nil {
				count++
			}
		}
		return nil
	})
	return count, err
}
