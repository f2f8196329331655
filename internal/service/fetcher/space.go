package fetcher

import (
	"github.com/inkpress/assetloader/internal/port"
)

// SpaceSource reports how much room the asset cache uses
type SpaceSource interface {
	GetCacheSize() (int64, error)
	GetDiskUsage() (*port.DiskUsage, error)
}

// SpaceCheckResult contains detailed space availability information
type SpaceCheckResult struct {
	HasSpace           bool
	AvailableBytes     int64
	CacheSizeBytes     int64
	MaxCacheSizeBytes  int64
	DiskUsedPct        float64
	MaxDiskUsagePct    float64
	LimitedByCacheSize bool
	LimitedByDiskUsage bool
}

// SpaceManager decides whether an assembled asset may be written to the
// cache. A zero limit disables that check.
type SpaceManager struct {
	source          SpaceSource
	maxCacheSize    int64
	maxDiskUsagePct float64
}

// NewSpaceManager creates a new SpaceManager
func NewSpaceManager(source SpaceSource, maxCacheSize int64, maxDiskUsagePct float64) *SpaceManager {
	return &SpaceManager{
		source:          source,
		maxCacheSize:    maxCacheSize,
		maxDiskUsagePct: maxDiskUsagePct,
	}
}

// CheckSpace checks if there's enough space for an asset of the given size
func (sm *SpaceManager) CheckSpace(size int64) (*SpaceCheckResult, error) {
	result := &SpaceCheckResult{
		MaxCacheSizeBytes: sm.maxCacheSize,
		MaxDiskUsagePct:   sm.maxDiskUsagePct,
	}

	if sm.maxCacheSize > 0 {
		cacheSize, err := sm.source.GetCacheSize()
		if err != nil {
			return nil, err
		}
		result.CacheSizeBytes = cacheSize
		result.AvailableBytes = sm.maxCacheSize - cacheSize

		if cacheSize+size > sm.maxCacheSize {
			result.LimitedByCacheSize = true
			return result, nil
		}
	}

	if sm.maxDiskUsagePct > 0 {
		usage, err := sm.source.GetDiskUsage()
		if err != nil {
			return nil, err
		}
		result.DiskUsedPct = usage.UsedPct

		if usage.Total == 0 || usage.UsedPct >= sm.maxDiskUsagePct {
			result.LimitedByDiskUsage = true
			return result, nil
		}

		// Check if adding this asset would exceed the disk limit
		newUsedPct := float64(usage.Used+uint64(size)) / float64(usage.Total) * 100
		if newUsedPct >= sm.maxDiskUsagePct {
			result.LimitedByDiskUsage = true
			return result, nil
		}
	}

	result.HasSpace = true
	return result, nil
}
