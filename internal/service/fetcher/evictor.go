package fetcher

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/inkpress/assetloader/internal/port"
	"github.com/inkpress/assetloader/internal/util/ratelimiter"
)

// EvictionSource lists and removes cached assets
type EvictionSource interface {
	ListAssets() ([]port.AssetInfo, error)
	DeleteAsset(name string) error
}

// Evictor frees cache space by removing the least recently written assets
type Evictor struct {
	assets  EvictionSource
	space   *SpaceManager
	limiter *ratelimiter.Limiter
	logger  *zap.Logger
}

// NewEvictor creates a new Evictor. Eviction runs at most once per interval.
func NewEvictor(assets EvictionSource, space *SpaceManager, interval time.Duration, logger *zap.Logger) *Evictor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Evictor{
		assets:  assets,
		space:   space,
		limiter: ratelimiter.New(interval),
		logger:  logger,
	}
}

// TryEvict attempts to make room for neededBytes, never removing keep
func (e *Evictor) TryEvict(ctx context.Context, neededBytes int64, keep string) error {
	if ok, wait := e.limiter.Allow("evict"); !ok {
		return fmt.Errorf("eviction rate-limited: next eviction in %v", wait)
	}

	e.logger.Info("starting eviction", zap.Int64("needed_bytes", neededBytes))

	assets, err := e.assets.ListAssets()
	if err != nil {
		return fmt.Errorf("failed to list eviction candidates: %w", err)
	}

	// Oldest first
	sort.SliceStable(assets, func(i, j int) bool {
		return assets[i].ModTime.Before(assets[j].ModTime)
	})

	evictedCount := 0
	evictedBytes := int64(0)

	for _, candidate := range assets {
		if err := ctx.Err(); err != nil {
			return err
		}

		check, err := e.space.CheckSpace(neededBytes)
		if err != nil {
			return err
		}
		if check.HasSpace {
			e.logger.Info("eviction completed",
				zap.Int("evicted_count", evictedCount),
				zap.Int64("evicted_bytes", evictedBytes))
			return nil
		}

		if candidate.Name == keep {
			continue
		}

		if err := e.assets.DeleteAsset(candidate.Name); err != nil {
			e.logger.Error("failed to evict asset", zap.String("name", candidate.Name), zap.Error(err))
			continue
		}

		evictedCount++
		evictedBytes += candidate.Size
		e.logger.Debug("asset evicted",
			zap.String("name", candidate.Name),
			zap.Int64("size", candidate.Size),
			zap.Time("mod_time", candidate.ModTime))
	}

	check, err := e.space.CheckSpace(neededBytes)
	if err != nil {
		return err
	}
	if !check.HasSpace {
		return fmt.Errorf("no eviction candidates left after evicting %d assets", evictedCount)
	}

	e.logger.Info("eviction completed",
		zap.Int("evicted_count", evictedCount),
		zap.Int64("evicted_bytes", evictedBytes))
	return nil
}
