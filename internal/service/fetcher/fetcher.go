package fetcher

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/inkpress/assetloader/internal/domain"
	"github.com/inkpress/assetloader/internal/loader"
	"github.com/inkpress/assetloader/internal/port"
)

// AssetLoader retrieves a resource and reports how it was retrieved
type AssetLoader interface {
	LoadDetailed(ctx context.Context, url string, opts loader.Options) (*domain.LoadResult, error)
	ChunkSize() int64
}

// Recorder observes the lifecycle of a fetch
type Recorder interface {
	LoadStarted()
	LoadFinished(record *domain.LoadRecord)
}

type nopRecorder struct{}

func (nopRecorder) LoadStarted()                    {}
func (nopRecorder) LoadFinished(*domain.LoadRecord) {}

type multiRecorder []Recorder

func (m multiRecorder) LoadStarted() {
	for _, r := range m {
		r.LoadStarted()
	}
}

func (m multiRecorder) LoadFinished(record *domain.LoadRecord) {
	for _, r := range m {
		r.LoadFinished(record)
	}
}

// Recorders combines several recorders into one, skipping nil entries
func Recorders(rs ...Recorder) Recorder {
	var out multiRecorder
	for _, r := range rs {
		if r != nil {
			out = append(out, r)
		}
	}
	return out
}

// Request describes one asset fetch
type Request struct {
	URL             string            `json:"url"`
	Name            string            `json:"name,omitempty"`
	ChunkSize       int64             `json:"chunk_size_bytes,omitempty"`
	Headers         map[string]string `json:"headers,omitempty"`
	WithCredentials bool              `json:"with_credentials,omitempty"`
}

// Fetcher loads assets into the cache and records each load
type Fetcher struct {
	loader  AssetLoader
	assets  port.AssetStore
	loads   port.LoadRepository
	metrics Recorder
	space   *SpaceManager
	evictor *Evictor
	logger  *zap.Logger
}

// New creates a new Fetcher. A nil recorder disables metrics.
func New(l AssetLoader, assets port.AssetStore, loads port.LoadRepository, metrics Recorder, logger *zap.Logger) *Fetcher {
	if metrics == nil {
		metrics = nopRecorder{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{
		loader:  l,
		assets:  assets,
		loads:   loads,
		metrics: metrics,
		logger:  logger,
	}
}

// SetSpaceManager enables cache size and disk usage limits
func (f *Fetcher) SetSpaceManager(sm *SpaceManager) {
	f.space = sm
}

// SetEvictor lets the fetcher evict old assets when a limit is reached
func (f *Fetcher) SetEvictor(e *Evictor) {
	f.evictor = e
}

// Fetch loads req.URL, stores it in the asset cache and returns the
// persisted record. Failed loads are recorded before the error is returned.
func (f *Fetcher) Fetch(ctx context.Context, req Request) (*domain.LoadRecord, error) {
	if req.URL == "" {
		return nil, domain.ErrEmptyURL
	}
	if req.ChunkSize < 0 {
		return nil, domain.ErrInvalidChunkSize
	}

	name := req.Name
	if name == "" {
		name = NameFromURL(req.URL)
	}
	if _, err := f.assets.AssetPath(name); err != nil {
		return nil, err
	}

	chunkSize := req.ChunkSize
	if chunkSize == 0 {
		chunkSize = f.loader.ChunkSize()
	}

	record := domain.NewLoadRecord(uuid.NewString(), req.URL, name, chunkSize)
	if err := f.loads.Create(record); err != nil {
		return nil, fmt.Errorf("failed to record load: %w", err)
	}

	logger := f.logger.With(zap.String("load_id", record.ID), zap.String("url", req.URL))
	logger.Debug("fetch started", zap.String("name", name), zap.Int64("chunk_size", chunkSize))
	f.metrics.LoadStarted()

	result, err := f.loader.LoadDetailed(ctx, req.URL, loader.Options{
		WithCredentials: req.WithCredentials,
		Headers:         req.Headers,
		ChunkSize:       chunkSize,
		LoadID:          record.ID,
	})
	if err != nil {
		return record, f.fail(logger, record, err)
	}

	if err := f.checkSpace(ctx, logger, result.Size(), name); err != nil {
		return record, f.fail(logger, record, err)
	}

	cachePath, _, err := f.assets.WriteAsset(name, bytes.NewReader(result.Data))
	if err != nil {
		return record, f.fail(logger, record, fmt.Errorf("failed to store asset: %w", err))
	}

	record.MarkCompleted(result, cachePath, Checksum(result.Data))
	if err := f.loads.Update(record); err != nil {
		logger.Error("failed to update load record", zap.Error(err))
	}
	f.metrics.LoadFinished(record)

	logger.Info("fetch completed",
		zap.String("name", name),
		zap.String("strategy", string(record.Strategy)),
		zap.String("size", humanize.IBytes(uint64(record.Size))),
		zap.Int("range_requests", record.RangeRequests),
		zap.Duration("duration", record.Duration))

	return record, nil
}

// checkSpace makes sure the cache can take size bytes under name. An asset
// already cached under name is replaced, so only the growth is checked.
func (f *Fetcher) checkSpace(ctx context.Context, logger *zap.Logger, size int64, name string) error {
	if f.space == nil {
		return nil
	}
	size = max(size-f.cachedSize(name), 0)
	check, err := f.space.CheckSpace(size)
	if err != nil {
		return fmt.Errorf("failed to check cache space: %w", err)
	}
	if check.HasSpace {
		return nil
	}

	if f.evictor != nil {
		if err := f.evictor.TryEvict(ctx, size, name); err != nil {
			logger.Warn("eviction failed", zap.Error(err))
		} else if check, err = f.space.CheckSpace(size); err != nil {
			return fmt.Errorf("failed to check cache space: %w", err)
		}
	}

	switch {
	case check.LimitedByCacheSize:
		return fmt.Errorf("%w: %s needed, %s available", domain.ErrCacheFull,
			humanize.IBytes(uint64(size)), humanize.IBytes(uint64(max(check.AvailableBytes, 0))))
	case check.LimitedByDiskUsage:
		return fmt.Errorf("%w: disk %.1f%% used, limit %.1f%%", domain.ErrCacheFull,
			check.DiskUsedPct, check.MaxDiskUsagePct)
	}
	return nil
}

// cachedSize returns the size of the asset currently cached under name, or 0
func (f *Fetcher) cachedSize(name string) int64 {
	file, info, err := f.assets.OpenAsset(name)
	if err != nil {
		return 0
	}
	file.Close()
	return info.Size()
}

func (f *Fetcher) fail(logger *zap.Logger, record *domain.LoadRecord, err error) error {
	record.MarkFailed(err)
	if updateErr := f.loads.Update(record); updateErr != nil {
		logger.Error("failed to update load record", zap.Error(updateErr))
	}
	f.metrics.LoadFinished(record)

	logger.Warn("fetch failed", zap.Duration("duration", record.Duration), zap.Error(err))
	return err
}

// Checksum returns the hex xxhash64 digest of data
func Checksum(data []byte) string {
	return fmt.Sprintf("%016x", xxhash.Sum64(data))
}

// NameFromURL derives a cache name from the last path segment of rawURL
func NameFromURL(rawURL string) string {
	p := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		p = u.Path
	}
	base := path.Base(strings.TrimSuffix(p, "/"))
	if base == "." || base == "/" || base == "" {
		return "index"
	}
	return base
}
