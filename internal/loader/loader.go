package loader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/inkpress/assetloader/internal/domain"
	"github.com/inkpress/assetloader/internal/domain/event"
	"github.com/inkpress/assetloader/internal/port"
)

// DefaultChunkSize is the window size used when neither the loader config nor
// the call options set one (1 MiB).
const DefaultChunkSize int64 = 1024 * 1024

// Config contains loader configuration
type Config struct {
	// ChunkSize is the default size of one ranged request
	ChunkSize int64
}

// DefaultConfig returns default loader configuration
func DefaultConfig() *Config {
	return &Config{ChunkSize: DefaultChunkSize}
}

// Options tune a single load
type Options struct {
	// WithCredentials sends cookies and authorization to any origin
	WithCredentials bool

	// Headers are added to every request of the load
	Headers map[string]string

	// ChunkSize overrides the configured chunk size when positive
	ChunkSize int64

	// LoadID tags progress snapshots; generated when empty
	LoadID string
}

// Loader retrieves binary resources in ranged chunks, falling back to a
// single GET when the server cannot serve ranges.
type Loader struct {
	config    *Config
	transport port.Transport
	progress  event.Publisher
	logger    *zap.Logger
}

// New creates a new Loader. A nil progress publisher discards progress.
func New(cfg *Config, transport port.Transport, progress event.Publisher, logger *zap.Logger) *Loader {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if progress == nil {
		progress = event.NullPublisher{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Loader{
		config:    cfg,
		transport: transport,
		progress:  progress,
		logger:    logger,
	}
}

// ChunkSize returns the configured default chunk size
func (l *Loader) ChunkSize() int64 {
	return l.config.ChunkSize
}

// Load retrieves the resource at url and returns its bytes
func (l *Loader) Load(ctx context.Context, url string, opts Options) ([]byte, error) {
	result, err := l.LoadDetailed(ctx, url, opts)
	if err != nil {
		return nil, err
	}
	return result.Data, nil
}

// LoadDetailed retrieves the resource at url and reports how it was retrieved.
//
// Failures of the probe or of any ranged request fall back to one plain GET;
// only a failure of that GET is returned. Cancelling ctx stops the load
// between requests without falling back.
func (l *Loader) LoadDetailed(ctx context.Context, url string, opts Options) (*domain.LoadResult, error) {
	if url == "" {
		return nil, domain.ErrEmptyURL
	}

	chunkSize := l.config.ChunkSize
	if opts.ChunkSize < 0 {
		return nil, domain.ErrInvalidChunkSize
	}
	if opts.ChunkSize > 0 {
		chunkSize = opts.ChunkSize
	}

	loadID := opts.LoadID
	if loadID == "" {
		loadID = uuid.NewString()
	}

	logger := l.logger.With(zap.String("load_id", loadID), zap.String("url", url))

	total, reason := l.probe(ctx, url, opts)
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("load %s: %w", url, err)
	}

	switch {
	case reason != "":
		logger.Debug("ranged retrieval unavailable", zap.String("reason", reason))
		return l.fallback(ctx, loadID, url, opts, domain.StrategyFallback, reason, 0)

	case total == 0:
		l.progress.Publish(domain.CompleteProgress(loadID, url, 0))
		return &domain.LoadResult{
			LoadID:   loadID,
			Data:     []byte{},
			Total:    0,
			Strategy: domain.StrategyEmpty,
		}, nil

	case total <= chunkSize:
		return l.fallback(ctx, loadID, url, opts, domain.StrategyShortCircuit, "", 0)
	}

	result, rangeRequests, err := l.loadRanged(ctx, loadID, url, opts, total, chunkSize)
	if err == nil {
		return result, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, fmt.Errorf("load %s: %w", url, ctxErr)
	}

	logger.Warn("ranged retrieval failed, falling back to single request",
		zap.Int("range_requests", rangeRequests),
		zap.Error(err))
	return l.fallback(ctx, loadID, url, opts, domain.StrategyFallback, err.Error(), rangeRequests)
}

// probe issues a HEAD request and returns the resource size when ranged
// retrieval is possible. A non-empty reason means it is not.
func (l *Loader) probe(ctx context.Context, url string, opts Options) (int64, string) {
	resp, err := l.transport.Do(ctx, l.newRequest(http.MethodHead, url, opts, ""))
	if err != nil {
		return 0, "probe failed: " + err.Error()
	}
	if !resp.OK() {
		return 0, fmt.Sprintf("probe returned HTTP %d", resp.StatusCode)
	}
	if resp.Header.Get("Accept-Ranges") != "bytes" {
		return 0, "server does not accept byte ranges"
	}

	length := resp.Header.Get("Content-Length")
	if length == "" {
		return 0, "missing Content-Length"
	}
	total, err := strconv.ParseInt(strings.TrimSpace(length), 10, 64)
	if err != nil || total < 0 {
		return 0, fmt.Sprintf("invalid Content-Length %q", length)
	}
	return total, ""
}

// maxPrealloc bounds the initial buffer of a ranged load; the buffer grows
// as ranged bodies arrive.
const maxPrealloc int64 = 64 * 1024 * 1024

// errRangeRejected signals a ranged response that calls for a fresh single fetch
var errRangeRejected = errors.New("range request rejected")

// loadRanged fetches [0, total) window by window, in order. It returns the
// number of ranged requests issued alongside any error.
func (l *Loader) loadRanged(ctx context.Context, loadID, url string, opts Options, total, chunkSize int64) (*domain.LoadResult, int, error) {
	count := WindowCount(total, chunkSize)
	buf := bytes.NewBuffer(make([]byte, 0, min(total, chunkSize, maxPrealloc)))

	for n := int64(0); n < count; n++ {
		i := int(n)
		w := WindowAt(n, total, chunkSize)
		if err := ctx.Err(); err != nil {
			return nil, i, err
		}

		resp, err := l.transport.Do(ctx, l.newRequest(http.MethodGet, url, opts, w.RangeHeader()))
		if err != nil {
			return nil, i + 1, domain.NewNetworkError(http.MethodGet, url, err)
		}

		switch {
		case resp.StatusCode == http.StatusPartialContent:
			// handled below

		case resp.StatusCode == http.StatusRequestedRangeNotSatisfiable:
			return nil, i + 1, fmt.Errorf("%w: HTTP %d for %s", errRangeRejected, resp.StatusCode, w.RangeHeader())

		case resp.OK():
			// The server ignored the range. Its body is only the resource
			// if it has the probed size.
			if int64(len(resp.Body)) != total {
				return nil, i + 1, fmt.Errorf("%w: HTTP %d with %d bytes, expected %d",
					errRangeRejected, resp.StatusCode, len(resp.Body), total)
			}
			l.progress.Publish(domain.CompleteProgress(loadID, url, total))
			return &domain.LoadResult{
				LoadID:        loadID,
				Data:          resp.Body,
				Total:         total,
				Strategy:      domain.StrategyAcceptedWhole,
				RangeRequests: i + 1,
			}, i + 1, nil

		default:
			return nil, i + 1, domain.NewStatusError(http.MethodGet, url, resp.StatusCode)
		}

		if int64(len(resp.Body)) != w.Len() {
			return nil, i + 1, fmt.Errorf("short range response for %s: got %d bytes, want %d",
				w.RangeHeader(), len(resp.Body), w.Len())
		}
		buf.Write(resp.Body)

		loaded := int64(buf.Len())
		if n == count-1 {
			l.progress.Publish(domain.CompleteProgress(loadID, url, loaded))
		} else {
			l.progress.Publish(domain.IntermediateProgress(loadID, url, loaded, total))
		}
	}

	return &domain.LoadResult{
		LoadID:        loadID,
		Data:          buf.Bytes(),
		Total:         total,
		Strategy:      domain.StrategyRanged,
		RangeRequests: int(count),
	}, int(count), nil
}

// fallback fetches the whole resource with one GET
func (l *Loader) fallback(ctx context.Context, loadID, url string, opts Options, strategy domain.Strategy, reason string, rangeRequests int) (*domain.LoadResult, error) {
	resp, err := l.transport.Do(ctx, l.newRequest(http.MethodGet, url, opts, ""))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("load %s: %w", url, ctxErr)
		}
		return nil, domain.NewNetworkError(http.MethodGet, url, err)
	}
	if !resp.OK() {
		return nil, domain.NewStatusError(http.MethodGet, url, resp.StatusCode)
	}

	size := int64(len(resp.Body))
	l.progress.Publish(domain.CompleteProgress(loadID, url, size))

	return &domain.LoadResult{
		LoadID:         loadID,
		Data:           resp.Body,
		Total:          size,
		Strategy:       strategy,
		RangeRequests:  rangeRequests,
		FallbackReason: reason,
	}, nil
}

func (l *Loader) newRequest(method, url string, opts Options, rangeHeader string) *port.Request {
	headers := make(map[string]string, len(opts.Headers)+1)
	for k, v := range opts.Headers {
		if strings.EqualFold(k, "Range") {
			continue
		}
		headers[k] = v
	}
	if rangeHeader != "" {
		headers["Range"] = rangeHeader
	}

	return &port.Request{
		Method:          method,
		URL:             url,
		Headers:         headers,
		WithCredentials: opts.WithCredentials,
	}
}
