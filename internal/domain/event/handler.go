package event

import (
	"time"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/inkpress/assetloader/internal/domain"
	"github.com/inkpress/assetloader/internal/util/ratelimiter"
)

// LoggingHandler logs progress, at most once per interval for each load
type LoggingHandler struct {
	logger  *zap.Logger
	limiter *ratelimiter.Limiter
}

// NewLoggingHandler creates a new LoggingHandler
func NewLoggingHandler(logger *zap.Logger, interval time.Duration) *LoggingHandler {
	return &LoggingHandler{
		logger:  logger,
		limiter: ratelimiter.New(interval),
	}
}

// Handle logs the snapshot. Final snapshots are always logged.
func (h *LoggingHandler) Handle(p domain.LoadProgress) {
	if p.Done() {
		h.limiter.Forget(p.LoadID)
		h.logger.Info("asset loaded",
			zap.String("load_id", p.LoadID),
			zap.String("url", p.URL),
			zap.Int64("size", p.Total),
			zap.String("size_human", humanize.IBytes(uint64(p.Total))),
		)
		return
	}

	if ok, _ := h.limiter.Allow(p.LoadID); !ok {
		return
	}

	h.logger.Debug("asset load progress",
		zap.String("load_id", p.LoadID),
		zap.String("url", p.URL),
		zap.Int64("loaded", p.Loaded),
		zap.Int64("total", p.Total),
		zap.Int("percent", p.Percent),
	)
}

// LoadStarted is a no-op; throttling state is created on the first snapshot
func (h *LoggingHandler) LoadStarted() {}

// LoadFinished drops throttling state of a load that ended, including loads
// that failed before their final snapshot
func (h *LoggingHandler) LoadFinished(record *domain.LoadRecord) {
	h.limiter.Forget(record.ID)
}

// MetricsHandler exports load progress and outcomes as Prometheus metrics
type MetricsHandler struct {
	progressEvents prometheus.Counter
	bytesLoaded    prometheus.Counter
	loads          *prometheus.CounterVec
	duration       *prometheus.HistogramVec
	assetSize      prometheus.Histogram
	inProgress     prometheus.Gauge
}

// NewMetricsHandler creates the metrics and registers them with reg.
// Panics if a metric with the same name is already registered.
func NewMetricsHandler(reg prometheus.Registerer, namespace string) *MetricsHandler {
	h := &MetricsHandler{
		progressEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "progress_events_total",
			Help:      "Progress snapshots published by the loader.",
		}),
		bytesLoaded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_loaded_total",
			Help:      "Bytes of completed assets.",
		}),
		loads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "loads_total",
			Help:      "Finished loads by status and retrieval strategy.",
		}, []string{"status", "strategy"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "load_duration_seconds",
			Help:      "Wall time of finished loads.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"status"}),
		assetSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "asset_size_bytes",
			Help:      "Size of assembled assets.",
			Buckets:   prometheus.ExponentialBuckets(64*1024, 4, 8), // 64KiB .. 1GiB
		}),
		inProgress: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "loads_in_progress",
			Help:      "Loads currently running.",
		}),
	}

	reg.MustRegister(h.progressEvents, h.bytesLoaded, h.loads, h.duration, h.assetSize, h.inProgress)
	return h
}

// Handle counts a progress snapshot
func (h *MetricsHandler) Handle(p domain.LoadProgress) {
	h.progressEvents.Inc()
	if p.Done() {
		h.bytesLoaded.Add(float64(p.Total))
	}
}

// LoadStarted marks a load as running
func (h *MetricsHandler) LoadStarted() {
	h.inProgress.Inc()
}

// LoadFinished records the outcome of a load started with LoadStarted
func (h *MetricsHandler) LoadFinished(record *domain.LoadRecord) {
	h.inProgress.Dec()

	strategy := string(record.Strategy)
	if strategy == "" {
		strategy = "none"
	}
	h.loads.WithLabelValues(record.Status, strategy).Inc()
	h.duration.WithLabelValues(record.Status).Observe(record.Duration.Seconds())
	if record.Status == domain.LoadStatusCompleted {
		h.assetSize.Observe(float64(record.Size))
	}
}
