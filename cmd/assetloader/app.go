package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/inkpress/assetloader/internal/adapter/filesystem"
	"github.com/inkpress/assetloader/internal/adapter/httptransport"
	"github.com/inkpress/assetloader/internal/adapter/sqlite"
	"github.com/inkpress/assetloader/internal/config"
	"github.com/inkpress/assetloader/internal/domain/event"
	"github.com/inkpress/assetloader/internal/loader"
	"github.com/inkpress/assetloader/internal/logger"
	"github.com/inkpress/assetloader/internal/service/fetcher"
	"github.com/inkpress/assetloader/internal/service/maintenance"
	"github.com/inkpress/assetloader/internal/service/server"
)

// app holds the wired components shared by every subcommand
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	store    *sqlite.Store
	assets   *filesystem.Manager
	progress *event.ProgressChannel
	registry *prometheus.Registry
	metrics  *event.MetricsHandler
	loader   *loader.Loader
	fetcher  *fetcher.Fetcher
	stdout   io.Writer
	stderr   io.Writer
	closed   bool
}

func newApp(cfg *config.Config) (*app, error) {
	zapLogger, err := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	assets, err := filesystem.NewManagerWithBufferSize(cfg.Cache.RootDir, cfg.Cache.GetBufferSize())
	if err != nil {
		return nil, fmt.Errorf("failed to create asset cache: %w", err)
	}

	dbPath := cfg.DatabasePath()
	store, err := sqlite.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", dbPath, err)
	}

	client, err := httptransport.NewClient(&httptransport.ClientConfig{
		BaseURL:               cfg.Loader.BaseURL,
		UserAgent:             cfg.Loader.UserAgent,
		BearerToken:           cfg.Loader.BearerToken,
		SkipTLSVerify:         cfg.Loader.SkipTLSVerify,
		MaxIdleConnsPerHost:   cfg.Loader.MaxIdleConnsPerHost,
		ResponseHeaderTimeout: cfg.Loader.GetResponseHeaderTimeout(),
		RequestTimeout:        cfg.Loader.GetRequestTimeout(),
	})
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to create http client: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := event.NewMetricsHandler(registry, "assetloader")

	progress := event.NewProgressChannel()
	progress.Subscribe(metrics.Handle)
	progressLog := event.NewLoggingHandler(zapLogger, cfg.Loader.GetProgressLogInterval())
	progress.Subscribe(progressLog.Handle)

	l := loader.New(&loader.Config{ChunkSize: cfg.Loader.ChunkSizeBytes}, client, progress, zapLogger)

	f := fetcher.New(l, assets, store, fetcher.Recorders(metrics, progressLog), zapLogger)
	space := fetcher.NewSpaceManager(assets, cfg.Cache.GetMaxSizeBytes(), float64(cfg.Cache.MaxDiskUsagePercent))
	f.SetSpaceManager(space)
	if cfg.Cache.EvictOldest {
		f.SetEvictor(fetcher.NewEvictor(assets, space, cfg.Cache.GetEvictionInterval(), zapLogger))
	}

	return &app{
		cfg:      cfg,
		logger:   zapLogger,
		store:    store,
		assets:   assets,
		progress: progress,
		registry: registry,
		metrics:  metrics,
		loader:   l,
		fetcher:  f,
		stdout:   os.Stdout,
		stderr:   os.Stderr,
	}, nil
}

// Close releases the database and flushes logs. Safe to call twice.
func (a *app) Close() {
	if a.closed {
		return
	}
	a.closed = true
	if err := a.store.Close(); err != nil {
		a.logger.Error("failed to close database", zap.Error(err))
	}
	a.logger.Sync()
}

// signalContext is cancelled on SIGINT or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func (a *app) runServe(cmd *ServeCmd) error {
	serverCfg := &server.Config{
		BindAddr:     a.cfg.HTTP.BindAddr,
		ReadTimeout:  a.cfg.HTTP.GetReadTimeout(),
		WriteTimeout: a.cfg.HTTP.GetWriteTimeout(),
		IdleTimeout:  a.cfg.HTTP.GetIdleTimeout(),
	}
	if cmd.Addr != "" {
		serverCfg.BindAddr = cmd.Addr
	}

	httpServer := server.New(serverCfg, server.Deps{
		Store:    a.store,
		Assets:   a.assets,
		Fetcher:  a.fetcher,
		Progress: a.progress,
		Gatherer: a.registry,
	}, a.logger)

	maintenanceService := maintenance.New(&maintenance.Config{
		CleanupInterval: a.cfg.Maintenance.GetCleanupInterval(),
		HistoryMaxAge:   a.cfg.Database.GetHistoryMaxAge(),
		TempFileMaxAge:  a.cfg.Cache.GetTempFileMaxAge(),
	}, a.store, a.assets, a.logger)

	ctx, cancel := signalContext()
	defer cancel()

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- httpServer.Start()
	}()

	go func() {
		if err := maintenanceService.Start(ctx); err != nil {
			a.logger.Error("maintenance service stopped with error", zap.Error(err))
		}
	}()

	a.logger.Info("assetloader started",
		zap.String("version", version),
		zap.String("http_addr", serverCfg.BindAddr),
		zap.String("cache_dir", a.assets.RootDir()),
		zap.Int64("chunk_size", a.loader.ChunkSize()))

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received, stopping services...")
	case runErr = <-serverErr:
		if runErr != nil {
			a.logger.Error("HTTP server failed", zap.Error(runErr))
		}
	}

	maintenanceService.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := httpServer.Stop(shutdownCtx); err != nil {
		a.logger.Error("failed to stop HTTP server gracefully", zap.Error(err))
	}

	a.logger.Info("assetloader stopped")
	return runErr
}

// parseHeaders turns "Key: Value" pairs into a header map
func parseHeaders(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	headers := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, ":")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid header %q, want 'Key: Value'", pair)
		}
		headers[key] = strings.TrimSpace(value)
	}
	return headers, nil
}
