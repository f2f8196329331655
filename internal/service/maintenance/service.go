package maintenance

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// HistoryPruner deletes old load records
type HistoryPruner interface {
	DeleteOlderThan(age time.Duration) (int, error)
}

// TempCleaner removes abandoned partial assets
type TempCleaner interface {
	CleanOldTempFiles(olderThan time.Duration) (int, error)
}

// Config contains maintenance service configuration
type Config struct {
	// CleanupInterval is how often to run cleanup tasks
	CleanupInterval time.Duration

	// HistoryMaxAge is the maximum age of load records before cleanup
	HistoryMaxAge time.Duration

	// TempFileMaxAge is the maximum age of temp files before cleanup
	TempFileMaxAge time.Duration
}

// DefaultConfig returns default maintenance configuration
func DefaultConfig() *Config {
	return &Config{
		CleanupInterval: time.Hour,
		HistoryMaxAge:   30 * 24 * time.Hour,
		TempFileMaxAge:  24 * time.Hour,
	}
}

// Service handles periodic maintenance tasks
type Service struct {
	config  *Config
	history HistoryPruner
	temp    TempCleaner
	logger  *zap.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a new maintenance Service
func New(cfg *Config, history HistoryPruner, temp TempCleaner, logger *zap.Logger) *Service {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.CleanupInterval == 0 {
		cfg.CleanupInterval = time.Hour
	}
	if cfg.HistoryMaxAge == 0 {
		cfg.HistoryMaxAge = 30 * 24 * time.Hour
	}
	if cfg.TempFileMaxAge == 0 {
		cfg.TempFileMaxAge = 24 * time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Service{
		config:  cfg,
		history: history,
		temp:    temp,
		logger:  logger,
	}
}

// Start runs maintenance until ctx is cancelled or Stop is called
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("maintenance service already running")
	}
	s.running = true
	ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	s.logger.Info("maintenance service started",
		zap.Duration("cleanup_interval", s.config.CleanupInterval),
		zap.Duration("history_max_age", s.config.HistoryMaxAge))

	s.wg.Add(1)
	go s.maintenanceLoop(ctx)

	<-ctx.Done()
	s.wg.Wait()

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	s.logger.Info("maintenance service stopped")
	return nil
}

// Stop stops the maintenance service
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
}

// RunOnce performs every cleanup task immediately
func (s *Service) RunOnce() {
	s.cleanupHistory()
	s.cleanupTempFiles()
}

// maintenanceLoop handles periodic maintenance tasks
func (s *Service) maintenanceLoop(ctx context.Context) {
	defer s.wg.Done()

	// Startup pass clears leftovers of an interrupted run
	s.RunOnce()

	cleanupTicker := time.NewTicker(s.config.CleanupInterval)
	defer cleanupTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-cleanupTicker.C:
			s.RunOnce()
		}
	}
}

// cleanupHistory removes old load records
func (s *Service) cleanupHistory() {
	if s.history == nil {
		return
	}
	deleted, err := s.history.DeleteOlderThan(s.config.HistoryMaxAge)
	if err != nil {
		s.logger.Error("failed to cleanup load history", zap.Error(err))
	} else if deleted > 0 {
		s.logger.Info("cleaned up old load records", zap.Int("count", deleted))
	}
}

// cleanupTempFiles removes old temporary files from the asset cache
func (s *Service) cleanupTempFiles() {
	if s.temp == nil {
		return
	}
	fileCount, err := s.temp.CleanOldTempFiles(s.config.TempFileMaxAge)
	if err != nil {
		s.logger.Error("failed to cleanup old temp files", zap.Error(err))
	} else if fileCount > 0 {
		s.logger.Info("cleaned up old temp files from asset cache", zap.Int("count", fileCount))
	}
}
