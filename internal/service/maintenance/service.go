package maintenance

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vertextoedge/drive-mirror/internal/port"
)

// Config contains maintenance service configuration
type Config struct {
	// CleanupInterval is how often to run cleanup tasks
	CleanupInterval time.Duration

	// TempFileMaxAge is the maximum age of temp files before cleanup
	TempFileMaxAge time.Duration

	// RunHistoryMaxAge is how long finished sync runs are kept
	RunHistoryMaxAge time.Duration
}

// DefaultConfig returns default maintenance configuration
func DefaultConfig() *Config {
	return &Config{
		CleanupInterval:  time.Hour,
		TempFileMaxAge:   24 * time.Hour,
		RunHistoryMaxAge: 7 * 24 * time.Hour,
	}
}

// Service handles periodic maintenance tasks
type Service struct {
	config *Config
	mirror port.MirrorStore
	runs   port.SyncRunRepository
	subs   port.SubscriptionRepository
	logger *zap.Logger
	now    func() time.Time

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a new maintenance Service
func New(cfg *Config, mirror port.MirrorStore, runs port.SyncRunRepository, subs port.SubscriptionRepository, logger *zap.Logger) *Service {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.CleanupInterval == 0 {
		cfg.CleanupInterval = time.Hour
	}
	if cfg.TempFileMaxAge == 0 {
		cfg.TempFileMaxAge = 24 * time.Hour
	}
	if cfg.RunHistoryMaxAge == 0 {
		cfg.RunHistoryMaxAge = 7 * 24 * time.Hour
	}

	return &Service{
		config: cfg,
		mirror: mirror,
		runs:   runs,
		subs:   subs,
		logger: logger,
		now:    time.Now,
	}
}

// Start starts the maintenance service
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
		zap.Duration("temp_file_max_age", s.config.TempFileMaxAge),
		zap.Duration("run_history_max_age", s.config.RunHistoryMaxAge))

	s.wg.Add(1)
	go s.maintenanceLoop(ctx)

	<-ctx.Done()
	s.wg.Wait()
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
	s.running = false
}

// RunOnce runs every cleanup task once
func (s *Service) RunOnce() {
	s.cleanupTempFiles()
	s.cleanupRuns()
	s.cleanupSubscriptions()
}

// maintenanceLoop handles periodic maintenance tasks
func (s *Service) maintenanceLoop(ctx context.Context) {
	defer s.wg.Done()

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

// cleanupTempFiles removes interrupted downloads from the mirror
func (s *Service) cleanupTempFiles() {
	fileCount, err := s.mirror.CleanOldTempFiles(s.config.TempFileMaxAge)
	if err != nil {
		s.logger.Error("failed to cleanup old temp files", zap.Error(err))
	} else if fileCount > 0 {
		s.logger.Info("cleaned up old temp files from mirror", zap.Int("count", fileCount))
	}
}

// cleanupRuns prunes the sync run history
func (s *Service) cleanupRuns() {
	deleted, err := s.runs.DeleteRunsBefore(s.now().Add(-s.config.RunHistoryMaxAge))
	if err != nil {
		s.logger.Error("failed to prune sync runs", zap.Error(err))
	} else if deleted > 0 {
		s.logger.Info("pruned old sync runs", zap.Int("count", deleted))
	}
}

// cleanupSubscriptions drops rows for channels the remote drive has already expired
func (s *Service) cleanupSubscriptions() {
	if s.subs == nil {
		return
	}
	deleted, err := s.subs.DeleteExpiredSubscriptions(s.now())
	if err != nil {
		s.logger.Error("failed to delete expired subscriptions", zap.Error(err))
	} else if deleted > 0 {
		s.logger.Info("deleted expired subscriptions", zap.Int("count", deleted))
	}
}
