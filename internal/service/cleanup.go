package service

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"dropship-rest-api/internal/repository"
	"dropship-rest-api/pkg/logger"
)

// CleanupConfig holds configuration for the cleanup scheduler.
type CleanupConfig struct {
	// CleanupInterval is how often expired products are purged.
	// Default: 1 hour
	CleanupInterval time.Duration

	// InitialDelay postpones the first run after Start.
	// Default: 1 minute
	InitialDelay time.Duration
}

// CleanupScheduler periodically deletes product rows past their expires_at.
type CleanupScheduler struct {
	repo      repository.ProductRepository
	config    CleanupConfig
	ticker    *time.Ticker
	stopCh    chan struct{}
	stopOnce  sync.Once
	isRunning bool
	mu        sync.Mutex
	log       zerolog.Logger
}

// NewCleanupScheduler creates a new cleanup scheduler.
func NewCleanupScheduler(repo repository.ProductRepository, config CleanupConfig) *CleanupScheduler {
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = time.Hour
	}
	if config.InitialDelay <= 0 {
		config.InitialDelay = time.Minute
	}

	return &CleanupScheduler{
		repo:   repo,
		config: config,
		stopCh: make(chan struct{}),
		log:    logger.Component("cleanup"),
	}
}

// Start begins the cleanup scheduler.
func (s *CleanupScheduler) Start() {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = true
	s.ticker = time.NewTicker(s.config.CleanupInterval)
	s.mu.Unlock()

	s.log.Info().Dur("interval", s.config.CleanupInterval).Msg("cleanup scheduler started")

	go func() {
		select {
		case <-time.After(s.config.InitialDelay):
			s.runCleanup()
		case <-s.stopCh:
		}
	}()

	go s.run()
}

// run is the main cleanup loop.
func (s *CleanupScheduler) run() {
	for {
		select {
		case <-s.ticker.C:
			s.runCleanup()
		case <-s.stopCh:
			s.log.Info().Msg("cleanup scheduler stopped")
			return
		}
	}
}

// runCleanup performs the actual cleanup.
func (s *CleanupScheduler) runCleanup() {
	deleted, err := s.RunNow()
	if err != nil {
		s.log.Error().Err(err).Msg("expired product cleanup failed")
		return
	}

	if deleted > 0 {
		s.log.Info().Int64("deleted", deleted).Msg("expired products purged")
	} else {
		s.log.Debug().Msg("no expired products to purge")
	}
}

// Stop stops the cleanup scheduler.
func (s *CleanupScheduler) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		if s.ticker != nil {
			s.ticker.Stop()
		}
		close(s.stopCh)
		s.isRunning = false
	})
}

// RunNow triggers an immediate cleanup run.
func (s *CleanupScheduler) RunNow() (int64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	return s.repo.DeleteExpired(ctx, time.Now())
}
