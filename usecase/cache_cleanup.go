package usecase

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

// Cleaner removes stale entries and reports how many went away
type Cleaner interface {
	Cleanup() (int, error)
}

// CacheCleanupService runs a Cleaner at startup and then periodically
type CacheCleanupService struct {
	cleaner  Cleaner
	clock    clock.Clock
	interval time.Duration
	logger   *zap.Logger

	stopChan chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// NewCacheCleanupService creates a cleanup service. A zero interval runs
// every hour.
func NewCacheCleanupService(cleaner Cleaner, clk clock.Clock, interval time.Duration, logger *zap.Logger) *CacheCleanupService {
	if clk == nil {
		clk = clock.New()
	}
	if interval <= 0 {
		interval = time.Hour
	}
	return &CacheCleanupService{
		cleaner:  cleaner,
		clock:    clk,
		interval: interval,
		logger:   logger,
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start runs the first cleanup synchronously and begins the periodic loop
func (s *CacheCleanupService) Start() {
	s.runCleanup()
	ticker := s.clock.Ticker(s.interval)
	go s.cleanupLoop(ticker)
	s.logger.Info("Cache cleanup service started", zap.Duration("interval", s.interval))
}

// Stop stops the loop and waits for it to exit. It must follow Start.
func (s *CacheCleanupService) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
		<-s.done
		s.logger.Info("Cache cleanup service stopped")
	})
}

func (s *CacheCleanupService) cleanupLoop(ticker *clock.Ticker) {
	defer close(s.done)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.runCleanup()
		}
	}
}

func (s *CacheCleanupService) runCleanup() {
	removed, err := s.cleaner.Cleanup()
	if err != nil {
		s.logger.Error("Cache cleanup failed", zap.Error(err))
		return
	}
	s.logger.Debug("Cache cleanup completed", zap.Int("removed", removed))
}
