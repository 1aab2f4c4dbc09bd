package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/coinpulse/coinpulse/internal/api/store"
)

const (
	defaultHousekeepingInterval = 10 * time.Minute
	purgeTimeout                = time.Minute
)

// HousekeepingService deletes expired ephemeral rows on a fixed interval.
// Redis expires keys on its own, so only the SQLite ephemeral store runs it.
type HousekeepingService struct {
	Purger   store.Purger
	Logger   *slog.Logger
	Interval time.Duration

	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once
}

func NewHousekeepingService(purger store.Purger, logger *slog.Logger, interval time.Duration) *HousekeepingService {
	if interval <= 0 {
		interval = defaultHousekeepingInterval
	}
	return &HousekeepingService{Purger: purger, Logger: logger, Interval: interval}
}

// Start purges once, then keeps purging every Interval in the background.
func (s *HousekeepingService) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.loop(ctx)
	s.Logger.Info("housekeeping started", "interval", s.Interval)
}

// Stop waits for the purge in flight, if any. The first purge always
// completes before Stop returns.
func (s *HousekeepingService) Stop() {
	s.stopOnce.Do(func() {
		if s.cancel == nil {
			return
		}
		s.cancel()
		<-s.done
		s.Logger.Info("housekeeping stopped")
	})
}

func (s *HousekeepingService) loop(ctx context.Context) {
	defer close(s.done)

	s.purge()

	t := time.NewTicker(s.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.purge()
		}
	}
}

// purge runs on its own context so a shutdown does not abort a delete
// halfway.
func (s *HousekeepingService) purge() {
	ctx, cancel := context.WithTimeout(context.Background(), purgeTimeout)
	defer cancel()

	n, err := s.Purger.PurgeExpired(ctx)
	if err != nil {
		s.Logger.Error("purge of expired ephemeral keys failed", "error", err)
		return
	}
	if n > 0 {
		s.Logger.Debug("purged expired ephemeral keys", "count", n)
	}
}
