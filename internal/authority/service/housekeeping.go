package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/crewpay/warden/internal/authority/domain"
	"github.com/crewpay/warden/internal/authority/store"
)

// HousekeepingService periodically sweeps expired session and one-time
// entries out of the key-value backend. Reads already purge lazily; the
// sweep keeps abandoned principals (who never come back to trigger a read)
// from growing the keyspace forever.
type HousekeepingService struct {
	KV       store.KV
	Logger   *slog.Logger
	Interval time.Duration

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewHousekeepingService creates a housekeeping service with the given
// interval. If interval is 0 or negative, defaults to 1 hour.
func NewHousekeepingService(kv store.KV, logger *slog.Logger, interval time.Duration) *HousekeepingService {
	if interval <= 0 {
		interval = 1 * time.Hour
	}

	return &HousekeepingService{
		KV:       kv,
		Logger:   logger,
		Interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start begins the background worker. Non-blocking; call Stop to shut down.
func (s *HousekeepingService) Start() {
	go s.run()
	s.Logger.Info("housekeeping service started", "interval", s.Interval)
}

// Stop gracefully shuts down the worker, blocking until any in-progress
// sweep finishes.
func (s *HousekeepingService) Stop() {
	close(s.stopCh)
	<-s.doneCh
	s.Logger.Info("housekeeping service stopped")
}

func (s *HousekeepingService) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	// Run a sweep immediately on startup
	s.sweep()

	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-s.stopCh:
			return
		}
	}
}

// sweep walks every session and one-time namespace and rewrites each set
// without its expired entries. Failures on one key don't stop the others.
func (s *HousekeepingService) sweep() {
	ctx := context.Background()
	s.Logger.Debug("starting housekeeping sweep")

	prefixes := []string{
		store.SessionPrefix(),
		store.OneTimePrefix(domain.AudLostPassword.Name()),
		store.OneTimePrefix(domain.AudChangePassword.Name()),
	}

	var swept, failed int
	for _, prefix := range prefixes {
		keys, err := s.KV.Keys(ctx, prefix)
		if err != nil {
			s.Logger.Error("housekeeping key scan failed", "prefix", prefix, "error", err)
			failed++
			continue
		}
		for _, key := range keys {
			if err := purgeKey(ctx, s.KV, key); err != nil {
				s.Logger.Error("housekeeping purge failed", "key", key, "error", err)
				failed++
				continue
			}
			swept++
		}
	}

	s.Logger.Info("housekeeping sweep completed", "swept", swept, "failed", failed)
}
