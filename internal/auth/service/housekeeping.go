package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/factstofaith/gigglefits-sub006/internal/auth/store"
	"github.com/factstofaith/gigglefits-sub006/pkg/clockx"
)

// HousekeepingService periodically removes expired MFA login challenges.
// Invitations are never swept; their expiry is computed on read.
type HousekeepingService struct {
	Store    store.Store
	Clock    clockx.Clock
	Logger   *slog.Logger
	Interval time.Duration

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewHousekeepingService defaults a non-positive interval to 1 hour.
func NewHousekeepingService(st store.Store, clock clockx.Clock, logger *slog.Logger, interval time.Duration) *HousekeepingService {
	if interval <= 0 {
		interval = 1 * time.Hour
	}

	return &HousekeepingService{
		Store:    st,
		Clock:    clock,
		Logger:   logger,
		Interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start launches the background worker. Call Stop to shut it down.
func (s *HousekeepingService) Start() {
	go s.run()
	s.Logger.Info("housekeeping service started", "interval", s.Interval)
}

// Stop blocks until an in-progress cleanup has finished.
func (s *HousekeepingService) Stop() {
	close(s.stopCh)
	<-s.doneCh
	s.Logger.Info("housekeeping service stopped")
}

func (s *HousekeepingService) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	s.Cleanup(context.Background())

	for {
		select {
		case <-ticker.C:
			s.Cleanup(context.Background())
		case <-s.stopCh:
			return
		}
	}
}

// Cleanup runs one sweep and returns the number of rows removed.
func (s *HousekeepingService) Cleanup(ctx context.Context) int64 {
	n, err := s.Store.LoginChallenges().DeleteExpiredLoginChallenges(ctx, s.Clock.Now())
	if err != nil {
		s.Logger.Error("failed to delete expired login challenges", "error", err)
		return 0
	}
	s.Logger.Debug("housekeeping cleanup completed", "login_challenges_deleted", n)
	return n
}
