package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/cairnhealth/cairn/internal/auth/store"
)

// HousekeepingService periodically cleans up expired database records to
// prevent unbounded growth of captchas, otp_codes, pre_auth_tokens, sessions
// and login_attempts.
type HousekeepingService struct {
	Store    store.Store
	Logger   *slog.Logger
	Interval time.Duration

	// Retention is how long superseded and revoked session rows are kept
	// for replay detection before they are deleted.
	Retention time.Duration

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewHousekeepingService creates a new housekeeping service with the given
// interval. If interval is 0 or negative, defaults to 1 hour.
func NewHousekeepingService(store store.Store, logger *slog.Logger, interval time.Duration) *HousekeepingService {
	if interval <= 0 {
		interval = 1 * time.Hour
	}

	return &HousekeepingService{
		Store:     store,
		Logger:    logger,
		Interval:  interval,
		Retention: 24 * time.Hour,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Start begins the background worker that periodically runs cleanup.
// Non-blocking; call Stop() to gracefully shut down.
func (s *HousekeepingService) Start() {
	go s.run()
	s.Logger.Info("housekeeping service started", "interval", s.Interval)
}

// Stop gracefully shuts down the background worker. Blocks until the worker
// has finished any in-progress cleanup.
func (s *HousekeepingService) Stop() {
	close(s.stopCh)
	<-s.doneCh
	s.Logger.Info("housekeeping service stopped")
}

func (s *HousekeepingService) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	// Run cleanup immediately on startup
	s.cleanup()

	for {
		select {
		case <-ticker.C:
			s.cleanup()
		case <-s.stopCh:
			return
		}
	}
}

// cleanup performs the actual deletion of expired records.
// Each deletion is independent - failures in one won't stop the others.
func (s *HousekeepingService) cleanup() {
	ctx := context.Background()
	now := time.Now().UTC()
	s.Logger.Info("starting housekeeping cleanup")

	var successful int

	if err := s.Store.Captchas().DeleteExpiredCaptchas(ctx, now); err != nil {
		s.Logger.Error("failed to delete expired captchas", "error", err)
	} else {
		successful++
	}

	if err := s.Store.OTPCodes().DeleteExpiredOTPs(ctx, now); err != nil {
		s.Logger.Error("failed to delete expired one-time codes", "error", err)
	} else {
		successful++
	}

	if err := s.Store.PreAuthTokens().DeleteExpiredPreAuthTokens(ctx, now); err != nil {
		s.Logger.Error("failed to delete expired pre-auth tokens", "error", err)
	} else {
		successful++
	}

	if err := s.Store.Sessions().DeleteExpiredSessions(ctx, now.Add(-s.Retention)); err != nil {
		s.Logger.Error("failed to delete expired sessions", "error", err)
	} else {
		successful++
	}

	if err := s.Store.LoginAttempts().DeleteStaleLoginAttempts(ctx, now.Add(-DefaultLockoutWindow)); err != nil {
		s.Logger.Error("failed to delete stale login attempts", "error", err)
	} else {
		successful++
	}

	s.Logger.Info("housekeeping cleanup completed", "successful_cleanups", successful)
}
