package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	applog "nudge/internal/log"
)

// SweepStats summarizes one scheduled sweep over all alert-enabled users.
type SweepStats struct {
	Users      int64
	Sent       int64
	Suppressed int64
	Failed     int64
}

// SweepAll runs a budget check for every user with alerting enabled.
// Per-user invocations are independent, so they run concurrently under a
// bounded worker pool; one user's failure is counted and logged without
// aborting the others.
func (s *AlertService) SweepAll(ctx context.Context, now time.Time, concurrency int) (SweepStats, error) {
	var stats SweepStats

	users, err := s.storage.ListAlertUsers(ctx)
	if err != nil {
		return stats, fmt.Errorf("list alert users: %w", err)
	}
	stats.Users = int64(len(users))

	if concurrency < 1 {
		concurrency = 1
	}

	g := new(errgroup.Group)
	g.SetLimit(concurrency)

	for _, userID := range users {
		g.Go(func() error {
			outcome, err := s.CheckUser(ctx, userID, now)
			if err != nil {
				atomic.AddInt64(&stats.Failed, 1)
				slog.ErrorContext(ctx, "Sweep check failed",
					applog.FieldUserID, userID, applog.FieldError, err)
				return nil
			}
			if outcome.Sent {
				atomic.AddInt64(&stats.Sent, 1)
			}
			atomic.AddInt64(&stats.Suppressed, int64(outcome.Suppressed))
			return nil
		})
	}
	_ = g.Wait() // workers never return errors; failures are counted per user

	slog.InfoContext(ctx, "Sweep completed",
		"users", stats.Users,
		"sent", stats.Sent,
		"suppressed", stats.Suppressed,
		"failed", stats.Failed)

	return stats, nil
}
