// Package sweeper runs the expire pass on a fixed interval so notes age out
// without any user activity.
package sweeper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// DefaultInterval is used when no interval is configured.
const DefaultInterval = time.Minute

// Pass is one reconciliation, including the expire pass.
type Pass func(ctx context.Context) error

// Run schedules pass every interval, starting immediately, and blocks until
// ctx is cancelled. Overlapping runs are skipped rather than queued.
func Run(ctx context.Context, interval time.Duration, logger *slog.Logger, pass Pass) error {
	if interval <= 0 {
		interval = DefaultInterval
	}
	s, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return fmt.Errorf("sweeper: create scheduler: %w", err)
	}

	_, err = s.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			if err := pass(ctx); err != nil && ctx.Err() == nil {
				logger.Warn("sweeper: pass failed", slog.String("error", err.Error()))
			}
		}),
		gocron.WithName("expire-pass"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		_ = s.Shutdown()
		return fmt.Errorf("sweeper: register job: %w", err)
	}

	s.Start()
	logger.Info("sweeper: started", slog.Duration("interval", interval))

	<-ctx.Done()
	if err := s.Shutdown(); err != nil {
		return fmt.Errorf("sweeper: shutdown: %w", err)
	}
	logger.Info("sweeper: stopped")
	return nil
}
