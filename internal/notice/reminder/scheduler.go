// Package reminder runs the periodic reminder sweep for notices nearing
// their withdrawal deadline.
package reminder

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"crummey/internal/notice/models"
	"crummey/pkg/requestcontext"
)

// DefaultSchedule runs the sweep daily at 09:00 server time.
const DefaultSchedule = "0 9 * * *"

// Sender is the notice service operation the scheduler drives.
type Sender interface {
	SendReminders(ctx context.Context) (*models.ReminderResult, error)
}

// Scheduler owns the cron runner for reminder sweeps.
type Scheduler struct {
	cron     *cron.Cron
	sender   Sender
	logger   *slog.Logger
	schedule string
	timeout  time.Duration
}

func NewScheduler(sender Sender, logger *slog.Logger, schedule string, timeout time.Duration) *Scheduler {
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	c := cron.New(cron.WithChain(
		cron.Recover(cronLogger),
		cron.SkipIfStillRunning(cronLogger),
	))
	if schedule == "" {
		schedule = DefaultSchedule
	}
	return &Scheduler{
		cron:     c,
		sender:   sender,
		logger:   logger,
		schedule: schedule,
		timeout:  timeout,
	}
}

// Start registers the sweep and starts the cron runner.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.schedule, s.run); err != nil {
		return fmt.Errorf("schedule reminder job %q: %w", s.schedule, err)
	}
	s.logger.Info("scheduled reminder job", "schedule", s.schedule)
	s.cron.Start()
	return nil
}

// Stop halts scheduling. The returned context is done once a running sweep
// has finished.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

// RunOnce performs one sweep immediately.
func (s *Scheduler) RunOnce(ctx context.Context) (*models.ReminderResult, error) {
	ctx = requestcontext.WithRequestID(ctx, "reminder-"+uuid.NewString())
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	return s.sender.SendReminders(ctx)
}

func (s *Scheduler) run() {
	result, err := s.RunOnce(context.Background())
	if err != nil {
		s.logger.Error("reminder job failed", "error", err)
		return
	}
	s.logger.Info("reminder job completed",
		"sent", result.Sent,
		"failed", result.Failed,
	)
}
