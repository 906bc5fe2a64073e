package service

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"crummey/internal/notice/models"
	"crummey/pkg/domain"
	audit "crummey/pkg/platform/audit"
	"crummey/pkg/platform/sentinel"
	"crummey/pkg/requestcontext"
)

// SendReminders emails one reminder per sent or delivered notice whose
// deadline is between tomorrow and the reminder window. Each notice is
// claimed before dispatch so overlapping runs never remind twice; a failed
// dispatch releases the claim for the next run.
func (s *Service) SendReminders(ctx context.Context) (*models.ReminderResult, error) {
	ctx, span := tracer.Start(ctx, "notice.SendReminders")
	defer span.End()

	today := domain.DateOf(requestcontext.Now(ctx))
	due, err := s.notices.ListReminderDue(ctx, today.AddDays(1), today.AddDays(s.reminderWindow))
	if err != nil {
		return nil, wrapNoticeErr(err)
	}
	span.SetAttributes(attribute.Int("notice.reminders_due", len(due)))

	var sent, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, n := range due {
		g.Go(func() error {
			switch ok, err := s.remind(gctx, n, today); {
			case err != nil:
				failed.Add(1)
				s.logger.WarnContext(gctx, "reminder failed",
					"notice_id", n.ID,
					"error", err,
				)
			case ok:
				sent.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	result := &models.ReminderResult{Sent: int(sent.Load()), Failed: int(failed.Load())}
	s.logger.InfoContext(ctx, "reminder run finished",
		"due", len(due),
		"sent", result.Sent,
		"failed", result.Failed,
	)
	return result, nil
}

// remind reports false without error when another run claimed the notice.
func (s *Service) remind(ctx context.Context, n *models.Notice, today domain.Date) (bool, error) {
	now := requestcontext.Now(ctx)
	if err := s.notices.ClaimReminder(ctx, n.ID, now); err != nil {
		if errors.Is(err, sentinel.ErrInvalidState) {
			return false, nil
		}
		return false, err
	}

	messageID, err := s.dispatchReminder(ctx, n, today)
	if err != nil {
		if releaseErr := s.notices.ReleaseReminder(ctx, n.ID); releaseErr != nil {
			s.logger.ErrorContext(ctx, "failed to release reminder claim",
				"notice_id", n.ID,
				"error", releaseErr,
			)
		}
		return false, err
	}

	if s.metrics != nil {
		s.metrics.IncrementReminders()
	}
	s.record(ctx, nil, audit.ActionReminderSent, n.ID, map[string]any{
		"message_id":     messageID,
		"days_remaining": n.DaysRemaining(today),
	})
	return true, nil
}

func (s *Service) dispatchReminder(ctx context.Context, n *models.Notice, today domain.Date) (string, error) {
	t, err := s.ledger.Trusts.FindByID(ctx, n.TrustID)
	if err != nil {
		return "", err
	}
	l, err := s.letter(ctx, n, t)
	if err != nil {
		return "", err
	}
	payload, err := s.renderer.Reminder(l, n.DaysRemaining(today))
	if err != nil {
		return "", err
	}

	dctx, cancel := context.WithTimeout(ctx, s.dispatchTimeout)
	defer cancel()
	start := time.Now()
	messageID, err := s.dispatcher.Send(dctx, payload)
	s.observeDispatch(start, err != nil)
	return messageID, err
}
