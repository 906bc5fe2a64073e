package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"crummey/internal/notice/models"
	trustmodels "crummey/internal/trust/models"
	audit "crummey/pkg/platform/audit"
	"crummey/pkg/platform/sentinel"
	"crummey/pkg/requestcontext"
)

type sendOutcome int

const (
	outcomeSkipped sendOutcome = iota
	outcomeSent
	outcomeFailed
)

type candidate struct {
	notice *models.Notice
	trust  *trustmodels.Trust
}

// Send dispatches pending notices owned by the caller. An empty ids selects
// every pending notice the caller can see.
//
// Ids that are unknown, owned by someone else or not pending are skipped
// without being reported. A dispatcher failure leaves the notice pending and
// adds "<recipient>: <reason>" to Errors; it never aborts the batch.
func (s *Service) Send(ctx context.Context, ids []uuid.UUID) (*models.SendResult, error) {
	ownerID, err := requireOwner(ctx)
	if err != nil {
		return nil, err
	}
	ctx, span := tracer.Start(ctx, "notice.Send")
	defer span.End()

	owned, err := s.ownedTrusts(ctx, ownerID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "load trusts")
		return nil, err
	}
	candidates, err := s.sendCandidates(ctx, ids, owned)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "resolve notices")
		return nil, err
	}
	span.SetAttributes(attribute.Int("notice.candidates", len(candidates)))

	outcomes := make([]sendOutcome, len(candidates))
	reasons := make([]string, len(candidates))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, c := range candidates {
		g.Go(func() error {
			outcomes[i], reasons[i] = s.sendOne(gctx, c)
			return nil
		})
	}
	_ = g.Wait()

	result := &models.SendResult{Errors: []string{}}
	for i, o := range outcomes {
		switch o {
		case outcomeSent:
			result.Sent++
		case outcomeFailed:
			result.Failed++
			result.Errors = append(result.Errors, reasons[i])
		}
	}
	span.SetAttributes(
		attribute.Int("notice.sent", result.Sent),
		attribute.Int("notice.failed", result.Failed),
	)
	s.logger.InfoContext(ctx, "notice batch sent",
		"request_id", requestcontext.RequestID(ctx),
		"candidates", len(candidates),
		"sent", result.Sent,
		"failed", result.Failed,
	)
	return result, nil
}

func (s *Service) sendCandidates(ctx context.Context, ids []uuid.UUID, owned map[uuid.UUID]*trustmodels.Trust) ([]candidate, error) {
	if len(ids) == 0 {
		pending := models.StatusPending
		notices, err := s.notices.List(ctx, models.ListFilter{TrustIDs: trustIDs(owned), Status: &pending})
		if err != nil {
			return nil, wrapNoticeErr(err)
		}
		out := make([]candidate, 0, len(notices))
		for _, n := range notices {
			out = append(out, candidate{notice: n, trust: owned[n.TrustID]})
		}
		return out, nil
	}

	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]candidate, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		n, err := s.notices.FindByID(ctx, id)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				continue
			}
			return nil, wrapNoticeErr(err)
		}
		t, ok := owned[n.TrustID]
		if !ok || n.Status != models.StatusPending {
			continue
		}
		out = append(out, candidate{notice: n, trust: t})
	}
	return out, nil
}

// sendOne claims the send lease, dispatches and records the outcome. Only the
// lease holder calls the dispatcher, so concurrent batches never double-send.
func (s *Service) sendOne(ctx context.Context, c candidate) (sendOutcome, string) {
	n := c.notice
	ctx, span := tracer.Start(ctx, "notice.Dispatch",
		trace.WithAttributes(attribute.String("notice.id", n.ID.String())))
	defer span.End()

	now := requestcontext.Now(ctx)
	claimed, err := s.notices.ClaimSend(ctx, n.ID, now, now.Add(s.leaseDuration))
	if err != nil {
		if errors.Is(err, sentinel.ErrInvalidState) || errors.Is(err, sentinel.ErrConflict) {
			span.SetAttributes(attribute.Bool("notice.skipped", true))
			return outcomeSkipped, ""
		}
		s.logger.ErrorContext(ctx, "failed to claim notice for sending",
			"request_id", requestcontext.RequestID(ctx),
			"notice_id", n.ID,
			"error", err,
		)
		return outcomeFailed, fmt.Sprintf("%s: could not be sent", n.RecipientName)
	}

	reason, err := s.dispatch(ctx, claimed, c.trust)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "dispatch failed")
		if failErr := s.notices.FailSend(ctx, n.ID, reason, requestcontext.Now(ctx)); failErr != nil &&
			!errors.Is(failErr, sentinel.ErrInvalidState) {
			s.logger.ErrorContext(ctx, "failed to record send failure",
				"request_id", requestcontext.RequestID(ctx),
				"notice_id", n.ID,
				"error", failErr,
			)
		}
		s.logger.WarnContext(ctx, "notice dispatch failed",
			"request_id", requestcontext.RequestID(ctx),
			"notice_id", n.ID,
			"error", err,
		)
		return outcomeFailed, fmt.Sprintf("%s: %s", n.RecipientName, reason)
	}
	return outcomeSent, ""
}

// dispatch renders and sends one claimed notice, then moves it to sent.
// On failure it returns the reason recorded against the notice.
func (s *Service) dispatch(ctx context.Context, n *models.Notice, t *trustmodels.Trust) (string, error) {
	l, err := s.letter(ctx, n, t)
	if err != nil {
		return "failed to load contribution", err
	}
	payload, err := s.renderer.Notice(l)
	if err != nil {
		return "failed to render notice", err
	}

	dctx, cancel := context.WithTimeout(ctx, s.dispatchTimeout)
	start := time.Now()
	messageID, err := s.dispatcher.Send(dctx, payload)
	cancel()
	s.observeDispatch(start, err != nil)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "dispatch timed out", err
		}
		return err.Error(), err
	}

	sentAt := requestcontext.Now(ctx)
	updated, err := s.notices.CompleteSend(ctx, n.ID, messageID, sentAt)
	switch {
	case errors.Is(err, sentinel.ErrInvalidState):
		// Acknowledged while the message was in flight; the message still went out.
		s.logger.InfoContext(ctx, "notice left pending during dispatch",
			"request_id", requestcontext.RequestID(ctx),
			"notice_id", n.ID,
			"message_id", messageID,
		)
		return "", nil
	case err != nil:
		s.logger.ErrorContext(ctx, "notice sent but not recorded",
			"request_id", requestcontext.RequestID(ctx),
			"notice_id", n.ID,
			"message_id", messageID,
			"error", err,
		)
		return "", nil
	}

	s.observeTransition(models.StatusSent)
	s.record(ctx, audit.Actor(requestcontext.UserID(ctx)), audit.ActionNoticeSent, updated.ID, map[string]any{
		"message_id":      messageID,
		"recipient_email": updated.RecipientEmail,
		"contribution_id": updated.ContributionID.String(),
	})
	return "", nil
}
