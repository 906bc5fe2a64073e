package service

import (
	"context"
	"errors"
	"strings"

	"github.com/mssola/useragent"
	"go.opentelemetry.io/otel/attribute"

	"crummey/internal/notice/models"
	"crummey/pkg/domain"
	dErrors "crummey/pkg/domain-errors"
	audit "crummey/pkg/platform/audit"
	"crummey/pkg/platform/sentinel"
	"crummey/pkg/requestcontext"
)

// GetByToken returns the public summary of the notice behind token.
func (s *Service) GetByToken(ctx context.Context, token string) (*models.Summary, error) {
	n, err := s.findByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	t, err := s.ledger.Trusts.FindByID(ctx, n.TrustID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load trust")
	}
	summary := n.Summary(t.Name, domain.DateOf(requestcontext.Now(ctx)))
	return &summary, nil
}

// Acknowledge records the signer of the notice behind token. It needs no
// authentication: the token is the credential.
//
// A notice that is already acknowledged returns its original receipt and the
// submitted name is ignored, so reloads and double submits are harmless.
func (s *Service) Acknowledge(ctx context.Context, token, signatureName string) (*models.Receipt, error) {
	ctx, span := tracer.Start(ctx, "notice.Acknowledge")
	defer span.End()

	n, err := s.findByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("notice.id", n.ID.String()))
	if n.IsAcknowledged() {
		receipt := n.Receipt()
		return &receipt, nil
	}
	if err := models.ValidateSignature(signatureName); err != nil {
		return nil, err
	}

	ack := models.Acknowledgment{
		SignatureName: strings.TrimSpace(signatureName),
		IP:            requestcontext.ClientIP(ctx),
		UserAgent:     requestcontext.UserAgent(ctx),
		At:            requestcontext.Now(ctx),
	}
	updated, err := s.notices.Acknowledge(ctx, n.ID, ack)
	if err != nil {
		if errors.Is(err, sentinel.ErrInvalidState) {
			// Lost a race with another submission; the first signer stands.
			current, err := s.reload(ctx, n.ID)
			if err != nil {
				return nil, err
			}
			receipt := current.Receipt()
			return &receipt, nil
		}
		return nil, wrapNoticeErr(err)
	}

	s.observeTransition(models.StatusAcknowledged)
	s.record(ctx, nil, audit.ActionNoticeAcknowledged, updated.ID, acknowledgmentDetails(n.Status, ack))
	s.logger.InfoContext(ctx, "notice acknowledged",
		"request_id", requestcontext.RequestID(ctx),
		"notice_id", updated.ID,
	)
	receipt := updated.Receipt()
	return &receipt, nil
}

func (s *Service) findByToken(ctx context.Context, token string) (*models.Notice, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, dErrors.New(dErrors.CodeNotFound, "notice not found")
	}
	n, err := s.notices.FindByToken(ctx, token)
	if err != nil {
		return nil, wrapNoticeErr(err)
	}
	return n, nil
}

func acknowledgmentDetails(previous models.Status, ack models.Acknowledgment) map[string]any {
	details := map[string]any{
		"signature_name":  ack.SignatureName,
		"previous_status": string(previous),
	}
	if ack.UserAgent == "" {
		return details
	}
	ua := useragent.New(ack.UserAgent)
	browser, version := ua.Browser()
	details["browser"] = strings.TrimSpace(browser + " " + version)
	details["os"] = ua.OS()
	details["mobile"] = ua.Mobile()
	details["bot"] = ua.Bot()
	return details
}
