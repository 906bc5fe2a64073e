package dispatch

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"crummey/internal/notice/models"
)

// LogDispatcher records payloads in the log instead of sending them. It is
// selected when no SMTP URL is configured.
type LogDispatcher struct {
	logger *slog.Logger
}

func NewLogDispatcher(logger *slog.Logger) *LogDispatcher {
	return &LogDispatcher{logger: logger}
}

func (d *LogDispatcher) Send(ctx context.Context, p models.Payload) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	messageID := uuid.NewString()
	d.logger.InfoContext(ctx, "notice dispatched to log",
		"message_id", messageID,
		"notice_id", p.NoticeID,
		"recipient_email", p.RecipientEmail,
		"subject", p.Subject,
		"text_body", p.TextBody,
	)
	return messageID, nil
}
