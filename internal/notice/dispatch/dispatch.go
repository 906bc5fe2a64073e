//go:generate mockgen -source=dispatch.go -destination=../mocks/mocks.go -package=mocks Dispatcher

// Package dispatch delivers rendered notices to recipients.
package dispatch

import (
	"context"

	"crummey/internal/notice/models"
)

// Dispatcher delivers one rendered payload and returns the message ID used to
// correlate delivery callbacks. Implementations honor ctx cancellation and
// report a timeout as an ordinary failure.
type Dispatcher interface {
	Send(ctx context.Context, payload models.Payload) (string, error)
}
