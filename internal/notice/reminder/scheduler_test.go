package reminder

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crummey/internal/notice/models"
	"crummey/pkg/requestcontext"
)

type stubSender struct {
	calls     atomic.Int32
	err       error
	requestID atomic.Value
	deadline  atomic.Bool
}

func (s *stubSender) SendReminders(ctx context.Context) (*models.ReminderResult, error) {
	s.calls.Add(1)
	s.requestID.Store(requestcontext.RequestID(ctx))
	_, ok := ctx.Deadline()
	s.deadline.Store(ok)
	if s.err != nil {
		return nil, s.err
	}
	return &models.ReminderResult{Sent: 1}, nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func TestRunOnce(t *testing.T) {
	sender := &stubSender{}
	s := NewScheduler(sender, quietLogger(), "", time.Minute)

	result, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Sent)
	assert.Equal(t, int32(1), sender.calls.Load())
	assert.Contains(t, sender.requestID.Load(), "reminder-")
	assert.True(t, sender.deadline.Load())
}

func TestRunOnceSurfacesErrors(t *testing.T) {
	sender := &stubSender{err: errors.New("store down")}
	s := NewScheduler(sender, quietLogger(), DefaultSchedule, 0)

	_, err := s.RunOnce(context.Background())
	require.Error(t, err)
	assert.False(t, sender.deadline.Load())
}

func TestStartRejectsBadSchedule(t *testing.T) {
	s := NewScheduler(&stubSender{}, quietLogger(), "not a schedule", time.Minute)
	require.Error(t, s.Start())
}

func TestStartAndStop(t *testing.T) {
	sender := &stubSender{}
	s := NewScheduler(sender, quietLogger(), "@every 10ms", time.Second)
	require.NoError(t, s.Start())

	require.Eventually(t, func() bool { return sender.calls.Load() > 0 }, 3*time.Second, 10*time.Millisecond)

	select {
	case <-s.Stop().Done():
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}
