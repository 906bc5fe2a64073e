package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"crummey/pkg/requestcontext"
)

// Recorder appends audit entries to a Store and optionally a Stream.
//
// Recording never fails the calling operation: errors are logged and
// swallowed. In async mode entries are buffered and written by a background
// goroutine. A full buffer, or a Record after Close, writes synchronously
// instead, so no entry is dropped.
type Recorder struct {
	store  Store
	stream Stream
	logger *slog.Logger

	async  chan Entry
	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool
}

// syncWriteTimeout bounds a synchronous write from the caller's goroutine.
const syncWriteTimeout = 5 * time.Second

type Option func(*Recorder)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Recorder) {
		r.logger = logger
	}
}

// WithStream publishes every entry to stream after it is stored.
func WithStream(stream Stream) Option {
	return func(r *Recorder) {
		r.stream = stream
	}
}

// WithAsyncBuffer moves writes off the request path.
func WithAsyncBuffer(size int) Option {
	return func(r *Recorder) {
		if size > 0 {
			r.async = make(chan Entry, size)
		}
	}
}

func NewRecorder(store Store, opts ...Option) *Recorder {
	r := &Recorder{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	if r.async != nil {
		r.wg.Add(1)
		go r.drain()
	}
	return r
}

// Record fills in ID, timestamp and request metadata, then persists the entry.
func (r *Recorder) Record(ctx context.Context, entry Entry) {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = requestcontext.Now(ctx)
	}
	if entry.RequestID == "" {
		entry.RequestID = requestcontext.RequestID(ctx)
	}

	r.logger.InfoContext(ctx, string(entry.Action),
		"log_type", "audit",
		"event", entry.Action,
		"entity_type", entry.EntityType,
		"entity_id", entry.EntityID,
		"request_id", entry.RequestID,
	)

	if r.enqueue(entry) {
		return
	}
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), syncWriteTimeout)
	defer cancel()
	r.write(wctx, entry)
}

// enqueue hands entry to the async writer. It reports false when the recorder
// is synchronous, closed or its buffer is full.
func (r *Recorder) enqueue(entry Entry) bool {
	if r.async == nil {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return false
	}
	select {
	case r.async <- entry:
		return true
	default:
		r.logger.Warn("audit buffer full, writing synchronously",
			"event", entry.Action,
			"entity_id", entry.EntityID,
			"request_id", entry.RequestID,
		)
		return false
	}
}

// List returns the trail for one entity, oldest first.
func (r *Recorder) List(ctx context.Context, entityType EntityType, entityID uuid.UUID) ([]Entry, error) {
	return r.store.ListByEntity(ctx, entityType, entityID)
}

// Close stops the async writer after draining buffered entries. Entries
// recorded afterwards are written synchronously.
func (r *Recorder) Close() {
	r.mu.Lock()
	if r.closed || r.async == nil {
		r.closed = true
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.async)
	r.mu.Unlock()
	r.wg.Wait()
}

func (r *Recorder) drain() {
	defer r.wg.Done()
	for entry := range r.async {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		r.write(ctx, entry)
		cancel()
	}
}

func (r *Recorder) write(ctx context.Context, entry Entry) {
	if err := r.store.Append(ctx, entry); err != nil {
		r.logger.ErrorContext(ctx, "failed to append audit entry",
			"error", err,
			"event", entry.Action,
			"entity_id", entry.EntityID,
			"request_id", entry.RequestID,
		)
		return
	}
	if r.stream == nil {
		return
	}
	if err := r.stream.Publish(ctx, entry); err != nil {
		r.logger.WarnContext(ctx, "failed to publish audit entry",
			"error", err,
			"event", entry.Action,
			"entity_id", entry.EntityID,
			"request_id", entry.RequestID,
		)
	}
}
