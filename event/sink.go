package event

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Sink receives committed events. Publish is called after the command has
// committed, so a failing sink never undoes state.
type Sink interface {
	Publish(ctx context.Context, events ...Event) error
}

// Discard drops every event.
type Discard struct{}

func (Discard) Publish(context.Context, ...Event) error { return nil }

// =============================================================================
// MULTI - Fan out to several sinks
// =============================================================================

// Multi publishes to every sink and joins their errors.
type Multi []Sink

func (m Multi) Publish(ctx context.Context, events ...Event) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Publish(ctx, events...); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// =============================================================================
// RECORDER - Bounded in-memory history
// =============================================================================

// Recorder keeps the most recent envelopes in memory, oldest first.
type Recorder struct {
	mu       sync.RWMutex
	producer string
	capacity int
	buf      []Envelope
	now      func() time.Time
}

// NewRecorder keeps up to capacity envelopes. capacity <= 0 means 256.
func NewRecorder(producer string, capacity int) *Recorder {
	if capacity <= 0 {
		capacity = 256
	}
	return &Recorder{producer: producer, capacity: capacity, now: time.Now}
}

func (r *Recorder) Publish(_ context.Context, events ...Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range events {
		env, err := Wrap(r.producer, e, r.now())
		if err != nil {
			return err
		}
		r.buf = append(r.buf, env)
	}
	if over := len(r.buf) - r.capacity; over > 0 {
		r.buf = append([]Envelope(nil), r.buf[over:]...)
	}
	return nil
}

// Recent returns up to n of the newest envelopes, oldest first.
// n <= 0 returns everything retained.
func (r *Recorder) Recent(n int) []Envelope {
	r.mu.RLock()
	defer r.mu.RUnlock()

	from := 0
	if n > 0 && n < len(r.buf) {
		from = len(r.buf) - n
	}
	out := make([]Envelope, len(r.buf)-from)
	copy(out, r.buf[from:])
	return out
}

// Len returns how many envelopes are retained.
func (r *Recorder) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.buf)
}

// =============================================================================
// LOGGING - Decorator
// =============================================================================

// Logging wraps a sink and logs every publish with its outcome and latency.
type Logging struct {
	Sink   Sink
	Logger *zap.Logger
}

func (l Logging) Publish(ctx context.Context, events ...Event) (err error) {
	defer func(t0 time.Time) {
		types := make([]string, len(events))
		for i, e := range events {
			types[i] = string(e.EventType())
		}
		log := l.Logger.With(
			zap.Strings("events", types),
			zap.Duration("delay", time.Since(t0)),
		)
		if err != nil {
			log.Warn("failed to publish events", zap.Error(err))
		} else {
			log.Debug("events published")
		}
	}(time.Now())

	return l.Sink.Publish(ctx, events...)
}
