/*
Package closer shuts resources down in reverse order of registration.

PURPOSE:
  The server opens the journal, then the event sinks, then the HTTP
  listener. Shutdown must run the other way round so in-flight requests
  can still journal and publish while they drain.

TIMEOUTS:
  Close runs every function in LIFO order under the caller's context. If
  that context ends first, the interrupted function is left to finish on
  its own and the functions not yet started run concurrently under a
  fresh forced timeout. Close returns once that timeout ends even if some
  of them ignore their context.
*/
package closer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

const defaultForcedTimeout = 2 * time.Second

// Func releases one resource.
type Func func(ctx context.Context) error

type entry struct {
	name string
	fn   Func
}

type Closer struct {
	mu            sync.Mutex
	once          sync.Once
	entries       []entry
	forcedTimeout time.Duration
	log           *zap.Logger
	err           error
}

// New creates a Closer. A zero forcedTimeout means two seconds.
func New(forcedTimeout time.Duration, log *zap.Logger) *Closer {
	if forcedTimeout <= 0 {
		forcedTimeout = defaultForcedTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Closer{forcedTimeout: forcedTimeout, log: log}
}

// Add registers fn under name. Later additions close first.
func (c *Closer) Add(name string, fn Func) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, entry{name: name, fn: fn})
}

// AddError registers a context-free close function such as io.Closer.Close.
func (c *Closer) AddError(name string, fn func() error) {
	c.Add(name, func(context.Context) error { return fn() })
}

// Close runs every registered function once. Later calls return the
// first call's result.
func (c *Closer) Close(ctx context.Context) error {
	c.once.Do(func() {
		c.mu.Lock()
		entries := append([]entry(nil), c.entries...)
		c.mu.Unlock()

		stopped, errs := c.graceful(ctx, entries)
		if stopped >= 0 {
			interrupted := entries[stopped]
			errs = append(errs, fmt.Errorf("close %s: %w", interrupted.name, ctx.Err()))
			c.log.Warn("shutdown interrupted, forcing remaining closers",
				zap.String("interrupted", interrupted.name),
				zap.Int("remaining", stopped),
			)
			errs = append(errs, c.forced(entries[:stopped])...)
		}
		c.err = errors.Join(errs...)
	})
	return c.err
}

// graceful returns the index it stopped at, or -1 when everything ran.
func (c *Closer) graceful(ctx context.Context, entries []entry) (int, []error) {
	var errs []error
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		done := make(chan error, 1)
		go func() { done <- e.fn(ctx) }()

		select {
		case err := <-done:
			if err != nil {
				errs = append(errs, fmt.Errorf("close %s: %w", e.name, err))
			} else {
				c.log.Debug("closed", zap.String("resource", e.name))
			}
		case <-ctx.Done():
			return i, errs
		}
	}
	return -1, errs
}

// forced runs entries concurrently and stops waiting when the forced
// timeout ends. Entries still running at that point are reported.
func (c *Closer) forced(entries []entry) []error {
	if len(entries) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.forcedTimeout)
	defer cancel()

	type result struct {
		idx int
		err error
	}
	results := make(chan result, len(entries))
	for i, e := range entries {
		i, e := i, e
		go func() { results <- result{idx: i, err: e.fn(ctx)} }()
	}

	var errs []error
	finished := make([]bool, len(entries))
	for range entries {
		select {
		case r := <-results:
			finished[r.idx] = true
			if r.err != nil {
				errs = append(errs, fmt.Errorf("force close %s: %w", entries[r.idx].name, r.err))
			}
		case <-ctx.Done():
			for i, e := range entries {
				if !finished[i] {
					errs = append(errs, fmt.Errorf("force close %s: %w", e.name, ctx.Err()))
				}
			}
			return errs
		}
	}
	return errs
}
