package closer

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClose_RunsInReverseOrder(t *testing.T) {
	c := New(0, nil)
	var order []string
	for _, name := range []string{"journal", "sinks", "http"} {
		name := name
		c.AddError(name, func() error {
			order = append(order, name)
			return nil
		})
	}

	assert.NoError(t, c.Close(context.Background()))
	assert.Equal(t, []string{"http", "sinks", "journal"}, order)
}

func TestClose_JoinsErrorsAndRunsOnce(t *testing.T) {
	c := New(0, nil)
	boom := errors.New("boom")
	calls := 0
	c.AddError("a", func() error { calls++; return boom })
	c.AddError("b", func() error { calls++; return nil })

	err := c.Close(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, c.Close(context.Background()), boom)
	assert.Equal(t, 2, calls)
}

func TestClose_ForcesRemainingOnTimeout(t *testing.T) {
	c := New(100*time.Millisecond, nil)

	var (
		mu     sync.Mutex
		forced bool
	)
	c.Add("first", func(ctx context.Context) error {
		mu.Lock()
		defer mu.Unlock()
		forced = true
		return nil
	})
	c.Add("slow", func(ctx context.Context) error {
		<-ctx.Done()
		time.Sleep(200 * time.Millisecond)
		return ctx.Err()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := c.Close(ctx)
	assert.Error(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.True(t, forced, "functions not reached gracefully run in the forced pass")
}

func TestClose_InterruptedEntryRunsOnce(t *testing.T) {
	c := New(100*time.Millisecond, nil)
	var calls atomic.Int32
	c.Add("slow", func(ctx context.Context) error {
		calls.Add(1)
		<-ctx.Done()
		time.Sleep(200 * time.Millisecond)
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := c.Close(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClose_ForcedPassIsBounded(t *testing.T) {
	c := New(50*time.Millisecond, nil)
	stuck := make(chan struct{})
	defer close(stuck)

	c.AddError("ignores context", func() error {
		<-stuck
		return nil
	})
	c.Add("slow", func(ctx context.Context) error {
		<-ctx.Done()
		time.Sleep(200 * time.Millisecond)
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	begin := time.Now()
	err := c.Close(ctx)

	assert.Less(t, time.Since(begin), time.Second)
	assert.ErrorContains(t, err, "force close ignores context")
}
