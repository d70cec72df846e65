package event_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/rental-engine/booking"
	"github.com/warp/rental-engine/event"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type failingSink struct{ err error }

func (f failingSink) Publish(context.Context, ...event.Event) error { return f.err }

func TestEnvelope_RoundTripsEveryType(t *testing.T) {
	events := []event.Event{
		event.ProductCreated{ID: 3, Category: 2, Name: "Kayak", Ledger: "ledger:3"},
		event.Transfer{From: booking.ZeroAddress, To: "0xshop", ID: 3},
		event.ComplementCreated{ProductID: 3, ComplementID: 7, Subcategory: 1, Name: "Paddle"},
		event.BookingCreated{ProductID: 3, Booker: "0xc1", ReservationID: 0, Start: 1000, Stop: 5000},
		event.BookingCancelled{ProductID: 3, ReservationID: 0},
	}

	for _, e := range events {
		env, err := event.Wrap("test", e, fixedTime)
		require.NoError(t, err)
		assert.Equal(t, e.EventType(), env.EventType)
		assert.Equal(t, uint64(3), env.ProductID)
		assert.NotEmpty(t, env.EventID)

		decoded, err := env.Decode()
		require.NoError(t, err)
		assert.Equal(t, e, decoded)
	}
}

func TestEnvelope_DecodeUnknownType(t *testing.T) {
	_, err := event.Envelope{EventType: "Nope", Payload: []byte(`{}`)}.Decode()
	assert.Error(t, err)
}

func TestRecorder_KeepsNewestWithinCapacity(t *testing.T) {
	// GIVEN: A recorder that holds three envelopes
	rec := event.NewRecorder("test", 3)
	ctx := context.Background()

	// WHEN: Five events are published
	for i := uint64(0); i < 5; i++ {
		require.NoError(t, rec.Publish(ctx, event.BookingCancelled{ProductID: i}))
	}

	// THEN: Only the last three remain, oldest first
	assert.Equal(t, 3, rec.Len())
	recent := rec.Recent(0)
	require.Len(t, recent, 3)
	assert.Equal(t, uint64(2), recent[0].ProductID)
	assert.Equal(t, uint64(4), recent[2].ProductID)

	last := rec.Recent(1)
	require.Len(t, last, 1)
	assert.Equal(t, uint64(4), last[0].ProductID)
}

func TestMulti_PublishesToAllAndJoinsErrors(t *testing.T) {
	a := event.NewRecorder("a", 10)
	b := event.NewRecorder("b", 10)
	boom := errors.New("boom")

	m := event.Multi{a, failingSink{err: boom}, nil, b}
	err := m.Publish(context.Background(), event.Transfer{To: "0xshop", ID: 1})

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, a.Len())
	assert.Equal(t, 1, b.Len(), "a failing sink does not stop the others")
}

func TestLogging_LogsFailures(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	sink := event.Logging{Sink: failingSink{err: errors.New("down")}, Logger: zap.New(core)}

	err := sink.Publish(context.Background(), event.BookingCancelled{ProductID: 1})
	require.Error(t, err)

	entries := logs.FilterMessage("failed to publish events").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
}

func TestLogging_LogsSuccessAtDebug(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	sink := event.Logging{Sink: event.Discard{}, Logger: zap.New(core)}

	require.NoError(t, sink.Publish(context.Background(), event.BookingCancelled{ProductID: 1}))
	assert.Equal(t, 1, logs.FilterMessage("events published").Len())
}
