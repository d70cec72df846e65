package booking_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/rental-engine/booking"
)

// =============================================================================
// TEST SETUP
// =============================================================================

const (
	customer1 = booking.Address("0xc1")
	customer2 = booking.Address("0xc2")
	base      = uint64(1000)
)

func at(days uint64) uint64 { return base + days*booking.Day }

// ledgerWithTwoBookings mirrors the calendar used throughout these tests:
//
//	    |--1--|    |--2--|
//	    5    20    30   35   (days after base)
func ledgerWithTwoBookings(t *testing.T) *booking.IntervalLedger {
	t.Helper()
	l := booking.NewIntervalLedger(1)
	ctx := context.Background()

	_, err := l.Book(ctx, customer1, at(5), at(20))
	require.NoError(t, err)
	_, err = l.Book(ctx, customer2, at(30), at(35))
	require.NoError(t, err)
	return l
}

// =============================================================================
// CONFIGURATION
// =============================================================================

func TestIntervalLedger_Defaults(t *testing.T) {
	l := booking.NewIntervalLedger(7)

	assert.Equal(t, uint64(7), l.ProductID())
	assert.Equal(t, uint64(3600), l.BlockTime())
	assert.Equal(t, uint64(60*24*60*60), l.ReservationLimit())
	assert.False(t, l.IsBooked())
	assert.Equal(t, uint64(0), l.Count())
}

func TestIntervalLedger_Options(t *testing.T) {
	l := booking.NewIntervalLedger(1, booking.WithBlockTime(60), booking.WithLimit(booking.Day))

	assert.Equal(t, uint64(60), l.BlockTime())
	_, err := l.CheckAvailability(0, 2*booking.Day)
	assert.ErrorIs(t, err, booking.ErrDurationExceeded)
}

// =============================================================================
// CHECK AVAILABILITY
// =============================================================================

func TestCheckAvailability_StopBeforeStart(t *testing.T) {
	l := booking.NewIntervalLedger(1)

	_, err := l.CheckAvailability(10000, 5000)
	assert.ErrorIs(t, err, booking.ErrInvalidInterval)

	_, err = l.CheckAvailability(5000, 5000)
	assert.ErrorIs(t, err, booking.ErrInvalidInterval, "empty interval is invalid")
}

func TestCheckAvailability_DurationExceeded(t *testing.T) {
	l := booking.NewIntervalLedger(1)

	_, err := l.CheckAvailability(base, base+61*booking.Day)
	assert.ErrorIs(t, err, booking.ErrDurationExceeded)

	var ivErr *booking.IntervalError
	require.ErrorAs(t, err, &ivErr)
	assert.Equal(t, booking.ReservationLimit, ivErr.Limit)
}

func TestCheckAvailability_ExactlyAtLimit(t *testing.T) {
	l := booking.NewIntervalLedger(1)

	ok, err := l.CheckAvailability(base, base+booking.ReservationLimit)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCheckAvailability_EmptyLedger(t *testing.T) {
	l := booking.NewIntervalLedger(1)

	ok, err := l.CheckAvailability(base, at(11))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCheckAvailability_OverlapCases(t *testing.T) {
	l := ledgerWithTwoBookings(t)

	tests := []struct {
		name      string
		start     uint64
		stop      uint64
		available bool
	}{
		{"covers both reservations", at(2), at(36), false},
		{"covers reservation 1 only", at(2), at(15), false},
		{"covers reservation 2 only", at(28), at(36), false},
		{"ends during reservation 1", at(2), at(10), false},
		{"inside reservation 1", at(7), at(10), false},
		{"starts during 1, ends before 2", at(7), at(18), false},
		{"starts after 1, ends during 2", at(22), at(32), false},
		{"inside reservation 2", at(32), at(34), false},
		{"starts during reservation 2", at(32), at(37), false},
		{"before reservation 1", at(1), at(3), true},
		{"between reservations", at(22), at(28), true},
		{"after reservation 2", at(37), at(45), true},
		{"touches end of 1 (half-open)", at(20), at(30), true},
		{"touches start of 1 (half-open)", at(1), at(5), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := l.CheckAvailability(tt.start, tt.stop)
			require.NoError(t, err)
			assert.Equal(t, tt.available, ok)
		})
	}
}

// =============================================================================
// BOOK
// =============================================================================

func TestBook_AssignsSequentialIDs(t *testing.T) {
	l := ledgerWithTwoBookings(t)

	assert.Equal(t, customer1, l.OwnerOf(0))
	assert.Equal(t, customer2, l.OwnerOf(1))
	assert.Equal(t, at(5), l.Start(0))
	assert.Equal(t, at(20), l.Stop(0))
	assert.Equal(t, at(30), l.Start(1))
	assert.Equal(t, at(35), l.Stop(1))

	// Never booked: zero values
	assert.Equal(t, uint64(0), l.Start(2))
	assert.Equal(t, uint64(0), l.Stop(2))
	assert.Equal(t, booking.ZeroAddress, l.OwnerOf(2))
	assert.Equal(t, booking.StateNonExistent, l.State(2))
}

func TestBook_RejectsOverlap(t *testing.T) {
	// GIVEN: [5d, 20d) booked by customer1
	// WHEN: customer2 books the same window
	// THEN: SlotUnavailable, reservation 0 still held by customer1
	l := ledgerWithTwoBookings(t)

	_, err := l.Book(context.Background(), customer2, at(5), at(20))

	require.ErrorIs(t, err, booking.ErrSlotUnavailable)
	var conflict *booking.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, booking.ReservationID(0), conflict.Existing)
	assert.Equal(t, customer1, l.OwnerOf(0))
	assert.Equal(t, uint64(2), l.Count(), "no id consumed on failure")
}

func TestBook_InvalidArguments(t *testing.T) {
	l := booking.NewIntervalLedger(1)
	ctx := context.Background()

	_, err := l.Book(ctx, customer1, 10000, 5000)
	assert.ErrorIs(t, err, booking.ErrInvalidInterval)

	_, err = l.Book(ctx, customer1, base, base+61*booking.Day)
	assert.ErrorIs(t, err, booking.ErrDurationExceeded)

	_, err = l.Book(ctx, booking.ZeroAddress, base, at(1))
	assert.ErrorIs(t, err, booking.ErrInvalidAddress)

	assert.Equal(t, uint64(0), l.Count())
	assert.False(t, l.IsBooked())
}

func TestBook_TracksHolderBalance(t *testing.T) {
	l := booking.NewIntervalLedger(1)
	ctx := context.Background()

	_, err := l.Book(ctx, customer1, at(0), at(1))
	require.NoError(t, err)
	_, err = l.Book(ctx, customer1, at(2), at(3))
	require.NoError(t, err)

	assert.Equal(t, uint64(2), l.BalanceOf(customer1))
	assert.Equal(t, uint64(0), l.BalanceOf(customer2))
}

func TestBook_LiveIsOrderedByStart(t *testing.T) {
	l := booking.NewIntervalLedger(1)
	ctx := context.Background()

	for _, d := range []uint64{30, 5, 50, 10} {
		_, err := l.Book(ctx, customer1, at(d), at(d+1))
		require.NoError(t, err)
	}

	live := l.Live()
	require.Len(t, live, 4)
	for i := 1; i < len(live); i++ {
		assert.Less(t, live[i-1].Start, live[i].Start)
	}
}

// =============================================================================
// CANCEL
// =============================================================================

func TestCancel_FreesInterval(t *testing.T) {
	// GIVEN: reservation 0 on [5d, 20d)
	// WHEN: its booker cancels it
	// THEN: the same interval can be booked again under a new id
	l := ledgerWithTwoBookings(t)
	ctx := context.Background()

	cancelled, err := l.Cancel(ctx, customer1, 0)
	require.NoError(t, err)
	assert.Equal(t, booking.StateCancelled, cancelled.State)

	assert.Equal(t, booking.ZeroAddress, l.OwnerOf(0), "cancelled id has no live booker")
	assert.Equal(t, booking.StateCancelled, l.State(0))
	assert.Equal(t, at(5), l.Start(0), "history retained")
	assert.Equal(t, uint64(0), l.BalanceOf(customer1))

	ok, err := l.CheckAvailability(at(5), at(20))
	require.NoError(t, err)
	assert.True(t, ok)

	res, err := l.Book(ctx, customer2, at(5), at(20))
	require.NoError(t, err)
	assert.Equal(t, booking.ReservationID(2), res.ID, "ids are never reused")
}

func TestCancel_NotOwner(t *testing.T) {
	l := ledgerWithTwoBookings(t)
	ctx := context.Background()

	_, err := l.Cancel(ctx, customer2, 0)

	require.ErrorIs(t, err, booking.ErrNotOwner)
	assert.Equal(t, customer1, l.OwnerOf(0))
	_, err = l.Book(ctx, customer2, at(5), at(20))
	assert.ErrorIs(t, err, booking.ErrSlotUnavailable)
}

func TestCancel_BookerMatchIgnoresCase(t *testing.T) {
	l := booking.NewIntervalLedger(1)
	ctx := context.Background()

	res, err := l.Book(ctx, "0xC1", at(0), at(1))
	require.NoError(t, err)
	assert.Equal(t, customer1, res.Booker)
	assert.Equal(t, uint64(1), l.BalanceOf("0xC1"))

	_, err = l.Cancel(ctx, customer1, res.ID)
	require.NoError(t, err)
	assert.Zero(t, l.BalanceOf(customer1))
}

func TestCancel_NotFound(t *testing.T) {
	l := ledgerWithTwoBookings(t)
	ctx := context.Background()

	_, err := l.Cancel(ctx, customer1, 99)
	assert.ErrorIs(t, err, booking.ErrNotFound)

	_, err = l.Cancel(ctx, customer1, 0)
	require.NoError(t, err)
	_, err = l.Cancel(ctx, customer1, 0)
	assert.ErrorIs(t, err, booking.ErrNotFound, "double cancel")
}

func TestCancelAt_ResolvesByStart(t *testing.T) {
	l := ledgerWithTwoBookings(t)
	ctx := context.Background()

	_, err := l.CancelAt(ctx, customer2, at(31))
	assert.ErrorIs(t, err, booking.ErrNotFound, "start must match exactly")

	res, err := l.CancelAt(ctx, customer2, at(30))
	require.NoError(t, err)
	assert.Equal(t, booking.ReservationID(1), res.ID)

	_, ok := l.LiveAt(at(30))
	assert.False(t, ok)
}

// =============================================================================
// COMMIT HOOKS
// =============================================================================

func TestCommitHook_VetoLeavesLedgerUnchanged(t *testing.T) {
	veto := errors.New("journal down")
	var seen []booking.Change
	fail := false

	l := booking.NewIntervalLedger(3, booking.WithCommitHook(func(_ context.Context, c booking.Change) error {
		if fail {
			return veto
		}
		seen = append(seen, c)
		return nil
	}))
	ctx := context.Background()

	res, err := l.Book(ctx, customer1, at(0), at(1))
	require.NoError(t, err)
	require.Len(t, seen, 1)
	assert.Equal(t, booking.ChangeBooked, seen[0].Kind)
	assert.Equal(t, uint64(3), seen[0].Reservation.ProductID)

	fail = true
	_, err = l.Book(ctx, customer1, at(2), at(3))
	assert.ErrorIs(t, err, veto)
	assert.Equal(t, uint64(1), l.Count())

	_, err = l.Cancel(ctx, customer1, res.ID)
	assert.ErrorIs(t, err, veto)
	assert.Equal(t, customer1, l.OwnerOf(res.ID))
}

func TestCommitHook_NotCalledOnFailedPrecondition(t *testing.T) {
	calls := 0
	l := booking.NewIntervalLedger(1, booking.WithCommitHook(func(context.Context, booking.Change) error {
		calls++
		return nil
	}))
	ctx := context.Background()

	_, _ = l.Book(ctx, customer1, 10, 5)
	_, _ = l.Cancel(ctx, customer1, 0)
	assert.Equal(t, 0, calls)
}

func TestAppliedHook_SeesCommittedChangesOnly(t *testing.T) {
	var applied []booking.Change
	veto := false
	l := booking.NewIntervalLedger(2,
		booking.WithCommitHook(func(context.Context, booking.Change) error {
			if veto {
				return errors.New("journal down")
			}
			return nil
		}),
		booking.WithAppliedHook(func(_ context.Context, c booking.Change) {
			applied = append(applied, c)
		}),
	)
	ctx := context.Background()

	res, err := l.Book(ctx, customer1, at(0), at(1))
	require.NoError(t, err)
	_, err = l.Cancel(ctx, customer1, res.ID)
	require.NoError(t, err)

	veto = true
	_, err = l.Book(ctx, customer1, at(0), at(1))
	require.Error(t, err)

	require.Len(t, applied, 2)
	assert.Equal(t, booking.ChangeBooked, applied[0].Kind)
	assert.Equal(t, booking.ChangeCancelled, applied[1].Kind)
	assert.Equal(t, booking.StateCancelled, applied[1].Reservation.State)
}

// =============================================================================
// CONCURRENCY
// =============================================================================

func TestBook_ConcurrentSameSlot_OneWinner(t *testing.T) {
	l := booking.NewIntervalLedger(1)
	ctx := context.Background()

	const n = 32
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// Windows shifted by ten minutes each all overlap one another
			start := at(1) + uint64(i)*600
			if _, err := l.Book(ctx, customer1, start, start+booking.Day); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, wins, "all windows overlap each other, exactly one may win")
	assert.Len(t, l.Live(), 1)
}
