package booking_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/warp/rental-engine/booking"
)

func TestInterval_Overlaps(t *testing.T) {
	a := booking.Interval{Start: 10, Stop: 20}

	assert.True(t, a.Overlaps(booking.Interval{Start: 15, Stop: 25}))
	assert.True(t, a.Overlaps(booking.Interval{Start: 0, Stop: 30}))
	assert.True(t, a.Overlaps(booking.Interval{Start: 12, Stop: 13}))
	assert.False(t, a.Overlaps(booking.Interval{Start: 20, Stop: 30}), "adjacent intervals are disjoint")
	assert.False(t, a.Overlaps(booking.Interval{Start: 0, Stop: 10}))
}

func TestInterval_Contains(t *testing.T) {
	a := booking.Interval{Start: 10, Stop: 20}

	assert.True(t, a.Contains(10))
	assert.True(t, a.Contains(19))
	assert.False(t, a.Contains(20))
}

func TestInterval_DaysAndBlocks(t *testing.T) {
	iv := booking.Interval{Start: 1000, Stop: 1000 + 36*3600}

	assert.Equal(t, "1.5", iv.Days().String())
	assert.Equal(t, "36", iv.Blocks(booking.DefaultBlockTime).String())
	assert.Equal(t, "0.5", booking.Interval{Start: 0, Stop: 1800}.Blocks(3600).String())
	assert.True(t, iv.Blocks(0).IsZero())
}

func TestInterval_DurationOfInvertedIsZero(t *testing.T) {
	assert.Equal(t, uint64(0), booking.Interval{Start: 20, Stop: 10}.Duration())
}

func TestAddress_IsZero(t *testing.T) {
	assert.True(t, booking.ZeroAddress.IsZero())
	assert.True(t, booking.Address("0x0000000000000000000000000000000000000000").IsZero())
	assert.True(t, booking.Address("  ").IsZero())
	assert.False(t, booking.Address("0xabc").IsZero())
	assert.Equal(t, booking.Address("0xabc"), booking.NewAddress(" 0xABC "))
}
