package booking

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// =============================================================================
// INTERVAL - Half-open time window
// =============================================================================

// Interval is the half-open window [Start, Stop) in seconds.
type Interval struct {
	Start uint64
	Stop  uint64
}

// Validate checks the interval shape against a duration limit.
// InvalidInterval takes precedence over DurationExceeded.
func (i Interval) Validate(limit uint64) error {
	if i.Stop <= i.Start {
		return &IntervalError{Interval: i, Limit: limit, err: ErrInvalidInterval}
	}
	if i.Duration() > limit {
		return &IntervalError{Interval: i, Limit: limit, err: ErrDurationExceeded}
	}
	return nil
}

// Overlaps reports whether two half-open intervals intersect:
// a0 < b1 AND b0 < a1.
func (i Interval) Overlaps(o Interval) bool {
	return i.Start < o.Stop && o.Start < i.Stop
}

// Contains reports whether t falls inside [Start, Stop).
func (i Interval) Contains(t uint64) bool {
	return i.Start <= t && t < i.Stop
}

// Duration returns Stop - Start, or zero for an empty/inverted interval.
func (i Interval) Duration() uint64 {
	if i.Stop <= i.Start {
		return 0
	}
	return i.Stop - i.Start
}

// Days returns the duration in days, exact to four decimal places.
func (i Interval) Days() decimal.Decimal {
	return decimalFromUint(i.Duration()).DivRound(decimalFromUint(Day), 4)
}

// Blocks returns how many rent blocks of the given size the interval spans.
// Partial blocks count as a fraction; a zero block time yields zero.
func (i Interval) Blocks(blockTime uint64) decimal.Decimal {
	if blockTime == 0 {
		return decimal.Zero
	}
	return decimalFromUint(i.Duration()).DivRound(decimalFromUint(blockTime), 4)
}

func decimalFromUint(v uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(v), 0)
}

func (i Interval) String() string {
	return fmt.Sprintf("[%d, %d)", i.Start, i.Stop)
}
