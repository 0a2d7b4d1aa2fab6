// Package rat implements wraparound-safe arithmetic on the 32-bit Radio
// Access Timer (RAT), the free-running counter every radio operation is
// timed against.
package rat

import "time"

// The RAT runs at 4 MHz.
const (
	TicksPerMicrosecond = 4
	TicksPerSlot        = 625 * TicksPerMicrosecond // one 625us BLE slot
	TicksPerSecond      = 1_000_000 * TicksPerMicrosecond
)

// Limits of unambiguous interval arithmetic.
const (
	Max32BitTimeIn625us = 0x07A12000 // 32s, the supervision timeout limit
	MaxOverlapTimeLimit = 0x7270E000 // 8 minutes, half of the ~17 minute counter wrap
	Max32BitTime        = 0xFFFFFFFF
)

// Time is a RAT timestamp. It wraps every 2^32 ticks.
type Time uint32

// Ticks is a signed RAT interval.
type Ticks int32

// Counter reads the hardware counter. Reads have no side effects.
type Counter interface {
	Now() Time
}

// Delta returns a - b. The result is correct across a counter wrap as long
// as the real interval is strictly shorter than 2^31 ticks.
func Delta(a, b Time) Ticks {
	return Ticks(int32(uint32(a) - uint32(b)))
}

// IsBefore reports whether a happens strictly before b.
func IsBefore(a, b Time) bool { return Delta(a, b) < 0 }

// IsAfter reports whether a happens strictly after b.
func IsAfter(a, b Time) bool { return Delta(a, b) > 0 }

// Compare returns -1, 0 or 1 depending on whether a is before, equal to or
// after b.
func Compare(a, b Time) int {
	switch d := Delta(a, b); {
	case d < 0:
		return -1
	case d > 0:
		return 1
	default:
		return 0
	}
}

// Elapsed is the forward distance from 'from' to 'to', modulo 2^32.
func Elapsed(from, to Time) uint32 {
	return uint32(to) - uint32(from)
}

// WithinHorizon reports whether t lies no further ahead of now than
// MaxOverlapTimeLimit. Times in the past are within the horizon.
func WithinHorizon(now, t Time) bool {
	return Delta(t, now) <= MaxOverlapTimeLimit
}

// Add returns t shifted by d ticks.
func (t Time) Add(d Ticks) Time {
	return Time(uint32(t) + uint32(d))
}

// Microseconds converts microseconds to ticks.
func Microseconds(us int64) Ticks {
	return Ticks(us * TicksPerMicrosecond)
}

// Slots converts a number of 625us slots to ticks.
func Slots(n int) Ticks {
	return Ticks(n * TicksPerSlot)
}

// Duration converts d to wall time.
func (d Ticks) Duration() time.Duration {
	return time.Duration(int64(d)) * time.Microsecond / TicksPerMicrosecond
}

// FromDuration converts wall time to ticks, truncating below one tick.
func FromDuration(d time.Duration) Ticks {
	return Ticks(d * TicksPerMicrosecond / time.Microsecond)
}
