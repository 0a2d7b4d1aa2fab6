//go:build linux

package rat

import "golang.org/x/sys/unix"

// HostCounter derives RAT ticks from CLOCK_MONOTONIC.
type HostCounter struct {
	base int64
}

// NewHostCounter creates a counter that reads zero now.
func NewHostCounter() *HostCounter {
	return &HostCounter{base: monotonicNanos()}
}

// Now returns the ticks elapsed since the counter was created, truncated to
// 32 bits like the hardware register.
func (c *HostCounter) Now() Time {
	ns := monotonicNanos() - c.base
	return Time(uint32(ns * TicksPerMicrosecond / 1000))
}

func monotonicNanos() int64 {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts); err != nil {
		return 0
	}
	return ts.Nano()
}
