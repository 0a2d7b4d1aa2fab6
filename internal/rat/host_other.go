//go:build !linux

package rat

import "time"

// HostCounter derives RAT ticks from the Go monotonic clock.
type HostCounter struct {
	base time.Time
}

// NewHostCounter creates a counter that reads zero now.
func NewHostCounter() *HostCounter {
	return &HostCounter{base: time.Now()}
}

// Now returns the ticks elapsed since the counter was created, truncated to
// 32 bits like the hardware register.
func (c *HostCounter) Now() Time {
	ns := time.Since(c.base).Nanoseconds()
	return Time(uint32(ns * TicksPerMicrosecond / 1000))
}
