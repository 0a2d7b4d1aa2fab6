package rat

import "sync/atomic"

// SimCounter is a counter advanced by hand. It stands in for the hardware
// RAT in tests and in the host simulator.
type SimCounter struct {
	count atomic.Uint32
}

// NewSimCounter creates a counter starting at t.
func NewSimCounter(t Time) *SimCounter {
	c := &SimCounter{}
	c.count.Store(uint32(t))
	return c
}

// Now returns the current count atomically.
func (c *SimCounter) Now() Time { return Time(c.count.Load()) }

// Advance moves the counter forward by d ticks and returns the new time.
func (c *SimCounter) Advance(d Ticks) Time {
	return Time(c.count.Add(uint32(d)))
}

// Set jumps the counter to t.
func (c *SimCounter) Set(t Time) { c.count.Store(uint32(t)) }
