//go:build !lldebug

package sched

// Invariant violations degrade the scheduler instead of halting.
const debugAsserts = false
