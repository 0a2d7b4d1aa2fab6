//go:build lldebug

package sched

// Invariant violations panic.
const debugAsserts = true
