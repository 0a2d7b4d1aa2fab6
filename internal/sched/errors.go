package sched

import "errors"

// Capacity errors. The caller decides whether to retry later.
var (
	ErrPoolExhausted = errors.New("task pool exhausted")
	ErrRoleBusy      = errors.New("role already has a task")
	ErrSlotCapacity  = errors.New("connection slots exceed the shortest connection interval")
	ErrDegraded      = errors.New("scheduler degraded after an internal inconsistency")
)

// Invalid caller usage.
var (
	ErrInvalidHandle    = errors.New("invalid task handle")
	ErrStaleHandle      = errors.New("stale task handle (task already freed)")
	ErrInvalidRole      = errors.New("invalid task role")
	ErrRoleMismatch     = errors.New("parameters do not match task role")
	ErrInvalidParams    = errors.New("invalid task parameters")
	ErrNotConfigured    = errors.New("task has no parameters")
	ErrBeyondHorizon    = errors.New("start time beyond the scheduling horizon")
	ErrIntervalTooShort = errors.New("connection interval shorter than the configured minimum")
	ErrNotRunning       = errors.New("task does not own the radio")
)
