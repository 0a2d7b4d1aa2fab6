// Package radiosim simulates the radio core and the RAT compare channel so
// the scheduler can run on a host.
package radiosim

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"llsched/internal/rat"
	"llsched/internal/sched"
)

// ErrBusy is returned by Submit while another operation is in flight.
var ErrBusy = errors.New("radio busy")

// Submission is one operation handed to the radio.
type Submission struct {
	Handle sched.Handle
	Op     sched.RadioOp
	Event  sched.RFEvent // outcome reported back
	End    rat.Time
}

// Radio implements sched.CompareChannel and sched.RadioDriver over a
// simulated counter. Interrupts are delivered by Step.
type Radio struct {
	mu      sync.Mutex
	clock   *rat.SimCounter
	outcome Outcome

	armed     bool
	compareAt rat.Time

	inflight bool
	current  Submission

	submitted []Submission
	cancelled int
	failNext  error
}

// New creates a radio driven by clock. A nil outcome completes every
// operation after its full window.
func New(clock *rat.SimCounter, outcome Outcome) *Radio {
	if outcome == nil {
		outcome = AlwaysDone()
	}
	return &Radio{clock: clock, outcome: outcome}
}

// SetupCompare arms the compare channel.
func (r *Radio) SetupCompare(at rat.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.armed = true
	r.compareAt = at
}

// ClearCompare disarms the compare channel.
func (r *Radio) ClearCompare() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.armed = false
}

// Submit starts op. Its outcome and duration are decided now and reported
// by a later Step.
func (r *Radio) Submit(h sched.Handle, op sched.RadioOp) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.failNext; err != nil {
		r.failNext = nil
		return err
	}
	if r.inflight {
		return fmt.Errorf("%w: %s still running", ErrBusy, r.current.Handle)
	}
	ev, dur := r.outcome(len(r.submitted), op)
	if dur < 0 {
		dur = 0
	}
	start := r.clock.Now()
	if rat.IsAfter(op.Start, start) {
		start = op.Start
	}
	r.current = Submission{Handle: h, Op: op, Event: ev, End: start.Add(dur)}
	r.inflight = true
	r.submitted = append(r.submitted, r.current)
	return nil
}

// Cancel aborts the operation of h, if it is running.
func (r *Radio) Cancel(h sched.Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.inflight && r.current.Handle == h {
		r.inflight = false
		r.cancelled++
	}
}

// FailNextSubmit makes the next Submit return err.
func (r *Radio) FailNextSubmit(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failNext = err
}

// Armed returns the programmed compare time, if any.
func (r *Radio) Armed() (rat.Time, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.compareAt, r.armed
}

// Busy reports whether an operation is in flight.
func (r *Radio) Busy() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.inflight
}

// Submissions returns every operation submitted so far.
func (r *Radio) Submissions() []Submission {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Submission(nil), r.submitted...)
}

// Cancelled returns the number of aborted operations.
func (r *Radio) Cancelled() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cancelled
}

// Step delivers the next pending interrupt to s, moving the clock forward
// to it: the end of the running operation, or else the compare match. It
// returns false when nothing is pending.
func (r *Radio) Step(s *sched.Scheduler) bool {
	r.mu.Lock()
	switch {
	case r.inflight:
		sub := r.current
		r.inflight = false
		r.advanceTo(sub.End)
		r.mu.Unlock()

		// fails only if the task was freed while the radio ran
		_ = s.OnRadioDone(sub.Handle, sub.Event)
		return true

	case r.armed:
		r.armed = false
		r.advanceTo(r.compareAt)
		r.mu.Unlock()

		s.OnCompare()
		return true
	}
	r.mu.Unlock()
	return false
}

// Run steps s until n interrupts were delivered, nothing is pending or ctx
// is done. It returns the number of steps taken.
func (r *Radio) Run(ctx context.Context, s *sched.Scheduler, n int) int {
	steps := 0
	for steps < n {
		select {
		case <-ctx.Done():
			return steps
		default:
		}
		if !r.Step(s) {
			break
		}
		steps++
	}
	return steps
}

// advanceTo moves the clock forward to t; the clock never runs backwards.
func (r *Radio) advanceTo(t rat.Time) {
	if d := rat.Delta(t, r.clock.Now()); d > 0 {
		r.clock.Advance(d)
	}
}
