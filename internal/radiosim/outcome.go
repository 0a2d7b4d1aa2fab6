package radiosim

import (
	"llsched/internal/rat"
	"llsched/internal/sched"
)

// Outcome decides how the n-th submitted operation ends and how long the
// radio is busy with it.
type Outcome func(n int, op sched.RadioOp) (sched.RFEvent, rat.Ticks)

// AlwaysDone completes every operation after its full window. Receive roles
// hear a packet.
func AlwaysDone() Outcome {
	return func(_ int, op sched.RadioOp) (sched.RFEvent, rat.Ticks) {
		ev := sched.RFEventDone
		if receives(op.Role) {
			ev |= sched.RFEventRxOK
		}
		return ev, op.Window
	}
}

// Busy completes every operation after d ticks regardless of its window.
func Busy(d rat.Ticks) Outcome {
	return func(n int, op sched.RadioOp) (sched.RFEvent, rat.Ticks) {
		ev, _ := AlwaysDone()(n, op)
		return ev, d
	}
}

// DropEvery reports a lost sync on every n-th operation of a receiving role
// and defers to next for the rest.
func DropEvery(n int, next Outcome) Outcome {
	if next == nil {
		next = AlwaysDone()
	}
	count := 0
	return func(i int, op sched.RadioOp) (sched.RFEvent, rat.Ticks) {
		if n > 0 && receives(op.Role) {
			count++
			if count%n == 0 {
				return sched.RFEventDone | sched.RFEventNoSync, op.Window
			}
		}
		return next(i, op)
	}
}

// receives reports whether role listens for its peer.
func receives(role sched.Role) bool {
	switch role {
	case sched.RoleScanner, sched.RoleInitiator, sched.RoleSlave, sched.RolePeriodicScanner:
		return true
	}
	return false
}
