// internal/sched/schedulerEvent.go

package sched

import (
	"llsched/internal/rat"
)

// EventKind represents the type of scheduler event
type EventKind int

const (
	EventIdle EventKind = iota
	EventAllocate
	EventDenied
	EventSchedule
	EventDispatch
	EventComplete
	EventSkip
	EventSlip
	EventCancel
	EventFree
)

// StartType is the outcome of weighing a secondary task against the next
// primary task.
type StartType uint8

const (
	StartNone   StartType = iota
	StartBefore           // secondary fits before the primary task
	StartAfter            // secondary is not due until after the primary task
	StartSkip             // secondary is due but does not fit; deferred
)

// Event is emitted on every scheduler decision.
type Event struct {
	Time      rat.Time
	Kind      EventKind
	Handle    Handle
	Role      Role
	Start     rat.Time // programmed compare time for EventSchedule and EventSlip
	StartType StartType
	RFEvents  RFEvent
	Err       error
}

// Recorder receives scheduler events. Record is called in event order, one
// call at a time, after the scheduler has left its critical section, so it
// may block or call back into the scheduler.
type Recorder interface {
	Record(Event)
}

func (k EventKind) String() string {
	switch k {
	case EventIdle:
		return "Idle"
	case EventAllocate:
		return "Allocate"
	case EventDenied:
		return "Denied"
	case EventSchedule:
		return "Schedule"
	case EventDispatch:
		return "Dispatch"
	case EventComplete:
		return "Complete"
	case EventSkip:
		return "Skip"
	case EventSlip:
		return "Slip"
	case EventCancel:
		return "Cancel"
	case EventFree:
		return "Free"
	default:
		return "Unknown"
	}
}

func (st StartType) String() string {
	switch st {
	case StartBefore:
		return "before"
	case StartAfter:
		return "after"
	case StartSkip:
		return "skip"
	default:
		return "-"
	}
}
