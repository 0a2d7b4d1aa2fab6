package sched

import (
	"fmt"

	"llsched/internal/rat"
)

// Role identifies what a task does with the radio. The values double as
// bits in the role masks below.
type Role uint8

const (
	RoleAdvertiser         Role = 0x01
	RoleScanner            Role = 0x02
	RoleInitiator          Role = 0x04
	RolePeriodicAdvertiser Role = 0x08
	RolePeriodicScanner    Role = 0x10
	RoleSlave              Role = 0x40
	RoleMaster             Role = 0x80
	RoleNone               Role = 0xFF
)

const secondaryMask = RoleAdvertiser | RoleScanner | RoleInitiator | RolePeriodicAdvertiser | RolePeriodicScanner

// secondaryOrder is the round-robin order of secondary roles.
var secondaryOrder = [...]Role{
	RoleAdvertiser,
	RoleScanner,
	RoleInitiator,
	RolePeriodicAdvertiser,
	RolePeriodicScanner,
}

// IsPrimary reports whether r is a connection role. Connection timing is
// negotiated with a peer and cannot slip.
func (r Role) IsPrimary() bool { return r == RoleSlave || r == RoleMaster }

// IsSecondary reports whether r is a single secondary role.
func (r Role) IsSecondary() bool {
	return r&secondaryMask != 0 && r&(r-1) == 0 && r&^secondaryMask == 0
}

func (r Role) String() string {
	switch r {
	case RoleAdvertiser:
		return "Advertiser"
	case RoleScanner:
		return "Scanner"
	case RoleInitiator:
		return "Initiator"
	case RolePeriodicAdvertiser:
		return "PeriodicAdv"
	case RolePeriodicScanner:
		return "PeriodicScan"
	case RoleSlave:
		return "Slave"
	case RoleMaster:
		return "Master"
	case RoleNone:
		return "None"
	default:
		return fmt.Sprintf("Role(%#x)", uint8(r))
	}
}

// State is whether a task takes part in scheduling. A task that currently
// owns the radio is still Active; ownership is tracked by the scheduler.
type State uint8

const (
	StateInactive State = iota
	StateActive
)

func (s State) String() string {
	if s == StateActive {
		return "Active"
	}
	return "Inactive"
}

// RFEvent is a bitmask of outcomes reported for the last radio command.
type RFEvent uint32

const (
	RFEventDone     RFEvent = 1 << iota // command finished
	RFEventRxOK                         // at least one packet received
	RFEventNoSync                       // nothing heard in the receive window
	RFEventCRCError                     // packet received with a bad CRC
	RFEventAborted                      // command cancelled or preempted
	RFEventError                        // radio reported a failure
)

// synced reports whether the event re-established timing with the peer.
func (e RFEvent) synced() bool {
	return e&RFEventDone != 0 && e&(RFEventNoSync|RFEventAborted|RFEventError) == 0
}

func (e RFEvent) String() string {
	if e == 0 {
		return "-"
	}
	names := []struct {
		bit  RFEvent
		name string
	}{
		{RFEventDone, "done"},
		{RFEventRxOK, "rx"},
		{RFEventNoSync, "nosync"},
		{RFEventCRCError, "crc"},
		{RFEventAborted, "aborted"},
		{RFEventError, "error"},
	}
	out := ""
	for _, n := range names {
		if e&n.bit == 0 {
			continue
		}
		if out != "" {
			out += "|"
		}
		out += n.name
	}
	return out
}

// Handle refers to a task in the pool. Handles carry a generation so that a
// handle kept past Free is detected instead of aliasing the next owner of
// the slot. The zero Handle is never valid.
type Handle struct {
	idx uint16
	gen uint16
}

// Valid reports whether h was ever issued by a registry.
func (h Handle) Valid() bool { return h.gen != 0 }

// Index returns the pool slot h refers to.
func (h Handle) Index() int { return int(h.idx) }

func (h Handle) String() string {
	if !h.Valid() {
		return "none"
	}
	return fmt.Sprintf("%d.%d", h.idx, h.gen)
}

// Task is one radio role instance.
type Task struct {
	Role          Role
	State         State
	Command       RadioOp  // last radio operation handed to the driver
	StartTime     rat.Time // next start of the task
	AnchorPoint   rat.Time // last synchronised connection event
	LastStartTime rat.Time
	Window        rat.Ticks // radio time needed per event
	Interval      rat.Ticks // 0 runs the task back to back
	Params        Params
	RFEvents      RFEvent

	hasAnchor bool
}

// eligible reports whether t may be picked by the scheduler.
func (t *Task) eligible() bool {
	return t.State == StateActive && t.Params != nil
}
