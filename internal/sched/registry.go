package sched

import (
	"fmt"
	"math/bits"
)

// MaxTasks bounds the pool so the active mask fits in a uint64.
const MaxTasks = 64

// Registry is a fixed pool of task descriptors. At most one task exists per
// secondary role, secondary tasks share secondarySlots entries, and every
// connection takes one of maxConns entries. Registry is not safe for
// concurrent use; the Scheduler guards it.
type Registry struct {
	tasks []Task
	gens  []uint16
	mask  uint64
	count int

	secondarySlots int
	maxConns       int
	secondary      int
	conns          int
}

// NewRegistry creates a pool with room for secondarySlots secondary tasks
// plus maxConns connections.
func NewRegistry(secondarySlots, maxConns int) *Registry {
	if secondarySlots < 0 {
		secondarySlots = 0
	}
	if secondarySlots > len(secondaryOrder) {
		secondarySlots = len(secondaryOrder)
	}
	if maxConns < 0 {
		maxConns = 0
	}
	if secondarySlots+maxConns > MaxTasks {
		maxConns = MaxTasks - secondarySlots
	}
	n := secondarySlots + maxConns
	return &Registry{
		tasks:          make([]Task, n),
		gens:           make([]uint16, n),
		secondarySlots: secondarySlots,
		maxConns:       maxConns,
	}
}

// Capacity returns the pool size.
func (r *Registry) Capacity() int { return len(r.tasks) }

// ActiveCount returns the number of allocated tasks.
func (r *Registry) ActiveCount() int { return r.count }

// ActiveMask has bit i set when pool slot i is allocated.
func (r *Registry) ActiveMask() uint64 { return r.mask }

// Connections returns the number of allocated connection tasks.
func (r *Registry) Connections() int { return r.conns }

// Allocate takes the lowest free slot for a task with the given role. The
// task starts Inactive.
func (r *Registry) Allocate(role Role) (Handle, error) {
	switch {
	case role.IsPrimary():
		if r.conns >= r.maxConns {
			return Handle{}, fmt.Errorf("%w: %d of %d connections in use", ErrPoolExhausted, r.conns, r.maxConns)
		}
	case role.IsSecondary():
		if _, ok := r.Lookup(role); ok {
			return Handle{}, fmt.Errorf("%w: %s", ErrRoleBusy, role)
		}
		if r.secondary >= r.secondarySlots {
			return Handle{}, fmt.Errorf("%w: %d of %d secondary slots in use", ErrPoolExhausted, r.secondary, r.secondarySlots)
		}
	default:
		return Handle{}, fmt.Errorf("%w: %s", ErrInvalidRole, role)
	}

	free := ^r.mask
	if n := len(r.tasks); n < MaxTasks {
		free &= 1<<n - 1
	}
	if free == 0 {
		return Handle{}, ErrPoolExhausted
	}
	i := bits.TrailingZeros64(free)

	r.gens[i]++
	if r.gens[i] == 0 {
		r.gens[i] = 1
	}
	r.tasks[i] = Task{Role: role, State: StateInactive}
	r.mask |= 1 << i
	r.count++
	if role.IsPrimary() {
		r.conns++
	} else {
		r.secondary++
	}
	return Handle{idx: uint16(i), gen: r.gens[i]}, nil
}

// Free returns h's slot to the pool. Freeing a handle twice reports
// ErrStaleHandle.
func (r *Registry) Free(h Handle) error {
	t, err := r.get(h)
	if err != nil {
		return err
	}
	if t.Role.IsPrimary() {
		r.conns--
	} else {
		r.secondary--
	}
	*t = Task{Role: RoleNone, State: StateInactive}
	r.mask &^= 1 << h.idx
	r.count--
	return nil
}

// Convert changes the role of an allocated task in place. Only the hand-over
// of an advertiser to a slave connection and of an initiator to a master
// connection is allowed; the slot moves from the secondary budget to the
// connection budget.
func (r *Registry) Convert(h Handle, role Role) error {
	t, err := r.get(h)
	if err != nil {
		return err
	}
	if err := r.canConvert(t, role); err != nil {
		return err
	}
	r.secondary--
	r.conns++
	*t = Task{Role: role, State: StateInactive}
	return nil
}

// canConvert reports why t cannot become a role task, without changing
// anything.
func (r *Registry) canConvert(t *Task, role Role) error {
	ok := (t.Role == RoleAdvertiser && role == RoleSlave) ||
		(t.Role == RoleInitiator && role == RoleMaster)
	if !ok {
		return fmt.Errorf("%w: cannot convert %s to %s", ErrInvalidRole, t.Role, role)
	}
	if r.conns >= r.maxConns {
		return fmt.Errorf("%w: %d of %d connections in use", ErrPoolExhausted, r.conns, r.maxConns)
	}
	return nil
}

// Lookup returns the first allocated task with the given role.
func (r *Registry) Lookup(role Role) (Handle, bool) {
	for m := r.mask; m != 0; m &= m - 1 {
		i := bits.TrailingZeros64(m)
		if r.tasks[i].Role == role {
			return Handle{idx: uint16(i), gen: r.gens[i]}, true
		}
	}
	return Handle{}, false
}

// handle returns the current handle of allocated slot i.
func (r *Registry) handle(i int) Handle {
	return Handle{idx: uint16(i), gen: r.gens[i]}
}

func (r *Registry) get(h Handle) (*Task, error) {
	if !h.Valid() || int(h.idx) >= len(r.tasks) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidHandle, h)
	}
	if r.mask&(1<<h.idx) == 0 || r.gens[h.idx] != h.gen {
		return nil, fmt.Errorf("%w: %s", ErrStaleHandle, h)
	}
	return &r.tasks[h.idx], nil
}

// check verifies the pool bookkeeping.
func (r *Registry) check() error {
	if n := bits.OnesCount64(r.mask); n != r.count {
		return fmt.Errorf("active mask has %d bits, count is %d", n, r.count)
	}
	if r.count > len(r.tasks) {
		return fmt.Errorf("%d tasks allocated in a pool of %d", r.count, len(r.tasks))
	}
	if r.conns+r.secondary != r.count {
		return fmt.Errorf("%d connections + %d secondary != %d tasks", r.conns, r.secondary, r.count)
	}
	return nil
}
