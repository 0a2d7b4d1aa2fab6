// internal/sched/scheduler.go

package sched

import (
	"errors"
	"fmt"
	"io"
	"log"
	"math/bits"
	"sync"

	"github.com/emirpasic/gods/queues/circularbuffer"
	"github.com/emirpasic/gods/trees/redblacktree"

	"llsched/internal/drift"
	"llsched/internal/rat"
	"llsched/internal/whitelist"
)

// CompareChannel is the single hardware timer-compare channel. When the
// programmed time is reached the platform calls Scheduler.OnCompare.
type CompareChannel interface {
	SetupCompare(at rat.Time)
	ClearCompare()
}

// RadioDriver runs radio operations. When a submitted operation ends the
// platform calls Scheduler.OnRadioDone. Neither method may call back into
// the scheduler.
type RadioDriver interface {
	Submit(h Handle, op RadioOp) error
	Cancel(h Handle)
}

// Stats counts scheduler decisions.
type Stats struct {
	Scheduled  uint32
	Dispatched uint32
	Completed  uint32
	Skipped    uint32
	Slips      uint32
	Denied     uint32
	Cancelled  uint32
	Dropped    uint32 // events not handed to the recorder because it fell behind
}

// maxPendingEvents bounds the events waiting for the recorder.
const maxPendingEvents = 256

// Scheduler decides which task owns the radio next and programs the compare
// channel for it. All methods may be called from thread or interrupt
// context; shared state is only touched inside the guard.
type Scheduler struct {
	// Scheduler-related
	mu              sync.Locker // critical section; masks the radio interrupts on target
	clock           rat.Counter
	compare         CompareChannel
	radio           RadioDriver
	filter          *whitelist.Filter
	reg             *Registry
	minLead         rat.Ticks // shortest notice the compare channel can be given
	slotsPerMaster  int
	minConnInterval rat.Ticks
	localPPM        drift.PPM

	lastSecondaryRole Role     // last secondary role considered, for round-robin
	current           Handle   // task holding the compare channel or the radio
	armed             bool     // compare programmed for current
	armedAt           rat.Time // programmed compare time
	running           bool     // radio command of current in flight
	degraded          bool

	due *redblacktree.Tree // primary tasks by due time, rebuilt on every pick

	// logging-related
	log        *log.Logger
	recorder   Recorder
	pending    []Event // emitted, not yet recorded
	spare      []Event
	delivering bool
	history    *circularbuffer.Queue // most recent events
	stats      Stats
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithGuard replaces the default mutex with a platform critical section,
// typically an interrupt mask.
func WithGuard(l sync.Locker) Option {
	return func(s *Scheduler) { s.mu = l }
}

// WithLogger logs denials, slips and inconsistencies to l.
func WithLogger(l *log.Logger) Option {
	return func(s *Scheduler) { s.log = l }
}

// WithRecorder forwards every event to r.
func WithRecorder(r Recorder) Option {
	return func(s *Scheduler) { s.recorder = r }
}

// WithFilter sets the whitelist filter used for frame admission.
func WithFilter(f *whitelist.Filter) Option {
	return func(s *Scheduler) { s.filter = f }
}

// New creates a new Scheduler instance with the given configuration.
func New(cfg Config, clock rat.Counter, compare CompareChannel, radio RadioDriver, opts ...Option) *Scheduler {
	cfg.clamp()
	s := &Scheduler{
		mu:                &sync.Mutex{},
		clock:             clock,
		compare:           compare,
		radio:             radio,
		reg:               NewRegistry(cfg.SecondarySlots, cfg.MaxConnections),
		minLead:           rat.Microseconds(int64(cfg.MinLeadUS)),
		slotsPerMaster:    cfg.SlotsPerMaster,
		minConnInterval:   rat.Microseconds(int64(cfg.MinConnIntervalUS)),
		localPPM:          drift.PPM(cfg.LocalPPM),
		lastSecondaryRole: RoleNone,
		log:               log.New(io.Discard, "", 0),
		due:               redblacktree.NewWith(byDue),
		history:           circularbuffer.New(cfg.HistorySize),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Allocate admits a new task for role. Connection tasks are refused when
// their slots would no longer fit in the shortest connection interval.
func (s *Scheduler) Allocate(role Role) (Handle, error) {
	s.mu.Lock()
	defer s.unlock()

	if s.degraded {
		return s.deny(role, ErrDegraded)
	}
	if role.IsPrimary() {
		if err := s.checkSlots(s.reg.Connections() + 1); err != nil {
			return s.deny(role, err)
		}
	}
	h, err := s.reg.Allocate(role)
	if err != nil {
		return s.deny(role, err)
	}
	s.emit(Event{Kind: EventAllocate, Handle: h, Role: role})
	s.verify()
	return h, nil
}

func (s *Scheduler) deny(role Role, err error) (Handle, error) {
	s.stats.Denied++
	s.log.Printf("sched: %s denied: %v", role, err)
	s.emit(Event{Kind: EventDenied, Role: role, Err: err})
	return Handle{}, err
}

// checkSlots reports whether conns connections fit in the shortest
// connection interval.
func (s *Scheduler) checkSlots(conns int) error {
	need := rat.Slots(conns * s.slotsPerMaster)
	if need > s.minConnInterval {
		return fmt.Errorf("%w: %d connections need %v, shortest interval is %v",
			ErrSlotCapacity, conns, need.Duration(), s.minConnInterval.Duration())
	}
	return nil
}

// Free ends a task. A task that holds the compare channel or the radio is
// cancelled first and the next task is scheduled straight away.
func (s *Scheduler) Free(h Handle) error {
	s.mu.Lock()
	defer s.unlock()

	t, err := s.reg.get(h)
	if err != nil {
		s.log.Printf("sched: free %s: %v", h, err)
		return err
	}
	role := t.Role
	wasCurrent := s.release(h)
	if err := s.reg.Free(h); err != nil {
		return err
	}
	s.emit(Event{Kind: EventFree, Handle: h, Role: role})
	s.verify()
	if wasCurrent {
		s.scheduleNext()
	}
	return nil
}

// Convert hands an advertiser over to a slave connection or an initiator to
// a master connection, keeping its pool slot. The task must be configured
// and timed again before it runs.
func (s *Scheduler) Convert(h Handle, role Role) error {
	s.mu.Lock()
	defer s.unlock()

	t, err := s.reg.get(h)
	if err != nil {
		return err
	}
	if err := s.reg.canConvert(t, role); err != nil {
		return err
	}
	if s.degraded {
		_, err := s.deny(role, ErrDegraded)
		return err
	}
	if err := s.checkSlots(s.reg.Connections() + 1); err != nil {
		s.deny(role, err)
		return err
	}
	wasCurrent := s.release(h)
	if err = s.reg.Convert(h, role); err != nil {
		s.fail(fmt.Errorf("convert %s after check: %w", h, err))
	} else {
		s.emit(Event{Kind: EventAllocate, Handle: h, Role: role})
		s.verify()
	}
	if wasCurrent {
		s.scheduleNext()
	}
	return err
}

// Configure sets the role-specific parameters of a task.
func (s *Scheduler) Configure(h Handle, p Params) error {
	s.mu.Lock()
	defer s.unlock()

	t, err := s.reg.get(h)
	if err != nil {
		return err
	}
	if p == nil {
		return ErrNotConfigured
	}
	if !compatible(p, t.Role) {
		return fmt.Errorf("%w: %T for %s", ErrRoleMismatch, p, t.Role)
	}
	if err := validateParams(p); err != nil {
		return err
	}
	t.Params = p
	return nil
}

func validateParams(p Params) error {
	hop := func(h uint8) error {
		if h < 5 || h > 16 {
			return fmt.Errorf("%w: hop increment %d (valid range: 5-16)", ErrInvalidParams, h)
		}
		return nil
	}
	switch p := p.(type) {
	case *ConnParams:
		if p.AccessAddress == AdvAccessAddress {
			return fmt.Errorf("%w: connection uses the advertising access address", ErrInvalidParams)
		}
		if p.PeerSCA > drift.MaxSCA {
			return fmt.Errorf("%w: %w", ErrInvalidParams, drift.ErrInvalidSCA)
		}
		return hop(p.HopIncrement)
	case *PeriodicAdvParams:
		return hop(p.HopIncrement)
	case *PeriodicScanParams:
		if p.PeerSCA > drift.MaxSCA {
			return fmt.Errorf("%w: %w", ErrInvalidParams, drift.ErrInvalidSCA)
		}
		return hop(p.HopIncrement)
	}
	return nil
}

// SetTiming activates a configured task: it first becomes due at start,
// needs window ticks of radio time per event and repeats every interval
// ticks (zero repeats back to back).
func (s *Scheduler) SetTiming(h Handle, start rat.Time, window, interval rat.Ticks) error {
	s.mu.Lock()
	defer s.unlock()

	t, err := s.reg.get(h)
	if err != nil {
		return err
	}
	if t.Params == nil {
		return fmt.Errorf("%w: %s", ErrNotConfigured, h)
	}
	if !rat.WithinHorizon(s.clock.Now(), start) {
		return fmt.Errorf("%w: %s", ErrBeyondHorizon, h)
	}
	if window <= 0 || interval < 0 {
		return fmt.Errorf("%w: window %d, interval %d", ErrInvalidParams, window, interval)
	}
	if t.Role.IsPrimary() {
		if interval < s.minConnInterval {
			return fmt.Errorf("%w: %v < %v", ErrIntervalTooShort, interval.Duration(), s.minConnInterval.Duration())
		}
		if budget := rat.Slots(s.slotsPerMaster); window > budget {
			return fmt.Errorf("%w: connection window %v exceeds %d slots", ErrInvalidParams, window.Duration(), s.slotsPerMaster)
		}
	}
	t.StartTime = start
	t.Window = window
	t.Interval = interval
	t.State = StateActive
	s.scheduleNext()
	return nil
}

// Deactivate takes a task out of scheduling without freeing it.
func (s *Scheduler) Deactivate(h Handle) error {
	s.mu.Lock()
	defer s.unlock()

	t, err := s.reg.get(h)
	if err != nil {
		return err
	}
	t.State = StateInactive
	if s.release(h) {
		s.scheduleNext()
	}
	return nil
}

// ScheduleNext picks the next task and programs the compare channel for it,
// or clears the channel when nothing is ready.
func (s *Scheduler) ScheduleNext() {
	s.mu.Lock()
	defer s.unlock()
	s.scheduleNext()
}

func (s *Scheduler) scheduleNext() {
	// the radio is busy; OnRadioDone schedules again
	if s.running {
		return
	}

	now := s.clock.Now()
	prim := s.nextPrimary(now)
	sec := s.nextSecondary(now)

	next, st := -1, StartNone
	switch {
	case prim < 0 && sec < 0:
		s.idle()
		return
	case prim < 0:
		next = sec
	case sec < 0:
		next = prim
	default:
		st = s.findStartType(&s.reg.tasks[sec], &s.reg.tasks[prim], now)
		next = prim
		if st == StartBefore {
			next = sec
		}
		if st == StartSkip {
			s.stats.Skipped++
			s.emit(Event{Kind: EventSkip, Handle: s.reg.handle(sec), Role: s.reg.tasks[sec].Role, StartType: st})
		}
	}
	s.program(next, st, now)
}

// dueKey orders primary tasks by how far their start lies from now.
type dueKey struct {
	delta rat.Ticks
	idx   int
}

// byDue implements the Comparator interface for red-black tree ordering.
func byDue(a, b any) int {
	ka, kb := a.(dueKey), b.(dueKey)
	switch {
	case ka.delta < kb.delta:
		return -1
	case ka.delta > kb.delta:
		return 1
	case ka.idx < kb.idx:
		return -1
	case ka.idx > kb.idx:
		return 1
	default:
		return 0
	}
}

// nextPrimary returns the pool index of the connection due first, or -1.
func (s *Scheduler) nextPrimary(now rat.Time) int {
	due := s.due
	due.Clear()
	for m := s.reg.mask; m != 0; m &= m - 1 {
		i := bits.TrailingZeros64(m)
		t := &s.reg.tasks[i]
		if !t.Role.IsPrimary() || !t.eligible() {
			continue
		}
		due.Put(dueKey{delta: rat.Delta(s.primaryStart(t), now), idx: i}, t)
	}
	if node := due.Left(); node != nil {
		return node.Key.(dueKey).idx
	}
	return -1
}

// nextSecondary walks the secondary roles round-robin, starting after the
// last one considered, and returns the first ready task. When none is ready
// it returns the one due first, or -1.
func (s *Scheduler) nextSecondary(now rat.Time) int {
	last := -1
	for i, r := range secondaryOrder {
		if r == s.lastSecondaryRole {
			last = i
		}
	}

	ready, earliest := -1, -1
	for k := 1; k <= len(secondaryOrder); k++ {
		role := secondaryOrder[(last+k)%len(secondaryOrder)]
		h, ok := s.reg.Lookup(role)
		if !ok {
			continue
		}
		t := &s.reg.tasks[h.idx]
		if !t.eligible() {
			continue
		}
		if rat.Delta(t.StartTime, now) <= s.minLead {
			ready = h.Index()
			break
		}
		if earliest < 0 || rat.IsBefore(t.StartTime, s.reg.tasks[earliest].StartTime) {
			earliest = h.Index()
		}
	}

	next := ready
	if next < 0 {
		next = earliest
	}
	if next >= 0 {
		s.lastSecondaryRole = s.reg.tasks[next].Role
	}
	return next
}

// findStartType decides whether sec can run ahead of prim. Primary tasks are
// never delayed: a secondary window that would end at or after the primary
// start is deferred.
func (s *Scheduler) findStartType(sec, prim *Task, now rat.Time) StartType {
	primStart := s.primaryStart(prim)
	secStart := sec.StartTime
	if earliest := now.Add(s.minLead); rat.IsBefore(secStart, earliest) {
		secStart = earliest
	}
	if !rat.IsBefore(secStart, primStart) {
		return StartAfter
	}
	secEnd := secStart.Add(sec.Window + s.minLead)
	if rat.IsBefore(secEnd, primStart) {
		return StartBefore
	}
	return StartSkip
}

// primaryStart is when a connection task needs the radio: its anchor
// prediction less the drift margin.
func (s *Scheduler) primaryStart(t *Task) rat.Time {
	return t.StartTime.Add(-s.margin(t))
}

// margin is the receive window widening for tasks synchronised to a peer.
func (s *Scheduler) margin(t *Task) rat.Ticks {
	var sca drift.SCA
	switch p := t.Params.(type) {
	case *ConnParams:
		sca = p.PeerSCA
	case *PeriodicScanParams:
		sca = p.PeerSCA
	default:
		return 0
	}
	since := t.Interval
	if t.hasAnchor {
		since = rat.Delta(t.StartTime, t.AnchorPoint)
	}
	return drift.WindowWidening(drift.Factor(sca, s.localPPM), since)
}

// program arms the compare channel for pool slot i. A start that can no
// longer be met is moved to the earliest time the channel accepts; for
// periodic tasks that counts as a slip.
func (s *Scheduler) program(i int, st StartType, now rat.Time) {
	t := &s.reg.tasks[i]
	h := s.reg.handle(i)

	at := t.StartTime
	if t.Role.IsPrimary() {
		at = s.primaryStart(t)
	}
	if earliest := now.Add(s.minLead); rat.IsBefore(at, earliest) {
		// back-to-back tasks have no fixed start to miss
		fixed := t.Role.IsPrimary() || t.Interval > 0
		if fixed && rat.IsBefore(at, now) {
			s.stats.Slips++
			s.log.Printf("sched: %s %s late by %v, re-armed", t.Role, h, rat.Delta(now, at).Duration())
			s.emit(Event{Kind: EventSlip, Handle: h, Role: t.Role, Start: earliest})
		}
		at = earliest
	}

	s.compare.SetupCompare(at)
	s.armed = true
	s.armedAt = at
	s.current = h
	s.stats.Scheduled++
	s.emit(Event{Kind: EventSchedule, Handle: h, Role: t.Role, Start: at, StartType: st})
}

func (s *Scheduler) idle() {
	if !s.armed && !s.current.Valid() {
		return
	}
	if s.armed {
		s.compare.ClearCompare()
		s.armed = false
	}
	s.current = Handle{}
	s.emit(Event{Kind: EventIdle})
}

// release detaches h from the compare channel and the radio. It reports
// whether h was the current task.
func (s *Scheduler) release(h Handle) bool {
	if s.current != h {
		return false
	}
	if s.running {
		s.radio.Cancel(h)
		s.running = false
		s.stats.Cancelled++
		s.emit(Event{Kind: EventCancel, Handle: h, Role: s.reg.tasks[h.idx].Role})
	}
	if s.armed {
		s.compare.ClearCompare()
		s.armed = false
	}
	s.current = Handle{}
	return true
}

// OnCompare handles the compare channel interrupt: the current task is set
// up and handed to the radio.
func (s *Scheduler) OnCompare() {
	s.mu.Lock()
	defer s.unlock()

	if !s.armed || s.running {
		return
	}
	s.armed = false
	h := s.current
	t, err := s.reg.get(h)
	if err != nil {
		s.fail(fmt.Errorf("compare fired for %s: %w", h, err))
		s.current = Handle{}
		s.scheduleNext()
		return
	}

	now := s.clock.Now()
	op := s.setup(t, now)
	t.Command = op
	s.running = true
	if err := s.radio.Submit(h, op); err != nil {
		s.log.Printf("sched: submit %s %s: %v", t.Role, h, err)
		s.running = false
		s.finish(h, t, RFEventError)
		return
	}
	s.stats.Dispatched++
	s.emit(Event{Kind: EventDispatch, Handle: h, Role: t.Role, Start: op.Start})
}

// setup fills in the radio operation for t.
func (s *Scheduler) setup(t *Task, now rat.Time) RadioOp {
	op := RadioOp{
		Role:          t.Role,
		AccessAddress: AdvAccessAddress,
		Start:         t.StartTime,
		Window:        t.Window,
	}

	switch p := t.Params.(type) {
	case *AdvParams:
		op.Channel = firstAdvChannel(p.ChannelMap)
		op.PDU = p.PDU
		op.Whitelist = s.whitelistFor(t.Role)
	case *ScanParams:
		op.Channel = nextAdvChannel(p.ChannelMap, &p.next)
		op.Whitelist = s.whitelistFor(t.Role)
	case *InitParams:
		op.Channel = nextAdvChannel(p.ChannelMap, &p.next)
		op.Whitelist = s.whitelistFor(t.Role)
	case *ConnParams:
		op.AccessAddress = p.AccessAddress
		op.Channel = hopChannel(p.ChannelMap, p.HopIncrement, &p.unmapped)
		op.EventCounter = p.EventCounter
		if t.Role == RoleSlave {
			op.WindowWidening = s.margin(t)
		}
	case *PeriodicAdvParams:
		op.AccessAddress = p.AccessAddress
		op.Channel = hopChannel(p.ChannelMap, p.HopIncrement, &p.unmapped)
		op.EventCounter = p.EventCounter
		op.PDU = p.PDU
	case *PeriodicScanParams:
		op.AccessAddress = p.AccessAddress
		op.Channel = hopChannel(p.ChannelMap, p.HopIncrement, &p.unmapped)
		op.EventCounter = p.EventCounter
		op.WindowWidening = s.margin(t)
	}

	op.Start = op.Start.Add(-op.WindowWidening)
	op.Window += 2 * op.WindowWidening
	if rat.IsBefore(op.Start, now) {
		op.Start = now
	}
	return op
}

func (s *Scheduler) whitelistFor(role Role) *whitelist.Table {
	if s.filter == nil {
		return nil
	}
	filtered := false
	switch role {
	case RoleAdvertiser:
		filtered = s.filter.AdvPolicy != whitelist.AdvAllowAll
	case RoleScanner:
		filtered = s.filter.ScanPolicy == whitelist.ScanWhitelistOnly
	case RoleInitiator:
		filtered = s.filter.InitPolicy == whitelist.InitWhitelist
	}
	if !filtered {
		return nil
	}
	return s.filter.Table
}

// OnRadioDone handles the end of the radio command of h with outcome ev and
// schedules the next task.
func (s *Scheduler) OnRadioDone(h Handle, ev RFEvent) error {
	s.mu.Lock()
	defer s.unlock()

	if !s.running || s.current != h {
		return fmt.Errorf("%w: %s", ErrNotRunning, h)
	}
	t, err := s.reg.get(h)
	if err != nil {
		return err
	}
	s.running = false
	s.finish(h, t, ev)
	return nil
}

// finish records the outcome of an event and moves the task to its next
// start.
func (s *Scheduler) finish(h Handle, t *Task, ev RFEvent) {
	now := s.clock.Now()
	t.RFEvents = ev

	switch p := t.Params.(type) {
	case *ConnParams:
		p.EventCounter++
		if ev.synced() {
			t.AnchorPoint = t.StartTime
			t.hasAnchor = true
		}
	case *PeriodicScanParams:
		p.EventCounter++
		if ev.synced() {
			t.AnchorPoint = t.StartTime
			t.hasAnchor = true
		}
	case *PeriodicAdvParams:
		p.EventCounter++
	}

	t.LastStartTime = t.StartTime
	if t.Interval > 0 {
		t.StartTime = t.StartTime.Add(t.Interval)
	} else {
		t.StartTime = now
	}

	s.current = Handle{}
	s.stats.Completed++
	s.emit(Event{Kind: EventComplete, Handle: h, Role: t.Role, RFEvents: ev})
	s.scheduleNext()
}

// FrameKind classifies an incoming frame for admission.
type FrameKind uint8

const (
	FrameAdvertisement FrameKind = iota
	FrameScanRequest
	FrameConnectRequest
)

// AdmitFrame reports whether task h should accept a frame of the given kind
// from peer. Frames a role never handles are refused.
func (s *Scheduler) AdmitFrame(h Handle, kind FrameKind, from whitelist.Peer) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.reg.get(h)
	if err != nil {
		return false, err
	}
	f := s.filter
	if f == nil {
		f = &whitelist.Filter{}
	}
	switch {
	case t.Role == RoleAdvertiser && kind == FrameScanRequest:
		return f.AdmitScanRequest(from), nil
	case t.Role == RoleAdvertiser && kind == FrameConnectRequest:
		return f.AdmitConnectRequest(from), nil
	case t.Role == RoleScanner && kind == FrameAdvertisement:
		return f.AdmitAdvertisement(from), nil
	case t.Role == RoleInitiator && kind == FrameAdvertisement:
		local := *f
		if p, ok := t.Params.(*InitParams); ok {
			local.InitPeer = p.Peer
		}
		return local.AdmitConnectable(from), nil
	}
	return false, nil
}

// CurrentTask returns the task holding the compare channel or the radio.
func (s *Scheduler) CurrentTask() (Handle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current, s.current.Valid()
}

// Running reports whether a radio command is in flight.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Armed returns the programmed compare time, if any.
func (s *Scheduler) Armed() (rat.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.armedAt, s.armed
}

// ActiveTaskCount returns the number of allocated tasks.
func (s *Scheduler) ActiveTaskCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reg.ActiveCount()
}

// ActiveMask has a bit set for every allocated pool slot.
func (s *Scheduler) ActiveMask() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reg.ActiveMask()
}

// Lookup returns the first task with the given role.
func (s *Scheduler) Lookup(role Role) (Handle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reg.Lookup(role)
}

// Task returns a snapshot of the task h refers to.
func (s *Scheduler) Task(h Handle) (Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.reg.get(h)
	if err != nil {
		return Task{}, err
	}
	return *t, nil
}

// Stats returns the decision counters.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Degraded reports whether an inconsistency has stopped new admissions.
func (s *Scheduler) Degraded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.degraded
}

// History returns the most recent events, oldest first.
func (s *Scheduler) History() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	values := s.history.Values()
	out := make([]Event, 0, len(values))
	for _, v := range values {
		out = append(out, v.(Event))
	}
	return out
}

func (s *Scheduler) emit(ev Event) {
	ev.Time = s.clock.Now()
	if s.history.Full() {
		s.history.Dequeue()
	}
	s.history.Enqueue(ev)
	if s.recorder == nil {
		return
	}
	if len(s.pending) >= maxPendingEvents {
		s.stats.Dropped++
		return
	}
	s.pending = append(s.pending, ev)
}

// unlock leaves the critical section and then hands pending events to the
// recorder in order. Only one caller delivers at a time; events emitted
// meanwhile are picked up by that caller's next batch.
func (s *Scheduler) unlock() {
	if s.delivering || len(s.pending) == 0 {
		s.mu.Unlock()
		return
	}
	s.delivering = true
	for len(s.pending) > 0 {
		batch := s.pending
		s.pending = s.spare[:0]
		s.mu.Unlock()

		for _, ev := range batch {
			s.recorder.Record(ev)
		}

		s.mu.Lock()
		s.spare = batch[:0]
	}
	s.delivering = false
	s.mu.Unlock()
}

// verify checks the scheduler bookkeeping after every admission change.
func (s *Scheduler) verify() {
	err := s.reg.check()
	if err == nil && s.running && !s.current.Valid() {
		err = errors.New("radio running without a current task")
	}
	if err != nil {
		s.fail(err)
	}
}

// fail handles a broken invariant: a panic in debug builds, otherwise the
// scheduler keeps serving existing tasks but admits no new ones.
func (s *Scheduler) fail(err error) {
	if debugAsserts {
		panic(err)
	}
	if !s.degraded {
		s.log.Printf("sched: %v; denying new tasks", err)
	}
	s.degraded = true
}
