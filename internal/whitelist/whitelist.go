// Package whitelist keeps the fixed-size table of allow-listed peer
// addresses consulted by advertising, scanning and initiating tasks.
package whitelist

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// AddrSize is the length of a device address.
const AddrSize = 6

// NoMatch is the index returned by Find on a miss.
const NoMatch = -1

var (
	ErrNoSpace      = errors.New("whitelist has no free entry or address already listed")
	ErrNotFound     = errors.New("address not in whitelist")
	ErrInvalidTable = errors.New("invalid whitelist table")
	ErrBadAddress   = errors.New("malformed device address")
)

// Address is a device address, most significant byte first.
type Address [AddrSize]byte

// String formats the address as AA:BB:CC:DD:EE:FF.
func (a Address) String() string {
	var b strings.Builder
	for i, v := range a {
		if i > 0 {
			b.WriteByte(':')
		}
		fmt.Fprintf(&b, "%02X", v)
	}
	return b.String()
}

// ParseAddress parses AA:BB:CC:DD:EE:FF.
func ParseAddress(s string) (Address, error) {
	var a Address
	parts := strings.Split(s, ":")
	if len(parts) != AddrSize {
		return a, fmt.Errorf("%w: %q", ErrBadAddress, s)
	}
	for i, p := range parts {
		v, err := strconv.ParseUint(p, 16, 8)
		if err != nil || len(p) != 2 {
			return a, fmt.Errorf("%w: %q", ErrBadAddress, s)
		}
		a[i] = byte(v)
	}
	return a, nil
}

// AddrType distinguishes public from random addresses.
type AddrType uint8

const (
	Public AddrType = iota
	Random
)

func (t AddrType) String() string {
	switch t {
	case Public:
		return "public"
	case Random:
		return "random"
	default:
		return "unknown"
	}
}

// ParseAddrType accepts "public" or "random".
func ParseAddrType(s string) (AddrType, error) {
	switch strings.ToLower(s) {
	case "public", "":
		return Public, nil
	case "random":
		return Random, nil
	}
	return 0, fmt.Errorf("%w: address type %q", ErrBadAddress, s)
}

// Behavior selects whether a newly added entry takes part in filtering.
type Behavior uint8

const (
	IgnoreEntry Behavior = iota
	UseEntry
)

// Entry is one whitelist slot.
type Entry struct {
	Address       Address
	Type          AddrType
	InUse         bool
	Ignore        bool // temporarily excluded without removal
	PrivacyIgnore bool // excluded from the resolving list cross-check
}

func (e *Entry) matches(addr Address, typ AddrType) bool {
	return e.InUse && e.Type == typ && e.Address == addr
}

// Table is a fixed-capacity whitelist. The zero value is unusable; create
// tables with New or NewSized.
type Table struct {
	entries []Entry
	busy    int
}

// Size returns the table capacity needed for core entries plus the privacy
// bookkeeping of a resolving list with resolvingList entries.
func Size(core, resolvingList int) int {
	return core + 2*resolvingList + 1
}

// New creates an empty table with room for capacity entries.
func New(capacity int) *Table {
	if capacity < 0 {
		capacity = 0
	}
	return &Table{entries: make([]Entry, capacity)}
}

// NewSized creates a table sized with Size.
func NewSized(core, resolvingList int) *Table {
	return New(Size(core, resolvingList))
}

// Init resets the table to empty.
func (t *Table) Init() {
	if t == nil {
		return
	}
	for i := range t.entries {
		t.entries[i] = Entry{}
	}
	t.busy = 0
}

// Clear frees every entry.
func (t *Table) Clear() error {
	if t == nil || t.entries == nil {
		return ErrInvalidTable
	}
	t.Init()
	return nil
}

// Capacity returns the number of slots.
func (t *Table) Capacity() int { return len(t.entries) }

// Busy returns the number of entries in use.
func (t *Table) Busy() int { return t.busy }

// FreeEntries returns how many more addresses fit.
func (t *Table) FreeEntries() int { return len(t.entries) - t.busy }

// Find returns the index of the in-use entry for addr, or NoMatch.
func (t *Table) Find(addr Address, typ AddrType) (int, bool) {
	if t == nil {
		return NoMatch, false
	}
	for i := range t.entries {
		if t.entries[i].matches(addr, typ) {
			return i, true
		}
	}
	return NoMatch, false
}

// Add stores addr in the first free slot. Adding an address that is already
// listed is reported as ErrNoSpace.
func (t *Table) Add(addr Address, typ AddrType, behavior Behavior) error {
	if t == nil || t.entries == nil {
		return ErrInvalidTable
	}
	if _, ok := t.Find(addr, typ); ok {
		return fmt.Errorf("%w: %s (%s) already listed", ErrNoSpace, addr, typ)
	}
	for i := range t.entries {
		e := &t.entries[i]
		if e.InUse {
			continue
		}
		*e = Entry{
			Address: addr,
			Type:    typ,
			InUse:   true,
			Ignore:  behavior == IgnoreEntry,
		}
		t.busy++
		return nil
	}
	return ErrNoSpace
}

// Remove frees the entry for addr.
func (t *Table) Remove(addr Address, typ AddrType) error {
	if t == nil || t.entries == nil {
		return ErrInvalidTable
	}
	i, ok := t.Find(addr, typ)
	if !ok {
		return ErrNotFound
	}
	t.entries[i] = Entry{}
	t.busy--
	return nil
}

// SetIgnore suspends filtering on addr without removing it.
func (t *Table) SetIgnore(addr Address, typ AddrType) error {
	return t.update(addr, typ, func(e *Entry) { e.Ignore = true })
}

// ClearIgnore resumes filtering on addr.
func (t *Table) ClearIgnore(addr Address, typ AddrType) error {
	return t.update(addr, typ, func(e *Entry) { e.Ignore = false })
}

// ClearIgnoreAll resumes filtering on every entry.
func (t *Table) ClearIgnoreAll() error {
	if t == nil || t.entries == nil {
		return ErrInvalidTable
	}
	for i := range t.entries {
		t.entries[i].Ignore = false
	}
	return nil
}

// SetPrivacyIgnore excludes addr from the resolving list cross-check.
func (t *Table) SetPrivacyIgnore(addr Address, typ AddrType) error {
	return t.update(addr, typ, func(e *Entry) { e.PrivacyIgnore = true })
}

// ClearPrivacyIgnore includes addr in the resolving list cross-check again.
func (t *Table) ClearPrivacyIgnore(addr Address, typ AddrType) error {
	return t.update(addr, typ, func(e *Entry) { e.PrivacyIgnore = false })
}

func (t *Table) update(addr Address, typ AddrType, fn func(*Entry)) error {
	if t == nil || t.entries == nil {
		return ErrInvalidTable
	}
	i, ok := t.Find(addr, typ)
	if !ok {
		return ErrNotFound
	}
	fn(&t.entries[i])
	return nil
}

// Allows reports whether addr is listed and not ignored.
func (t *Table) Allows(addr Address, typ AddrType) bool {
	i, ok := t.Find(addr, typ)
	return ok && !t.entries[i].Ignore
}

// Entries returns a copy of the in-use entries.
func (t *Table) Entries() []Entry {
	if t == nil {
		return nil
	}
	out := make([]Entry, 0, t.busy)
	for _, e := range t.entries {
		if e.InUse {
			out = append(out, e)
		}
	}
	return out
}

// CopyFrom replaces the contents of t with the in-use entries of src. It
// fails with ErrNoSpace, leaving t cleared, if src holds more entries than
// t has room for.
func (t *Table) CopyFrom(src *Table) error {
	if t == nil || t.entries == nil || src == nil {
		return ErrInvalidTable
	}
	t.Init()
	for _, e := range src.Entries() {
		if t.busy == len(t.entries) {
			t.Init()
			return ErrNoSpace
		}
		t.entries[t.busy] = e
		t.busy++
	}
	return nil
}
