package sched

import (
	"math/bits"

	"llsched/internal/drift"
	"llsched/internal/rat"
	"llsched/internal/whitelist"
)

// AdvAccessAddress is the access address of every primary advertising
// channel packet.
const AdvAccessAddress uint32 = 0x8E89BED6

// Primary advertising channels, as bits of an AdvChannelMap.
const (
	AdvChannel37 uint8 = 1 << iota
	AdvChannel38
	AdvChannel39
	AdvChannelAll = AdvChannel37 | AdvChannel38 | AdvChannel39
)

// NumDataChannels is the number of data channels a channel map covers.
const NumDataChannels = 37

// AllDataChannels enables every data channel.
const AllDataChannels uint64 = 1<<NumDataChannels - 1

// RadioOp is the role-specific radio operation the scheduler hands to the
// radio driver when a task starts.
type RadioOp struct {
	Role           Role
	Channel        uint8
	AccessAddress  uint32
	Start          rat.Time
	Window         rat.Ticks
	WindowWidening rat.Ticks // receive window opened early and closed late by this much
	EventCounter   uint16
	PDU            []byte
	Whitelist      *whitelist.Table // non-nil when the radio must filter on the whitelist
}

// Params holds the role-specific parameters of a task. The concrete types
// are AdvParams, ScanParams, InitParams, ConnParams, PeriodicAdvParams and
// PeriodicScanParams.
type Params interface {
	params()
}

// AdvParams configures a legacy or extended advertiser.
type AdvParams struct {
	ChannelMap uint8 // AdvChannel* bits, zero means all
	PDU        []byte
}

// ScanParams configures a scanner. Each scan event listens on the next
// enabled advertising channel.
type ScanParams struct {
	ChannelMap uint8
	next       uint8
}

// InitParams configures an initiator.
type InitParams struct {
	ChannelMap uint8
	Peer       whitelist.Peer // used when the filter policy names a single peer
	next       uint8
}

// ConnParams configures a master or slave connection.
type ConnParams struct {
	AccessAddress uint32
	CRCInit       uint32
	ChannelMap    uint64 // data channels 0-36, zero means all
	HopIncrement  uint8  // 5-16
	PeerSCA       drift.SCA

	EventCounter uint16
	unmapped     uint8
}

// PeriodicAdvParams configures a periodic advertising train.
type PeriodicAdvParams struct {
	AccessAddress uint32
	ChannelMap    uint64
	HopIncrement  uint8
	PDU           []byte

	EventCounter uint16
	unmapped     uint8
}

// PeriodicScanParams configures synchronisation to a periodic train.
type PeriodicScanParams struct {
	AccessAddress uint32
	ChannelMap    uint64
	HopIncrement  uint8
	PeerSCA       drift.SCA

	EventCounter uint16
	unmapped     uint8
}

func (*AdvParams) params()          {}
func (*ScanParams) params()         {}
func (*InitParams) params()         {}
func (*ConnParams) params()         {}
func (*PeriodicAdvParams) params()  {}
func (*PeriodicScanParams) params() {}

// compatible reports whether p may configure a task with role r.
func compatible(p Params, r Role) bool {
	switch p.(type) {
	case *AdvParams:
		return r == RoleAdvertiser
	case *ScanParams:
		return r == RoleScanner
	case *InitParams:
		return r == RoleInitiator
	case *ConnParams:
		return r.IsPrimary()
	case *PeriodicAdvParams:
		return r == RolePeriodicAdvertiser
	case *PeriodicScanParams:
		return r == RolePeriodicScanner
	default:
		return false
	}
}

// firstAdvChannel returns the lowest enabled advertising channel.
func firstAdvChannel(m uint8) uint8 {
	m &= AdvChannelAll
	if m == 0 {
		m = AdvChannelAll
	}
	return 37 + uint8(bits.TrailingZeros8(m))
}

// nextAdvChannel returns the enabled advertising channel at or after
// position *next and moves *next past it.
func nextAdvChannel(m uint8, next *uint8) uint8 {
	m &= AdvChannelAll
	if m == 0 {
		m = AdvChannelAll
	}
	for i := uint8(0); i < 3; i++ {
		pos := (*next + i) % 3
		if m&(1<<pos) != 0 {
			*next = (pos + 1) % 3
			return 37 + pos
		}
	}
	return 37
}

// hopChannel applies channel selection algorithm #1: hop from the last
// unmapped channel and remap onto the used channels when the result is
// disabled.
func hopChannel(chMap uint64, hop uint8, unmapped *uint8) uint8 {
	chMap &= AllDataChannels
	if chMap == 0 {
		chMap = AllDataChannels
	}
	ch := (*unmapped + hop) % NumDataChannels
	*unmapped = ch
	if chMap&(1<<ch) != 0 {
		return ch
	}
	idx := int(ch) % bits.OnesCount64(chMap)
	for c := uint8(0); c < NumDataChannels; c++ {
		if chMap&(1<<c) == 0 {
			continue
		}
		if idx == 0 {
			return c
		}
		idx--
	}
	return 0
}
