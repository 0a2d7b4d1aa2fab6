// Package drift turns a peer's Sleep Clock Accuracy into the receive window
// widening applied around connection events.
package drift

import (
	"errors"
	"fmt"

	"llsched/internal/rat"
)

// SCA is a 3-bit sleep clock accuracy class.
type SCA uint8

// PPM is a clock drift bound in parts per million.
type PPM uint16

const MaxSCA SCA = 7

var ErrInvalidSCA = errors.New("sca class out of range (valid range: 0-7)")

// Receive path overheads.
const (
	SynthCalibration     = 256 * rat.TicksPerMicrosecond
	RxSettleTime         = 64 * rat.TicksPerMicrosecond
	RxRampOverhead       = SynthCalibration + RxSettleTime
	JitterCorrection     = 16 * rat.TicksPerMicrosecond
	RxSynchOverhead      = 140 * rat.TicksPerMicrosecond
	RxSynchOverheadCoded = 900 * rat.TicksPerMicrosecond
)

// Class 0 is the most accurate clock, class 7 the least.
var scaTable = [8]PPM{20, 30, 50, 75, 100, 150, 250, 500}

// ScaToPPM returns the drift bound for class c. Only the low three bits of c
// are used; reject wider inputs with ParseSCA first.
func ScaToPPM(c SCA) PPM {
	return scaTable[c&7]
}

// ParseSCA validates a raw class value received from a peer.
func ParseSCA(v uint8) (SCA, error) {
	if SCA(v) > MaxSCA {
		return 0, fmt.Errorf("%w: %d", ErrInvalidSCA, v)
	}
	return SCA(v), nil
}

// Factor is the combined drift bound of the peer and the local clock.
func Factor(peer SCA, local PPM) PPM {
	return ScaToPPM(peer) + local
}

// WindowWidening is how far each side of the expected anchor point the
// receiver has to listen after sinceAnchor ticks without resynchronising.
func WindowWidening(factor PPM, sinceAnchor rat.Ticks) rat.Ticks {
	if sinceAnchor < 0 {
		sinceAnchor = -sinceAnchor
	}
	w := (int64(sinceAnchor)*int64(factor) + 999_999) / 1_000_000
	return rat.Ticks(w) + JitterCorrection
}
