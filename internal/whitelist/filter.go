package whitelist

// AdvPolicy is the advertiser's filter policy.
type AdvPolicy uint8

const (
	AdvAllowAll       AdvPolicy = iota // scan and connect requests from anyone
	AdvFilterScan                      // scan requests from listed devices only
	AdvFilterConnect                   // connect requests from listed devices only
	AdvFilterScanConn                  // both from listed devices only
)

// ScanPolicy is the scanner's filter policy.
type ScanPolicy uint8

const (
	ScanAcceptAll ScanPolicy = iota
	ScanWhitelistOnly
)

// InitPolicy is the initiator's filter policy.
type InitPolicy uint8

const (
	InitPeerAddress InitPolicy = iota // connect to the single configured peer
	InitWhitelist                     // connect to any listed device
)

// Peer is a device address with its type.
type Peer struct {
	Address Address
	Type    AddrType
}

// Filter answers admission queries for incoming frames.
type Filter struct {
	Table      *Table
	AdvPolicy  AdvPolicy
	ScanPolicy ScanPolicy
	InitPolicy InitPolicy
	InitPeer   Peer
}

func (f *Filter) listed(p Peer) bool {
	return f.Table != nil && f.Table.Allows(p.Address, p.Type)
}

// AdmitScanRequest reports whether an advertiser should answer a scan
// request from p.
func (f *Filter) AdmitScanRequest(p Peer) bool {
	switch f.AdvPolicy {
	case AdvFilterScan, AdvFilterScanConn:
		return f.listed(p)
	default:
		return true
	}
}

// AdmitConnectRequest reports whether an advertiser should accept a connect
// request from p.
func (f *Filter) AdmitConnectRequest(p Peer) bool {
	switch f.AdvPolicy {
	case AdvFilterConnect, AdvFilterScanConn:
		return f.listed(p)
	default:
		return true
	}
}

// AdmitAdvertisement reports whether a scanner should report an
// advertisement from p.
func (f *Filter) AdmitAdvertisement(p Peer) bool {
	if f.ScanPolicy == ScanWhitelistOnly {
		return f.listed(p)
	}
	return true
}

// AdmitConnectable reports whether an initiator should connect to p.
func (f *Filter) AdmitConnectable(p Peer) bool {
	if f.InitPolicy == InitWhitelist {
		return f.listed(p)
	}
	return p == f.InitPeer
}
