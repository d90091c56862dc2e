package ports

import (
	"context"
	"net"
	"net/netip"
)

type Protocol int

const (
	ProtocolNBNS Protocol = iota
	ProtocolMDNS
)

func (p Protocol) String() string {
	switch p {
	case ProtocolNBNS:
		return "nbns"
	case ProtocolMDNS:
		return "mdns"
	default:
		return "unknown"
	}
}

// Finding is one (address, name) pair reported by a prober. Findings are
// immutable; probers hand them to the coordinator over a channel and never
// touch the merged table themselves.
type Finding struct {
	Addr     netip.Addr
	Name     string
	Protocol Protocol

	// NBNS only: service suffix byte and name-flags bits from the node
	// status entry. Zero values for mDNS findings.
	Suffix    byte
	Group     bool
	Permanent bool

	// NBNS only: unit MAC from the node status statistics block, nil when
	// absent or for mDNS findings.
	MAC net.HardwareAddr
}

// Prober sends queries for a single protocol and streams findings until its
// deadline. Implementations own their socket exclusively and must release it
// on every exit path. A returned error means the probe as a whole failed to
// run; decode failures on individual datagrams are dropped, not returned.
type Prober interface {
	Protocol() Protocol
	Probe(ctx context.Context, out chan<- Finding) error
}
