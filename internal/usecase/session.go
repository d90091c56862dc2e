package usecase

import (
	"net"
	"net/netip"
	"strings"
	"time"

	"github.com/lanls/lanls/internal/ports"
)

// HostName is one name a host answered with, tagged by the protocol that
// produced it. NBNS names additionally carry the service suffix and the
// group/permanent bits from the node status flags.
type HostName struct {
	Name      string
	Protocol  ports.Protocol
	Suffix    byte
	Group     bool
	Permanent bool
}

// HostRecord accumulates everything learned about one address. Records are
// only ever grown, never removed; silence is not an error.
type HostRecord struct {
	Addr      netip.Addr
	Names     []HostName
	MAC       net.HardwareAddr
	FirstSeen time.Time
}

// NameFor returns the first name the given protocol reported, or "".
func (r *HostRecord) NameFor(p ports.Protocol) string {
	for _, n := range r.Names {
		if n.Protocol == p {
			return n.Name
		}
	}
	return ""
}

// ProbeError is a prober-level failure recorded on the session. It never
// aborts the other prober.
type ProbeError struct {
	Protocol ports.Protocol
	Err      error
}

func (e ProbeError) Error() string {
	return e.Protocol.String() + ": " + e.Err.Error()
}

func (e ProbeError) Unwrap() error { return e.Err }

// Session is the frozen outcome of one discovery pass: hosts in the order
// they were first seen plus any recorded prober failures.
type Session struct {
	StartedAt  time.Time
	FinishedAt time.Time
	Hosts      []*HostRecord
	Errors     []ProbeError

	byAddr map[netip.Addr]*HostRecord
}

func newSession(start time.Time) *Session {
	return &Session{
		StartedAt: start,
		byAddr:    make(map[netip.Addr]*HostRecord),
	}
}

// merge folds one finding into the host table. It is the session's single
// write point and must only be called from one goroutine.
func (s *Session) merge(f ports.Finding, now time.Time) {
	if !f.Addr.IsValid() || f.Name == "" {
		return
	}

	rec, ok := s.byAddr[f.Addr]
	if !ok {
		rec = &HostRecord{Addr: f.Addr, FirstSeen: now}
		s.byAddr[f.Addr] = rec
		s.Hosts = append(s.Hosts, rec)
	}

	if rec.MAC == nil && f.MAC != nil {
		rec.MAC = f.MAC
	}

	// Name equality is case-insensitive within a protocol; duplicate
	// findings are the norm on a multicast segment.
	for _, n := range rec.Names {
		if n.Protocol == f.Protocol && n.Suffix == f.Suffix && strings.EqualFold(n.Name, f.Name) {
			return
		}
	}
	rec.Names = append(rec.Names, HostName{
		Name:      f.Name,
		Protocol:  f.Protocol,
		Suffix:    f.Suffix,
		Group:     f.Group,
		Permanent: f.Permanent,
	})
}
