// Package mdns implements the multicast DNS side of discovery: query
// construction and response parsing on top of standard DNS message framing
// (RFC 6762), and a prober that talks to the 224.0.0.251 / ff02::fb groups.
package mdns

import (
	"errors"
	"fmt"
	"net/netip"
	"strings"

	"github.com/miekg/dns"
)

const (
	// Port is the mDNS UDP port.
	Port = 5353

	// GroupV4 and GroupV6 are the well-known mDNS multicast groups.
	GroupV4 = "224.0.0.251"
	GroupV6 = "ff02::fb"

	// ServiceEnumName is the DNS-SD service enumeration name. Both
	// Bonjour and Avahi answer a PTR question for it, which makes it the
	// broadest single question for flushing out responders.
	ServiceEnumName = "_services._dns-sd._udp.local."

	// classUnicastResponse is the QU bit on a question's class.
	classUnicastResponse = 0x8000
)

// ErrMalformedDatagram reports a datagram that could not be parsed as a DNS
// message. Dropped by the prober, never propagated.
var ErrMalformedDatagram = errors.New("mdns: malformed datagram")

// Answer is a host-name-relevant record extracted from an mDNS response.
// Addr is the address the record ties the name to: the rdata for A/AAAA,
// the address encoded in the owner name for reverse PTR records.
type Answer struct {
	Addr netip.Addr
	Name string
	Type uint16
}

// EncodeServiceQuery builds a one-shot PTR question for the DNS-SD service
// enumeration name. mDNS one-shot queries carry transaction ID 0.
func EncodeServiceQuery() ([]byte, error) {
	m := new(dns.Msg)
	m.SetQuestion(ServiceEnumName, dns.TypePTR)
	m.Id = 0
	m.RecursionDesired = false

	b, err := m.Pack()
	if err != nil {
		return nil, fmt.Errorf("mdns: pack service query: %w", err)
	}
	return b, nil
}

// EncodeReverseQuery builds a one-shot reverse-lookup PTR question
// (in-addr.arpa / ip6.arpa) for the given address. With unicast set the QU
// bit asks the responder to reply directly to us instead of the group.
func EncodeReverseQuery(addr netip.Addr, unicast bool) ([]byte, error) {
	rev, err := dns.ReverseAddr(addr.String())
	if err != nil {
		return nil, fmt.Errorf("mdns: reverse name for %s: %w", addr, err)
	}

	m := new(dns.Msg)
	m.SetQuestion(rev, dns.TypePTR)
	m.Id = 0
	m.RecursionDesired = false
	if unicast {
		m.Question[0].Qclass |= classUnicastResponse
	}

	b, err := m.Pack()
	if err != nil {
		return nil, fmt.Errorf("mdns: pack reverse query: %w", err)
	}
	return b, nil
}

// DecodeResponse parses a datagram and extracts every record that names a
// host: A and AAAA from the answer and additional sections, and PTR records
// whose owner is a reverse-lookup name. Messages that are not responses
// (including our own queries looped back by the group) yield no answers and
// no error.
func DecodeResponse(b []byte) ([]Answer, error) {
	m := new(dns.Msg)
	if err := m.Unpack(b); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedDatagram, err)
	}
	if !m.Response {
		return nil, nil
	}

	var answers []Answer
	for _, rr := range append(m.Answer, m.Extra...) {
		switch t := rr.(type) {
		case *dns.A:
			if addr, ok := netip.AddrFromSlice(t.A); ok {
				answers = append(answers, Answer{
					Addr: addr.Unmap(),
					Name: strings.TrimSuffix(t.Hdr.Name, "."),
					Type: dns.TypeA,
				})
			}
		case *dns.AAAA:
			if addr, ok := netip.AddrFromSlice(t.AAAA); ok {
				answers = append(answers, Answer{
					Addr: addr,
					Name: strings.TrimSuffix(t.Hdr.Name, "."),
					Type: dns.TypeAAAA,
				})
			}
		case *dns.PTR:
			// Service enumeration PTRs name a service type, not a
			// host. Only reverse-lookup owners pin an address.
			if addr, ok := addrFromReverseName(t.Hdr.Name); ok {
				answers = append(answers, Answer{
					Addr: addr,
					Name: strings.TrimSuffix(t.Ptr, "."),
					Type: dns.TypePTR,
				})
			}
		}
	}
	return answers, nil
}

// addrFromReverseName parses the address out of an in-addr.arpa or ip6.arpa
// owner name.
func addrFromReverseName(name string) (netip.Addr, bool) {
	name = strings.ToLower(strings.TrimSuffix(name, "."))

	if rest, ok := strings.CutSuffix(name, ".in-addr.arpa"); ok {
		octets := strings.Split(rest, ".")
		if len(octets) != 4 {
			return netip.Addr{}, false
		}
		addr, err := netip.ParseAddr(octets[3] + "." + octets[2] + "." + octets[1] + "." + octets[0])
		if err != nil {
			return netip.Addr{}, false
		}
		return addr, true
	}

	if rest, ok := strings.CutSuffix(name, ".ip6.arpa"); ok {
		nibbles := strings.Split(rest, ".")
		if len(nibbles) != 32 {
			return netip.Addr{}, false
		}
		var sb strings.Builder
		for i := len(nibbles) - 1; i >= 0; i-- {
			if len(nibbles[i]) != 1 {
				return netip.Addr{}, false
			}
			sb.WriteString(nibbles[i])
			if i > 0 && i%4 == 0 {
				sb.WriteByte(':')
			}
		}
		addr, err := netip.ParseAddr(sb.String())
		if err != nil {
			return netip.Addr{}, false
		}
		return addr, true
	}

	return netip.Addr{}, false
}
