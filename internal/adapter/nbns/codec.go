// Package nbns implements the NetBIOS Name Service side of discovery:
// a wire codec for Node Status queries and responses (RFC 1002) and a
// prober that sweeps targets over UDP/137.
package nbns

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"strings"
)

const (
	// Port is the NetBIOS Name Service UDP port.
	Port = 137

	// WildcardName is the Node Status query name any listening host
	// answers with its full name table. Same question is sent by nbtscan
	// and nbstat.exe.
	WildcardName = "*"

	typeNBSTAT = 0x0021
	classIN    = 0x0001

	headerSize      = 12
	encodedNameSize = 34 // length octet + 32 nibble octets + root label
	querySize       = headerSize + encodedNameSize + 4

	nameEntrySize = 18 // 15 name octets + suffix octet + 2 flags octets
	macSize       = 6

	flagGroup     = 0x8000
	flagPermanent = 0x0200
)

// ErrMalformedDatagram reports a datagram that could not be decoded as an
// NBNS message. It is expected on a broadcast segment and is dropped by the
// prober, never propagated.
var ErrMalformedDatagram = errors.New("nbns: malformed datagram")

// NameEntry is one row of a Node Status response name table.
type NameEntry struct {
	Name   string
	Suffix byte
	Flags  uint16
}

func (e NameEntry) Group() bool     { return e.Flags&flagGroup != 0 }
func (e NameEntry) Permanent() bool { return e.Flags&flagPermanent != 0 }

// NodeStatus is a decoded Node Status response.
type NodeStatus struct {
	TransactionID uint16
	Names         []NameEntry
	MAC           net.HardwareAddr
}

// EncodeNodeStatusQuery builds a Node Status request for the given NetBIOS
// name. Pass WildcardName to ask any listener for its whole name table.
func EncodeNodeStatusQuery(name string, txid uint16) []byte {
	buf := make([]byte, 0, querySize)

	var hdr [headerSize]byte
	binary.BigEndian.PutUint16(hdr[0:2], txid)
	// flags stay zero: standard unicast query
	binary.BigEndian.PutUint16(hdr[4:6], 1) // qdcount
	buf = append(buf, hdr[:]...)

	buf = append(buf, encodeName(name, 0x00)...)

	var q [4]byte
	binary.BigEndian.PutUint16(q[0:2], typeNBSTAT)
	binary.BigEndian.PutUint16(q[2:4], classIN)
	return append(buf, q[:]...)
}

// encodeName applies both levels of NetBIOS name encoding: the name is
// padded to 16 octets (the last one being the service suffix), then each
// octet is split into two nibbles mapped onto 'A'..'P'. The wildcard name
// is padded with NUL instead of space, per RFC 1002 node status convention.
func encodeName(name string, suffix byte) []byte {
	var padded [16]byte

	if name == WildcardName {
		padded[0] = '*'
	} else {
		pad := strings.ToUpper(name)
		if len(pad) > 15 {
			pad = pad[:15]
		}
		copy(padded[:], pad)
		for i := len(pad); i < 15; i++ {
			padded[i] = ' '
		}
		padded[15] = suffix
	}

	out := make([]byte, 0, encodedNameSize)
	out = append(out, 0x20)
	for _, c := range padded {
		out = append(out, 'A'+(c>>4), 'A'+(c&0x0f))
	}
	return append(out, 0x00)
}

// DecodeNodeStatusResponse parses a Node Status response datagram. Any
// violated length or header invariant yields ErrMalformedDatagram.
func DecodeNodeStatusResponse(b []byte) (*NodeStatus, error) {
	if len(b) < headerSize {
		return nil, fmt.Errorf("%w: short header (%d bytes)", ErrMalformedDatagram, len(b))
	}

	txid := binary.BigEndian.Uint16(b[0:2])
	flags := binary.BigEndian.Uint16(b[2:4])
	if flags&0x8000 == 0 {
		return nil, fmt.Errorf("%w: not a response", ErrMalformedDatagram)
	}
	if rcode := flags & 0x000f; rcode != 0 {
		return nil, fmt.Errorf("%w: rcode %d", ErrMalformedDatagram, rcode)
	}
	if ancount := binary.BigEndian.Uint16(b[6:8]); ancount == 0 {
		return nil, fmt.Errorf("%w: no answers", ErrMalformedDatagram)
	}

	pos := headerSize

	// Skip the echoed question section, if any.
	qdcount := int(binary.BigEndian.Uint16(b[4:6]))
	for i := 0; i < qdcount; i++ {
		var ok bool
		pos, ok = skipName(b, pos)
		if !ok || pos+4 > len(b) {
			return nil, fmt.Errorf("%w: truncated question", ErrMalformedDatagram)
		}
		pos += 4 // qtype + qclass
	}

	// Answer resource record.
	pos, ok := skipName(b, pos)
	if !ok || pos+10 > len(b) {
		return nil, fmt.Errorf("%w: truncated answer", ErrMalformedDatagram)
	}
	if rrtype := binary.BigEndian.Uint16(b[pos : pos+2]); rrtype != typeNBSTAT {
		return nil, fmt.Errorf("%w: unexpected answer type 0x%04x", ErrMalformedDatagram, rrtype)
	}
	pos += 8 // type + class + ttl
	rdlength := int(binary.BigEndian.Uint16(b[pos : pos+2]))
	pos += 2
	if pos+rdlength > len(b) || rdlength < 1 {
		return nil, fmt.Errorf("%w: bad rdata length %d", ErrMalformedDatagram, rdlength)
	}

	rdata := b[pos : pos+rdlength]
	numNames := int(rdata[0])
	rdata = rdata[1:]
	if numNames == 0 || numNames*nameEntrySize > len(rdata) {
		return nil, fmt.Errorf("%w: name count %d exceeds rdata", ErrMalformedDatagram, numNames)
	}

	status := &NodeStatus{TransactionID: txid}
	for i := 0; i < numNames; i++ {
		entry := rdata[i*nameEntrySize : (i+1)*nameEntrySize]
		name := trimName(entry[:15])
		if name == "" {
			continue
		}
		status.Names = append(status.Names, NameEntry{
			Name:   name,
			Suffix: entry[15],
			Flags:  binary.BigEndian.Uint16(entry[16:18]),
		})
	}
	if len(status.Names) == 0 {
		return nil, fmt.Errorf("%w: empty name table", ErrMalformedDatagram)
	}

	// Statistics block starts with the unit MAC.
	if rest := rdata[numNames*nameEntrySize:]; len(rest) >= macSize {
		mac := make(net.HardwareAddr, macSize)
		copy(mac, rest[:macSize])
		status.MAC = mac
	}

	return status, nil
}

// skipName advances past a DNS-encoded name, following at most one
// compression pointer. Returns false on truncation.
func skipName(b []byte, pos int) (int, bool) {
	for pos < len(b) {
		l := int(b[pos])
		switch {
		case l == 0:
			return pos + 1, true
		case l&0xc0 == 0xc0:
			return pos + 2, true
		default:
			pos += l + 1
		}
	}
	return pos, false
}

// trimName keeps printable ASCII and drops the space or NUL padding NetBIOS
// names carry on the wire.
func trimName(b []byte) string {
	var sb strings.Builder
	for _, c := range b {
		if c > 0x20 && c < 0x7f {
			sb.WriteByte(c)
		}
	}
	return sb.String()
}
