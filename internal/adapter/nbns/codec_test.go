package nbns

import (
	"encoding/binary"
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeNodeStatusQuery_Wildcard(t *testing.T) {
	b := EncodeNodeStatusQuery(WildcardName, 0x1234)

	require.Len(t, b, 50)

	require.Equal(t, uint16(0x1234), binary.BigEndian.Uint16(b[0:2]))
	require.Equal(t, uint16(0), binary.BigEndian.Uint16(b[2:4]), "flags must be a standard query")
	require.Equal(t, uint16(1), binary.BigEndian.Uint16(b[4:6]), "qdcount")
	require.Equal(t, uint16(0), binary.BigEndian.Uint16(b[6:8]), "ancount")

	// The wildcard question is the same one nbtscan and nbstat.exe send:
	// length 0x20, "CK" for '*', 'A' padding, root label.
	require.Equal(t, byte(0x20), b[12])
	require.Equal(t, byte('C'), b[13])
	require.Equal(t, byte('K'), b[14])
	for i := 15; i < 45; i++ {
		require.Equalf(t, byte('A'), b[i], "padding nibble at %d", i)
	}
	require.Equal(t, byte(0x00), b[45], "root label")

	require.Equal(t, uint16(0x0021), binary.BigEndian.Uint16(b[46:48]), "qtype NBSTAT")
	require.Equal(t, uint16(0x0001), binary.BigEndian.Uint16(b[48:50]), "qclass IN")
}

func TestEncodeNodeStatusQuery_NamedTarget(t *testing.T) {
	b := EncodeNodeStatusQuery("printer1", 0xbeef)

	require.Len(t, b, 50)

	// 'P' is 0x50: high nibble 5 -> 'F', low nibble 0 -> 'A'. The name is
	// upper-cased before encoding.
	require.Equal(t, byte('F'), b[13])
	require.Equal(t, byte('A'), b[14])
	// Space padding (0x20) encodes as "CA".
	require.Equal(t, byte('C'), b[13+2*8])
	require.Equal(t, byte('A'), b[14+2*8])
}

// buildNodeStatusResponse constructs a response datagram the way a real host
// would: echoed question, answer with a compression pointer, name table and
// the statistics MAC. Shared with the prober test.
func buildNodeStatusResponse(txid uint16, names []NameEntry, mac net.HardwareAddr) []byte {
	var b []byte

	var hdr [12]byte
	binary.BigEndian.PutUint16(hdr[0:2], txid)
	binary.BigEndian.PutUint16(hdr[2:4], 0x8400) // response, authoritative
	binary.BigEndian.PutUint16(hdr[4:6], 1)      // echoed question
	binary.BigEndian.PutUint16(hdr[6:8], 1)      // one answer
	b = append(b, hdr[:]...)

	b = append(b, encodeName(WildcardName, 0x00)...)
	b = append(b, 0x00, 0x21, 0x00, 0x01)

	b = append(b, 0xc0, 0x0c)             // pointer to the question name
	b = append(b, 0x00, 0x21, 0x00, 0x01) // NBSTAT IN
	b = append(b, 0x00, 0x00, 0x00, 0x00) // ttl

	rdlength := 1 + len(names)*nameEntrySize + len(mac)
	b = append(b, byte(rdlength>>8), byte(rdlength))
	b = append(b, byte(len(names)))
	for _, n := range names {
		var entry [nameEntrySize]byte
		copy(entry[:], n.Name)
		for i := len(n.Name); i < 15; i++ {
			entry[i] = ' '
		}
		entry[15] = n.Suffix
		binary.BigEndian.PutUint16(entry[16:18], n.Flags)
		b = append(b, entry[:]...)
	}
	return append(b, mac...)
}

func TestDecodeNodeStatusResponse_RoundTrip(t *testing.T) {
	names := []NameEntry{
		{Name: "PRINTER1", Suffix: 0x20, Flags: 0x0400},
		{Name: "PRINTER1", Suffix: 0x00, Flags: 0x0400},
		{Name: "WORKGROUP", Suffix: 0x00, Flags: 0x8400},
	}
	mac := net.HardwareAddr{0xde, 0xad, 0xbe, 0xef, 0x00, 0x01}

	status, err := DecodeNodeStatusResponse(buildNodeStatusResponse(0x4242, names, mac))
	require.NoError(t, err)

	require.Equal(t, uint16(0x4242), status.TransactionID)
	require.Equal(t, names, status.Names)
	require.Equal(t, mac, status.MAC)

	require.False(t, status.Names[0].Group())
	require.True(t, status.Names[2].Group())
	require.False(t, status.Names[0].Permanent())
}

func TestDecodeNodeStatusResponse_PermanentFlag(t *testing.T) {
	names := []NameEntry{{Name: "NAS", Suffix: 0x20, Flags: 0x0600}}

	status, err := DecodeNodeStatusResponse(buildNodeStatusResponse(1, names, nil))
	require.NoError(t, err)
	require.True(t, status.Names[0].Permanent())
	require.Nil(t, status.MAC)
}

func TestDecodeNodeStatusResponse_Malformed(t *testing.T) {
	valid := buildNodeStatusResponse(7, []NameEntry{{Name: "HOST", Suffix: 0x00, Flags: 0x0400}}, nil)

	notAResponse := make([]byte, len(valid))
	copy(notAResponse, valid)
	binary.BigEndian.PutUint16(notAResponse[2:4], 0x0000)

	withRcode := make([]byte, len(valid))
	copy(withRcode, valid)
	binary.BigEndian.PutUint16(withRcode[2:4], 0x8403)

	noAnswers := make([]byte, len(valid))
	copy(noAnswers, valid)
	binary.BigEndian.PutUint16(noAnswers[6:8], 0)

	nameCountOverflow := make([]byte, len(valid))
	copy(nameCountOverflow, valid)
	nameCountOverflow[len(valid)-nameEntrySize-1] = 200

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"short header", valid[:8]},
		{"not a response", notAResponse},
		{"error rcode", withRcode},
		{"no answers", noAnswers},
		{"truncated question", valid[:20]},
		{"truncated answer", valid[:headerSize+encodedNameSize+4+2]},
		{"truncated rdata", valid[:len(valid)-10]},
		{"name count exceeds rdata", nameCountOverflow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeNodeStatusResponse(tt.data)
			require.ErrorIs(t, err, ErrMalformedDatagram)
		})
	}
}

func TestDecodeNodeStatusResponse_PadsAndJunkStripped(t *testing.T) {
	// Name bytes outside printable ASCII are dropped, like the padding
	// spaces real hosts send.
	names := []NameEntry{{Name: "HOST\x01", Suffix: 0x00, Flags: 0x0400}}

	status, err := DecodeNodeStatusResponse(buildNodeStatusResponse(9, names, nil))
	require.NoError(t, err)
	require.Equal(t, "HOST", status.Names[0].Name)
}
