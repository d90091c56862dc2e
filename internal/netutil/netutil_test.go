package netutil

import (
	"net"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBroadcastAddr(t *testing.T) {
	tests := []struct {
		cidr string
		want string
	}{
		{"192.168.1.0/24", "192.168.1.255"},
		{"10.0.0.0/16", "10.0.255.255"},
		{"172.16.4.128/25", "172.16.4.255"},
	}

	for _, tt := range tests {
		_, ipnet, err := net.ParseCIDR(tt.cidr)
		require.NoError(t, err)

		got, ok := BroadcastAddr(ipnet)
		require.True(t, ok, tt.cidr)
		require.Equal(t, netip.MustParseAddr(tt.want), got)
	}
}

func TestBroadcastAddr_UnmaskedInterfaceAddr(t *testing.T) {
	// Interface addrs come with the host bits still set.
	ipnet := &net.IPNet{
		IP:   net.IPv4(192, 168, 1, 42).To4(),
		Mask: net.CIDRMask(24, 32),
	}

	got, ok := BroadcastAddr(ipnet)
	require.True(t, ok)
	require.Equal(t, netip.MustParseAddr("192.168.1.255"), got)
}

func TestExpandTargets(t *testing.T) {
	t.Run("single addresses and dedupe", func(t *testing.T) {
		got, err := ExpandTargets([]string{"192.168.1.10", "192.168.1.10", "fe80::1"})
		require.NoError(t, err)
		require.Equal(t, []netip.Addr{
			netip.MustParseAddr("192.168.1.10"),
			netip.MustParseAddr("fe80::1"),
		}, got)
	})

	t.Run("cidr excludes network and broadcast", func(t *testing.T) {
		got, err := ExpandTargets([]string{"10.0.0.0/30"})
		require.NoError(t, err)
		require.Equal(t, []netip.Addr{
			netip.MustParseAddr("10.0.0.1"),
			netip.MustParseAddr("10.0.0.2"),
		}, got)
	})

	t.Run("point to point keeps both addresses", func(t *testing.T) {
		got, err := ExpandTargets([]string{"10.0.0.4/31"})
		require.NoError(t, err)
		require.Len(t, got, 2)
	})

	t.Run("full /24 yields 254 hosts", func(t *testing.T) {
		got, err := ExpandTargets([]string{"192.168.1.0/24"})
		require.NoError(t, err)
		require.Len(t, got, 254)
		require.Equal(t, netip.MustParseAddr("192.168.1.1"), got[0])
		require.Equal(t, netip.MustParseAddr("192.168.1.254"), got[len(got)-1])
	})

	t.Run("too wide is refused", func(t *testing.T) {
		_, err := ExpandTargets([]string{"10.0.0.0/8"})
		require.Error(t, err)
	})

	t.Run("ipv6 ranges are refused", func(t *testing.T) {
		_, err := ExpandTargets([]string{"fe80::/64"})
		require.Error(t, err)
	})

	t.Run("junk is refused", func(t *testing.T) {
		_, err := ExpandTargets([]string{"not-an-ip"})
		require.Error(t, err)
	})

	t.Run("empty input", func(t *testing.T) {
		got, err := ExpandTargets(nil)
		require.NoError(t, err)
		require.Empty(t, got)
	})
}
