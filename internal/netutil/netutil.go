// Package netutil holds the small amount of interface and address plumbing
// discovery needs: picking a usable interface, deriving the subnet broadcast
// address and expanding IP/CIDR target specs.
package netutil

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
)

// MaxSweepBits is the widest IPv4 prefix a target spec may cover. Anything
// wider than a /16 is refused to keep sweeps bounded.
const MaxSweepBits = 16

// InterfaceByName resolves a named interface and its first IPv4 network.
func InterfaceByName(name string) (*net.Interface, *net.IPNet, error) {
	if name == "" {
		return nil, nil, errors.New("empty interface name")
	}

	iface, err := net.InterfaceByName(name)
	if err != nil {
		return nil, nil, fmt.Errorf("interface %s: %w", name, err)
	}

	ipnet, err := firstIPv4Net(iface)
	if err != nil {
		return nil, nil, fmt.Errorf("interface %s: %w", name, err)
	}
	return iface, ipnet, nil
}

// DefaultInterface returns the first up, non-loopback interface carrying an
// IPv4 address.
func DefaultInterface() (*net.Interface, *net.IPNet, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, nil, err
	}

	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		ipnet, err := firstIPv4Net(&iface)
		if err == nil {
			return &iface, ipnet, nil
		}
	}
	return nil, nil, errors.New("no usable interface found")
}

func firstIPv4Net(iface *net.Interface) (*net.IPNet, error) {
	addrs, err := iface.Addrs()
	if err != nil {
		return nil, err
	}

	for _, addr := range addrs {
		if ipnet, ok := addr.(*net.IPNet); ok && ipnet.IP.To4() != nil {
			return ipnet, nil
		}
	}
	return nil, errors.New("no IPv4 address found on interface")
}

// BroadcastAddr computes the directed broadcast address of an IPv4 network.
func BroadcastAddr(ipnet *net.IPNet) (netip.Addr, bool) {
	ip := ipnet.IP.To4()
	mask := ipnet.Mask
	if ip == nil || len(mask) != 4 {
		return netip.Addr{}, false
	}

	var b [4]byte
	for i := range b {
		b[i] = ip[i] | ^mask[i]
	}
	return netip.AddrFrom4(b), true
}

// ExpandTargets turns a list of IP and CIDR specs into the flat set of
// addresses to query. For CIDR specs the network and broadcast addresses are
// excluded; prefixes wider than /MaxSweepBits are refused.
func ExpandTargets(specs []string) ([]netip.Addr, error) {
	var out []netip.Addr
	seen := make(map[netip.Addr]struct{})

	add := func(a netip.Addr) {
		a = a.Unmap()
		if _, dup := seen[a]; dup {
			return
		}
		seen[a] = struct{}{}
		out = append(out, a)
	}

	for _, spec := range specs {
		if addr, err := netip.ParseAddr(spec); err == nil {
			add(addr.Unmap())
			continue
		}

		prefix, err := netip.ParsePrefix(spec)
		if err != nil {
			return nil, fmt.Errorf("target %q: not an IP or CIDR", spec)
		}
		prefix = prefix.Masked()

		if prefix.Addr().Is4() && prefix.Bits() < MaxSweepBits {
			return nil, fmt.Errorf("target %q: wider than /%d", spec, MaxSweepBits)
		}
		if !prefix.Addr().Is4() {
			return nil, fmt.Errorf("target %q: IPv6 ranges cannot be swept", spec)
		}

		if prefix.Bits() >= 31 {
			// Point-to-point: both addresses are hosts (RFC 3021).
			for a := prefix.Addr(); prefix.Contains(a); a = a.Next() {
				add(a)
			}
			continue
		}

		first := prefix.Addr().Next() // skip network address
		for a := first; prefix.Contains(a.Next()); a = a.Next() {
			add(a) // the last contained address is the broadcast, skipped
		}
	}

	return out, nil
}
