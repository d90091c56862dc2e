package mdns

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"os"
	"time"

	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
	"golang.org/x/sync/errgroup"

	"github.com/lanls/lanls/internal/common/logging"
	"github.com/lanls/lanls/internal/ports"
)

type Prober struct {
	logger  *slog.Logger
	iface   *net.Interface
	targets []netip.Addr
	timeout time.Duration
	useIPv4 bool
	useIPv6 bool
}

// NewProber returns a prober that joins the mDNS group on iface (nil for the
// system default), sends a service enumeration query plus one reverse-lookup
// query per explicit target, and streams every host name any responder
// advertises until the timeout elapses.
func NewProber(logger *slog.Logger, iface *net.Interface, targets []netip.Addr, timeout time.Duration, useIPv4, useIPv6 bool) *Prober {
	return &Prober{
		logger:  logger,
		iface:   iface,
		targets: targets,
		timeout: timeout,
		useIPv4: useIPv4,
		useIPv6: useIPv6,
	}
}

func (p *Prober) Protocol() ports.Protocol { return ports.ProtocolMDNS }

// groupConn is one joined multicast group with its destination address.
type groupConn struct {
	udp   *net.UDPConn
	group *net.UDPAddr
	v6    bool
}

func (p *Prober) Probe(ctx context.Context, out chan<- ports.Finding) error {
	var (
		conns    []*groupConn
		openErrs []error
	)

	if p.useIPv4 {
		if c, err := p.openGroup("udp4", GroupV4, false); err != nil {
			openErrs = append(openErrs, err)
		} else {
			conns = append(conns, c)
		}
	}
	if p.useIPv6 {
		if c, err := p.openGroup("udp6", GroupV6, true); err != nil {
			openErrs = append(openErrs, err)
		} else {
			conns = append(conns, c)
		}
	}

	if len(conns) == 0 {
		if len(openErrs) == 0 {
			return errors.New("mdns: no address family enabled")
		}
		return errors.Join(openErrs...)
	}
	defer func() {
		for _, c := range conns {
			_ = c.udp.Close()
		}
	}()

	for _, err := range openErrs {
		p.logger.WarnContext(ctx, "Continuing with one address family", logging.Error(err))
	}

	deadline := time.Now().Add(p.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	stop := context.AfterFunc(ctx, func() {
		for _, c := range conns {
			_ = c.udp.SetReadDeadline(time.Now())
		}
	})
	defer stop()

	sent := 0
	for _, c := range conns {
		sent += p.sendQueries(ctx, c)
	}
	if sent == 0 {
		return errors.New("mdns: no query could be sent")
	}

	var g errgroup.Group
	for _, c := range conns {
		g.Go(func() error {
			return p.receive(ctx, c, deadline, out)
		})
	}
	return g.Wait()
}

// openGroup binds the mDNS port and joins the group on the configured
// interface. The x/net packet conn is used for multicast socket options; the
// plain UDP conn carries the actual traffic.
func (p *Prober) openGroup(network, group string, v6 bool) (*groupConn, error) {
	gaddr := &net.UDPAddr{IP: net.ParseIP(group), Port: Port}

	c, err := net.ListenMulticastUDP(network, p.iface, gaddr)
	if err != nil {
		return nil, fmt.Errorf("mdns: join group %s: %w", group, err)
	}
	_ = c.SetReadBuffer(1 << 20)

	if v6 {
		pc := ipv6.NewPacketConn(c)
		_ = pc.SetMulticastLoopback(false)
		if p.iface != nil {
			_ = pc.SetMulticastInterface(p.iface)
		}
	} else {
		pc := ipv4.NewPacketConn(c)
		_ = pc.SetMulticastLoopback(false)
		if p.iface != nil {
			_ = pc.SetMulticastInterface(p.iface)
		}
	}

	return &groupConn{udp: c, group: gaddr, v6: v6}, nil
}

// sendQueries writes the service enumeration query and one unicast-response
// reverse query per matching-family target. Returns how many went out.
func (p *Prober) sendQueries(ctx context.Context, c *groupConn) int {
	sent := 0

	if q, err := EncodeServiceQuery(); err == nil {
		if _, werr := c.udp.WriteToUDP(q, c.group); werr != nil {
			p.logger.DebugContext(ctx, "Failed to send service query",
				slog.String("group", c.group.IP.String()), logging.Error(werr))
		} else {
			sent++
		}
	}

	for _, target := range p.targets {
		if target.Is4() == c.v6 {
			continue
		}
		q, err := EncodeReverseQuery(target, true)
		if err != nil {
			continue
		}
		if _, werr := c.udp.WriteToUDP(q, c.group); werr != nil {
			p.logger.DebugContext(ctx, "Failed to send reverse query",
				slog.String("target", target.String()), logging.Error(werr))
			continue
		}
		sent++
	}

	return sent
}

func (p *Prober) receive(ctx context.Context, c *groupConn, deadline time.Time, out chan<- ports.Finding) error {
	_ = c.udp.SetReadDeadline(deadline)
	buf := make([]byte, 9000)

	for {
		n, src, err := c.udp.ReadFromUDPAddrPort(buf)
		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("mdns: read: %w", err)
		}

		answers, err := DecodeResponse(buf[:n])
		if err != nil {
			// The group carries whatever the segment feels like
			// sending; undecodable datagrams are expected.
			p.logger.DebugContext(ctx, "Dropping datagram",
				slog.String("source", src.Addr().String()), logging.Error(err))
			continue
		}

		for _, ans := range answers {
			finding := ports.Finding{
				Addr:     ans.Addr,
				Name:     ans.Name,
				Protocol: ports.ProtocolMDNS,
			}
			select {
			case out <- finding:
			case <-ctx.Done():
				return nil
			}
		}
	}
}
