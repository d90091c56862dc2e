package nbns

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net"
	"net/netip"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/lanls/lanls/internal/common/logging"
	"github.com/lanls/lanls/internal/ports"
)

// maxInFlightSends bounds concurrent query sends on wide CIDR sweeps.
const maxInFlightSends = 64

type Prober struct {
	logger  *slog.Logger
	targets []netip.Addr
	timeout time.Duration
	port    uint16
	sem     *semaphore.Weighted
}

// NewProber returns a prober that sends one Node Status query to every
// target and streams decoded names until the timeout elapses. Targets may
// include the subnet broadcast address.
func NewProber(logger *slog.Logger, targets []netip.Addr, timeout time.Duration) *Prober {
	return &Prober{
		logger:  logger,
		targets: targets,
		timeout: timeout,
		port:    Port,
		sem:     semaphore.NewWeighted(maxInFlightSends),
	}
}

func (p *Prober) Protocol() ports.Protocol { return ports.ProtocolNBNS }

// Probe binds an ephemeral UDP socket, fans out queries with fresh
// transaction IDs and loops receiving responses until the deadline.
// Responses with unknown transaction IDs and undecodable datagrams are
// dropped. A nil return covers the quiet-network case; an error is returned
// only when the socket could not be used at all.
func (p *Prober) Probe(ctx context.Context, out chan<- ports.Finding) error {
	if len(p.targets) == 0 {
		return nil
	}

	conn, err := net.ListenUDP("udp4", nil)
	if err != nil {
		return fmt.Errorf("nbns: bind socket: %w", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(p.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetReadDeadline(deadline)

	// Unblock the receive loop as soon as the caller gives up.
	stop := context.AfterFunc(ctx, func() { _ = conn.SetReadDeadline(time.Now()) })
	defer stop()

	// Transaction IDs are assigned up front so the receive loop can start
	// matching before the slower sends on a wide sweep have gone out.
	pending := make(map[uint16]struct{}, len(p.targets))
	queries := make(map[netip.Addr]uint16, len(p.targets))
	for _, target := range p.targets {
		txid := uint16(rand.Uint32())
		for {
			if _, dup := pending[txid]; !dup {
				break
			}
			txid++
		}
		pending[txid] = struct{}{}
		queries[target] = txid
	}

	var sendFailures atomic.Int64
	sendsDone := make(chan struct{})
	go func() {
		defer close(sendsDone)
		var senders sync.WaitGroup
		for target, txid := range queries {
			if err := p.sem.Acquire(ctx, 1); err != nil {
				break
			}
			senders.Add(1)
			go func() {
				defer senders.Done()
				defer p.sem.Release(1)
				p.send(ctx, conn, target, txid, &sendFailures)
			}()
		}
		senders.Wait()
	}()

	if err := p.receive(ctx, conn, pending, out); err != nil {
		return err
	}

	// The failure counter is only meaningful once every sender has finished;
	// in-flight sends would otherwise be misread as successes.
	<-sendsDone
	if int(sendFailures.Load()) == len(p.targets) {
		return fmt.Errorf("nbns: all %d queries failed to send", len(p.targets))
	}
	return nil
}

func (p *Prober) send(ctx context.Context, conn *net.UDPConn, target netip.Addr, txid uint16, failures *atomic.Int64) {
	query := EncodeNodeStatusQuery(WildcardName, txid)
	dst := netip.AddrPortFrom(target, p.port)

	if _, err := conn.WriteToUDPAddrPort(query, dst); err != nil {
		failures.Add(1)
		p.logger.DebugContext(ctx, "Failed to send node status query",
			slog.String("target", target.String()), logging.Error(err))
	}
}

func (p *Prober) receive(ctx context.Context, conn *net.UDPConn, pending map[uint16]struct{}, out chan<- ports.Finding) error {
	buf := make([]byte, 1024)

	for {
		n, src, err := conn.ReadFromUDPAddrPort(buf)
		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("nbns: read: %w", err)
		}

		status, err := DecodeNodeStatusResponse(buf[:n])
		if err != nil {
			// Broadcast segments carry unrelated NBNS traffic; drop it.
			p.logger.DebugContext(ctx, "Dropping datagram",
				slog.String("source", src.Addr().String()), logging.Error(err))
			continue
		}
		if _, ok := pending[status.TransactionID]; !ok {
			p.logger.DebugContext(ctx, "Dropping response with unknown transaction id",
				slog.String("source", src.Addr().String()))
			continue
		}

		addr := src.Addr().Unmap()
		for _, entry := range status.Names {
			finding := ports.Finding{
				Addr:      addr,
				Name:      entry.Name,
				Protocol:  ports.ProtocolNBNS,
				Suffix:    entry.Suffix,
				Group:     entry.Group(),
				Permanent: entry.Permanent(),
				MAC:       status.MAC,
			}
			select {
			case out <- finding:
			case <-ctx.Done():
				return nil
			}
		}
	}
}
