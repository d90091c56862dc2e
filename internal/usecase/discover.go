package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lanls/lanls/internal/common/logging"
	"github.com/lanls/lanls/internal/ports"
)

// ErrSessionFailed is returned when every enabled prober errored before
// producing a single finding. Partial results always win over this error.
var ErrSessionFailed = errors.New("discovery failed on every protocol")

// DiscoverHostsUseCase runs the configured probers concurrently and merges
// their findings into a single session. Probers push findings over a channel;
// Execute is the channel's only consumer, so the host table needs no lock.
type DiscoverHostsUseCase struct {
	logger  *slog.Logger
	probers []ports.Prober
}

func NewDiscoverHostsUseCase(logger *slog.Logger, probers ...ports.Prober) *DiscoverHostsUseCase {
	return &DiscoverHostsUseCase{
		logger:  logger,
		probers: probers,
	}
}

// Execute performs one discovery pass. A prober error is recorded on the
// session and does not interrupt the other prober; the pass fails as a whole
// only when every prober errored and nothing was found.
func (u *DiscoverHostsUseCase) Execute(ctx context.Context) (*Session, error) {
	if len(u.probers) == 0 {
		return nil, errors.New("no probers enabled")
	}

	session := newSession(time.Now())
	findings := make(chan ports.Finding, 64)

	var (
		mu        sync.Mutex
		probeErrs []ProbeError
	)

	var g errgroup.Group
	for _, p := range u.probers {
		g.Go(func() error {
			u.logger.DebugContext(ctx, "Prober started", slog.String("protocol", p.Protocol().String()))

			if err := p.Probe(ctx, findings); err != nil {
				u.logger.WarnContext(ctx, "Prober failed",
					slog.String("protocol", p.Protocol().String()), logging.Error(err))

				mu.Lock()
				probeErrs = append(probeErrs, ProbeError{Protocol: p.Protocol(), Err: err})
				mu.Unlock()
			}
			return nil
		})
	}

	go func() {
		_ = g.Wait()
		close(findings)
	}()

	for f := range findings {
		session.merge(f, time.Now())
	}

	// All probers have returned once the channel closes; probeErrs is
	// stable from here on.
	session.Errors = probeErrs
	session.FinishedAt = time.Now()

	u.logger.InfoContext(ctx, "Discovery finished",
		slog.Int("hosts", len(session.Hosts)),
		slog.Int("probe_errors", len(session.Errors)),
		slog.Duration("elapsed", session.FinishedAt.Sub(session.StartedAt)))

	if len(session.Hosts) == 0 && len(probeErrs) == len(u.probers) {
		errs := make([]error, 0, len(probeErrs))
		for _, pe := range probeErrs {
			errs = append(errs, pe)
		}
		return nil, fmt.Errorf("%w: %w", ErrSessionFailed, errors.Join(errs...))
	}

	return session, nil
}
