package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/lanls/lanls/internal/adapter/mdns"
	"github.com/lanls/lanls/internal/adapter/nbns"
	"github.com/lanls/lanls/internal/common/logging"
	"github.com/lanls/lanls/internal/common/tracing"
	"github.com/lanls/lanls/internal/netutil"
	"github.com/lanls/lanls/internal/ports"
	"github.com/lanls/lanls/internal/usecase"
)

// Timeouts outside this window still work, they just deserve a warning:
// below it answers routinely miss the deadline, above it the scan drags.
const (
	lowTimeoutWarning  = 100 * time.Millisecond
	highTimeoutWarning = 3500 * time.Millisecond
)

type Scan struct {
	Timeout   time.Duration `name:"timeout" env:"LANLS_TIMEOUT" default:"2s" help:"How long to wait for responses (e.g. 500ms, 2s)."`
	Interface string        `name:"interface" short:"i" env:"LANLS_INTERFACE" help:"Network interface to scan on. Defaults to the first usable one."`
	Targets   []string      `name:"targets" short:"t" env:"LANLS_TARGETS" sep:"," help:"IPs or CIDR ranges to query directly. Defaults to the subnet broadcast."`
	Protocols []string      `name:"protocols" env:"LANLS_PROTOCOLS" default:"nbns,mdns" sep:"," help:"Protocols to probe with (nbns, mdns)."`
	IPv6      bool          `name:"ipv6" env:"LANLS_IPV6" default:"false" help:"Also probe mDNS over IPv6 (ff02::fb)."`
	Verbose   bool          `name:"verbose" short:"v" help:"Print every name each host reported, with NBNS suffixes and flags."`
	LogLevel  string        `name:"log.level" env:"LOG_LEVEL" default:"warn" help:"Log level (debug, info, warn, error)"`
}

func scan(cli *CLI) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	ctx = tracing.WithScanID(ctx)

	logLevel, err := parseLogLevel(cli.Scan.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to parse log level: %w", err)
	}

	// Logs go to stderr; stdout carries the host table.
	logger := slog.New(logging.NewScanHandler(
		slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: logLevel,
		}),
	)).With(logging.NewProgramAttr())

	if cli.Scan.Timeout < lowTimeoutWarning {
		logger.WarnContext(ctx, "Timeout is very low, hosts may not answer in time",
			slog.Duration("timeout", cli.Scan.Timeout))
	}
	if cli.Scan.Timeout > highTimeoutWarning {
		logger.WarnContext(ctx, "Timeout is very high, the scan will take a while",
			slog.Duration("timeout", cli.Scan.Timeout))
	}

	iface, ipnet, err := resolveInterface(cli.Scan.Interface)
	if err != nil {
		return err
	}
	logger.InfoContext(ctx, "Scanning",
		slog.String("interface", iface.Name),
		slog.String("network", ipnet.String()),
		slog.Duration("timeout", cli.Scan.Timeout))

	explicit, err := netutil.ExpandTargets(cli.Scan.Targets)
	if err != nil {
		return err
	}

	nbnsTargets := explicit
	if len(nbnsTargets) == 0 {
		bcast, ok := netutil.BroadcastAddr(ipnet)
		if !ok {
			return fmt.Errorf("cannot derive broadcast address for %s", ipnet)
		}
		nbnsTargets = []netip.Addr{bcast}
	}

	var probers []ports.Prober
	if slices.Contains(cli.Scan.Protocols, "nbns") {
		probers = append(probers, nbns.NewProber(logger, nbnsTargets, cli.Scan.Timeout))
	}
	if slices.Contains(cli.Scan.Protocols, "mdns") {
		probers = append(probers, mdns.NewProber(logger, iface, explicit, cli.Scan.Timeout, true, cli.Scan.IPv6))
	}

	uc := usecase.NewDiscoverHostsUseCase(logger, probers...)

	// Grace on top of the probe timeout so the probers' own deadlines,
	// not this context, end the pass.
	runCtx, cancelRun := context.WithTimeout(ctx, cli.Scan.Timeout+time.Second)
	defer cancelRun()

	session, err := uc.Execute(runCtx)
	if err != nil {
		return err
	}

	for _, pe := range session.Errors {
		logger.WarnContext(ctx, "Probe failed, results are partial", logging.Error(pe))
	}

	render(os.Stdout, session, cli.Scan.Verbose)
	return nil
}

func resolveInterface(name string) (*net.Interface, *net.IPNet, error) {
	if name != "" {
		return netutil.InterfaceByName(name)
	}
	return netutil.DefaultInterface()
}

func parseLogLevel(levelStr string) (slog.Level, error) {
	switch strings.ToLower(levelStr) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.Level(-1), fmt.Errorf("invalid log level: %s", levelStr)
	}
}
