package main

import (
	"fmt"
	"io"

	"github.com/lanls/lanls/internal/ports"
	"github.com/lanls/lanls/internal/usecase"
)

// render writes the frozen session as a table. Column widths follow the
// shape of the data: IPv6 sessions get a wider address column.
func render(w io.Writer, session *usecase.Session, verbose bool) {
	if len(session.Hosts) == 0 {
		fmt.Fprintln(w, "No hosts answered.")
		return
	}

	ipWidth := 16
	for _, h := range session.Hosts {
		if h.Addr.Is6() {
			ipWidth = 40
			break
		}
	}

	fmt.Fprintf(w, "%-*s %-18s %-24s %s\n", ipWidth, "IP address", "NetBIOS name", "mDNS name", "MAC")
	for _, h := range session.Hosts {
		fmt.Fprintf(w, "%-*s %-18s %-24s %s\n",
			ipWidth, h.Addr,
			orDash(h.NameFor(ports.ProtocolNBNS)),
			orDash(h.NameFor(ports.ProtocolMDNS)),
			orDash(macString(h)),
		)

		if verbose {
			renderNames(w, h)
		}
	}
}

func renderNames(w io.Writer, h *usecase.HostRecord) {
	for _, n := range h.Names {
		switch n.Protocol {
		case ports.ProtocolNBNS:
			fmt.Fprintf(w, "    %s <%02x>%s%s\n", n.Name, n.Suffix, mark(n.Group, " (group)"), mark(n.Permanent, " (permanent)"))
		default:
			fmt.Fprintf(w, "    %s (%s)\n", n.Name, n.Protocol)
		}
	}
}

func macString(h *usecase.HostRecord) string {
	if h.MAC == nil {
		return ""
	}
	return h.MAC.String()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func mark(on bool, label string) string {
	if on {
		return label
	}
	return ""
}
