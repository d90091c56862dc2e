package main

import (
	"errors"
	"fmt"
	"net/netip"
)

func (c *CLI) Validate() error {
	var errs []error

	s := &c.Scan

	if s.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("--timeout: must be greater than zero"))
	}

	if len(s.Protocols) == 0 {
		errs = append(errs, errors.New("--protocols: at least one of nbns, mdns must be enabled"))
	}
	for _, p := range s.Protocols {
		if !isProtocol(p) {
			errs = append(errs, fmt.Errorf("--protocols: unknown protocol %q (must be nbns or mdns)", p))
		}
	}

	for _, t := range s.Targets {
		if !isTargetSpec(t) {
			errs = append(errs, fmt.Errorf("--targets: %q is not an IP address or CIDR range", t))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

func isProtocol(val string) bool {
	return val == "nbns" || val == "mdns"
}

func isTargetSpec(val string) bool {
	if _, err := netip.ParseAddr(val); err == nil {
		return true
	}

	_, err := netip.ParsePrefix(val)

	return err == nil
}
