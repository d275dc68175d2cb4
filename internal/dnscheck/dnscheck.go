// Package dnscheck polls a resolver until a domain's A record points at the
// expected address.
package dnscheck

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/miekg/dns"

	"github.com/pendergraft/sitelaunch/internal/logging"
)

// ErrNotPropagated is returned when the attempts run out
var ErrNotPropagated = errors.New("dns record not propagated")

// Checker queries one resolver for A records
type Checker struct {
	resolver string
	interval time.Duration
	attempts int
	client   *dns.Client
	logger   *slog.Logger
}

// New creates a checker. resolver is host:port; a bare host gets port 53.
func New(resolver string, interval time.Duration, attempts int, logger *slog.Logger) *Checker {
	if _, _, err := net.SplitHostPort(resolver); err != nil {
		resolver = net.JoinHostPort(resolver, "53")
	}
	if attempts < 1 {
		attempts = 1
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Checker{
		resolver: resolver,
		interval: interval,
		attempts: attempts,
		client:   &dns.Client{Net: "udp", Timeout: 5 * time.Second},
		logger:   logger,
	}
}

// Lookup returns the A records for domain. NXDOMAIN yields no records and no error.
func (c *Checker) Lookup(ctx context.Context, domain string) ([]string, error) {
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(domain), dns.TypeA)
	m.RecursionDesired = true

	in, _, err := c.client.ExchangeContext(ctx, m, c.resolver)
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", c.resolver, err)
	}
	switch in.Rcode {
	case dns.RcodeSuccess:
	case dns.RcodeNameError:
		return nil, nil
	default:
		return nil, fmt.Errorf("querying %s: %s", c.resolver, dns.RcodeToString[in.Rcode])
	}

	var addrs []string
	for _, rr := range in.Answer {
		if a, ok := rr.(*dns.A); ok {
			addrs = append(addrs, a.A.String())
		}
	}
	return addrs, nil
}

// Wait polls until domain resolves to ip or the attempts are exhausted.
// Query errors count as a failed attempt.
func (c *Checker) Wait(ctx context.Context, domain, ip string) error {
	var seen []string
	var lastErr error

	for attempt := 1; attempt <= c.attempts; attempt++ {
		addrs, err := c.Lookup(ctx, domain)
		switch {
		case err != nil:
			lastErr = err
			c.logger.Debug("dns query failed", "domain", domain, "attempt", attempt, "error", err)
		case contains(addrs, ip):
			c.logger.Info("dns record propagated", "domain", domain, "ip", ip, "attempt", attempt)
			return nil
		default:
			seen = addrs
			c.logger.Debug("dns record not yet propagated", "domain", domain, "attempt", attempt, "seen", strings.Join(addrs, ","))
		}

		if attempt == c.attempts {
			break
		}
		timer := time.NewTimer(c.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	if len(seen) == 0 && lastErr != nil {
		return fmt.Errorf("%w: %s after %d attempts: %v", ErrNotPropagated, domain, c.attempts, lastErr)
	}
	return fmt.Errorf("%w: %s resolves to [%s], want %s", ErrNotPropagated, domain, strings.Join(seen, ","), ip)
}

func contains(addrs []string, ip string) bool {
	for _, a := range addrs {
		if a == ip {
			return true
		}
	}
	return false
}
