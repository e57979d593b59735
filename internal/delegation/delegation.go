// Package delegation probes public DNS for a domain's delegation and checks
// it against the nameservers a hosted zone expects. Probing is advisory: the
// result feeds warnings, never reconciliation actions.
package delegation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/miekg/dns"
)

// DefaultResolver is the resolver queried when none is configured.
const DefaultResolver = "1.1.1.1:53"

// DefaultTimeout bounds a single NS query.
const DefaultTimeout = 5 * time.Second

// Prober issues NS queries against a recursive resolver.
type Prober struct {
	resolver string
	client   *dns.Client
}

// Option configures a Prober.
type Option func(*Prober)

// WithResolver sets the resolver address (host:port).
func WithResolver(addr string) Option {
	return func(p *Prober) {
		if addr != "" {
			p.resolver = addr
		}
	}
}

// WithTimeout bounds each query.
func WithTimeout(d time.Duration) Option {
	return func(p *Prober) {
		if d > 0 {
			p.client.Timeout = d
		}
	}
}

// NewProber creates a Prober against the default resolver.
func NewProber(opts ...Option) *Prober {
	p := &Prober{
		resolver: DefaultResolver,
		client:   &dns.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Lookup returns the nameservers the public DNS currently delegates the
// domain to.
func (p *Prober) Lookup(ctx context.Context, domain string) ([]string, error) {
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(domain), dns.TypeNS)
	msg.RecursionDesired = true

	resp, _, err := p.client.ExchangeContext(ctx, msg, p.resolver)
	if err != nil {
		return nil, fmt.Errorf("querying NS for %s via %s: %w", domain, p.resolver, err)
	}
	if resp.Rcode != dns.RcodeSuccess {
		return nil, fmt.Errorf("NS query for %s returned %s", domain, dns.RcodeToString[resp.Rcode])
	}

	var servers []string
	for _, rr := range resp.Answer {
		if ns, ok := rr.(*dns.NS); ok {
			servers = append(servers, strings.TrimSuffix(ns.Ns, "."))
		}
	}
	return servers, nil
}

// Matches reports whether the delegated nameservers cover the expected set,
// ignoring order, case, and trailing dots.
func Matches(delegated, expected []string) bool {
	if len(delegated) != len(expected) {
		return false
	}
	seen := make(map[string]int, len(delegated))
	for _, ns := range delegated {
		seen[normalize(ns)]++
	}
	for _, ns := range expected {
		key := normalize(ns)
		seen[key]--
		if seen[key] < 0 {
			return false
		}
	}
	return true
}

func normalize(ns string) string {
	return strings.ToLower(strings.TrimSuffix(strings.TrimSpace(ns), "."))
}
