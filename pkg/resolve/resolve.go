// Package resolve answers one question after a request failed to reach
// the service: does the service host name resolve at all? It queries a
// nameserver directly so the answer does not depend on the system
// resolver's caching.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/miekg/dns"
)

const (
	// DefaultTimeout is the per-query timeout.
	DefaultTimeout = 3 * time.Second

	// FallbackServer is used when no nameserver is configured and
	// /etc/resolv.conf cannot be read.
	FallbackServer = "1.1.1.1:53"

	resolvConf = "/etc/resolv.conf"
)

// ErrNoAddress means the name exists but has no A or AAAA records.
var ErrNoAddress = errors.New("no address records")

// Resolver sends A and AAAA queries to a single nameserver.
type Resolver struct {
	server  string // host:port
	timeout time.Duration
	client  *dns.Client
}

// Option is a functional option for configuring a Resolver.
type Option func(*Resolver) error

// WithServer sets the nameserver. A missing port defaults to 53.
func WithServer(server string) Option {
	return func(r *Resolver) error {
		if server == "" {
			return fmt.Errorf("server must not be empty")
		}
		if _, _, err := net.SplitHostPort(server); err != nil {
			server = net.JoinHostPort(strings.Trim(server, "[]"), "53")
		}
		r.server = server
		return nil
	}
}

// WithTimeout sets the per-query timeout.
func WithTimeout(d time.Duration) Option {
	return func(r *Resolver) error {
		if d <= 0 {
			return fmt.Errorf("timeout must be positive, got %v", d)
		}
		r.timeout = d
		return nil
	}
}

// New creates a Resolver. Without WithServer it uses the first
// nameserver of /etc/resolv.conf.
func New(opts ...Option) (*Resolver, error) {
	r := &Resolver{
		timeout: DefaultTimeout,
	}

	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, fmt.Errorf("resolve: %w", err)
		}
	}

	if r.server == "" {
		r.server = systemServer()
	}

	r.client = &dns.Client{
		Timeout: r.timeout,
	}

	return r, nil
}

// systemServer returns the first nameserver from resolv.conf, or
// FallbackServer.
func systemServer() string {
	cfg, err := dns.ClientConfigFromFile(resolvConf)
	if err != nil || len(cfg.Servers) == 0 {
		return FallbackServer
	}
	return net.JoinHostPort(cfg.Servers[0], cfg.Port)
}

// Server returns the nameserver address in host:port form.
func (r *Resolver) Server() string {
	return r.server
}

// Lookup returns the addresses host resolves to. A records are tried
// first, AAAA only when there are none.
func (r *Resolver) Lookup(ctx context.Context, host string) ([]net.IP, error) {
	if ip := net.ParseIP(host); ip != nil {
		return []net.IP{ip}, nil
	}

	var lastErr error
	for _, qtype := range []uint16{dns.TypeA, dns.TypeAAAA} {
		ips, err := r.query(ctx, host, qtype)
		if err != nil {
			lastErr = err
			var rcodeErr *RcodeError
			if errors.As(err, &rcodeErr) && rcodeErr.Rcode == dns.RcodeNameError {
				return nil, err
			}
			continue
		}
		if len(ips) > 0 {
			return ips, nil
		}
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, fmt.Errorf("%s: %w", host, ErrNoAddress)
}

// RcodeError is returned when the nameserver answers with a non-success rcode.
type RcodeError struct {
	Name  string
	Rcode int
}

func (e *RcodeError) Error() string {
	return fmt.Sprintf("%s: rcode %s", e.Name, dns.RcodeToString[e.Rcode])
}

func (r *Resolver) query(ctx context.Context, host string, qtype uint16) ([]net.IP, error) {
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(host), qtype)
	msg.RecursionDesired = true

	resp, _, err := r.client.ExchangeContext(ctx, msg, r.server)
	if err != nil {
		return nil, fmt.Errorf("query %s via %s: %w", host, r.server, err)
	}
	if resp.Rcode != dns.RcodeSuccess {
		return nil, &RcodeError{Name: host, Rcode: resp.Rcode}
	}

	var ips []net.IP
	for _, rr := range resp.Answer {
		switch v := rr.(type) {
		case *dns.A:
			ips = append(ips, v.A)
		case *dns.AAAA:
			ips = append(ips, v.AAAA)
		}
	}
	return ips, nil
}

// Diagnose returns a one-line explanation of host's resolution state,
// suitable as a hint under a failed connectivity check.
func (r *Resolver) Diagnose(ctx context.Context, host string) string {
	if net.ParseIP(host) != nil {
		return fmt.Sprintf("%s is an IP address; the service is unreachable or refusing connections", host)
	}

	ips, err := r.Lookup(ctx, host)
	if err != nil {
		return fmt.Sprintf("%s does not resolve (%v); check base_url and DNS", host, err)
	}

	addrs := make([]string, len(ips))
	for i, ip := range ips {
		addrs[i] = ip.String()
	}
	return fmt.Sprintf("%s resolves to %s; the service is unreachable or refusing connections", host, strings.Join(addrs, ", "))
}
