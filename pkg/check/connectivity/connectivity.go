// Package connectivity implements the liveness probe against the REST
// root of the service. When the request cannot reach the service at all,
// the check asks the configured resolver whether the host name resolves,
// so the report can tell a DNS problem from an outage.
package connectivity

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/kylerisse/snapcheck/pkg/backend"
	"github.com/kylerisse/snapcheck/pkg/check"
	"github.com/sirupsen/logrus"
)

const (
	// TypeName is the registered name for this check type.
	TypeName = "connectivity"

	// DefaultPath is the REST root probed by the check.
	DefaultPath = "/rest/v1/"
)

var defaultDescriptor = check.Descriptor{
	Title: "🔌 Testing Connection...",
	Label: "Connection",
}

// Check implements check.Check with a single GET of the REST root.
type Check struct {
	client   backend.Doer
	resolver check.Diagnoser
	host     string
	path     string
	logger   *logrus.Logger
	desc     check.Descriptor
}

// Option is a functional option for configuring a connectivity Check.
type Option func(*Check) error

// WithPath overrides the probed path.
func WithPath(p string) Option {
	return func(c *Check) error {
		if p == "" {
			return fmt.Errorf("path must not be empty")
		}
		c.path = p
		return nil
	}
}

// WithResolver enables DNS diagnosis of transport failures for host.
func WithResolver(r check.Diagnoser, host string) Option {
	return func(c *Check) error {
		c.resolver = r
		c.host = host
		return nil
	}
}

// WithDescriptor replaces the default report labels.
func WithDescriptor(d check.Descriptor) Option {
	return func(c *Check) error {
		c.desc = d
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(l *logrus.Logger) Option {
	return func(c *Check) error {
		c.logger = l
		return nil
	}
}

// New creates a connectivity Check using client.
func New(client backend.Doer, opts ...Option) (*Check, error) {
	if client == nil {
		return nil, fmt.Errorf("connectivity: client is required")
	}

	c := &Check{
		client: client,
		path:   DefaultPath,
		logger: check.Deps{}.Log(),
		desc:   defaultDescriptor,
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, fmt.Errorf("connectivity: %w", err)
		}
	}

	return c, nil
}

// Type returns the check type name.
func (c *Check) Type() string {
	return TypeName
}

// Describe returns the Descriptor for this check instance.
func (c *Check) Describe() check.Descriptor {
	return c.desc
}

// Run probes the REST root with the restricted key. Only HTTP 200 passes.
func (c *Check) Run(ctx context.Context) check.Result {
	result := check.NewResult()

	resp, err := c.client.Do(ctx, backend.Request{
		Method: http.MethodGet,
		Path:   c.path,
		Key:    backend.Restricted,
	})
	if err != nil {
		if c.resolver != nil && c.host != "" && ctx.Err() == nil && errors.Is(err, backend.ErrTransport) {
			result.Hint = c.resolver.Diagnose(ctx, c.host)
		}
		c.logger.WithField("kind", backend.Classify(err)).Debugf("connectivity probe failed: %v", err)
		return result.Fail(fmt.Errorf("connection test failed: %w", err))
	}

	result.Metrics[check.MetricStatusCode] = int64(resp.StatusCode)
	result.Metrics[check.MetricLatency] = resp.Elapsed.Microseconds()

	if err := backend.Expect(resp, http.StatusOK); err != nil {
		if errors.Is(err, backend.ErrUnauthorized) {
			result.Hint = "The restricted key was rejected; check anon_key"
		}
		return result.Fail(fmt.Errorf("connection failed: %w", err))
	}

	result.Detailf("connection successful (%d ms)", resp.Elapsed.Milliseconds())
	return result.Pass()
}

// Factory creates a connectivity Check from a config map.
//
// Optional keys:
//   - "path" (string): probed path, default "/rest/v1/"
//   - "title", "label", "remediation" (string): report labels
func Factory(config map[string]any, deps check.Deps) (check.Check, error) {
	var opts []Option

	if p, ok, err := check.String(config, "path"); err != nil {
		return nil, fmt.Errorf("connectivity: %w", err)
	} else if ok {
		opts = append(opts, WithPath(p))
	}

	desc, err := check.DescriptorFrom(defaultDescriptor, config)
	if err != nil {
		return nil, fmt.Errorf("connectivity: %w", err)
	}
	opts = append(opts, WithDescriptor(desc), WithLogger(deps.Log()))

	if deps.Resolver != nil {
		opts = append(opts, WithResolver(deps.Resolver, deps.Host))
	}

	return New(deps.Client, opts...)
}
