// Package function implements the check that invokes the snapshot
// serverless function through the functions gateway. It is the only
// check with a bounded wait: the invocation is abandoned after the
// configured timeout.
package function

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/kylerisse/snapcheck/pkg/backend"
	"github.com/kylerisse/snapcheck/pkg/check"
	"github.com/sirupsen/logrus"
)

const (
	// TypeName is the registered name for this check type.
	TypeName = "function"

	// DefaultTimeout bounds the invocation.
	DefaultTimeout = 30 * time.Second
)

// Check implements check.Check with one POST to the functions gateway.
type Check struct {
	client  backend.Doer
	name    string
	payload map[string]any
	timeout time.Duration
	key     backend.KeyLevel
	logger  *logrus.Logger
	desc    check.Descriptor
}

// Option is a functional option for configuring a function Check.
type Option func(*Check) error

// WithTimeout sets the upper bound on the invocation.
func WithTimeout(d time.Duration) Option {
	return func(c *Check) error {
		if d <= 0 {
			return fmt.Errorf("timeout must be positive, got %v", d)
		}
		c.timeout = d
		return nil
	}
}

// WithPayload replaces the default {"test": true} request body.
func WithPayload(p map[string]any) Option {
	return func(c *Check) error {
		c.payload = p
		return nil
	}
}

// WithElevatedKey invokes the function with the service key instead of
// the restricted key.
func WithElevatedKey(elevated bool) Option {
	return func(c *Check) error {
		if elevated {
			c.key = backend.Elevated
		} else {
			c.key = backend.Restricted
		}
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

func defaultDescriptor(name string) check.Descriptor {
	return check.Descriptor{
		Title:       fmt.Sprintf("⚡ Testing %s Edge Function...", name),
		Label:       "Edge Function",
		Remediation: "Redeploy the function or fix database constraints",
	}
}

// New creates a function Check for the named function.
func New(client backend.Doer, name string, opts ...Option) (*Check, error) {
	if client == nil {
		return nil, fmt.Errorf("function: client is required")
	}
	if name == "" {
		return nil, fmt.Errorf("function: function name must not be empty")
	}

	c := &Check{
		client:  client,
		name:    name,
		payload: map[string]any{"test": true},
		timeout: DefaultTimeout,
		key:     backend.Restricted,
		logger:  check.Deps{}.Log(),
		desc:    defaultDescriptor(name),
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, fmt.Errorf("function: %w", err)
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

// Run invokes the function once. HTTP 200 passes; the "message" field of
// a JSON response is echoed into the details.
func (c *Check) Run(ctx context.Context) check.Result {
	result := check.NewResult()

	resp, err := c.client.Do(ctx, backend.Request{
		Method:  http.MethodPost,
		Path:    "/functions/v1/" + url.PathEscape(c.name),
		Key:     c.key,
		Body:    c.payload,
		Timeout: c.timeout,
	})
	if err != nil {
		if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			return result.Fail(fmt.Errorf("function %s did not respond within %v: %w", c.name, c.timeout, err))
		}
		return result.Fail(fmt.Errorf("function test failed: %w", err))
	}

	result.Metrics[check.MetricStatusCode] = int64(resp.StatusCode)
	result.Metrics[check.MetricLatency] = resp.Elapsed.Microseconds()

	if err := backend.Expect(resp, http.StatusOK); err != nil {
		c.logger.WithFields(logrus.Fields{
			"function": c.name,
			"kind":     backend.Classify(err),
		}).Debug("function invocation rejected")
		result.Hint = diagnose(resp.Text())
		if errors.Is(err, backend.ErrNotFound) {
			return result.Fail(fmt.Errorf("function %s is not deployed: %w", c.name, err))
		}
		return result.Fail(fmt.Errorf("function failed: %w", err))
	}

	message := "Success"
	var body map[string]any
	if resp.JSON(&body) == nil {
		if m, ok := body["message"].(string); ok && m != "" {
			message = m
		}
	}
	result.Detailf("Edge Function executed successfully")
	result.Detailf("📊 Response: %s", message)
	return result.Pass()
}

// diagnose maps well-known failure bodies to a remediation hint.
func diagnose(body string) string {
	switch {
	case backend.IsUniqueViolation(body):
		return "This is the database constraint error; the schema fix may need to be re-run"
	case backend.IsRLSViolation(body):
		return "This is a row-level security policy error; permissions need fixing"
	default:
		return ""
	}
}

// Factory creates a function Check from a config map.
//
// Required key: "function": function name.
// Optional keys:
//   - "timeout" (string): duration string (e.g. "30s"), default "30s"
//   - "payload" (object): request body, default {"test": true}
//   - "elevated" (bool): invoke with the service key
//   - "title", "label", "remediation" (string): report labels
func Factory(config map[string]any, deps check.Deps) (check.Check, error) {
	name, err := check.RequiredString(config, "function")
	if err != nil {
		return nil, fmt.Errorf("function: %w", err)
	}

	opts := []Option{WithLogger(deps.Log())}

	if d, ok, err := check.Duration(config, "timeout"); err != nil {
		return nil, fmt.Errorf("function: %w", err)
	} else if ok {
		opts = append(opts, WithTimeout(d))
	}

	if p, ok, err := check.Object(config, "payload"); err != nil {
		return nil, fmt.Errorf("function: %w", err)
	} else if ok {
		opts = append(opts, WithPayload(p))
	}

	if v, ok := config["elevated"]; ok {
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("function: 'elevated' must be a bool, got %T", v)
		}
		opts = append(opts, WithElevatedKey(b))
	}

	desc, err := check.DescriptorFrom(defaultDescriptor(name), config)
	if err != nil {
		return nil, fmt.Errorf("function: %w", err)
	}
	opts = append(opts, WithDescriptor(desc))

	return New(deps.Client, name, opts...)
}
