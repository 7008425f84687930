// Package backend is a thin HTTP client for the hosted service whose
// snapshot feature is being verified: the PostgREST database API under
// /rest/v1, the storage API under /storage/v1 and the functions gateway
// under /functions/v1.
//
// Every request carries the service's two authentication headers
// (apikey and a bearer token) using one of two credentials: the
// restricted key that browsers use, or the elevated service key.
//
// The client performs exactly one attempt per request. There are no
// retries and no backoff; callers classify the outcome by status code
// with Expect and the error taxonomy in errors.go.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// KeyLevel selects which credential a request is sent with.
type KeyLevel int

const (
	// Restricted is the low-privilege, read-oriented key.
	Restricted KeyLevel = iota
	// Elevated is the service key with write and administrative access.
	Elevated
)

func (k KeyLevel) String() string {
	if k == Elevated {
		return "elevated"
	}
	return "restricted"
}

// Credentials holds both keys. Neither is ever logged.
type Credentials struct {
	Restricted string
	Elevated   string
}

// Doer is the subset of Client that checks depend on.
type Doer interface {
	Do(ctx context.Context, req Request) (*Response, error)
}

// Request describes a single call against the service.
type Request struct {
	Method string
	// Path is relative to the base URL, e.g. "/rest/v1/staffTable".
	Path  string
	Query url.Values
	Key   KeyLevel
	// Body is JSON-encoded when non-nil.
	Body any
	// Prefer sets the PostgREST Prefer header when non-empty.
	Prefer string
	// Timeout bounds this request only. Zero means no per-request bound.
	Timeout time.Duration
}

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	Elapsed    time.Duration
}

// Text returns the body as a string.
func (r *Response) Text() string {
	return string(r.Body)
}

// JSON decodes the body into v.
func (r *Response) JSON(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("decode response body: %w", err)
	}
	return nil
}

// Client talks to one service instance.
type Client struct {
	base    *url.URL
	creds   Credentials
	http    *http.Client
	limiter *rate.Limiter
	logger  *logrus.Logger
}

// Option is a functional option for configuring a Client.
type Option func(*Client) error

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) error {
		if hc == nil {
			return fmt.Errorf("http client must not be nil")
		}
		c.http = hc
		return nil
	}
}

// WithTimeout sets a client-wide timeout applied to every request.
// Zero disables it, which is the default.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) error {
		if d < 0 {
			return fmt.Errorf("timeout must not be negative, got %v", d)
		}
		c.http.Timeout = d
		return nil
	}
}

// WithRateLimit paces outgoing requests to at most rps per second.
// Zero leaves requests unpaced.
func WithRateLimit(rps float64) Option {
	return func(c *Client) error {
		if rps < 0 {
			return fmt.Errorf("rate limit must not be negative, got %v", rps)
		}
		if rps == 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 1)
			return nil
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		return nil
	}
}

// WithLogger sets the logger used for request tracing.
func WithLogger(l *logrus.Logger) Option {
	return func(c *Client) error {
		if l == nil {
			return fmt.Errorf("logger must not be nil")
		}
		c.logger = l
		return nil
	}
}

// New creates a Client for the service at baseURL.
func New(baseURL string, creds Credentials, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("backend: invalid base URL %q: %w", baseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("backend: base URL %q must use http or https", baseURL)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("backend: base URL %q has no host", baseURL)
	}
	if creds.Restricted == "" || creds.Elevated == "" {
		return nil, fmt.Errorf("backend: both restricted and elevated keys are required")
	}

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	c := &Client{
		base:    u,
		creds:   creds,
		http:    &http.Client{},
		limiter: rate.NewLimiter(rate.Inf, 1),
		logger:  logger,
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, fmt.Errorf("backend: %w", err)
		}
	}

	return c, nil
}

// Host returns the host name of the base URL without the port.
func (c *Client) Host() string {
	return c.base.Hostname()
}

// BaseURL returns the normalized base URL.
func (c *Client) BaseURL() string {
	return c.base.String()
}

// Do sends req once and reads the whole response. A non-nil error is
// always a *TransportError; HTTP error statuses are returned as a normal
// Response for the caller to judge.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	target := c.resolve(req)

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &TransportError{Method: req.Method, URL: target, Err: err}
	}

	var body io.Reader
	if req.Body != nil {
		payload, err := json.Marshal(req.Body)
		if err != nil {
			return nil, &TransportError{Method: req.Method, URL: target, Err: fmt.Errorf("encode request body: %w", err)}
		}
		body = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, body)
	if err != nil {
		return nil, &TransportError{Method: req.Method, URL: target, Err: err}
	}

	key := c.key(req.Key)
	httpReq.Header.Set("apikey", key)
	httpReq.Header.Set("Authorization", "Bearer "+key)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if req.Prefer != "" {
		httpReq.Header.Set("Prefer", req.Prefer)
	}

	c.logger.Debugf("%s %s (%s key)", req.Method, target, req.Key)

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		c.logger.Debugf("%s %s failed after %v: %v", req.Method, target, time.Since(start), err)
		return nil, &TransportError{Method: req.Method, URL: target, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	elapsed := time.Since(start)
	if err != nil {
		return nil, &TransportError{Method: req.Method, URL: target, Err: fmt.Errorf("read response body: %w", err)}
	}

	c.logger.Debugf("%s %s -> %d in %v (%d bytes)", req.Method, target, resp.StatusCode, elapsed, len(data))

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       data,
		Elapsed:    elapsed,
	}, nil
}

func (c *Client) key(level KeyLevel) string {
	if level == Elevated {
		return c.creds.Elevated
	}
	return c.creds.Restricted
}

func (c *Client) resolve(req Request) string {
	u := *c.base
	u.Path = c.base.Path + "/" + strings.TrimLeft(req.Path, "/")
	if len(req.Query) > 0 {
		u.RawQuery = req.Query.Encode()
	}
	return u.String()
}

// Expect returns nil when resp carries one of the accepted status codes,
// and a *StatusError otherwise.
func Expect(resp *Response, accepted ...int) error {
	if slices.Contains(accepted, resp.StatusCode) {
		return nil
	}
	return &StatusError{StatusCode: resp.StatusCode, Body: resp.Text()}
}
