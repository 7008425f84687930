// Package table implements a readability check for a database table
// exposed through the REST API. The same check type serves both the
// primary data table and the snapshot index table; the index flavor also
// lists the most recent entries it sampled.
package table

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/kylerisse/snapcheck/pkg/backend"
	"github.com/kylerisse/snapcheck/pkg/check"
	"github.com/sirupsen/logrus"
)

const (
	// TypeName is the registered name for this check type.
	TypeName = "table"

	// DefaultSelect is the column projection used when none is configured.
	DefaultSelect = "*"

	// DefaultLimit caps the number of sampled rows.
	DefaultLimit = 1

	// createdAtWidth is how much of an ISO-8601 created_at value is shown
	// ("2006-01-02T15:04:05").
	createdAtWidth = 19
)

// Check implements check.Check with a single projected, limited GET.
type Check struct {
	client backend.Doer
	table  string
	sel    string
	order  string
	limit  int
	recent int
	logger *logrus.Logger
	desc   check.Descriptor
}

// Option is a functional option for configuring a table Check.
type Option func(*Check) error

// WithSelect sets the PostgREST column projection (e.g. "id,snapshot_date").
func WithSelect(sel string) Option {
	return func(c *Check) error {
		if sel == "" {
			return fmt.Errorf("select must not be empty")
		}
		c.sel = sel
		return nil
	}
}

// WithOrder sets the PostgREST ordering (e.g. "created_at.desc").
func WithOrder(order string) Option {
	return func(c *Check) error {
		c.order = order
		return nil
	}
}

// WithLimit sets how many rows are sampled.
func WithLimit(n int) Option {
	return func(c *Check) error {
		if n <= 0 {
			return fmt.Errorf("limit must be positive, got %d", n)
		}
		c.limit = n
		return nil
	}
}

// WithRecent lists up to n sampled rows as snapshot entries
// (snapshot_date and created_at) in the result details.
func WithRecent(n int) Option {
	return func(c *Check) error {
		if n < 0 {
			return fmt.Errorf("recent must not be negative, got %d", n)
		}
		c.recent = n
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

// New creates a table Check for the named table.
func New(client backend.Doer, table string, opts ...Option) (*Check, error) {
	if client == nil {
		return nil, fmt.Errorf("table: client is required")
	}
	if table == "" {
		return nil, fmt.Errorf("table: table name must not be empty")
	}

	c := &Check{
		client: client,
		table:  table,
		sel:    DefaultSelect,
		limit:  DefaultLimit,
		logger: check.Deps{}.Log(),
		desc: check.Descriptor{
			Title: fmt.Sprintf("📋 Testing %s Access...", table),
			Label: table,
		},
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, fmt.Errorf("table: %w", err)
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

// Run reads a sample of the table with the restricted key. HTTP 200 with
// a JSON array passes; 404 means the table does not exist.
func (c *Check) Run(ctx context.Context) check.Result {
	result := check.NewResult()

	query := url.Values{
		"select": {c.sel},
		"limit":  {strconv.Itoa(c.limit)},
	}
	if c.order != "" {
		query.Set("order", c.order)
	}

	resp, err := c.client.Do(ctx, backend.Request{
		Method: http.MethodGet,
		Path:   "/rest/v1/" + url.PathEscape(c.table),
		Query:  query,
		Key:    backend.Restricted,
	})
	if err != nil {
		return result.Fail(fmt.Errorf("%s test failed: %w", c.table, err))
	}

	result.Metrics[check.MetricStatusCode] = int64(resp.StatusCode)
	result.Metrics[check.MetricLatency] = resp.Elapsed.Microseconds()

	if err := backend.Expect(resp, http.StatusOK); err != nil {
		c.logger.WithFields(logrus.Fields{
			"table": c.table,
			"kind":  backend.Classify(err),
		}).Debug("table read rejected")
		if errors.Is(err, backend.ErrNotFound) {
			return result.Fail(fmt.Errorf("%s table does not exist: %w", c.table, err))
		}
		if errors.Is(err, backend.ErrUnauthorized) {
			result.Hint = "Read access is denied; check the table's row-level security policies"
		}
		return result.Fail(fmt.Errorf("%s access failed: %w", c.table, err))
	}

	var rows []map[string]any
	if err := resp.JSON(&rows); err != nil {
		return result.Fail(fmt.Errorf("%s returned an unexpected body: %w", c.table, err))
	}
	result.Metrics[check.MetricRows] = int64(len(rows))

	if c.recent == 0 {
		result.Detailf("%s accessible (%d records sampled)", c.table, len(rows))
		return result.Pass()
	}

	result.Detailf("%s accessible (%d snapshots found)", c.table, len(rows))
	if len(rows) == 0 {
		result.Detailf("⚠️  No snapshots found in index")
		return result.Pass()
	}
	result.Detailf("📅 Recent snapshots:")
	for i, row := range rows {
		if i == c.recent {
			break
		}
		result.Detailf("   %d. %s (Created: %s)", i+1, field(row, "snapshot_date", 0), field(row, "created_at", createdAtWidth))
	}
	return result.Pass()
}

// field renders row[key] as text, truncated to width runes when width > 0.
func field(row map[string]any, key string, width int) string {
	v, ok := row[key]
	if !ok || v == nil {
		return "?"
	}
	s := fmt.Sprint(v)
	if width > 0 {
		if r := []rune(s); len(r) > width {
			return string(r[:width])
		}
	}
	return s
}

// Factory creates a table Check from a config map.
//
// Required key: "table": table name.
// Optional keys:
//   - "select" (string): column projection, default "*"
//   - "order" (string): ordering, e.g. "created_at.desc"
//   - "limit" (int): sampled rows, default 1
//   - "recent" (int): list up to this many rows as snapshot entries
//   - "title", "label", "remediation" (string): report labels
func Factory(config map[string]any, deps check.Deps) (check.Check, error) {
	name, err := check.RequiredString(config, "table")
	if err != nil {
		return nil, fmt.Errorf("table: %w", err)
	}

	opts := []Option{WithLogger(deps.Log())}

	if v, ok, err := check.String(config, "select"); err != nil {
		return nil, fmt.Errorf("table: %w", err)
	} else if ok {
		opts = append(opts, WithSelect(v))
	}

	if v, ok, err := check.String(config, "order"); err != nil {
		return nil, fmt.Errorf("table: %w", err)
	} else if ok {
		opts = append(opts, WithOrder(v))
	}

	if v, ok, err := check.Int(config, "limit"); err != nil {
		return nil, fmt.Errorf("table: %w", err)
	} else if ok {
		opts = append(opts, WithLimit(v))
	}

	if v, ok, err := check.Int(config, "recent"); err != nil {
		return nil, fmt.Errorf("table: %w", err)
	} else if ok {
		opts = append(opts, WithRecent(v))
	}

	desc, err := check.DescriptorFrom(check.Descriptor{
		Title: fmt.Sprintf("📋 Testing %s Access...", name),
		Label: name,
	}, config)
	if err != nil {
		return nil, fmt.Errorf("table: %w", err)
	}
	opts = append(opts, WithDescriptor(desc))

	return New(deps.Client, name, opts...)
}
