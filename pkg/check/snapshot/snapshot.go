// Package snapshot implements the manual write-path check. It reads the
// primary table, builds the same document the scheduled snapshot
// function would store, and records it in the snapshot index with the
// elevated key.
//
// When the index already holds a row for today the insert is rejected
// with a uniqueness violation; the check then makes exactly one upsert
// with "Prefer: resolution=merge-duplicates". No other failure is
// retried.
package snapshot

import (
	"context"
	"encoding/json"
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
	TypeName = "snapshot"

	DefaultOrderColumn    = "No"
	DefaultObjectPrefix   = "snapcheck_test"
	DefaultConflictColumn = "snapshot_date"

	// Version is the document format version written into metadata.
	Version = "2.0.0"

	// DocumentType marks index rows written by this tool.
	DocumentType = "MANUAL_TEST_SNAPSHOT"

	mergeDuplicates = "resolution=merge-duplicates"
)

// Metadata describes a snapshot document.
type Metadata struct {
	Table        string `json:"table"`
	RowCount     int    `json:"rowCount"`
	CreatedAt    string `json:"createdAt"`
	SnapshotDate string `json:"snapshotDate"`
	Version      string `json:"version"`
	Type         string `json:"type"`
	RunID        string `json:"runId,omitempty"`
}

// Document is the exported table content plus its metadata.
type Document struct {
	Data     []json.RawMessage `json:"data"`
	Metadata Metadata          `json:"metadata"`
}

// IndexRow is the catalogue entry written to the index table.
type IndexRow struct {
	SnapshotDate  string   `json:"snapshot_date"`
	ObjectPath    string   `json:"object_path"`
	RowCount      int      `json:"row_count"`
	FileSizeBytes int      `json:"file_size_bytes"`
	Metadata      Metadata `json:"metadata"`
}

// Check implements check.Check for the manual snapshot write.
type Check struct {
	client         backend.Doer
	table          string
	indexTable     string
	orderColumn    string
	prefix         string
	conflictColumn string
	runID          string
	now            func() time.Time
	logger         *logrus.Logger
	desc           check.Descriptor
}

// Option is a functional option for configuring a snapshot Check.
type Option func(*Check) error

// WithOrderColumn sets the column the rows are sorted by, ascending.
func WithOrderColumn(col string) Option {
	return func(c *Check) error {
		if col == "" {
			return fmt.Errorf("order column must not be empty")
		}
		c.orderColumn = col
		return nil
	}
}

// WithObjectPrefix sets the storage prefix recorded in object_path.
func WithObjectPrefix(p string) Option {
	return func(c *Check) error {
		if p == "" {
			return fmt.Errorf("object prefix must not be empty")
		}
		c.prefix = p
		return nil
	}
}

// WithConflictColumn sets the on_conflict target of the upsert. An empty
// value leaves the target to the server.
func WithConflictColumn(col string) Option {
	return func(c *Check) error {
		c.conflictColumn = col
		return nil
	}
}

// WithRunID stamps the metadata with the run identifier.
func WithRunID(id string) Option {
	return func(c *Check) error {
		c.runID = id
		return nil
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Check) error {
		if now == nil {
			return fmt.Errorf("clock must not be nil")
		}
		c.now = now
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

var defaultDescriptor = check.Descriptor{
	Title: "🔨 Creating Test Snapshot...",
	Label: "Manual Snapshot",
}

// New creates a snapshot Check that copies table into indexTable.
func New(client backend.Doer, table, indexTable string, opts ...Option) (*Check, error) {
	if client == nil {
		return nil, fmt.Errorf("snapshot: client is required")
	}
	if table == "" || indexTable == "" {
		return nil, fmt.Errorf("snapshot: table and index table must not be empty")
	}

	c := &Check{
		client:         client,
		table:          table,
		indexTable:     indexTable,
		orderColumn:    DefaultOrderColumn,
		prefix:         DefaultObjectPrefix,
		conflictColumn: DefaultConflictColumn,
		now:            time.Now,
		logger:         check.Deps{}.Log(),
		desc:           defaultDescriptor,
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, fmt.Errorf("snapshot: %w", err)
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

// Run fetches the table, builds the document and writes the index row.
func (c *Check) Run(ctx context.Context) check.Result {
	result := check.NewResult()

	rows, err := c.fetch(ctx)
	if err != nil {
		return result.Fail(err)
	}

	row, err := c.build(rows)
	if err != nil {
		return result.Fail(err)
	}
	result.Metrics[check.MetricRows] = int64(row.RowCount)
	result.Metrics[check.MetricBytes] = int64(row.FileSizeBytes)
	result.Detailf("📊 Snapshot data: %d rows, %.2f KB", row.RowCount, float64(row.FileSizeBytes)/1024)

	resp, err := c.write(ctx, row, "")
	if err != nil {
		return result.Fail(fmt.Errorf("index creation failed: %w", err))
	}
	result.Metrics[check.MetricStatusCode] = int64(resp.StatusCode)

	insertErr := backend.Expect(resp, http.StatusOK, http.StatusCreated)
	if insertErr == nil {
		result.Detailf("Test snapshot index entry created")
		return result.Pass()
	}

	if !errors.Is(insertErr, backend.ErrUniqueViolation) {
		result.Hint = hint(insertErr)
		return result.Fail(fmt.Errorf("index creation failed: %w", insertErr))
	}

	c.logger.WithFields(logrus.Fields{
		"table":         c.indexTable,
		"snapshot_date": row.SnapshotDate,
	}).Debug("index row exists, retrying as upsert")
	result.Detailf("🔄 Entry for %s exists, trying upsert approach...", row.SnapshotDate)

	resp, err = c.write(ctx, row, mergeDuplicates)
	if err != nil {
		return result.Fail(fmt.Errorf("upsert failed: %w", err))
	}
	result.Metrics[check.MetricStatusCode] = int64(resp.StatusCode)

	if err := backend.Expect(resp, http.StatusOK, http.StatusCreated); err != nil {
		result.Hint = hint(err)
		return result.Fail(fmt.Errorf("upsert also failed: %w", err))
	}

	result.Detailf("Test snapshot created via upsert")
	return result.Pass()
}

func (c *Check) fetch(ctx context.Context) ([]json.RawMessage, error) {
	resp, err := c.client.Do(ctx, backend.Request{
		Method: http.MethodGet,
		Path:   "/rest/v1/" + url.PathEscape(c.table),
		Query: url.Values{
			"select": {"*"},
			"order":  {c.orderColumn + ".asc"},
		},
		Key: backend.Restricted,
	})
	if err != nil {
		return nil, fmt.Errorf("could not fetch table data for snapshot: %w", err)
	}
	if err := backend.Expect(resp, http.StatusOK); err != nil {
		return nil, fmt.Errorf("could not fetch table data for snapshot: %w", err)
	}

	var rows []json.RawMessage
	if err := resp.JSON(&rows); err != nil {
		return nil, fmt.Errorf("could not read %s rows: %w", c.table, err)
	}
	return rows, nil
}

// build serializes the document with two-space indentation and returns
// the index row describing it.
func (c *Check) build(rows []json.RawMessage) (IndexRow, error) {
	if rows == nil {
		rows = []json.RawMessage{}
	}
	now := c.now()
	date := now.Format(time.DateOnly)

	doc := Document{
		Data: rows,
		Metadata: Metadata{
			Table:        c.table,
			RowCount:     len(rows),
			CreatedAt:    now.Format(time.RFC3339),
			SnapshotDate: date,
			Version:      Version,
			Type:         DocumentType,
			RunID:        c.runID,
		},
	}

	content, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return IndexRow{}, fmt.Errorf("encode snapshot document: %w", err)
	}

	return IndexRow{
		SnapshotDate:  date,
		ObjectPath:    fmt.Sprintf("%s/%s_test.json", c.prefix, date),
		RowCount:      len(rows),
		FileSizeBytes: len(content),
		Metadata:      doc.Metadata,
	}, nil
}

// write posts row to the index table with the elevated key. A non-empty
// prefer turns the insert into an upsert.
func (c *Check) write(ctx context.Context, row IndexRow, prefer string) (*backend.Response, error) {
	req := backend.Request{
		Method: http.MethodPost,
		Path:   "/rest/v1/" + url.PathEscape(c.indexTable),
		Key:    backend.Elevated,
		Body:   row,
		Prefer: prefer,
	}
	if prefer != "" && c.conflictColumn != "" {
		req.Query = url.Values{"on_conflict": {c.conflictColumn}}
	}
	return c.client.Do(ctx, req)
}

func hint(err error) string {
	var se *backend.StatusError
	if errors.As(err, &se) && backend.IsRLSViolation(se.Body) {
		return "The index table's row-level security policy rejected the write"
	}
	if errors.Is(err, backend.ErrUnauthorized) {
		return "The elevated key was rejected; check service_key"
	}
	if errors.Is(err, backend.ErrNotFound) {
		return "The index table is missing; re-run the schema fix"
	}
	return ""
}

// Factory creates a snapshot Check from a config map.
//
// Required keys: "table" and "index_table".
// Optional keys:
//   - "order_column" (string), default "No"
//   - "object_prefix" (string), default "snapcheck_test"
//   - "conflict_column" (string), default "snapshot_date"
//   - "run_id" (string)
//   - "title", "label", "remediation" (string): report labels
func Factory(config map[string]any, deps check.Deps) (check.Check, error) {
	table, err := check.RequiredString(config, "table")
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	index, err := check.RequiredString(config, "index_table")
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}

	opts := []Option{WithLogger(deps.Log())}

	strOpts := []struct {
		key string
		opt func(string) Option
	}{
		{"order_column", WithOrderColumn},
		{"object_prefix", WithObjectPrefix},
		{"conflict_column", WithConflictColumn},
		{"run_id", WithRunID},
	}
	for _, so := range strOpts {
		v, ok, err := check.String(config, so.key)
		if err != nil {
			return nil, fmt.Errorf("snapshot: %w", err)
		}
		if ok {
			opts = append(opts, so.opt(v))
		}
	}

	desc, err := check.DescriptorFrom(defaultDescriptor, config)
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	opts = append(opts, WithDescriptor(desc))

	return New(deps.Client, table, index, opts...)
}
