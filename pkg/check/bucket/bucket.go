// Package bucket implements the object-storage check: the snapshot bucket
// must exist, and its contents are listed as a courtesy. A listing that is
// refused does not fail the check, since a restricted key commonly lacks
// list permission on private buckets.
package bucket

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/kylerisse/snapcheck/pkg/backend"
	"github.com/kylerisse/snapcheck/pkg/check"
	"github.com/sirupsen/logrus"
)

const (
	// TypeName is the registered name for this check type.
	TypeName = "bucket"

	// DefaultListLimit is how many objects are requested from the listing.
	DefaultListLimit = 10

	// shown is how many object names are printed.
	shown = 5
)

// object is the subset of a storage listing entry the check reads.
type object struct {
	Name string `json:"name"`
}

// Check implements check.Check against the storage API.
type Check struct {
	client    backend.Doer
	bucket    string
	listLimit int
	logger    *logrus.Logger
	desc      check.Descriptor
}

// Option is a functional option for configuring a bucket Check.
type Option func(*Check) error

// WithListLimit sets how many objects the listing requests. Zero skips listing.
func WithListLimit(n int) Option {
	return func(c *Check) error {
		if n < 0 {
			return fmt.Errorf("list limit must not be negative, got %d", n)
		}
		c.listLimit = n
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

func defaultDescriptor(bucket string) check.Descriptor {
	return check.Descriptor{
		Title:       fmt.Sprintf("🗄️  Testing %s Storage Bucket...", bucket),
		Label:       "Storage Bucket",
		Remediation: "Check storage bucket permissions in the dashboard",
	}
}

// New creates a bucket Check for the named bucket.
func New(client backend.Doer, bucket string, opts ...Option) (*Check, error) {
	if client == nil {
		return nil, fmt.Errorf("bucket: client is required")
	}
	if bucket == "" {
		return nil, fmt.Errorf("bucket: bucket name must not be empty")
	}

	c := &Check{
		client:    client,
		bucket:    bucket,
		listLimit: DefaultListLimit,
		logger:    check.Deps{}.Log(),
		desc:      defaultDescriptor(bucket),
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, fmt.Errorf("bucket: %w", err)
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

// Run fetches the bucket metadata and, when the bucket exists, lists its
// first objects. Only the metadata request decides success.
func (c *Check) Run(ctx context.Context) check.Result {
	result := check.NewResult()

	resp, err := c.client.Do(ctx, backend.Request{
		Method: http.MethodGet,
		Path:   "/storage/v1/bucket/" + url.PathEscape(c.bucket),
		Key:    backend.Restricted,
	})
	if err != nil {
		return result.Fail(fmt.Errorf("storage test failed: %w", err))
	}

	result.Metrics[check.MetricStatusCode] = int64(resp.StatusCode)
	result.Metrics[check.MetricLatency] = resp.Elapsed.Microseconds()

	if err := backend.Expect(resp, http.StatusOK); err != nil {
		if errors.Is(err, backend.ErrNotFound) {
			result.Hint = "Create the bucket in the storage dashboard"
			return result.Fail(fmt.Errorf("%s bucket does not exist: %w", c.bucket, err))
		}
		return result.Fail(fmt.Errorf("storage access failed: %w", err))
	}

	result.Detailf("%s bucket exists", c.bucket)

	if c.listLimit > 0 {
		c.list(ctx, &result)
	}

	return result.Pass()
}

// list appends the bucket listing to result's details.
func (c *Check) list(ctx context.Context, result *check.Result) {
	resp, err := c.client.Do(ctx, backend.Request{
		Method: http.MethodPost,
		Path:   "/storage/v1/object/list/" + url.PathEscape(c.bucket),
		Key:    backend.Restricted,
		Body: map[string]any{
			"prefix": "",
			"limit":  c.listLimit,
			"offset": 0,
			"sortBy": map[string]string{"column": "name", "order": "desc"},
		},
	})
	if err != nil {
		c.logger.Debugf("listing %s failed: %v", c.bucket, err)
		result.Detailf("⚠️  Could not list bucket contents (%v)", err)
		return
	}
	if err := backend.Expect(resp, http.StatusOK); err != nil {
		result.Detailf("⚠️  Could not list bucket contents (permission issue, %v)", err)
		return
	}

	var objects []object
	if err := resp.JSON(&objects); err != nil {
		result.Detailf("⚠️  Could not read bucket listing (%v)", err)
		return
	}

	result.Metrics[check.MetricFiles] = int64(len(objects))
	result.Detailf("📁 Files in bucket: %d", len(objects))
	for i, o := range objects {
		if i == shown {
			break
		}
		result.Detailf("   %d. %s", i+1, o.Name)
	}
}

// Factory creates a bucket Check from a config map.
//
// Required key: "bucket": bucket name.
// Optional keys:
//   - "list_limit" (int): objects requested from the listing, default 10; 0 skips it
//   - "title", "label", "remediation" (string): report labels
func Factory(config map[string]any, deps check.Deps) (check.Check, error) {
	name, err := check.RequiredString(config, "bucket")
	if err != nil {
		return nil, fmt.Errorf("bucket: %w", err)
	}

	opts := []Option{WithLogger(deps.Log())}

	if v, ok, err := check.Int(config, "list_limit"); err != nil {
		return nil, fmt.Errorf("bucket: %w", err)
	} else if ok {
		opts = append(opts, WithListLimit(v))
	}

	desc, err := check.DescriptorFrom(defaultDescriptor(name), config)
	if err != nil {
		return nil, fmt.Errorf("bucket: %w", err)
	}
	opts = append(opts, WithDescriptor(desc))

	return New(deps.Client, name, opts...)
}
