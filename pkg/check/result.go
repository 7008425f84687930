package check

import (
	"fmt"
	"time"
)

// Well-known metric keys.
const (
	MetricLatency    = "latency_us"
	MetricStatusCode = "status_code"
	MetricRows       = "rows"
	MetricFiles      = "files"
	MetricBytes      = "bytes"
)

// Result captures the outcome of a single check execution.
type Result struct {
	// Timestamp is when the check was executed.
	Timestamp time.Time

	// Success indicates whether the check passed.
	Success bool

	// Metrics holds named measurements from the check execution.
	// For example, a table check sets {"status_code": 200, "rows": 1}.
	Metrics map[string]int64

	// Details are informational lines printed under the check,
	// e.g. the most recent snapshot dates.
	Details []string

	// Hint is a one-line diagnosis printed when the check fails.
	Hint string

	// Err holds the reason the check failed. It is non-nil
	// exactly when Success is false.
	Err error
}

// NewResult returns an unsuccessful Result stamped with the current time.
func NewResult() Result {
	return Result{
		Timestamp: time.Now(),
		Metrics:   make(map[string]int64),
	}
}

// Detailf appends a formatted detail line.
func (r *Result) Detailf(format string, args ...any) {
	r.Details = append(r.Details, fmt.Sprintf(format, args...))
}

// Fail marks the result failed with err.
func (r *Result) Fail(err error) Result {
	r.Success = false
	r.Err = err
	return *r
}

// Pass marks the result successful.
func (r *Result) Pass() Result {
	r.Success = true
	r.Err = nil
	return *r
}
