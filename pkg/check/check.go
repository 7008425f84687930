// Package check defines the core interfaces and types for snapshot
// verification checks.
//
// A Check represents a single verification step run against the hosted
// service. Different check types (connectivity, table, bucket, function,
// snapshot) implement the Check interface with their own requests and
// configuration.
//
// Results from check execution are captured in a Result struct, which
// provides a uniform shape regardless of check type: success/failure,
// a set of named metrics, informational details and an optional error.
//
// The Registry provides type discovery, allowing check types to be
// registered by name and instantiated from configuration at runtime.
package check

import (
	"context"
	"io"

	"github.com/kylerisse/snapcheck/pkg/backend"
	"github.com/sirupsen/logrus"
)

// Check is the interface that all verification check types must implement.
type Check interface {
	// Type returns the registered name of this check type (e.g. "table").
	Type() string

	// Describe returns the labels this instance is reported under.
	Describe() Descriptor

	// Run executes the check and returns a Result.
	// Cancelling ctx aborts any in-flight request.
	Run(ctx context.Context) Result
}

// Diagnoser explains why a host could not be reached.
type Diagnoser interface {
	Diagnose(ctx context.Context, host string) string
}

// Deps carries the shared collaborators a Factory wires into a Check.
type Deps struct {
	// Client issues requests against the service. Required.
	Client backend.Doer

	// Resolver is consulted after transport failures. May be nil.
	Resolver Diagnoser

	// Host is the service host name handed to Resolver.
	Host string

	// Logger may be nil, in which case checks log nowhere.
	Logger *logrus.Logger
}

// Log returns d.Logger, or a logger that discards everything.
func (d Deps) Log() *logrus.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}
