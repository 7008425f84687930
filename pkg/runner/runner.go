// Package runner executes a plan of checks in order, records which ones
// passed and renders the final report.
//
// Checks are independent: a failure never stops the run. Only
// cancellation of the run context (an operator interrupt) does, in which
// case Run returns ErrInterrupted with the partial Record.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/kylerisse/snapcheck/pkg/backend"
	"github.com/kylerisse/snapcheck/pkg/check"
	"github.com/sirupsen/logrus"
)

// ErrInterrupted is returned by Run when ctx is cancelled between or
// during checks.
var ErrInterrupted = errors.New("tests interrupted by user")

type planned struct {
	step  Step
	check check.Check
}

// Runner runs a fixed list of checks sequentially.
type Runner struct {
	checks []planned
	out    io.Writer
	logger *logrus.Logger
}

// Option is a functional option for configuring a Runner.
type Option func(*Runner) error

// WithOutput sets where progress lines are written. Default io.Discard.
func WithOutput(w io.Writer) Option {
	return func(r *Runner) error {
		if w == nil {
			return fmt.Errorf("output must not be nil")
		}
		r.out = w
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(l *logrus.Logger) Option {
	return func(r *Runner) error {
		if l == nil {
			return fmt.Errorf("logger must not be nil")
		}
		r.logger = l
		return nil
	}
}

// New builds every check of steps through reg. Any construction failure
// is a configuration error and is returned before anything runs.
func New(reg *check.Registry, deps check.Deps, steps []Step, opts ...Option) (*Runner, error) {
	if reg == nil {
		return nil, fmt.Errorf("runner: registry is required")
	}
	if len(steps) == 0 {
		return nil, fmt.Errorf("runner: plan is empty")
	}

	r := &Runner{
		out:    io.Discard,
		logger: deps.Log(),
	}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, fmt.Errorf("runner: %w", err)
		}
	}
	if deps.Logger == nil {
		deps.Logger = r.logger
	}

	seen := make(map[string]bool, len(steps))
	for _, s := range steps {
		if s.Name == "" {
			return nil, fmt.Errorf("runner: step of type %q has no name", s.Type)
		}
		if seen[s.Name] {
			return nil, fmt.Errorf("runner: duplicate step %q", s.Name)
		}
		seen[s.Name] = true

		chk, err := reg.Create(s.Type, s.Config, deps)
		if err != nil {
			return nil, fmt.Errorf("runner: step %s: %w", s.Name, err)
		}
		r.checks = append(r.checks, planned{step: s, check: chk})
	}

	return r, nil
}

// NewRecord returns an empty Record shaped after the plan.
func (r *Runner) NewRecord() *Record {
	entries := make([]Entry, len(r.checks))
	for i, p := range r.checks {
		d := p.check.Describe()
		entries[i] = Entry{Name: p.step.Name, Label: d.Label, Remediation: d.Remediation}
	}
	return NewRecord(entries)
}

// Run executes every check once, in order. The returned Record is never
// nil; on interruption it holds the checks completed so far.
func (r *Runner) Run(ctx context.Context) (*Record, error) {
	rec := r.NewRecord()

	fmt.Fprintln(r.out, "🚀 STARTING SNAPSHOT SYSTEM TESTS")
	fmt.Fprintln(r.out, strings.Repeat("=", 50))

	for i, p := range r.checks {
		if ctx.Err() != nil {
			return rec, ErrInterrupted
		}

		fmt.Fprintf(r.out, "\n%d. %s\n", i+1, p.check.Describe().Title)

		result := p.check.Run(ctx)

		// A request cut short by the interrupt is not a check failure.
		if ctx.Err() != nil {
			return rec, ErrInterrupted
		}

		r.print(p, result)
		r.record(rec, p, result)
	}

	return rec, nil
}

func (r *Runner) print(p planned, result check.Result) {
	for _, d := range result.Details {
		fmt.Fprintln(r.out, d)
	}
	label := p.check.Describe().Label
	if result.Success {
		fmt.Fprintf(r.out, "✅ %s OK\n", label)
		return
	}
	fmt.Fprintf(r.out, "❌ %s: %v\n", label, result.Err)
	if result.Hint != "" {
		fmt.Fprintf(r.out, "💡 %s\n", result.Hint)
	}
}

func (r *Runner) record(rec *Record, p planned, result check.Result) {
	fields := logrus.Fields{
		"step":    p.step.Name,
		"type":    p.check.Type(),
		"success": result.Success,
	}
	for k, v := range result.Metrics {
		fields[k] = v
	}
	entry := r.logger.WithFields(fields)

	if result.Success {
		rec.Pass(p.step.Name)
		entry.Info("check passed")
		return
	}

	err := result.Err
	if err == nil {
		err = errors.New("check failed")
	}
	rec.Fail(p.step.Name, err)
	entry.WithField("kind", backend.Classify(err)).Warnf("check failed: %v", err)
}
