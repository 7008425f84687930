// Package cli wires configuration, logging and the runner behind the
// snapcheck root command.
package cli

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/kylerisse/snapcheck/pkg/backend"
	"github.com/kylerisse/snapcheck/pkg/check"
	"github.com/kylerisse/snapcheck/pkg/config"
	"github.com/kylerisse/snapcheck/pkg/resolve"
	"github.com/kylerisse/snapcheck/pkg/runner"
	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var Version = "dev"

// app carries the streams and the exit code out of the cobra command.
type app struct {
	stdout io.Writer
	stderr io.Writer
	code   int

	configPath      string
	baseURL         string
	logLevel        string
	logFormat       string
	functionTimeout time.Duration
	passThreshold   int
}

// Config keys that flags override.
const (
	flagBaseURL         = "base_url"
	flagLogLevel        = "log_level"
	flagLogFormat       = "log_format"
	flagFunctionTimeout = "function_timeout"
	flagPassThreshold   = "pass_threshold"
)

func newRootCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapcheck",
		Short: "Verify a hosted snapshot system end to end",
		Long: "Snapcheck runs six checks against the database REST API, object storage and\n" +
			"functions gateway of a hosted project and reports whether table snapshots work.\n\n" +
			"Credentials are read from SNAPCHECK_ANON_KEY and SNAPCHECK_SERVICE_KEY or the config file.",
		Version:       Version,
		Args:          cobra.NoArgs,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			code, err := a.run(cmd.Context(), overrides(cmd, a))
			a.code = code
			return err
		},
	}

	f := cmd.Flags()
	f.StringVarP(&a.configPath, "config", "c", "", "YAML config file")
	f.StringVar(&a.baseURL, "base-url", "", "service base URL (overrides base_url)")
	f.StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error")
	f.StringVar(&a.logFormat, "log-format", "", "log format: text or json")
	f.DurationVar(&a.functionTimeout, "function-timeout", 0, "upper bound on the function invocation")
	f.IntVar(&a.passThreshold, "pass-threshold", 0, "checks that must pass for exit code 0")

	cmd.SetOut(a.stdout)
	cmd.SetErr(a.stderr)
	return cmd
}

// overrides returns the flags the operator set, keyed by config key.
func overrides(cmd *cobra.Command, a *app) map[string]any {
	out := map[string]any{}
	set := func(flag, key string, v any) {
		if cmd.Flags().Changed(flag) {
			out[key] = v
		}
	}
	set("base-url", flagBaseURL, a.baseURL)
	set("log-level", flagLogLevel, a.logLevel)
	set("log-format", flagLogFormat, a.logFormat)
	set("function-timeout", flagFunctionTimeout, a.functionTimeout.String())
	set("pass-threshold", flagPassThreshold, a.passThreshold)
	return out
}

// Execute runs the root command with the process arguments and returns
// the exit code.
func Execute(ctx context.Context) int {
	return execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
}

func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	a := &app{stdout: stdout, stderr: stderr}
	cmd := newRootCommand(a)
	cmd.SetArgs(args)

	if err := cmd.ExecuteContext(ctx); err != nil {
		switch {
		case errors.Is(err, runner.ErrInterrupted):
			fmt.Fprintln(stdout, "\n\n⏹️  Tests interrupted by user")
		case errors.Is(err, config.ErrInvalid):
			fmt.Fprintf(stderr, "configuration error: %v\n", err)
		default:
			fmt.Fprintf(stderr, "\n\n💥 Unexpected error: %v\n", err)
		}
		return 1
	}
	return a.code
}

func (a *app) run(ctx context.Context, flags map[string]any) (int, error) {
	cfg, err := config.NewLoader(config.WithConfigFile(a.configPath)).Load(flags)
	if err != nil {
		return 1, err
	}

	logger, err := newLogger(cfg.LogLevel, cfg.LogFormat, a.stderr)
	if err != nil {
		return 1, err
	}

	runID, err := newRunID()
	if err != nil {
		return 1, fmt.Errorf("generate run id: %w", err)
	}
	log := logger.WithField("run_id", runID)
	log.WithField("config", fmt.Sprintf("%+v", cfg.Redacted())).Debug("configuration loaded")

	client, err := backend.New(cfg.BaseURL,
		backend.Credentials{Restricted: cfg.AnonKey, Elevated: cfg.ServiceKey},
		backend.WithTimeout(cfg.RequestTimeout),
		backend.WithRateLimit(cfg.RequestsPerSecond),
		backend.WithLogger(logger),
	)
	if err != nil {
		return 1, err
	}

	deps := check.Deps{Client: client, Host: client.Host(), Logger: logger}
	if cfg.DNSDiagnosis {
		var opts []resolve.Option
		if cfg.Nameserver != "" {
			opts = append(opts, resolve.WithServer(cfg.Nameserver))
		}
		res, err := resolve.New(opts...)
		if err != nil {
			return 1, err
		}
		deps.Resolver = res
		log.Debugf("dns diagnosis via %s", res.Server())
	}

	reg, err := runner.DefaultRegistry()
	if err != nil {
		return 1, err
	}
	r, err := runner.New(reg, deps, runner.DefaultPlan(cfg, runID),
		runner.WithOutput(a.stdout),
		runner.WithLogger(logger),
	)
	if err != nil {
		return 1, err
	}

	fmt.Fprintln(a.stdout, "Snapshot System Tester")
	fmt.Fprintf(a.stdout, "Testing snapshot functionality of %s via HTTP API\n", client.BaseURL())
	fmt.Fprintln(a.stdout, strings.Repeat("-", 50))

	rec, err := r.Run(ctx)
	if err != nil {
		log.Warnf("run stopped after %d/%d checks passed", rec.Passed(), rec.Total())
		return 1, err
	}

	runner.Report(a.stdout, rec, time.Now())

	code := rec.ExitCode(cfg.PassThreshold)
	log.WithFields(logrus.Fields{
		"passed":    rec.Passed(),
		"total":     rec.Total(),
		"exit_code": code,
	}).Info("run complete")
	return code, nil
}

// newLogger builds the process logger. Logs go to w so stdout carries
// only the report.
func newLogger(level, format string, w io.Writer) (*logrus.Logger, error) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("%w: log_level: %v", config.ErrInvalid, err)
	}

	l := logrus.New()
	l.SetOutput(w)
	l.SetLevel(lvl)

	switch format {
	case "", "text":
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		l.SetFormatter(&logrus.JSONFormatter{})
	default:
		return nil, fmt.Errorf("%w: log_format must be text or json, got %q", config.ErrInvalid, format)
	}
	return l, nil
}

func newRunID() (string, error) {
	id, err := ulid.New(ulid.Timestamp(time.Now()), ulid.Monotonic(rand.Reader, 0))
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
