// Package config loads snapcheck's settings.
//
// Sources are layered with koanf, later ones overriding earlier ones:
// built-in defaults, an optional YAML file, SNAPCHECK_* environment
// variables, then command-line flags. Credentials have no default and
// are expected from the file or, preferably, the environment.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Config is the complete run configuration.
type Config struct {
	BaseURL    string `koanf:"base_url"`
	AnonKey    string `koanf:"anon_key"`
	ServiceKey string `koanf:"service_key"`

	PrimaryTable   string `koanf:"primary_table"`
	OrderColumn    string `koanf:"order_column"`
	IndexTable     string `koanf:"index_table"`
	Bucket         string `koanf:"bucket"`
	Function       string `koanf:"function"`
	ObjectPrefix   string `koanf:"object_prefix"`
	ConflictColumn string `koanf:"conflict_column"`

	FunctionTimeout time.Duration `koanf:"function_timeout"`
	RequestTimeout  time.Duration `koanf:"request_timeout"`

	IndexLimit int `koanf:"index_limit"`
	ListLimit  int `koanf:"list_limit"`

	RequestsPerSecond float64 `koanf:"requests_per_second"`

	// DNSDiagnosis enables resolving the service host after a
	// connection failure. Nameserver empty means /etc/resolv.conf.
	DNSDiagnosis bool   `koanf:"dns_diagnosis"`
	Nameserver   string `koanf:"nameserver"`

	PassThreshold int `koanf:"pass_threshold"`

	LogLevel  string `koanf:"log_level"`
	LogFormat string `koanf:"log_format"`
}

// Defaults returns the built-in values as a flat koanf map.
func Defaults() map[string]any {
	return map[string]any{
		"primary_table":       "staffTable",
		"order_column":        "No",
		"index_table":         "table_snapshots_index",
		"bucket":              "table-snapshots",
		"function":            "snapshot_staff_table_daily",
		"object_prefix":       "snapcheck_test",
		"conflict_column":     "snapshot_date",
		"function_timeout":    "30s",
		"request_timeout":     "0s",
		"index_limit":         10,
		"list_limit":          10,
		"requests_per_second": 0.0,
		"dns_diagnosis":       true,
		"nameserver":          "",
		"pass_threshold":      4,
		"log_level":           "warn",
		"log_format":          "text",
	}
}

// Validate reports the first problem found, wrapped in ErrInvalid.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("%w: base_url is required", ErrInvalid)
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: base_url %q must be an http(s) URL", ErrInvalid, c.BaseURL)
	}
	if c.AnonKey == "" {
		return fmt.Errorf("%w: anon_key is required (set SNAPCHECK_ANON_KEY)", ErrInvalid)
	}
	if c.ServiceKey == "" {
		return fmt.Errorf("%w: service_key is required (set SNAPCHECK_SERVICE_KEY)", ErrInvalid)
	}

	names := map[string]string{
		"primary_table": c.PrimaryTable,
		"order_column":  c.OrderColumn,
		"index_table":   c.IndexTable,
		"bucket":        c.Bucket,
		"function":      c.Function,
		"object_prefix": c.ObjectPrefix,
	}
	for key, v := range names {
		if strings.TrimSpace(v) == "" {
			return fmt.Errorf("%w: %s must not be empty", ErrInvalid, key)
		}
	}

	switch {
	case c.FunctionTimeout <= 0:
		return fmt.Errorf("%w: function_timeout must be positive, got %v", ErrInvalid, c.FunctionTimeout)
	case c.RequestTimeout < 0:
		return fmt.Errorf("%w: request_timeout must not be negative, got %v", ErrInvalid, c.RequestTimeout)
	case c.IndexLimit <= 0:
		return fmt.Errorf("%w: index_limit must be positive, got %d", ErrInvalid, c.IndexLimit)
	case c.ListLimit < 0:
		return fmt.Errorf("%w: list_limit must not be negative, got %d", ErrInvalid, c.ListLimit)
	case c.RequestsPerSecond < 0:
		return fmt.Errorf("%w: requests_per_second must not be negative, got %v", ErrInvalid, c.RequestsPerSecond)
	case c.PassThreshold < 0:
		return fmt.Errorf("%w: pass_threshold must not be negative, got %d", ErrInvalid, c.PassThreshold)
	}

	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: log_level: %v", ErrInvalid, err)
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("%w: log_format must be text or json, got %q", ErrInvalid, c.LogFormat)
	}

	return nil
}

// Redacted returns a copy safe to log: both keys are masked.
func (c Config) Redacted() Config {
	c.AnonKey = mask(c.AnonKey)
	c.ServiceKey = mask(c.ServiceKey)
	return c
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return "****"
	}
	return s[:4] + "****"
}
