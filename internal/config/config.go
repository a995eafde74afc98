// Package config loads glcheck settings from an optional config file, a .env
// file and GLCHECK_* environment variables, and the YAML suite of items to check.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"
	"time"

	"github.com/example/erp/tools/glcheck/internal/poll"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Errors returned by the config package.
var (
	// ErrInvalidConfig is returned when the configuration is invalid.
	ErrInvalidConfig = errors.New("config: invalid configuration")
	// ErrConfigNotFound is returned when an explicitly requested file does not exist.
	ErrConfigNotFound = errors.New("config: configuration file not found")
)

// EnvPrefix is the prefix of environment overrides, e.g. GLCHECK_TARGET_BASE_URL.
const EnvPrefix = "GLCHECK"

// Config holds all checker configuration
type Config struct {
	Target   TargetConfig
	Auth     AuthConfig
	Log      LogConfig
	Poll     poll.Config
	Check    CheckConfig
	Output   OutputConfig
	Metrics  MetricsConfig
	Schedule ScheduleConfig
}

// TargetConfig describes the inventory/GL API under test
type TargetConfig struct {
	BaseURL       string            // e.g. http://localhost:3001/api
	Timeout       time.Duration     // per request
	TLSSkipVerify bool              // testing only
	Headers       map[string]string // sent with every request
	RateLimitQPS  float64           // 0 disables client-side rate limiting
}

// AuthConfig holds static credentials for the API under test
type AuthConfig struct {
	Type         string // none, bearer, api_key, basic
	Token        string
	APIKey       string
	APIKeyHeader string
	Username     string
	Password     string
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// CheckConfig controls reconciliation behavior
type CheckConfig struct {
	Tolerance              decimal.Decimal
	JournalReferencePrefix string
	GLAccounts             []string
	StrictEmptyJournal     bool // fail entries with no lines instead of warning
	ExitOnFailure          bool // non-zero exit status when any item fails
	SuiteFile              string
}

// OutputConfig configures reporting
type OutputConfig struct {
	Format string // console, json, or console,json
	File   string // JSON report path, supports {{.Timestamp}}
	Colors bool
}

// MetricsConfig configures the Prometheus endpoint
type MetricsConfig struct {
	PrometheusAddr string // e.g. ":9090"; empty disables the endpoint
}

// ScheduleConfig configures repeated runs
type ScheduleConfig struct {
	Cron string // robfig/cron expression; empty means a single run
}

// HasFormat reports whether the output format list contains f.
func (o OutputConfig) HasFormat(f string) bool {
	for _, part := range strings.Split(o.Format, ",") {
		if strings.EqualFold(strings.TrimSpace(part), f) {
			return true
		}
	}
	return false
}

// Load reads configuration. Priority (highest to lowest):
// 1. Environment variables with GLCHECK_ prefix (a .env file is loaded first if present)
// 2. The config file at path, or glcheck.yaml in ., ./config or /etc/glcheck
// 3. Built-in defaults
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("glcheck")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/glcheck")
	}

	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		switch {
		case errors.As(err, &notFound):
			// No config file is fine, defaults and env vars apply
		case errors.Is(err, fs.ErrNotExist):
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		default:
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	return fromViper(v)
}

func setDefaults(v *viper.Viper) {
	pd := poll.DefaultConfig()

	v.SetDefault("target.base_url", "http://localhost:3001/api")
	v.SetDefault("target.timeout", 30*time.Second)
	v.SetDefault("target.tls_skip_verify", false)
	v.SetDefault("target.headers", map[string]string{})
	v.SetDefault("target.rate_limit_qps", 0.0)

	v.SetDefault("auth.type", "none")
	v.SetDefault("auth.token", "")
	v.SetDefault("auth.api_key", "")
	v.SetDefault("auth.api_key_header", "X-API-Key")
	v.SetDefault("auth.username", "")
	v.SetDefault("auth.password", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output", "stderr")

	v.SetDefault("poll.max_attempts", pd.MaxAttempts)
	v.SetDefault("poll.initial_interval", pd.InitialInterval)
	v.SetDefault("poll.max_interval", pd.MaxInterval)
	v.SetDefault("poll.multiplier", pd.Multiplier)

	v.SetDefault("check.tolerance", "0.01")
	v.SetDefault("check.journal_reference_prefix", "STOCK-IN-")
	v.SetDefault("check.gl_accounts", []string{"1300", "2100"})
	v.SetDefault("check.strict_empty_journal", false)
	v.SetDefault("check.exit_on_failure", true)
	v.SetDefault("check.suite_file", "")

	v.SetDefault("output.format", "console")
	v.SetDefault("output.file", "glcheck-report-{{.Timestamp}}.json")
	v.SetDefault("output.colors", true)

	v.SetDefault("metrics.prometheus_addr", "")
	v.SetDefault("schedule.cron", "")
}

func fromViper(v *viper.Viper) (*Config, error) {
	tolerance, err := decimal.NewFromString(v.GetString("check.tolerance"))
	if err != nil {
		return nil, fmt.Errorf("%w: check.tolerance: %v", ErrInvalidConfig, err)
	}

	cfg := &Config{
		Target: TargetConfig{
			BaseURL:       strings.TrimRight(v.GetString("target.base_url"), "/"),
			Timeout:       v.GetDuration("target.timeout"),
			TLSSkipVerify: v.GetBool("target.tls_skip_verify"),
			Headers:       v.GetStringMapString("target.headers"),
			RateLimitQPS:  v.GetFloat64("target.rate_limit_qps"),
		},
		Auth: AuthConfig{
			Type:         strings.ToLower(v.GetString("auth.type")),
			Token:        v.GetString("auth.token"),
			APIKey:       v.GetString("auth.api_key"),
			APIKeyHeader: v.GetString("auth.api_key_header"),
			Username:     v.GetString("auth.username"),
			Password:     v.GetString("auth.password"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		Poll: poll.Config{
			MaxAttempts:     v.GetInt("poll.max_attempts"),
			InitialInterval: v.GetDuration("poll.initial_interval"),
			MaxInterval:     v.GetDuration("poll.max_interval"),
			Multiplier:      v.GetFloat64("poll.multiplier"),
		},
		Check: CheckConfig{
			Tolerance:              tolerance,
			JournalReferencePrefix: v.GetString("check.journal_reference_prefix"),
			GLAccounts:             v.GetStringSlice("check.gl_accounts"),
			StrictEmptyJournal:     v.GetBool("check.strict_empty_journal"),
			ExitOnFailure:          v.GetBool("check.exit_on_failure"),
			SuiteFile:              v.GetString("check.suite_file"),
		},
		Output: OutputConfig{
			Format: v.GetString("output.format"),
			File:   v.GetString("output.file"),
			Colors: v.GetBool("output.colors"),
		},
		Metrics: MetricsConfig{
			PrometheusAddr: v.GetString("metrics.prometheus_addr"),
		},
		Schedule: ScheduleConfig{
			Cron: v.GetString("schedule.cron"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate performs validation on the configuration
func (c *Config) Validate() error {
	if c.Target.BaseURL == "" {
		return fmt.Errorf("%w: target.base_url is required", ErrInvalidConfig)
	}
	u, err := url.Parse(c.Target.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%w: target.base_url must be an absolute URL, got %q", ErrInvalidConfig, c.Target.BaseURL)
	}
	if c.Target.Timeout <= 0 {
		return fmt.Errorf("%w: target.timeout must be positive", ErrInvalidConfig)
	}
	if c.Target.RateLimitQPS < 0 {
		return fmt.Errorf("%w: target.rate_limit_qps cannot be negative", ErrInvalidConfig)
	}

	switch c.Auth.Type {
	case "", "none":
	case "bearer":
		if c.Auth.Token == "" {
			return fmt.Errorf("%w: auth.token is required for bearer auth", ErrInvalidConfig)
		}
	case "api_key":
		if c.Auth.APIKey == "" {
			return fmt.Errorf("%w: auth.api_key is required for api_key auth", ErrInvalidConfig)
		}
	case "basic":
		if c.Auth.Username == "" {
			return fmt.Errorf("%w: auth.username is required for basic auth", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown auth.type %q", ErrInvalidConfig, c.Auth.Type)
	}

	if c.Poll.MaxAttempts < 1 {
		return fmt.Errorf("%w: poll.max_attempts must be at least 1", ErrInvalidConfig)
	}
	if c.Poll.Multiplier < 1 {
		return fmt.Errorf("%w: poll.multiplier must be at least 1", ErrInvalidConfig)
	}

	if !c.Check.Tolerance.IsPositive() {
		return fmt.Errorf("%w: check.tolerance must be positive", ErrInvalidConfig)
	}
	if c.Check.JournalReferencePrefix == "" {
		return fmt.Errorf("%w: check.journal_reference_prefix is required", ErrInvalidConfig)
	}

	for _, part := range strings.Split(c.Output.Format, ",") {
		switch strings.ToLower(strings.TrimSpace(part)) {
		case "console", "json":
		default:
			return fmt.Errorf("%w: unknown output format %q", ErrInvalidConfig, part)
		}
	}
	if c.Output.HasFormat("json") && c.Output.File == "" {
		return fmt.Errorf("%w: output.file is required for json output", ErrInvalidConfig)
	}

	if c.Schedule.Cron != "" {
		if _, err := cron.ParseStandard(c.Schedule.Cron); err != nil {
			return fmt.Errorf("%w: schedule.cron: %v", ErrInvalidConfig, err)
		}
	}

	return nil
}
