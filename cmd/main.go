// Package main provides the CLI entry point for the stock-in GL checker.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/example/erp/tools/glcheck/internal/check"
	"github.com/example/erp/tools/glcheck/internal/client"
	"github.com/example/erp/tools/glcheck/internal/config"
	"github.com/example/erp/tools/glcheck/internal/erp"
	"github.com/example/erp/tools/glcheck/internal/logger"
	"github.com/example/erp/tools/glcheck/internal/metrics"
	"github.com/example/erp/tools/glcheck/internal/poll"
	"github.com/example/erp/tools/glcheck/internal/scheduler"
	"go.uber.org/zap"
)

// Version information (populated at build time)
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

// options holds the command line flags.
type options struct {
	configPath     string
	suitePath      string
	baseURL        string
	outputFormat   string
	outputFile     string
	prometheusAddr string
	schedule       string
	strict         bool
	noColor        bool
	verbose        bool
	validate       bool
	showVersion    bool
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	opts := &options{}
	fs := flag.NewFlagSet("glcheck", flag.ContinueOnError)
	fs.SetOutput(stderr)

	// Configuration
	fs.StringVar(&opts.configPath, "config", "", "Path to the configuration file (default: glcheck.yaml if present)")
	fs.StringVar(&opts.configPath, "c", "", "Path to the configuration file (shorthand)")
	fs.StringVar(&opts.suitePath, "suite", "", "Path to the YAML suite of items to check (default: built-in suite)")
	fs.StringVar(&opts.suitePath, "s", "", "Path to the YAML suite (shorthand)")

	// Overrides
	fs.StringVar(&opts.baseURL, "base-url", "", "Override the API base URL (e.g. http://localhost:3001/api)")
	fs.BoolVar(&opts.strict, "strict", false, "Fail journal entries that have no lines")

	// Output
	fs.StringVar(&opts.outputFormat, "output", "", "Output format: console, json, or console,json")
	fs.StringVar(&opts.outputFile, "output-file", "", "JSON report path (supports {{.Timestamp}})")
	fs.StringVar(&opts.prometheusAddr, "prometheus", "", "Serve Prometheus metrics on this address (e.g. :9090)")
	fs.BoolVar(&opts.noColor, "no-color", false, "Disable ANSI colors in console output")

	// Scheduling
	fs.StringVar(&opts.schedule, "schedule", "", `Repeat runs on a cron schedule (e.g. "*/15 * * * *" or "@every 10m")`)

	// Utility
	fs.BoolVar(&opts.verbose, "verbose", false, "Enable verbose output and debug logging")
	fs.BoolVar(&opts.verbose, "v", false, "Enable verbose output (shorthand)")
	fs.BoolVar(&opts.validate, "validate", false, "Validate configuration and suite, then exit")
	fs.BoolVar(&opts.showVersion, "version", false, "Show version information")

	fs.Usage = func() { printUsage(stderr) }

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	return opts, nil
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `glcheck - Stock-In General Ledger Reconciliation Checker

USAGE:
    glcheck [options]

DESCRIPTION:
    Posts stock-in movements to the ERP API and verifies that the inventory
    balance moves by the quantity received and that the journal entry posted
    for each movement is balanced and carries the movement total.

CONFIGURATION:
    -config, -c <path>    Configuration file (YAML, JSON or TOML)
    -suite, -s <path>     YAML suite of items to check

    Every setting can be overridden with GLCHECK_* environment variables,
    e.g. GLCHECK_TARGET_BASE_URL or GLCHECK_AUTH_TOKEN. A .env file in the
    working directory is loaded first.

OVERRIDE OPTIONS:
    -base-url <url>       API base URL
    -strict               Fail journal entries that have no lines

OUTPUT OPTIONS:
    -output <format>      console, json, or console,json
    -output-file <path>   JSON report file (supports {{.Timestamp}} template)
    -prometheus <addr>    Serve Prometheus metrics (e.g. :9090)
    -no-color             Disable colors

SCHEDULING:
    -schedule <cron>      Repeat runs until interrupted (SIGINT/SIGTERM)

UTILITY OPTIONS:
    -verbose, -v          Verbose output and debug logging
    -validate             Validate configuration and suite, then exit
    -version              Show version information
    -help, -h             Show this help message

EXIT CODES:
    0  every item reconciled (or check.exit_on_failure is false)
    1  configuration, suite or reporting error
    2  at least one item failed

EXAMPLES:
    # Check the built-in items against a local server
    glcheck -base-url http://localhost:3001/api

    # Custom suite with a JSON report
    glcheck -suite suites/stock-in.yaml -output console,json -output-file reports/gl-{{.Timestamp}}.json

    # Every 15 minutes, with metrics for Prometheus
    glcheck -config glcheck.yaml -schedule "*/15 * * * *" -prometheus :9090
`)
}

func printVersion(w io.Writer) {
	fmt.Fprintf(w, "glcheck %s\n", version)
	fmt.Fprintf(w, "  Build time: %s\n", buildTime)
	fmt.Fprintf(w, "  Git commit: %s\n", gitCommit)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run executes the CLI and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return metrics.ExitCodeSuccess
		}
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return metrics.ExitCodeError
	}

	if opts.showVersion {
		printVersion(stdout)
		return metrics.ExitCodeSuccess
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error loading configuration: %v\n", err)
		return metrics.ExitCodeError
	}
	applyOverrides(cfg, opts)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return metrics.ExitCodeError
	}

	suite, err := loadSuite(cfg.Check.SuiteFile)
	if err != nil {
		fmt.Fprintf(stderr, "Error loading suite: %v\n", err)
		return metrics.ExitCodeError
	}

	if opts.validate {
		fmt.Fprintf(stdout, "Configuration is valid: %d item(s) in suite %q against %s\n",
			len(suite.Items), suite.Name, cfg.Target.BaseURL)
		return metrics.ExitCodeSuccess
	}

	log, err := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		fmt.Fprintf(stderr, "Error creating logger: %v\n", err)
		return metrics.ExitCodeError
	}
	defer func() { _ = log.Sync() }()

	a, err := newApp(cfg, suite, log, stdout, opts.verbose)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return metrics.ExitCodeError
	}

	if a.exporter != nil {
		if err := a.exporter.Start(); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return metrics.ExitCodeError
		}
		log.Info("prometheus metrics enabled", zap.String("addr", a.exporter.Addr()), zap.String("path", a.exporter.GetPath()))
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := a.exporter.Stop(shutdownCtx); err != nil {
				log.Warn("stopping prometheus exporter", zap.Error(err))
			}
		}()
	}

	if cfg.Schedule.Cron != "" {
		return a.runScheduled(ctx, cfg.Schedule.Cron)
	}

	report, err := a.runOnce(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return metrics.ExitCodeError
	}
	return metrics.ExitCode(report, cfg.Check.ExitOnFailure)
}

func applyOverrides(cfg *config.Config, opts *options) {
	if opts.baseURL != "" {
		cfg.Target.BaseURL = opts.baseURL
	}
	if opts.suitePath != "" {
		cfg.Check.SuiteFile = opts.suitePath
	}
	if opts.strict {
		cfg.Check.StrictEmptyJournal = true
	}
	if opts.outputFormat != "" {
		cfg.Output.Format = opts.outputFormat
	}
	if opts.outputFile != "" {
		cfg.Output.File = opts.outputFile
	}
	if opts.prometheusAddr != "" {
		cfg.Metrics.PrometheusAddr = opts.prometheusAddr
	}
	if opts.schedule != "" {
		cfg.Schedule.Cron = opts.schedule
	}
	if opts.noColor {
		cfg.Output.Colors = false
	}
	if opts.verbose {
		cfg.Log.Level = "debug"
	}
}

func loadSuite(path string) (*config.Suite, error) {
	if path == "" {
		return config.DefaultSuite(), nil
	}
	return config.LoadSuite(path)
}

// app wires the checker to its reporters.
type app struct {
	cfg      *config.Config
	suite    *config.Suite
	checker  *check.Checker
	console  *metrics.Console
	reporter *metrics.Reporter
	exporter *metrics.PrometheusExporter
	logger   *zap.Logger
}

func newApp(cfg *config.Config, suite *config.Suite, log *zap.Logger, stdout io.Writer, verbose bool) (*app, error) {
	httpClient, err := client.NewClient(cfg.Target, &cfg.Auth, client.WithLogger(logger.Named(log, "http")))
	if err != nil {
		return nil, fmt.Errorf("creating HTTP client: %w", err)
	}

	api := erp.NewClient(httpClient, logger.Named(log, "erp"))
	checker := check.New(api, poll.New(cfg.Poll), cfg.Check, logger.Named(log, "check"))

	a := &app{
		cfg:      cfg,
		suite:    suite,
		checker:  checker,
		reporter: metrics.NewReporter(),
		logger:   log,
	}
	if cfg.Output.HasFormat("console") {
		consoleCfg := metrics.DefaultConsoleConfig()
		consoleCfg.Writer = stdout
		consoleCfg.UseColors = cfg.Output.Colors
		consoleCfg.Verbose = verbose
		a.console = metrics.NewConsole(consoleCfg)
	}
	if cfg.Metrics.PrometheusAddr != "" {
		promCfg := metrics.DefaultPrometheusExporterConfig()
		promCfg.Addr = cfg.Metrics.PrometheusAddr
		a.exporter = metrics.NewPrometheusExporter(promCfg)
	}
	return a, nil
}

// runOnce checks the suite once and reports the result everywhere configured.
func (a *app) runOnce(ctx context.Context) (*check.RunReport, error) {
	report := a.checker.Run(ctx, a.suite)

	if a.console != nil {
		a.console.PrintRun(a.cfg.Target.BaseURL, report)
	}
	if a.exporter != nil {
		a.exporter.RecordRun(report)
	}

	if a.cfg.Output.HasFormat("json") {
		jsonReport := a.reporter.GenerateReport(report, metrics.ReportOptions{
			TargetBaseURL:          a.cfg.Target.BaseURL,
			Tolerance:              a.cfg.Check.Tolerance,
			JournalReferencePrefix: a.cfg.Check.JournalReferencePrefix,
			StrictEmptyJournal:     a.cfg.Check.StrictEmptyJournal,
		})
		path, err := a.reporter.WriteToFile(jsonReport, a.cfg.Output.File)
		if err != nil {
			return report, fmt.Errorf("writing JSON report: %w", err)
		}
		a.logger.Info("JSON report written", zap.String("path", path))
	}

	return report, nil
}

// runScheduled repeats runOnce on the cron schedule until ctx is cancelled.
func (a *app) runScheduled(ctx context.Context, spec string) int {
	sched, err := scheduler.New(spec, func(ctx context.Context) {
		if _, err := a.runOnce(ctx); err != nil {
			a.logger.Error("scheduled run failed", zap.Error(err))
		}
	}, logger.Named(a.logger, "scheduler"))
	if err != nil {
		a.logger.Error("invalid schedule", zap.Error(err))
		return metrics.ExitCodeError
	}

	sched.Start(ctx)
	<-ctx.Done()
	sched.Stop()

	a.logger.Info("scheduler stopped", zap.Int("runs", sched.Runs()))
	return metrics.ExitCodeSuccess
}
