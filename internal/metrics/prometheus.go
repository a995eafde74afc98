package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/example/erp/tools/glcheck/internal/check"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
)

// Prometheus metric names.
const (
	MetricChecksTotal           = "glcheck_checks_total"
	MetricCheckDurationSeconds  = "glcheck_check_duration_seconds"
	MetricLedgerImbalance       = "glcheck_ledger_imbalance"
	MetricLineMismatchesTotal   = "glcheck_line_mismatches_total"
	MetricPollAttempts          = "glcheck_poll_attempts"
	MetricRunsTotal             = "glcheck_runs_total"
	MetricLastRunSuccess        = "glcheck_last_run_success"
	MetricLastRunTimestamp      = "glcheck_last_run_timestamp_seconds"
	MetricGLAccountBalance      = "glcheck_gl_account_balance"
	MetricGLAccountReadFailures = "glcheck_gl_account_read_failures_total"
)

// PrometheusExporter exposes check results for scraping.
//
// Thread Safety: Safe for concurrent use by multiple goroutines.
type PrometheusExporter struct {
	mu sync.RWMutex

	config   PrometheusExporterConfig
	registry *prometheus.Registry

	checksTotal         *prometheus.CounterVec
	checkDuration       *prometheus.HistogramVec
	ledgerImbalance     *prometheus.GaugeVec
	lineMismatchesTotal *prometheus.CounterVec
	pollAttempts        *prometheus.HistogramVec
	runsTotal           *prometheus.CounterVec
	lastRunSuccess      prometheus.Gauge
	lastRunTimestamp    prometheus.Gauge
	accountBalance      *prometheus.GaugeVec
	accountReadFailures *prometheus.CounterVec

	server  *http.Server
	ln      net.Listener
	running bool

	lastError error
}

// PrometheusExporterConfig holds configuration for the Prometheus exporter.
type PrometheusExporterConfig struct {
	// Addr is the listen address. Default: ":9090"
	Addr string

	// Path is the URL path for the metrics endpoint. Default: /metrics
	Path string

	// HistogramBuckets are the buckets for case duration.
	// Default: 0.1s to 60s
	HistogramBuckets []float64
}

// DefaultPrometheusExporterConfig returns default configuration.
func DefaultPrometheusExporterConfig() PrometheusExporterConfig {
	return PrometheusExporterConfig{
		Addr:             ":9090",
		Path:             "/metrics",
		HistogramBuckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	}
}

// NewPrometheusExporter creates a new Prometheus exporter with its own registry.
func NewPrometheusExporter(config PrometheusExporterConfig) *PrometheusExporter {
	defaults := DefaultPrometheusExporterConfig()
	if config.Addr == "" {
		config.Addr = defaults.Addr
	}
	if config.Path == "" {
		config.Path = defaults.Path
	}
	if len(config.HistogramBuckets) == 0 {
		config.HistogramBuckets = defaults.HistogramBuckets
	}

	e := &PrometheusExporter{
		config:   config,
		registry: prometheus.NewRegistry(),
	}
	e.initMetrics()
	return e
}

func (e *PrometheusExporter) initMetrics() {
	e.checksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: MetricChecksTotal,
			Help: "Stock-in checks by item and outcome.",
		},
		[]string{"item", "result", "stage"},
	)

	e.checkDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    MetricCheckDurationSeconds,
			Help:    "Duration of a stock-in check including polling.",
			Buckets: e.config.HistogramBuckets,
		},
		[]string{"item"},
	)

	e.ledgerImbalance = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: MetricLedgerImbalance,
			Help: "Absolute difference between debits and credits of the last journal entry checked per item.",
		},
		[]string{"item"},
	)

	e.lineMismatchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: MetricLineMismatchesTotal,
			Help: "Journal lines whose amount differed from the movement total.",
		},
		[]string{"item"},
	)

	e.pollAttempts = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    MetricPollAttempts,
			Help:    "Attempts needed before the balance or journal entry reflected the movement.",
			Buckets: []float64{1, 2, 3, 5, 8, 13, 21},
		},
		[]string{"kind"},
	)

	e.runsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: MetricRunsTotal,
			Help: "Completed check runs by outcome.",
		},
		[]string{"result"},
	)

	e.lastRunSuccess = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: MetricLastRunSuccess,
		Help: "1 if every case of the last run passed, 0 otherwise.",
	})

	e.lastRunTimestamp = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: MetricLastRunTimestamp,
		Help: "Unix time the last run finished.",
	})

	e.accountBalance = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: MetricGLAccountBalance,
			Help: "GL account balance read after the last run.",
		},
		[]string{"account"},
	)

	e.accountReadFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: MetricGLAccountReadFailures,
			Help: "Failed GL account balance reads.",
		},
		[]string{"account"},
	)

	e.registry.MustRegister(
		e.checksTotal,
		e.checkDuration,
		e.ledgerImbalance,
		e.lineMismatchesTotal,
		e.pollAttempts,
		e.runsTotal,
		e.lastRunSuccess,
		e.lastRunTimestamp,
		e.accountBalance,
		e.accountReadFailures,
	)
}

// Start starts the HTTP server for the metrics endpoint.
func (e *PrometheusExporter) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running {
		return nil
	}

	ln, err := net.Listen("tcp", e.config.Addr)
	if err != nil {
		return fmt.Errorf("starting Prometheus exporter: %w", err)
	}
	e.ln = ln

	mux := http.NewServeMux()
	mux.Handle(e.config.Path, promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	e.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := e.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			e.mu.Lock()
			e.lastError = err
			e.mu.Unlock()
		}
	}()

	e.running = true
	return nil
}

// Stop stops the HTTP server.
func (e *PrometheusExporter) Stop(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.running {
		return nil
	}
	e.running = false

	if e.server != nil {
		return e.server.Shutdown(ctx)
	}
	return nil
}

// RecordCase records the outcome of one case.
func (e *PrometheusExporter) RecordCase(c *check.CaseReport) {
	item := c.Item.ItemCode

	result, stage := "pass", ""
	if !c.Passed() {
		result, stage = "fail", string(c.FailureStage())
	}
	e.checksTotal.WithLabelValues(item, result, stage).Inc()
	e.checkDuration.WithLabelValues(item).Observe(c.Duration.Seconds())

	if c.BalanceAttempts > 0 {
		e.pollAttempts.WithLabelValues("balance").Observe(float64(c.BalanceAttempts))
	}
	if c.JournalAttempts > 0 {
		e.pollAttempts.WithLabelValues("journal").Observe(float64(c.JournalAttempts))
	}

	if c.Ledger != nil {
		e.ledgerImbalance.WithLabelValues(item).Set(c.Ledger.Imbalance().InexactFloat64())
		if n := len(c.Ledger.LineMismatches); n > 0 {
			e.lineMismatchesTotal.WithLabelValues(item).Add(float64(n))
		}
	}
}

// RecordRun records every case of a run, the run outcome and the GL balances.
func (e *PrometheusExporter) RecordRun(r *check.RunReport) {
	for i := range r.Cases {
		e.RecordCase(&r.Cases[i])
	}

	if r.Passed() {
		e.runsTotal.WithLabelValues("pass").Inc()
		e.lastRunSuccess.Set(1)
	} else {
		e.runsTotal.WithLabelValues("fail").Inc()
		e.lastRunSuccess.Set(0)
	}
	e.lastRunTimestamp.Set(float64(r.FinishedAt.Unix()))

	for _, a := range r.Accounts {
		if a.Error != "" {
			e.accountReadFailures.WithLabelValues(a.Code).Inc()
			continue
		}
		e.accountBalance.WithLabelValues(a.Code).Set(a.Balance.InexactFloat64())
	}
}

// Addr returns the address the server listens on, or the configured address
// before Start.
func (e *PrometheusExporter) Addr() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.ln != nil {
		return e.ln.Addr().String()
	}
	return e.config.Addr
}

// GetPath returns the configured path.
func (e *PrometheusExporter) GetPath() string {
	return e.config.Path
}

// IsRunning returns whether the exporter is running.
func (e *PrometheusExporter) IsRunning() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.running
}

// LastError returns the last error from the HTTP server, if any.
func (e *PrometheusExporter) LastError() error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastError
}

// Gather collects all metrics from the registry.
func (e *PrometheusExporter) Gather() ([]*dto.MetricFamily, error) {
	return e.registry.Gather()
}
