// Package check runs stock-in cases against the ERP API and reconciles the
// resulting inventory balance and journal entry.
package check

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/example/erp/tools/glcheck/internal/config"
	"github.com/example/erp/tools/glcheck/internal/erp"
	"github.com/example/erp/tools/glcheck/internal/ledger"
	"github.com/example/erp/tools/glcheck/internal/logger"
	"github.com/example/erp/tools/glcheck/internal/poll"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const tracerName = "github.com/example/erp/tools/glcheck/internal/check"

// ERP is the subset of the ERP API the checker needs.
type ERP interface {
	InventoryBalance(ctx context.Context, itemCode, location string) (erp.InventoryBalance, error)
	CreateStockMovement(ctx context.Context, req erp.StockMovementRequest) (erp.Movement, error)
	JournalEntries(ctx context.Context, reference string) ([]ledger.JournalEntry, error)
	AccountBalance(ctx context.Context, code string) (erp.AccountBalance, error)
}

// Checker checks stock-in cases one at a time.
type Checker struct {
	api      ERP
	poller   *poll.Poller
	verifier ledger.Verifier
	cfg      config.CheckConfig
	logger   *zap.Logger
	tracer   trace.Tracer
	now      func() time.Time
}

// Option configures a Checker.
type Option func(*Checker)

// WithTracer sets the tracer. The global otel tracer is used by default.
func WithTracer(tracer trace.Tracer) Option {
	return func(c *Checker) {
		if tracer != nil {
			c.tracer = tracer
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Checker) {
		if now != nil {
			c.now = now
		}
	}
}

// New creates a checker.
func New(api ERP, poller *poll.Poller, cfg config.CheckConfig, log *zap.Logger, opts ...Option) *Checker {
	if poller == nil {
		poller = poll.New(poll.DefaultConfig())
	}
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.JournalReferencePrefix == "" {
		cfg.JournalReferencePrefix = "STOCK-IN-"
	}

	c := &Checker{
		api:      api,
		poller:   poller,
		verifier: ledger.NewVerifier(cfg.Tolerance),
		cfg:      cfg,
		logger:   log,
		tracer:   otel.Tracer(tracerName),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run checks every item of the suite in order, then reads the configured GL
// account balances for reporting. It stops early when ctx is cancelled.
func (c *Checker) Run(ctx context.Context, suite *config.Suite) *RunReport {
	report := &RunReport{
		RunID:     uuid.NewString(),
		Suite:     suite.Name,
		StartedAt: c.now(),
		Cases:     make([]CaseReport, 0, len(suite.Items)),
	}

	ctx, log := logger.WithRunID(ctx, c.logger, report.RunID)
	ctx, span := c.tracer.Start(ctx, "glcheck.run", trace.WithAttributes(
		attribute.String("glcheck.run_id", report.RunID),
		attribute.String("glcheck.suite", suite.Name),
		attribute.Int("glcheck.items", len(suite.Items)),
	))
	defer span.End()

	log.Info("starting run", zap.String("suite", suite.Name), zap.Int("items", len(suite.Items)))

	for _, item := range suite.Items {
		if ctx.Err() != nil {
			report.Interrupted = true
			log.Warn("run interrupted", zap.Error(ctx.Err()))
			break
		}
		report.Cases = append(report.Cases, c.CheckItem(ctx, item))
	}

	if !report.Interrupted {
		report.Accounts = c.accountBalances(ctx)
	}

	report.FinishedAt = c.now()
	report.Duration = report.FinishedAt.Sub(report.StartedAt)

	span.SetAttributes(
		attribute.Int("glcheck.passed", report.PassedCount()),
		attribute.Int("glcheck.failed", report.FailedCount()),
	)
	if report.Passed() {
		span.SetStatus(codes.Ok, "")
	} else {
		span.SetStatus(codes.Error, fmt.Sprintf("%d of %d cases failed", report.FailedCount(), len(report.Cases)))
	}

	log.Info("run finished",
		zap.Int("passed", report.PassedCount()),
		zap.Int("failed", report.FailedCount()),
		zap.Duration("duration", report.Duration))

	return report
}

func (c *Checker) accountBalances(ctx context.Context) []AccountReport {
	log := logger.FromContext(ctx)
	accounts := make([]AccountReport, 0, len(c.cfg.GLAccounts))
	for _, code := range c.cfg.GLAccounts {
		ab, err := c.api.AccountBalance(ctx, code)
		if err != nil {
			log.Warn("could not read GL account balance", zap.String("account", code), zap.Error(err))
			accounts = append(accounts, AccountReport{Code: code, Error: err.Error()})
			continue
		}
		accounts = append(accounts, AccountReport{Code: code, Balance: ab.Balance})
	}
	return accounts
}

// CheckItem runs one stock-in case:
// read the balance, post the movement, wait for the balance to move by the
// quantity, wait for the journal entry and verify its lines.
//
// Transport errors end the case immediately. Data mismatches are collected and
// the case continues so the report shows everything that went wrong.
func (c *Checker) CheckItem(ctx context.Context, item config.Item) CaseReport {
	start := c.now()
	quantity := decimal.NewFromInt(item.Quantity)
	unitCost := decimal.NewFromFloat(item.UnitCost)

	report := CaseReport{
		Item:          item,
		Reference:     erp.NewReference(item.ReferencePrefix, start),
		ExpectedTotal: ledger.ExpectedTotal(quantity, unitCost),
		StartedAt:     start,
	}

	ctx, span := c.tracer.Start(ctx, "glcheck.item", trace.WithAttributes(
		attribute.String("glcheck.item_code", item.ItemCode),
		attribute.String("glcheck.location", item.Location),
		attribute.String("glcheck.reference", report.Reference),
	))
	defer span.End()

	ctx, log := logger.WithItem(ctx, item.ItemCode, item.Location)
	log = logger.WithTraceContext(ctx, log)

	report.Result = c.checkItem(ctx, log, &report, quantity)
	report.Duration = c.now().Sub(start)

	if f, ok := AsFailure(report.Result); ok {
		span.SetStatus(codes.Error, f.Reason)
		if f.Err != nil {
			span.RecordError(f.Err)
		}
		log.Warn("case failed", zap.String("stage", string(f.Stage)), zap.String("reason", f.Error()))
	} else {
		span.SetStatus(codes.Ok, "")
		log.Info("case passed", zap.String("movement_id", report.MovementID))
	}
	for _, w := range report.Warnings {
		log.Warn("case warning", zap.String("warning", w))
	}

	return report
}

func (c *Checker) checkItem(ctx context.Context, log *zap.Logger, report *CaseReport, quantity decimal.Decimal) Result {
	item := report.Item

	initial, err := c.api.InventoryBalance(ctx, item.ItemCode, item.Location)
	if err != nil {
		return Failure{Stage: StageInitialBalance, Reason: "failed to fetch initial balance", Err: err}
	}
	report.InitialBalance = &initial
	log.Debug("initial balance", zap.String("quantity", initial.Quantity.String()))

	mv, err := c.api.CreateStockMovement(ctx, erp.NewStockInRequest(item, report.Reference))
	if err != nil {
		return Failure{Stage: StageCreateMovement, Reason: "failed to create stock movement", Err: err}
	}
	report.MovementID = mv.ID.String()
	log.Info("stock movement created", zap.String("movement_id", report.MovementID), zap.String("reference", report.Reference))

	if failure, ok := c.awaitBalance(ctx, log, report, initial, quantity); !ok {
		return failure
	}

	if failure, ok := c.awaitJournal(ctx, log, report); !ok {
		return failure
	}

	if len(report.Reasons) > 0 {
		messages := make([]string, 0, len(report.Reasons))
		for _, r := range report.Reasons {
			messages = append(messages, r.Message)
		}
		return Failure{
			MovementID: report.MovementID,
			Stage:      report.Reasons[0].Stage,
			Reason:     strings.Join(messages, "; "),
		}
	}
	return Success{MovementID: report.MovementID}
}

// awaitBalance polls the balance until it reflects the movement. A balance that
// never matches is recorded as a reason; only lookup errors stop the case.
func (c *Checker) awaitBalance(ctx context.Context, log *zap.Logger, report *CaseReport, initial erp.InventoryBalance, quantity decimal.Decimal) (Failure, bool) {
	var (
		final erp.InventoryBalance
		delta ledger.DeltaCheck
	)

	attempts, err := c.poller.Until(ctx, func(ctx context.Context, attempt int) (bool, error) {
		b, err := c.api.InventoryBalance(ctx, report.Item.ItemCode, report.Item.Location)
		if err != nil {
			return false, err
		}
		final = b
		delta = ledger.VerifyBalanceDelta(initial.Quantity, b.Quantity, quantity)
		log.Debug("balance poll",
			zap.Int("attempt", attempt),
			zap.String("quantity", b.Quantity.String()),
			zap.Bool("passed", delta.Passed))
		return delta.Passed, nil
	})
	report.BalanceAttempts = attempts

	if err != nil && !errors.Is(err, poll.ErrExhausted) {
		return Failure{MovementID: report.MovementID, Stage: StageBalanceLookup, Reason: "failed to fetch updated balance", Err: err}, false
	}

	report.FinalBalance = &final
	report.Delta = &delta
	if !delta.Passed {
		report.Reasons = append(report.Reasons, Reason{Stage: StageBalanceDelta, Message: delta.Description})
	}
	return Failure{}, true
}

// awaitJournal polls for the journal entry of the movement and verifies it.
func (c *Checker) awaitJournal(ctx context.Context, log *zap.Logger, report *CaseReport) (Failure, bool) {
	report.JournalRef = c.cfg.JournalReferencePrefix + report.MovementID

	var entries []ledger.JournalEntry
	attempts, err := c.poller.Until(ctx, func(ctx context.Context, attempt int) (bool, error) {
		found, err := c.api.JournalEntries(ctx, report.JournalRef)
		if err != nil {
			return false, err
		}
		entries = found
		log.Debug("journal poll", zap.Int("attempt", attempt), zap.Int("entries", len(found)))
		return len(found) > 0, nil
	})
	report.JournalAttempts = attempts

	switch {
	case errors.Is(err, poll.ErrExhausted):
		report.Reasons = append(report.Reasons, Reason{
			Stage:   StageJournalMissing,
			Message: fmt.Sprintf("no journal entry found for reference %s", report.JournalRef),
		})
		return Failure{}, true
	case err != nil:
		return Failure{MovementID: report.MovementID, Stage: StageJournalLookup, Reason: "failed to fetch journal entries", Err: err}, false
	}

	report.EntryCount = len(entries)
	if len(entries) > 1 {
		report.Warnings = append(report.Warnings,
			fmt.Sprintf("%d journal entries found for reference %s, checking the first", len(entries), report.JournalRef))
	}

	entry := entries[0]
	report.Entry = &entry

	check := c.verifier.VerifyLines(entry.Lines, report.ExpectedTotal)
	report.Ledger = &check

	switch {
	case check.Empty && c.cfg.StrictEmptyJournal:
		report.Reasons = append(report.Reasons, Reason{Stage: StageEmptyJournal, Message: "journal entry has no lines"})
	case check.Empty:
		report.Warnings = append(report.Warnings, "journal entry has no lines; treated as balanced")
	case !check.Balanced:
		report.Reasons = append(report.Reasons, Reason{Stage: StageUnbalanced, Message: check.Describe()})
	}

	for _, m := range check.LineMismatches {
		report.Warnings = append(report.Warnings, fmt.Sprintf(
			"line %d (%s %s): amount %s differs from expected %s by %s",
			m.Index+1, m.Line.Type, m.Line.DisplayName(),
			m.Line.Amount.StringFixed(2), report.ExpectedTotal.StringFixed(2), m.DeltaFromExpected.StringFixed(2)))
	}
	return Failure{}, true
}
