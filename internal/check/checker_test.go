package check

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/example/erp/tools/glcheck/internal/client"
	"github.com/example/erp/tools/glcheck/internal/config"
	"github.com/example/erp/tools/glcheck/internal/erp"
	"github.com/example/erp/tools/glcheck/internal/ledger"
	"github.com/example/erp/tools/glcheck/internal/poll"
	"github.com/example/erp/tools/glcheck/internal/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap/zaptest"
)

func noSleep(context.Context, time.Duration) error { return nil }

func checkConfig() config.CheckConfig {
	return config.CheckConfig{
		Tolerance:              ledger.DefaultTolerance,
		JournalReferencePrefix: "STOCK-IN-",
		GLAccounts:             []string{"1300", "2100"},
	}
}

func newChecker(t *testing.T, fake *testutil.FakeERP, cfg config.CheckConfig) *Checker {
	t.Helper()
	hc, err := client.NewClient(config.TargetConfig{BaseURL: fake.URL(), Timeout: 5 * time.Second}, nil)
	require.NoError(t, err)

	poller := poll.New(poll.Config{MaxAttempts: 5}, poll.WithSleep(noSleep))
	return New(erp.NewClient(hc, nil), poller, cfg, zaptest.NewLogger(t))
}

func laptop() config.Item {
	return config.Item{
		ItemCode:        "LAPTOP-001",
		Quantity:        5,
		UnitCost:        1500.00,
		Location:        "WAREHOUSE-A",
		ReferencePrefix: "TEST-LAPTOP",
	}
}

func paper() config.Item {
	return config.Item{
		ItemCode:        "PAPER-A4",
		Quantity:        100,
		UnitCost:        5.00,
		Location:        "WAREHOUSE-A",
		ReferencePrefix: "TEST-PAPER",
	}
}

func TestCheckItemLaptopScenario(t *testing.T) {
	fake := testutil.NewFakeERP(t)
	fake.SetBalance("LAPTOP-001", "WAREHOUSE-A", 10)
	c := newChecker(t, fake, checkConfig())

	report := c.CheckItem(context.Background(), laptop())

	require.True(t, report.Passed(), report.FailureReason())
	success, ok := report.Result.(Success)
	require.True(t, ok)
	assert.Equal(t, "1", success.MovementID)

	assert.True(t, report.ExpectedTotal.Equal(decimal.NewFromInt(7500)))
	assert.True(t, report.InitialBalance.Quantity.Equal(decimal.NewFromInt(10)))
	assert.True(t, report.FinalBalance.Quantity.Equal(decimal.NewFromInt(15)))
	assert.True(t, report.Delta.Passed)
	assert.Equal(t, "STOCK-IN-1", report.JournalRef)

	require.NotNil(t, report.Ledger)
	assert.True(t, report.Ledger.Balanced)
	assert.True(t, report.Ledger.TotalDebits.Equal(decimal.NewFromInt(7500)))
	assert.True(t, report.Ledger.TotalCredits.Equal(decimal.NewFromInt(7500)))
	assert.Empty(t, report.Ledger.LineMismatches)
	assert.Empty(t, report.Warnings)
	assert.Regexp(t, `^TEST-LAPTOP-\d+-[0-9a-f]{8}$`, report.Reference)
}

func TestCheckItemWaitsForAsyncProcessing(t *testing.T) {
	fake := testutil.NewFakeERP(t)
	fake.SetBalance("LAPTOP-001", "WAREHOUSE-A", 10)
	fake.SetBalanceLag(2)
	fake.SetJournalLag(3)
	c := newChecker(t, fake, checkConfig())

	report := c.CheckItem(context.Background(), laptop())

	require.True(t, report.Passed(), report.FailureReason())
	assert.Equal(t, 3, report.BalanceAttempts)
	assert.Equal(t, 4, report.JournalAttempts)
}

func TestCheckItemLineMismatchIsWarning(t *testing.T) {
	fake := testutil.NewFakeERP(t)
	fake.SetBalance("PAPER-A4", "WAREHOUSE-A", 0)
	offBy := decimal.RequireFromString("0.02")
	fake.SetLines("PAPER-A4", func(m testutil.MovementRecord) []testutil.Line {
		amount := m.Total().Add(offBy)
		return []testutil.Line{
			{Type: "DEBIT", AccountCode: "1300", AccountName: "Inventory", Amount: amount},
			{Type: "CREDIT", AccountCode: "2100", AccountName: "Accounts Payable", Amount: amount},
		}
	})
	c := newChecker(t, fake, checkConfig())

	report := c.CheckItem(context.Background(), paper())

	require.True(t, report.Passed(), report.FailureReason())
	assert.True(t, report.Ledger.Balanced)
	assert.Len(t, report.Ledger.LineMismatches, 2)
	require.Len(t, report.Warnings, 2)
	assert.Contains(t, report.Warnings[0], "amount 500.02 differs from expected 500.00 by 0.02")
}

func TestCheckItemDataMismatches(t *testing.T) {
	tests := []struct {
		name      string
		setup     func(f *testutil.FakeERP)
		cfg       func(c *config.CheckConfig)
		wantStage Stage
		wantIn    string
	}{
		{
			name: "unbalanced entry",
			setup: func(f *testutil.FakeERP) {
				f.SetLines("LAPTOP-001", func(m testutil.MovementRecord) []testutil.Line {
					return []testutil.Line{{Type: "DEBIT", AccountCode: "1300", Amount: m.Total()}}
				})
			},
			wantStage: StageUnbalanced,
			wantIn:    "entry is not balanced: debits 7500.00, credits 0.00",
		},
		{
			name:      "balance never updated",
			setup:     func(f *testutil.FakeERP) { f.SkipInventoryUpdate("LAPTOP-001") },
			wantStage: StageBalanceDelta,
			wantIn:    "balance mismatch: expected 15 (10 + 5), got 10",
		},
		{
			name:      "journal entry missing",
			setup:     func(f *testutil.FakeERP) { f.SkipJournal("LAPTOP-001") },
			wantStage: StageJournalMissing,
			wantIn:    "no journal entry found for reference STOCK-IN-1",
		},
		{
			name: "empty entry in strict mode",
			setup: func(f *testutil.FakeERP) {
				f.SetLines("LAPTOP-001", func(testutil.MovementRecord) []testutil.Line { return nil })
			},
			cfg:       func(c *config.CheckConfig) { c.StrictEmptyJournal = true },
			wantStage: StageEmptyJournal,
			wantIn:    "journal entry has no lines",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := testutil.NewFakeERP(t)
			fake.SetBalance("LAPTOP-001", "WAREHOUSE-A", 10)
			tt.setup(fake)

			cfg := checkConfig()
			if tt.cfg != nil {
				tt.cfg(&cfg)
			}
			c := newChecker(t, fake, cfg)

			report := c.CheckItem(context.Background(), laptop())

			require.False(t, report.Passed())
			failure, ok := AsFailure(report.Result)
			require.True(t, ok)
			assert.Equal(t, tt.wantStage, failure.Stage)
			assert.Equal(t, "1", failure.MovementID)
			assert.NoError(t, failure.Err)
			assert.Contains(t, failure.Reason, tt.wantIn)
		})
	}
}

func TestCheckItemEmptyEntryIsFlagged(t *testing.T) {
	fake := testutil.NewFakeERP(t)
	fake.SetLines("LAPTOP-001", func(testutil.MovementRecord) []testutil.Line { return nil })
	c := newChecker(t, fake, checkConfig())

	report := c.CheckItem(context.Background(), laptop())

	require.True(t, report.Passed(), "empty entries pass unless strict")
	assert.True(t, report.Ledger.Empty)
	assert.Contains(t, report.Warnings, "journal entry has no lines; treated as balanced")
}

func TestCheckItemCollectsAllMismatches(t *testing.T) {
	fake := testutil.NewFakeERP(t)
	fake.SetBalance("LAPTOP-001", "WAREHOUSE-A", 10)
	fake.SkipInventoryUpdate("LAPTOP-001")
	fake.SkipJournal("LAPTOP-001")
	c := newChecker(t, fake, checkConfig())

	report := c.CheckItem(context.Background(), laptop())

	require.Len(t, report.Reasons, 2)
	assert.Equal(t, StageBalanceDelta, report.FailureStage())
	assert.Contains(t, report.FailureReason(), "balance mismatch")
	assert.Contains(t, report.FailureReason(), "no journal entry found")
}

func TestCheckItemTransportFailures(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		path       string
		wantStage  Stage
		wantMoveID string
	}{
		{"initial balance", http.MethodGet, erp.PathInventoryBalances, StageInitialBalance, ""},
		{"create movement", http.MethodPost, erp.PathStockMovements, StageCreateMovement, ""},
		{"journal lookup", http.MethodGet, erp.PathJournalEntries, StageJournalLookup, "1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := testutil.NewFakeERP(t)
			fake.SetBalance("LAPTOP-001", "WAREHOUSE-A", 10)
			fake.FailNext(tt.method, tt.path, http.StatusInternalServerError, "internal error")
			c := newChecker(t, fake, checkConfig())

			report := c.CheckItem(context.Background(), laptop())

			failure, ok := AsFailure(report.Result)
			require.True(t, ok)
			assert.Equal(t, tt.wantStage, failure.Stage)
			assert.Equal(t, tt.wantMoveID, failure.MovementID)

			var apiErr *client.APIError
			require.ErrorAs(t, failure, &apiErr)
			assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
		})
	}
}

// stubERP serves canned answers for cases the fake server cannot express.
type stubERP struct {
	balanceErr error
	calls      int
}

func (s *stubERP) InventoryBalance(context.Context, string, string) (erp.InventoryBalance, error) {
	s.calls++
	if s.calls > 1 && s.balanceErr != nil {
		return erp.InventoryBalance{}, s.balanceErr
	}
	return erp.InventoryBalance{Quantity: decimal.NewFromInt(1)}, nil
}

func (s *stubERP) CreateStockMovement(context.Context, erp.StockMovementRequest) (erp.Movement, error) {
	return erp.Movement{ID: "mv-1"}, nil
}

func (s *stubERP) JournalEntries(context.Context, string) ([]ledger.JournalEntry, error) {
	return nil, nil
}

func (s *stubERP) AccountBalance(_ context.Context, code string) (erp.AccountBalance, error) {
	return erp.AccountBalance{}, errors.New("no such account " + code)
}

func TestCheckItemBalanceLookupError(t *testing.T) {
	boom := errors.New("connection reset")
	api := &stubERP{balanceErr: boom}
	c := New(api, poll.New(poll.Config{MaxAttempts: 3}, poll.WithSleep(noSleep)), checkConfig(), nil)

	report := c.CheckItem(context.Background(), laptop())

	failure, ok := AsFailure(report.Result)
	require.True(t, ok)
	assert.Equal(t, StageBalanceLookup, failure.Stage)
	assert.Equal(t, "mv-1", failure.MovementID)
	assert.ErrorIs(t, failure, boom)
	assert.Nil(t, report.Entry, "journal must not be read after a transport failure")
}

func TestRun(t *testing.T) {
	fake := testutil.NewFakeERP(t)
	fake.SetBalance("LAPTOP-001", "WAREHOUSE-A", 10)
	fake.SetBalance("PAPER-A4", "WAREHOUSE-A", 200)
	fake.SkipJournal("PAPER-A4")
	c := newChecker(t, fake, checkConfig())

	report := c.Run(context.Background(), &config.Suite{
		Name:  "stock-in-gl",
		Items: []config.Item{laptop(), paper()},
	})

	assert.NotEmpty(t, report.RunID)
	require.Len(t, report.Cases, 2)
	assert.Equal(t, 1, report.PassedCount())
	assert.Equal(t, 1, report.FailedCount())
	assert.False(t, report.Passed())
	assert.Error(t, report.Err())

	failures := report.Failures()
	require.Len(t, failures, 1)
	assert.Equal(t, "PAPER-A4", failures[0].Item.ItemCode)

	require.Len(t, report.Accounts, 2)
	assert.Equal(t, "1300", report.Accounts[0].Code)
	assert.True(t, report.Accounts[0].Balance.Equal(decimal.NewFromInt(7500)))
	assert.Empty(t, report.Accounts[0].Error)
	assert.Equal(t, 2, len(fake.Movements()))
}

func TestRunAccountErrorsAreInformational(t *testing.T) {
	api := &stubERP{}
	cfg := checkConfig()
	cfg.GLAccounts = []string{"1300"}
	c := New(api, poll.New(poll.Config{MaxAttempts: 1}, poll.WithSleep(noSleep)), cfg, nil)

	report := c.Run(context.Background(), &config.Suite{Name: "s", Items: []config.Item{laptop()}})

	require.Len(t, report.Accounts, 1)
	assert.Equal(t, "no such account 1300", report.Accounts[0].Error)
}

func TestRunStopsWhenCancelled(t *testing.T) {
	fake := testutil.NewFakeERP(t)
	c := newChecker(t, fake, checkConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report := c.Run(ctx, &config.Suite{Name: "s", Items: []config.Item{laptop(), paper()}})

	assert.True(t, report.Interrupted)
	assert.Empty(t, report.Cases)
	assert.Empty(t, report.Accounts)
	assert.False(t, report.Passed())
	assert.Empty(t, fake.Movements())
}

// stepClock advances by one second on every call.
type stepClock struct {
	at time.Time
}

func (c *stepClock) now() time.Time {
	c.at = c.at.Add(time.Second)
	return c.at
}

// spanRecorder records the names of started spans.
type spanRecorder struct {
	noop.Tracer
	names []string
}

func (r *spanRecorder) Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	r.names = append(r.names, name)
	return r.Tracer.Start(ctx, name, opts...)
}

func TestRunWithClockAndTracer(t *testing.T) {
	fake := testutil.NewFakeERP(t)
	fake.SetBalance("LAPTOP-001", "WAREHOUSE-A", 10)

	hc, err := client.NewClient(config.TargetConfig{BaseURL: fake.URL(), Timeout: 5 * time.Second}, nil)
	require.NoError(t, err)

	clock := &stepClock{at: time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)}
	tracer := &spanRecorder{}
	c := New(erp.NewClient(hc, nil), poll.New(poll.Config{MaxAttempts: 5}, poll.WithSleep(noSleep)), checkConfig(), nil,
		WithClock(clock.now), WithTracer(tracer))

	report := c.Run(context.Background(), &config.Suite{Name: "s", Items: []config.Item{laptop()}})

	require.Len(t, report.Cases, 1)
	assert.True(t, report.Passed())
	assert.Equal(t, time.Date(2024, 1, 15, 10, 30, 1, 0, time.UTC), report.StartedAt)
	assert.Equal(t, time.Date(2024, 1, 15, 10, 30, 2, 0, time.UTC), report.Cases[0].StartedAt)
	assert.Equal(t, time.Second, report.Cases[0].Duration)
	assert.Equal(t, 3*time.Second, report.Duration)
	assert.Regexp(t, `^TEST-LAPTOP-1705314602-[0-9a-f]{8}$`, report.Cases[0].Reference)
	assert.Equal(t, []string{"glcheck.run", "glcheck.item"}, tracer.names)
}
