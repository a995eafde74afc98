package check

import (
	"errors"
	"time"

	"github.com/example/erp/tools/glcheck/internal/config"
	"github.com/example/erp/tools/glcheck/internal/erp"
	"github.com/example/erp/tools/glcheck/internal/ledger"
	"github.com/shopspring/decimal"
)

// Stage names the step of a case that produced a failure.
type Stage string

const (
	StageInitialBalance Stage = "initial_balance"
	StageCreateMovement Stage = "create_movement"
	StageBalanceLookup  Stage = "balance_lookup"
	StageBalanceDelta   Stage = "balance_delta"
	StageJournalLookup  Stage = "journal_lookup"
	StageJournalMissing Stage = "journal_missing"
	StageUnbalanced     Stage = "unbalanced"
	StageEmptyJournal   Stage = "empty_journal"
)

// Result is the outcome of a case: either Success or Failure.
type Result interface {
	Passed() bool
	result()
}

// Success is a case whose movement reconciled.
type Success struct {
	MovementID string
}

// Passed returns true.
func (Success) Passed() bool { return true }
func (Success) result()      {}

// Failure is a case that did not reconcile. MovementID is empty when the
// movement was never created. Err is set for transport failures.
type Failure struct {
	MovementID string
	Stage      Stage
	Reason     string
	Err        error
}

// Passed returns false.
func (Failure) Passed() bool { return false }
func (Failure) result()      {}

// Error implements the error interface
func (f Failure) Error() string {
	if f.Err != nil {
		return f.Reason + ": " + f.Err.Error()
	}
	return f.Reason
}

// Unwrap returns the underlying transport error, if any.
func (f Failure) Unwrap() error {
	return f.Err
}

// AsFailure returns the failure carried by r, if any.
func AsFailure(r Result) (Failure, bool) {
	f, ok := r.(Failure)
	return f, ok
}

// Reason is one data mismatch found while checking a case.
type Reason struct {
	Stage   Stage  `json:"stage"`
	Message string `json:"message"`
}

// CaseReport holds everything observed while checking one item.
type CaseReport struct {
	Item            config.Item           `json:"item"`
	Reference       string                `json:"reference"`
	MovementID      string                `json:"movementId,omitempty"`
	ExpectedTotal   decimal.Decimal       `json:"expectedTotal"`
	InitialBalance  *erp.InventoryBalance `json:"initialBalance,omitempty"`
	FinalBalance    *erp.InventoryBalance `json:"finalBalance,omitempty"`
	Delta           *ledger.DeltaCheck    `json:"delta,omitempty"`
	BalanceAttempts int                   `json:"balanceAttempts,omitempty"`
	JournalRef      string                `json:"journalReference,omitempty"`
	Entry           *ledger.JournalEntry  `json:"journalEntry,omitempty"`
	EntryCount      int                   `json:"journalEntryCount,omitempty"`
	JournalAttempts int                   `json:"journalAttempts,omitempty"`
	Ledger          *ledger.LedgerCheck   `json:"ledger,omitempty"`
	Reasons         []Reason              `json:"reasons,omitempty"`
	Warnings        []string              `json:"warnings,omitempty"`
	Result          Result                `json:"-"`
	StartedAt       time.Time             `json:"startedAt"`
	Duration        time.Duration         `json:"duration"`
}

// Passed reports whether the case succeeded.
func (r *CaseReport) Passed() bool {
	return r.Result != nil && r.Result.Passed()
}

// FailureReason returns the failure message, or "" for a passing case.
func (r *CaseReport) FailureReason() string {
	if f, ok := AsFailure(r.Result); ok {
		return f.Error()
	}
	return ""
}

// FailureStage returns the stage of a failed case, or "" for a passing case.
func (r *CaseReport) FailureStage() Stage {
	if f, ok := AsFailure(r.Result); ok {
		return f.Stage
	}
	return ""
}

// AccountReport is the informational balance of a GL account after a run.
type AccountReport struct {
	Code    string          `json:"code"`
	Balance decimal.Decimal `json:"balance"`
	Error   string          `json:"error,omitempty"`
}

// RunReport aggregates the cases of one run.
type RunReport struct {
	RunID       string          `json:"runId"`
	Suite       string          `json:"suite"`
	StartedAt   time.Time       `json:"startedAt"`
	FinishedAt  time.Time       `json:"finishedAt"`
	Duration    time.Duration   `json:"duration"`
	Cases       []CaseReport    `json:"cases"`
	Accounts    []AccountReport `json:"accounts,omitempty"`
	Interrupted bool            `json:"interrupted,omitempty"`
}

// PassedCount returns the number of passing cases.
func (r *RunReport) PassedCount() int {
	n := 0
	for i := range r.Cases {
		if r.Cases[i].Passed() {
			n++
		}
	}
	return n
}

// FailedCount returns the number of failing cases.
func (r *RunReport) FailedCount() int {
	return len(r.Cases) - r.PassedCount()
}

// Passed reports whether every case passed and the run was not interrupted.
func (r *RunReport) Passed() bool {
	return !r.Interrupted && len(r.Cases) > 0 && r.FailedCount() == 0
}

// Failures returns the failing cases.
func (r *RunReport) Failures() []CaseReport {
	var out []CaseReport
	for i := range r.Cases {
		if !r.Cases[i].Passed() {
			out = append(out, r.Cases[i])
		}
	}
	return out
}

// Err returns nil when the run passed, or an error joining every failure.
func (r *RunReport) Err() error {
	var errs []error
	for i := range r.Cases {
		if f, ok := AsFailure(r.Cases[i].Result); ok {
			errs = append(errs, f)
		}
	}
	if r.Interrupted {
		errs = append(errs, errors.New("run interrupted"))
	}
	return errors.Join(errs...)
}
