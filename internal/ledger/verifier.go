package ledger

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// DefaultTolerance is the largest difference, exclusive, treated as equal (0.01 currency units).
var DefaultTolerance = decimal.New(1, -2)

// BalanceStatus represents the result status of a ledger balance check
type BalanceStatus string

const (
	BalanceStatusBalanced   BalanceStatus = "BALANCED"   // Debit equals Credit
	BalanceStatusUnbalanced BalanceStatus = "UNBALANCED" // Debit does not equal Credit
)

// String returns the string representation
func (s BalanceStatus) String() string {
	return string(s)
}

// LineMismatch reports a journal line whose amount differs from the expected transaction total.
type LineMismatch struct {
	Index             int             `json:"index"`
	Line              JournalLine     `json:"line"`
	DeltaFromExpected decimal.Decimal `json:"deltaFromExpected"` // line.Amount - expected
}

// LedgerCheck is the outcome of verifying a journal entry's lines.
//
// Balanced is the pass/fail criterion. LineMismatches are warnings and never
// change Balanced. An empty line list is vacuously balanced; Empty marks that case
// so callers can report it as a potential false positive.
type LedgerCheck struct {
	Balanced       bool            `json:"balanced"`
	TotalDebits    decimal.Decimal `json:"totalDebits"`
	TotalCredits   decimal.Decimal `json:"totalCredits"`
	Expected       decimal.Decimal `json:"expectedLineAmount"`
	LineMismatches []LineMismatch  `json:"lineMismatches,omitempty"`
	Empty          bool            `json:"empty,omitempty"`
}

// Status returns BALANCED or UNBALANCED.
func (c LedgerCheck) Status() BalanceStatus {
	if c.Balanced {
		return BalanceStatusBalanced
	}
	return BalanceStatusUnbalanced
}

// Imbalance returns |debits - credits|.
func (c LedgerCheck) Imbalance() decimal.Decimal {
	return c.TotalDebits.Sub(c.TotalCredits).Abs()
}

// Describe returns a one-line summary.
func (c LedgerCheck) Describe() string {
	if c.Empty {
		return "entry has no lines (vacuously balanced)"
	}
	if c.Balanced {
		return fmt.Sprintf("entry is balanced: debits %s, credits %s",
			c.TotalDebits.StringFixed(2), c.TotalCredits.StringFixed(2))
	}
	return fmt.Sprintf("entry is not balanced: debits %s, credits %s",
		c.TotalDebits.StringFixed(2), c.TotalCredits.StringFixed(2))
}

// Verifier checks journal lines against a tolerance.
// The zero value uses DefaultTolerance.
type Verifier struct {
	Tolerance decimal.Decimal
}

// NewVerifier creates a verifier with the given tolerance.
// A non-positive tolerance falls back to DefaultTolerance.
func NewVerifier(tolerance decimal.Decimal) Verifier {
	return Verifier{Tolerance: tolerance}
}

func (v Verifier) tolerance() decimal.Decimal {
	if v.Tolerance.IsPositive() {
		return v.Tolerance
	}
	return DefaultTolerance
}

// Within reports whether |a - b| < tolerance.
func (v Verifier) Within(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThan(v.tolerance())
}

// VerifyLines sums lines by side and compares each amount with expectedLineAmount.
// The lines are not modified.
func (v Verifier) VerifyLines(lines []JournalLine, expectedLineAmount decimal.Decimal) LedgerCheck {
	check := LedgerCheck{
		TotalDebits:  decimal.Zero,
		TotalCredits: decimal.Zero,
		Expected:     expectedLineAmount,
		Empty:        len(lines) == 0,
	}

	for i, line := range lines {
		if line.Type.IsDebit() {
			check.TotalDebits = check.TotalDebits.Add(line.Amount)
		} else {
			check.TotalCredits = check.TotalCredits.Add(line.Amount)
		}

		if !v.Within(line.Amount, expectedLineAmount) {
			check.LineMismatches = append(check.LineMismatches, LineMismatch{
				Index:             i,
				Line:              line,
				DeltaFromExpected: line.Amount.Sub(expectedLineAmount),
			})
		}
	}

	check.Balanced = v.Within(check.TotalDebits, check.TotalCredits)
	return check
}

// VerifyLines runs the default verifier.
func VerifyLines(lines []JournalLine, expectedLineAmount decimal.Decimal) LedgerCheck {
	return Verifier{}.VerifyLines(lines, expectedLineAmount)
}

// ExpectedTotal returns quantity * unitCost.
func ExpectedTotal(quantity, unitCost decimal.Decimal) decimal.Decimal {
	return quantity.Mul(unitCost)
}
