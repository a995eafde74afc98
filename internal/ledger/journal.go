// Package ledger holds the journal entry model read back from the general ledger
// and the pure reconciliation checks run against it.
package ledger

import (
	"strings"

	"github.com/shopspring/decimal"
)

// LineType is the side of a journal line.
type LineType string

const (
	LineTypeDebit  LineType = "DEBIT"
	LineTypeCredit LineType = "CREDIT"
)

// IsValid checks if the line type is DEBIT or CREDIT
func (t LineType) IsValid() bool {
	return t == LineTypeDebit || t == LineTypeCredit
}

// IsDebit reports whether the line is on the debit side.
// Comparison is case-insensitive; anything that is not a debit is summed as a credit.
func (t LineType) IsDebit() bool {
	return strings.EqualFold(string(t), string(LineTypeDebit))
}

// String returns the string representation
func (t LineType) String() string {
	return string(t)
}

// JournalLine is a single debit or credit posting of a journal entry.
type JournalLine struct {
	Type        LineType        `json:"type"`
	AccountCode string          `json:"accountCode"`
	AccountName string          `json:"accountName,omitempty"`
	Amount      decimal.Decimal `json:"amount"`
}

// DisplayName returns the account name, falling back to the account code.
func (l JournalLine) DisplayName() string {
	if l.AccountName != "" {
		return l.AccountName
	}
	return l.AccountCode
}

// JournalEntry is a double-entry record owned by the external ledger.
// The checker only reads it.
type JournalEntry struct {
	ID          string        `json:"id"`
	Date        string        `json:"date"`
	Description string        `json:"description"`
	Lines       []JournalLine `json:"lines"`
}
