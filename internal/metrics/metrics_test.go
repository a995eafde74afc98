package metrics

import (
	"errors"
	"time"

	"github.com/example/erp/tools/glcheck/internal/check"
	"github.com/example/erp/tools/glcheck/internal/config"
	"github.com/example/erp/tools/glcheck/internal/erp"
	"github.com/example/erp/tools/glcheck/internal/ledger"
	"github.com/shopspring/decimal"
)

// sampleRun returns a run with one passing laptop case and one paper case that
// failed because its journal entry was unbalanced.
func sampleRun() *check.RunReport {
	started := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)
	d := decimal.NewFromInt

	laptopLines := []ledger.JournalLine{
		{Type: ledger.LineTypeDebit, AccountCode: "1300", AccountName: "Inventory", Amount: d(7500)},
		{Type: ledger.LineTypeCredit, AccountCode: "2100", AccountName: "Accounts Payable", Amount: d(7500)},
	}
	laptopLedger := ledger.VerifyLines(laptopLines, d(7500))
	laptopDelta := ledger.VerifyBalanceDelta(d(10), d(15), d(5))

	paperLines := []ledger.JournalLine{
		{Type: ledger.LineTypeDebit, AccountCode: "1300", Amount: decimal.RequireFromString("500.02")},
	}
	paperLedger := ledger.VerifyLines(paperLines, d(500))
	paperDelta := ledger.VerifyBalanceDelta(d(0), d(100), d(100))

	return &check.RunReport{
		RunID:      "run-1",
		Suite:      "stock-in-gl",
		StartedAt:  started,
		FinishedAt: started.Add(3 * time.Second),
		Duration:   3 * time.Second,
		Cases: []check.CaseReport{
			{
				Item:            config.Item{ItemCode: "LAPTOP-001", Quantity: 5, UnitCost: 1500, Location: "WAREHOUSE-A"},
				Reference:       "TEST-LAPTOP-1705314600-abcdef12",
				MovementID:      "1",
				ExpectedTotal:   d(7500),
				InitialBalance:  &erp.InventoryBalance{Quantity: d(10)},
				FinalBalance:    &erp.InventoryBalance{Quantity: d(15)},
				Delta:           &laptopDelta,
				BalanceAttempts: 2,
				JournalRef:      "STOCK-IN-1",
				Entry:           &ledger.JournalEntry{ID: "1001", Date: "2024-01-15", Description: "Stock in LAPTOP-001", Lines: laptopLines},
				JournalAttempts: 1,
				Ledger:          &laptopLedger,
				Result:          check.Success{MovementID: "1"},
				Duration:        1200 * time.Millisecond,
			},
			{
				Item:            config.Item{ItemCode: "PAPER-A4", Quantity: 100, UnitCost: 5, Location: "WAREHOUSE-A"},
				Reference:       "TEST-PAPER-1705314601-12345678",
				MovementID:      "2",
				ExpectedTotal:   d(500),
				InitialBalance:  &erp.InventoryBalance{},
				FinalBalance:    &erp.InventoryBalance{Quantity: d(100)},
				Delta:           &paperDelta,
				BalanceAttempts: 1,
				JournalRef:      "STOCK-IN-2",
				Entry:           &ledger.JournalEntry{ID: "1002", Lines: paperLines},
				JournalAttempts: 3,
				Ledger:          &paperLedger,
				Warnings:        []string{"line 1 (DEBIT 1300): amount 500.02 differs from expected 500.00 by 0.02"},
				Result: check.Failure{
					MovementID: "2",
					Stage:      check.StageUnbalanced,
					Reason:     paperLedger.Describe(),
				},
				Duration: 1800 * time.Millisecond,
			},
		},
		Accounts: []check.AccountReport{
			{Code: "1300", Balance: decimal.RequireFromString("8000.02")},
			{Code: "2100", Error: errors.New("HTTP 500").Error()},
		},
	}
}
