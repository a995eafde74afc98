// Package metrics reports check runs: a human readable console report, a JSON
// report file and Prometheus metrics.
package metrics

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/example/erp/tools/glcheck/internal/check"
	"github.com/shopspring/decimal"
)

// Console writes the run report for humans.
//
// Thread Safety: Safe for concurrent use.
type Console struct {
	mu     sync.Mutex
	writer io.Writer
	config ConsoleConfig
}

// ConsoleConfig holds configuration for console output.
type ConsoleConfig struct {
	// Writer is the output destination. Default: os.Stdout
	Writer io.Writer

	// UseColors enables ANSI color codes. Default: true
	UseColors bool

	// Verbose adds poll attempts, timings and movement references.
	Verbose bool
}

// DefaultConsoleConfig returns default configuration.
func DefaultConsoleConfig() ConsoleConfig {
	return ConsoleConfig{
		Writer:    os.Stdout,
		UseColors: true,
	}
}

// ANSI color codes.
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorBold   = "\033[1m"
	colorDim    = "\033[2m"
)

const ruleWidth = 50

// NewConsole creates a new console reporter.
func NewConsole(config ConsoleConfig) *Console {
	if config.Writer == nil {
		config.Writer = os.Stdout
	}
	return &Console{writer: config.Writer, config: config}
}

// color returns the color code if colors are enabled, empty string otherwise.
func (c *Console) color(code string) string {
	if c.config.UseColors {
		return code
	}
	return ""
}

func (c *Console) printf(format string, args ...any) {
	fmt.Fprintf(c.writer, format, args...)
}

func (c *Console) ok(msg string) {
	c.printf("  %s✅ %s%s\n", c.color(colorGreen), msg, c.color(colorReset))
}

func (c *Console) fail(msg string) {
	c.printf("  %s❌ %s%s\n", c.color(colorRed), msg, c.color(colorReset))
}

func (c *Console) warn(indent, msg string) {
	c.printf("%s%s⚠️  %s%s\n", indent, c.color(colorYellow), msg, c.color(colorReset))
}

// PrintHeader prints the run banner.
func (c *Console) PrintHeader(baseURL string, startedAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.printf("%s🚀 Starting Stock-In GL Integration Tests%s\n", c.color(colorBold), c.color(colorReset))
	c.printf("%s\n", strings.Repeat("═", ruleWidth))
	c.printf("Server: %s\n", baseURL)
	c.printf("Time: %s\n", startedAt.Format("2006-01-02 15:04:05"))
}

// PrintCase prints the steps observed for one item.
func (c *Console) PrintCase(r *check.CaseReport) {
	c.mu.Lock()
	defer c.mu.Unlock()

	item := r.Item
	c.printf("\n%s📦 Testing Stock-In: %s%s\n", c.color(colorBold), item.ItemCode, c.color(colorReset))
	c.printf("%s\n", strings.Repeat("─", ruleWidth))

	if r.InitialBalance != nil {
		c.printf("\n📊 Checking initial balance...\n")
		c.printf("  Initial balance: %s\n", r.InitialBalance.Quantity.String())
	}

	c.printf("\n📝 Creating stock movement...\n")
	c.printf("  Item: %s\n", item.ItemCode)
	c.printf("  Quantity: %d\n", item.Quantity)
	c.printf("  Unit Cost: %s\n", FormatMoney(decimal.NewFromFloat(item.UnitCost)))
	c.printf("  Total Value: %s\n", FormatMoney(r.ExpectedTotal))
	if c.config.Verbose {
		c.printf("  %sReference: %s%s\n", c.color(colorDim), r.Reference, c.color(colorReset))
	}

	if r.MovementID == "" {
		c.printTransportFailure(r)
		return
	}
	c.ok("Movement created: ID " + r.MovementID)

	if r.Delta != nil {
		c.printf("\n🔄 Verifying balance update...\n")
		c.printf("  New balance: %s\n", r.Delta.Post.String())
		c.printf("  Expected: %s\n", r.Delta.Expected.String())
		if c.config.Verbose {
			c.printf("  %sAttempts: %d%s\n", c.color(colorDim), r.BalanceAttempts, c.color(colorReset))
		}
		if r.Delta.Passed {
			c.ok("Balance updated correctly")
		} else {
			c.fail("Balance mismatch!")
		}
	}

	// The journal step is never reached after a balance lookup error.
	if r.JournalRef == "" {
		c.printTransportFailure(r)
		return
	}

	c.printf("\n📚 Checking journal entry creation...\n")
	if r.Entry == nil {
		if r.FailureStage() == check.StageJournalLookup {
			c.printTransportFailure(r)
		} else {
			c.fail("No journal entry found!")
		}
		return
	}

	entry := r.Entry
	c.ok("Journal entry found: ID " + entry.ID)
	c.printf("  Date: %s\n", entry.Date)
	c.printf("  Description: %s\n", entry.Description)

	c.printf("\n  Journal Lines:\n")
	mismatched := make(map[int]bool)
	if r.Ledger != nil {
		for _, m := range r.Ledger.LineMismatches {
			mismatched[m.Index] = true
		}
	}
	for i, line := range entry.Lines {
		c.printf("    %s: %s - %s\n", line.Type, line.DisplayName(), FormatMoney(line.Amount))
		if mismatched[i] {
			c.warn("    ", "Amount mismatch! Expected: "+FormatMoney(r.ExpectedTotal))
		}
	}

	if r.Ledger == nil {
		return
	}
	c.printf("\n  Total Debits: %s\n", FormatMoney(r.Ledger.TotalDebits))
	c.printf("  Total Credits: %s\n", FormatMoney(r.Ledger.TotalCredits))
	switch {
	case r.Ledger.Empty:
		c.warn("  ", "Entry has no lines (vacuously balanced)")
	case r.Ledger.Balanced:
		c.ok("Entry is balanced")
	default:
		c.fail("Entry is not balanced!")
	}
}

func (c *Console) printTransportFailure(r *check.CaseReport) {
	if f, ok := check.AsFailure(r.Result); ok {
		c.fail("Error: " + f.Error())
	}
}

// PrintAccounts prints the informational GL account balances.
func (c *Console) PrintAccounts(accounts []check.AccountReport) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(accounts) == 0 {
		return
	}

	c.printf("\n💰 Checking GL Account Balances\n")
	c.printf("%s\n", strings.Repeat("─", ruleWidth))
	for i, a := range accounts {
		if i > 0 {
			c.printf("\n")
		}
		c.printf("%s:\n", AccountLabel(a.Code))
		if a.Error != "" {
			c.printf("  %sError checking balance: %s%s\n", c.color(colorRed), a.Error, c.color(colorReset))
			continue
		}
		c.printf("  Balance: %s\n", FormatMoney(a.Balance))
	}
}

// PrintSummary prints totals and the failed items.
func (c *Console) PrintSummary(r *check.RunReport) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.printf("\n%s📊 Test Summary%s\n", c.color(colorBold), c.color(colorReset))
	c.printf("%s\n", strings.Repeat("═", ruleWidth))
	c.printf("Total tests: %d\n", len(r.Cases))
	c.printf("%s✅ Successful: %d%s\n", c.color(colorGreen), r.PassedCount(), c.color(colorReset))
	failColor := colorGreen
	if r.FailedCount() > 0 {
		failColor = colorRed
	}
	c.printf("%s❌ Failed: %d%s\n", c.color(failColor), r.FailedCount(), c.color(colorReset))

	if failures := r.Failures(); len(failures) > 0 {
		c.printf("\nFailed tests:\n")
		for i := range failures {
			reason := failures[i].FailureReason()
			if reason == "" {
				reason = "Unknown error"
			}
			c.printf("  - %s: %s\n", failures[i].Item.ItemCode, reason)
		}
	}

	var warnings int
	for i := range r.Cases {
		warnings += len(r.Cases[i].Warnings)
	}
	if warnings > 0 {
		c.printf("\n%sWarnings:%s\n", c.color(colorYellow), c.color(colorReset))
		for i := range r.Cases {
			for _, w := range r.Cases[i].Warnings {
				c.printf("  - %s: %s\n", r.Cases[i].Item.ItemCode, w)
			}
		}
	}

	if r.Interrupted {
		c.printf("\n%sRun interrupted before all items were checked%s\n", c.color(colorYellow), c.color(colorReset))
	}
	if c.config.Verbose {
		c.printf("\n%sRun %s took %s%s\n", c.color(colorDim), r.RunID, formatDuration(r.Duration), c.color(colorReset))
	}
	c.printf("\n%s✨ Test run complete!%s\n", c.color(colorCyan), c.color(colorReset))
}

// PrintRun prints the whole report.
func (c *Console) PrintRun(baseURL string, r *check.RunReport) {
	c.PrintHeader(baseURL, r.StartedAt)
	for i := range r.Cases {
		c.PrintCase(&r.Cases[i])
	}
	c.PrintAccounts(r.Accounts)
	c.PrintSummary(r)
}

// AccountLabel names the well-known GL accounts.
func AccountLabel(code string) string {
	switch code {
	case "1300":
		return "Inventory Account (1300)"
	case "2100":
		return "Accounts Payable (2100)"
	default:
		return "Account " + code
	}
}

// FormatMoney formats an amount as $1,234.56.
func FormatMoney(d decimal.Decimal) string {
	sign := ""
	if d.IsNegative() {
		sign = "-"
		d = d.Neg()
	}
	s := d.StringFixed(2)
	whole, frac, _ := strings.Cut(s, ".")

	var b strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	return sign + "$" + b.String() + "." + frac
}

// formatDuration formats a duration for display.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	minutes := int(d.Minutes())
	seconds := int(d.Seconds()) % 60
	return fmt.Sprintf("%dm%ds", minutes, seconds)
}
