package metrics

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/example/erp/tools/glcheck/internal/check"
	"github.com/example/erp/tools/glcheck/internal/ledger"
	"github.com/shopspring/decimal"
)

// ReportVersion is the JSON report schema version.
const ReportVersion = "1.0"

// JSONReport is a complete run report in JSON format.
type JSONReport struct {
	Metadata      ReportMetadata      `json:"metadata"`
	Configuration ReportConfiguration `json:"configuration"`
	Summary       ReportSummary       `json:"summary"`
	Cases         []CaseEntry         `json:"cases"`
	Accounts      []AccountEntry      `json:"accounts,omitempty"`
}

// ReportMetadata contains metadata about the report.
type ReportMetadata struct {
	Version     string    `json:"version"`
	GeneratedAt time.Time `json:"generatedAt"`
	Generator   string    `json:"generator"`
	RunID       string    `json:"runId"`
}

// ReportConfiguration captures the settings the run used.
type ReportConfiguration struct {
	Suite                  string `json:"suite"`
	TargetBaseURL          string `json:"targetBaseURL"`
	Tolerance              string `json:"tolerance"`
	JournalReferencePrefix string `json:"journalReferencePrefix"`
	StrictEmptyJournal     bool   `json:"strictEmptyJournal"`
}

// ReportSummary holds run totals.
type ReportSummary struct {
	Total       int       `json:"total"`
	Passed      int       `json:"passed"`
	Failed      int       `json:"failed"`
	Warnings    int       `json:"warnings"`
	Success     bool      `json:"success"`
	Interrupted bool      `json:"interrupted,omitempty"`
	StartedAt   time.Time `json:"startedAt"`
	FinishedAt  time.Time `json:"finishedAt"`
	Duration    Duration  `json:"duration"`
}

// Duration wraps time.Duration for JSON serialization.
type Duration struct {
	time.Duration
}

// MarshalJSON implements json.Marshaler for Duration.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{
		"seconds": d.Seconds(),
		"display": formatDuration(d.Duration),
	})
}

// UnmarshalJSON implements json.Unmarshaler for Duration.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	if seconds, ok := obj["seconds"].(float64); ok {
		d.Duration = time.Duration(seconds * float64(time.Second))
	}
	return nil
}

// CaseEntry is one item of the report.
type CaseEntry struct {
	ItemCode        string              `json:"itemCode"`
	Location        string              `json:"location"`
	Quantity        int64               `json:"quantity"`
	UnitCost        decimal.Decimal     `json:"unitCost"`
	ExpectedTotal   decimal.Decimal     `json:"expectedTotal"`
	Reference       string              `json:"reference"`
	MovementID      string              `json:"movementId,omitempty"`
	Success         bool                `json:"success"`
	Stage           string              `json:"stage,omitempty"`
	Error           string              `json:"error,omitempty"`
	Delta           *ledger.DeltaCheck  `json:"balance,omitempty"`
	BalanceAttempts int                 `json:"balanceAttempts,omitempty"`
	JournalRef      string              `json:"journalReference,omitempty"`
	JournalEntryID  string              `json:"journalEntryId,omitempty"`
	JournalAttempts int                 `json:"journalAttempts,omitempty"`
	Ledger          *ledger.LedgerCheck `json:"ledger,omitempty"`
	Warnings        []string            `json:"warnings,omitempty"`
	Duration        Duration            `json:"duration"`
}

// AccountEntry is a GL account balance.
type AccountEntry struct {
	Code    string          `json:"code"`
	Label   string          `json:"label"`
	Balance decimal.Decimal `json:"balance"`
	Error   string          `json:"error,omitempty"`
}

// ReportOptions carries settings that are not part of the run report itself.
type ReportOptions struct {
	TargetBaseURL          string
	Tolerance              decimal.Decimal
	JournalReferencePrefix string
	StrictEmptyJournal     bool
}

// Reporter generates JSON reports.
type Reporter struct {
	now func() time.Time
}

// NewReporter creates a new reporter.
func NewReporter() *Reporter {
	return &Reporter{now: time.Now}
}

// GenerateReport builds the JSON report of a run.
func (r *Reporter) GenerateReport(run *check.RunReport, opts ReportOptions) *JSONReport {
	report := &JSONReport{
		Metadata: ReportMetadata{
			Version:     ReportVersion,
			GeneratedAt: r.now(),
			Generator:   "glcheck",
			RunID:       run.RunID,
		},
		Configuration: ReportConfiguration{
			Suite:                  run.Suite,
			TargetBaseURL:          opts.TargetBaseURL,
			Tolerance:              opts.Tolerance.String(),
			JournalReferencePrefix: opts.JournalReferencePrefix,
			StrictEmptyJournal:     opts.StrictEmptyJournal,
		},
		Summary: ReportSummary{
			Total:       len(run.Cases),
			Passed:      run.PassedCount(),
			Failed:      run.FailedCount(),
			Success:     run.Passed(),
			Interrupted: run.Interrupted,
			StartedAt:   run.StartedAt,
			FinishedAt:  run.FinishedAt,
			Duration:    Duration{run.Duration},
		},
		Cases: make([]CaseEntry, 0, len(run.Cases)),
	}

	for i := range run.Cases {
		c := &run.Cases[i]
		entry := CaseEntry{
			ItemCode:        c.Item.ItemCode,
			Location:        c.Item.Location,
			Quantity:        c.Item.Quantity,
			UnitCost:        decimal.NewFromFloat(c.Item.UnitCost),
			ExpectedTotal:   c.ExpectedTotal,
			Reference:       c.Reference,
			MovementID:      c.MovementID,
			Success:         c.Passed(),
			Stage:           string(c.FailureStage()),
			Error:           c.FailureReason(),
			Delta:           c.Delta,
			BalanceAttempts: c.BalanceAttempts,
			JournalRef:      c.JournalRef,
			JournalAttempts: c.JournalAttempts,
			Ledger:          c.Ledger,
			Warnings:        c.Warnings,
			Duration:        Duration{c.Duration},
		}
		if c.Entry != nil {
			entry.JournalEntryID = c.Entry.ID
		}
		report.Summary.Warnings += len(c.Warnings)
		report.Cases = append(report.Cases, entry)
	}

	for _, a := range run.Accounts {
		report.Accounts = append(report.Accounts, AccountEntry{
			Code:    a.Code,
			Label:   AccountLabel(a.Code),
			Balance: a.Balance,
			Error:   a.Error,
		})
	}

	return report
}

// ToJSON serializes a report to JSON bytes.
func (r *Reporter) ToJSON(report *JSONReport) ([]byte, error) {
	return json.MarshalIndent(report, "", "  ")
}

// WriteToFile writes a report to a file and returns the expanded path.
// The path supports template variables:
// - {{.Timestamp}} - Current timestamp in format YYYYMMDD-HHMMSS
// - {{.Date}} - Current date in format YYYY-MM-DD
// - {{.Time}} - Current time in format HHMMSS
func (r *Reporter) WriteToFile(report *JSONReport, path string) (string, error) {
	expandedPath := filepath.Clean(expandPathTemplate(path, r.now()))

	dir := filepath.Dir(expandedPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("creating output directory: %w", err)
	}

	data, err := r.ToJSON(report)
	if err != nil {
		return "", fmt.Errorf("marshaling report to JSON: %w", err)
	}

	if err := os.WriteFile(expandedPath, data, 0644); err != nil {
		return "", fmt.Errorf("writing report file: %w", err)
	}
	return expandedPath, nil
}

// expandPathTemplate expands template variables in a path.
func expandPathTemplate(path string, now time.Time) string {
	replacements := map[string]string{
		"{{.Timestamp}}": now.Format("20060102-150405"),
		"{{.Date}}":      now.Format("2006-01-02"),
		"{{.Time}}":      now.Format("150405"),
	}

	result := path
	for template, value := range replacements {
		result = strings.ReplaceAll(result, template, value)
	}
	return result
}
