package metrics

import "github.com/example/erp/tools/glcheck/internal/check"

// Exit codes.
const (
	// ExitCodeSuccess indicates every case passed.
	ExitCodeSuccess = 0
	// ExitCodeError indicates a setup error (configuration, suite file, reporting).
	ExitCodeError = 1
	// ExitCodeCheckFailure indicates at least one case failed.
	ExitCodeCheckFailure = 2
)

// ExitCode maps a run to a process exit code. With exitOnFailure false, failed
// cases still exit 0.
func ExitCode(r *check.RunReport, exitOnFailure bool) int {
	if r == nil {
		return ExitCodeError
	}
	if exitOnFailure && !r.Passed() {
		return ExitCodeCheckFailure
	}
	return ExitCodeSuccess
}
