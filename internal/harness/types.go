package harness

import (
	"fmt"

	"github.com/meridian/cutover/internal/event"
)

// Result holds everything a scenario run produced.
type Result struct {
	// ScenarioName echoes the scenario that ran.
	ScenarioName string

	// Trace is the full event log after the flow completed, in sequence
	// order.
	Trace []event.Record

	// Results maps transaction id to the result the pipeline returned.
	Results map[string]event.TransactionResult

	// Errors collects expectation and assertion failures. Empty means the
	// scenario passed.
	Errors []string
}

// NewResult creates an empty Result.
func NewResult(name string) *Result {
	return &Result{
		ScenarioName: name,
		Results:      make(map[string]event.TransactionResult),
	}
}

// Passed reports whether the run collected no failures.
func (r *Result) Passed() bool {
	return len(r.Errors) == 0
}

// AddError records one failure.
func (r *Result) AddError(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}
