package harness

import (
	"encoding/json"

	"github.com/meridian/cutover/internal/event"
	"github.com/meridian/cutover/internal/pipeline"
)

// evaluateAssertions checks every assertion against the trace and circuit
// state, collecting failures into the result.
func evaluateAssertions(assertions []Assertion, p *pipeline.Pipeline, result *Result) {
	for i, a := range assertions {
		switch a.Type {
		case AssertRouteTarget:
			assertRouteTarget(i, a, result)
		case AssertEventCount:
			assertEventCount(i, a, result)
		case AssertEventOrder:
			assertEventOrder(i, a, result)
		case AssertCircuitMode:
			assertCircuitMode(i, a, p, result)
		case AssertDiscrepancyCount:
			assertDiscrepancyCount(i, a, result)
		}
	}
}

// routingPayload is the subset of a routing-decision payload assertions read.
type routingPayload struct {
	Target string `json:"target"`
}

// validationPayload is the subset of a validation-result payload assertions
// read.
type validationPayload struct {
	DiscrepancyCount int `json:"discrepancy_count"`
}

func assertRouteTarget(index int, a Assertion, result *Result) {
	for _, rec := range result.Trace {
		if rec.Kind != event.KindRoutingDecision || rec.TransactionID != a.Transaction {
			continue
		}
		var payload routingPayload
		if err := json.Unmarshal(rec.Payload, &payload); err != nil {
			result.AddError("assertions[%d]: decode routing payload: %v", index, err)
			return
		}
		if payload.Target != a.Target {
			result.AddError("assertions[%d]: transaction %s routed to %s, want %s",
				index, a.Transaction, payload.Target, a.Target)
		}
		return
	}
	result.AddError("assertions[%d]: no routing decision for transaction %s", index, a.Transaction)
}

func assertEventCount(index int, a Assertion, result *Result) {
	var count int
	for _, rec := range result.Trace {
		if string(rec.Kind) == a.Kind {
			count++
		}
	}
	if count != a.Count {
		result.AddError("assertions[%d]: %s events = %d, want %d", index, a.Kind, count, a.Count)
	}
}

func assertEventOrder(index int, a Assertion, result *Result) {
	if len(result.Trace) != len(a.Kinds) {
		result.AddError("assertions[%d]: trace has %d events, want %d",
			index, len(result.Trace), len(a.Kinds))
		return
	}
	for i, rec := range result.Trace {
		if string(rec.Kind) != a.Kinds[i] {
			result.AddError("assertions[%d]: trace[%d] kind = %s, want %s",
				index, i, rec.Kind, a.Kinds[i])
		}
	}
}

func assertCircuitMode(index int, a Assertion, p *pipeline.Pipeline, result *Result) {
	snap := p.Breaker().Snapshot(a.Feature)
	if string(snap.Mode) != a.Mode {
		result.AddError("assertions[%d]: feature %s circuit mode = %s, want %s",
			index, a.Feature, snap.Mode, a.Mode)
	}
}

func assertDiscrepancyCount(index int, a Assertion, result *Result) {
	var total int
	for _, rec := range result.Trace {
		if rec.Kind != event.KindValidationResult {
			continue
		}
		var payload validationPayload
		if err := json.Unmarshal(rec.Payload, &payload); err != nil {
			result.AddError("assertions[%d]: decode validation payload: %v", index, err)
			return
		}
		total += payload.DiscrepancyCount
	}
	if total != a.Count {
		result.AddError("assertions[%d]: total discrepancies = %d, want %d", index, total, a.Count)
	}
}
