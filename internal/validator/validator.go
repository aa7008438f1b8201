// Package validator implements dual-run comparison: for transactions under
// shadow mode, both systems are invoked concurrently, their normalized
// results are compared field by field, and mismatches become discrepancy
// records. The legacy result stays authoritative throughout.
package validator

import (
	"context"
	"log/slog"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/meridian/cutover/internal/event"
	"github.com/meridian/cutover/internal/gateway"
)

// DefaultTolerance is the acceptable absolute difference for monetary
// fields, in currency units. The boundary is inclusive: a difference of
// exactly 0.01 is acceptable, anything larger is a discrepancy.
var DefaultTolerance = decimal.New(1, -2)

// Outcome is the result of one dual-run validation.
//
// Production carries the legacy result, which is always what the caller
// receives during dual-run. Shadow carries the modern result; it never
// reaches the caller.
type Outcome struct {
	Production event.TransactionResult
	Shadow     event.TransactionResult

	// ShadowFailed reports that the modern call ended in a system error.
	// A shadow failure alone is not a discrepancy.
	ShadowFailed bool

	// Discrepancies holds one record per mismatched field, ordered by field
	// name so serialized outcomes are deterministic.
	Discrepancies []event.DiscrepancyRecord
}

// Validator runs shadow comparisons through the gateway.
//
// Thread-safety: immutable after construction, safe for concurrent use.
type Validator struct {
	gw        *gateway.Gateway
	tolerance decimal.Decimal
}

// Option configures a Validator.
type Option func(*Validator)

// WithTolerance overrides the monetary comparison tolerance.
func WithTolerance(t decimal.Decimal) Option {
	return func(v *Validator) {
		v.tolerance = t
	}
}

// New creates a Validator over the given gateway.
func New(gw *gateway.Gateway, opts ...Option) *Validator {
	v := &Validator{
		gw:        gw,
		tolerance: DefaultTolerance,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate invokes both backends concurrently and compares their results.
//
// The two calls are issued in parallel; Validate waits for both, bounded by
// the gateway's own per-call timeout on each side. A timeout or fault on one
// side surfaces as that side's system-error result and never blocks the
// other side. The returned Outcome always carries the legacy result as
// Production, regardless of what the comparison found.
func (v *Validator) Validate(ctx context.Context, req event.TransactionRequest) Outcome {
	legacyCh := make(chan event.TransactionResult, 1)
	modernCh := make(chan event.TransactionResult, 1)

	go func() {
		legacyCh <- v.gw.Invoke(ctx, event.TargetLegacy, req)
	}()
	go func() {
		modernCh <- v.gw.Invoke(ctx, event.TargetModern, req)
	}()

	legacy := <-legacyCh
	modern := <-modernCh

	out := Outcome{
		Production: legacy,
		Shadow:     modern,
	}

	if modern.Outcome == event.OutcomeSystemError {
		// Fail soft: the shadow side erred, which says nothing about
		// correctness of the modern system's business logic.
		out.ShadowFailed = true
		slog.Warn("shadow call failed",
			"transaction_id", req.ID,
			"status", modern.Status,
		)
		return out
	}

	if legacy.Outcome == event.OutcomeSystemError {
		// No authoritative result to compare against; the production side's
		// failure propagates through the normal result path.
		return out
	}

	out.Discrepancies = v.compare(req.ID, legacy, modern)
	if len(out.Discrepancies) > 0 {
		slog.Warn("dual-run mismatch",
			"transaction_id", req.ID,
			"discrepancy_count", len(out.Discrepancies),
		)
	}
	return out
}

// compare produces one DiscrepancyRecord per mismatched field.
//
// Monetary fields compare within the tolerance; all other fields compare
// exactly. Severity follows the field class: balance/amount fields are
// critical, status/flag fields are high, everything else low.
func (v *Validator) compare(txnID string, legacy, modern event.TransactionResult) []event.DiscrepancyRecord {
	var recs []event.DiscrepancyRecord

	if diff := legacy.Balance.Sub(modern.Balance).Abs(); diff.GreaterThan(v.tolerance) {
		recs = append(recs, event.DiscrepancyRecord{
			TransactionID: txnID,
			Field:         "balance",
			LegacyValue:   legacy.Balance.StringFixed(2),
			ModernValue:   modern.Balance.StringFixed(2),
			AbsDiff:       diff,
			Severity:      event.SeverityCritical,
		})
	}

	if legacy.Status != modern.Status {
		recs = append(recs, event.DiscrepancyRecord{
			TransactionID: txnID,
			Field:         "status",
			LegacyValue:   legacy.Status,
			ModernValue:   modern.Status,
			AbsDiff:       decimal.Zero,
			Severity:      event.SeverityHigh,
		})
	}

	for _, field := range sharedRawFields(legacy.Raw, modern.Raw) {
		lv, mv := legacy.Raw[field], modern.Raw[field]
		if lv != mv {
			recs = append(recs, event.DiscrepancyRecord{
				TransactionID: txnID,
				Field:         field,
				LegacyValue:   lv,
				ModernValue:   mv,
				AbsDiff:       decimal.Zero,
				Severity:      event.SeverityLow,
			})
		}
	}

	sort.Slice(recs, func(i, j int) bool { return recs[i].Field < recs[j].Field })
	return recs
}

// sharedRawFields returns the keys present in both raw payloads, sorted.
// Fields only one backend reports are shape differences between the two
// systems, not value mismatches, so they are not compared.
func sharedRawFields(legacy, modern map[string]string) []string {
	var fields []string
	for k := range legacy {
		if _, ok := modern[k]; ok {
			fields = append(fields, k)
		}
	}
	sort.Strings(fields)
	return fields
}
