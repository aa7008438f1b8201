package event

import (
	"time"

	"github.com/shopspring/decimal"
)

// Target identifies which backend serves a transaction.
type Target string

const (
	// TargetLegacy is the batch/transaction processor being migrated away from.
	TargetLegacy Target = "legacy"
	// TargetModern is the replacement service layer.
	TargetModern Target = "modern"
)

// Valid reports whether t is one of the two known targets.
func (t Target) Valid() bool {
	return t == TargetLegacy || t == TargetModern
}

// Operation is the transaction operation type.
type Operation string

const (
	OpBalanceInquiry Operation = "balance-inquiry"
	OpDebit          Operation = "debit"
	OpCredit         Operation = "credit"
	OpTransfer       Operation = "transfer"
)

// Valid reports whether op is a known operation type.
func (op Operation) Valid() bool {
	switch op {
	case OpBalanceInquiry, OpDebit, OpCredit, OpTransfer:
		return true
	}
	return false
}

// Outcome classifies a transaction result.
type Outcome string

const (
	// OutcomeSuccess is a successful backend invocation.
	OutcomeSuccess Outcome = "success"
	// OutcomeBusinessError is a valid negative result (e.g. insufficient
	// funds). Business errors never count toward circuit-breaker error rate.
	OutcomeBusinessError Outcome = "business-error"
	// OutcomeSystemError is an infrastructure failure, including timeouts.
	// System errors count toward circuit-breaker error rate.
	OutcomeSystemError Outcome = "system-error"
)

// TransactionRequest is an immutable inbound transaction.
//
// ID is an opaque, globally unique identifier supplied by the caller.
// Amount carries a fixed scale of 2; it is zero for balance inquiries.
type TransactionRequest struct {
	ID        string
	Operation Operation
	Account   string
	// ToAccount is the destination account for transfers, empty otherwise.
	ToAccount string
	Amount    decimal.Decimal
	Metadata  map[string]string
}

// TransactionResult is produced once per backend invocation and never mutated.
type TransactionResult struct {
	TransactionID string
	Outcome       Outcome
	Balance       decimal.Decimal
	// SystemOfRecord is the backend that produced this result.
	SystemOfRecord Target
	Latency        time.Duration
	// Status is the backend's normalized status string (e.g. "OK",
	// "INSUFFICIENT-FUNDS", "TIMEOUT").
	Status string
	// Raw is the backend's payload before normalization, retained for audit.
	Raw map[string]string
}

// DecisionReason explains why a routing decision chose its target.
type DecisionReason string

const (
	// ReasonOverride means an explicit per-feature override won.
	ReasonOverride DecisionReason = "override"
	// ReasonCircuitOpen means the feature's circuit forced legacy.
	ReasonCircuitOpen DecisionReason = "circuit-open"
	// ReasonRollout means the deterministic rollout rule selected the target.
	ReasonRollout DecisionReason = "rollout"
)

// RoutingDecision records the routing choice for one transaction.
// Exactly one decision is produced per request; it is immutable and always
// precedes any TransactionResult for the same transaction id.
type RoutingDecision struct {
	TransactionID string
	Feature       string
	Target        Target
	Reason        DecisionReason
	Timestamp     time.Time
}

// Severity ranks a discrepancy by the damage a wrong value would cause.
type Severity string

const (
	// SeverityCritical marks mismatches on balance/amount fields.
	SeverityCritical Severity = "critical"
	// SeverityHigh marks mismatches on status/flag fields.
	SeverityHigh Severity = "high"
	// SeverityLow marks mismatches on all other fields.
	SeverityLow Severity = "low"
)

// DiscrepancyRecord captures one field-level mismatch between the legacy and
// modern results of a dual-run transaction. Records are never deleted; a
// reconciliation collaborator may mark them resolved.
type DiscrepancyRecord struct {
	TransactionID string
	Field         string
	LegacyValue   string
	ModernValue   string
	// AbsDiff is the absolute difference for monetary fields, zero otherwise.
	AbsDiff  decimal.Decimal
	Severity Severity
	Resolved bool
}

// CircuitMode is the circuit-breaker state for a feature.
type CircuitMode string

const (
	// CircuitClosed means normal routing (rollout/dual-run active).
	CircuitClosed CircuitMode = "closed"
	// CircuitOpen means all traffic is forced to legacy.
	CircuitOpen CircuitMode = "open"
)

// CircuitSnapshot is a point-in-time copy of a feature's circuit state.
// The live state is owned by the breaker package; snapshots are what gets
// recorded and exported.
type CircuitSnapshot struct {
	Feature      string
	Mode         CircuitMode
	ErrorCount   int
	RequestCount int
	WindowStart  time.Time
	Threshold    float64
	WindowSize   int
}

// Kind identifies what an event record captures.
type Kind string

const (
	KindRoutingDecision   Kind = "routing-decision"
	KindValidationResult  Kind = "validation-result"
	KindCircuitTransition Kind = "circuit-transition"
	KindRollback          Kind = "rollback"
)

// Valid reports whether k is a known event kind.
func (k Kind) Valid() bool {
	switch k {
	case KindRoutingDecision, KindValidationResult, KindCircuitTransition, KindRollback:
		return true
	}
	return false
}

// Record is one entry in the append-only event log.
//
// Seq is assigned by the event store and is the sole ordering mechanism for
// replay. Payload is the canonical JSON serialization of the captured entity
// (see MarshalCanonical). Records are append-only; history is never mutated.
type Record struct {
	Seq       int64
	Timestamp time.Time
	Kind      Kind
	// Feature is the migration feature the event belongs to.
	Feature string
	// TransactionID correlates the event to a transaction, when applicable.
	TransactionID string
	Payload       []byte
}
