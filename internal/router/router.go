// Package router decides, per transaction, which system of record serves it.
//
// Routing is pure computation over in-memory state (feature config and
// circuit mode); it performs no I/O and never suspends, so a decision is
// always available immediately. The router never invokes a backend itself.
package router

import (
	"time"

	"github.com/meridian/cutover/internal/breaker"
	"github.com/meridian/cutover/internal/config"
	"github.com/meridian/cutover/internal/event"
)

// FeatureFor maps an operation to the migration feature that governs it.
// Features are the rollout unit: each gets its own flag set, circuit, and
// rollout percentage.
func FeatureFor(op event.Operation) string {
	switch op {
	case event.OpTransfer:
		return "transfers"
	case event.OpDebit, event.OpCredit:
		return "payments"
	case event.OpBalanceInquiry:
		return "inquiries"
	default:
		return "unknown"
	}
}

// Router produces routing decisions from feature config and circuit state.
//
// Thread-safety: stateless beyond its collaborators, safe for concurrent use.
type Router struct {
	registry *config.Registry
	breaker  *breaker.Breaker
}

// New creates a Router over the given registry and breaker.
func New(registry *config.Registry, brk *breaker.Breaker) *Router {
	return &Router{registry: registry, breaker: brk}
}

// Route picks the target for one transaction.
//
// Precedence: an explicit per-feature override always wins (operator
// rollback pins features to legacy this way), then an OPEN circuit forces
// legacy, then the deterministic rollout rule selects modern for accounts
// whose stable hash bucket falls under the rollout percentage. The same
// account always lands in the same bucket across restarts, so users never
// flip-flop between systems while the percentage holds still.
func (r *Router) Route(req event.TransactionRequest) event.RoutingDecision {
	feature := FeatureFor(req.Operation)
	cfg := r.registry.Get(feature)

	decision := event.RoutingDecision{
		TransactionID: req.ID,
		Feature:       feature,
		Timestamp:     time.Now().UTC(),
	}

	if cfg.OverrideTarget != nil {
		decision.Target = *cfg.OverrideTarget
		decision.Reason = event.ReasonOverride
		return decision
	}

	if r.breaker.IsOpen(feature) {
		decision.Target = event.TargetLegacy
		decision.Reason = event.ReasonCircuitOpen
		return decision
	}

	decision.Reason = event.ReasonRollout
	if event.AccountBucket(req.Account) < cfg.RolloutPercent {
		decision.Target = event.TargetModern
	} else {
		decision.Target = event.TargetLegacy
	}
	return decision
}

// DualRunEnabled reports whether the transaction's feature is configured
// for shadow mode.
func (r *Router) DualRunEnabled(req event.TransactionRequest) bool {
	return r.registry.Get(FeatureFor(req.Operation)).DualRunEnabled
}
