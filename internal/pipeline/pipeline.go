// Package pipeline wires the migration layer end to end: route, invoke (or
// dual-run), capture events, feed the circuit breaker.
//
// One Pipeline serves many concurrent workers; there is no global lock over
// the whole flow. Per-feature circuit state serializes on its own lock
// inside the breaker, and event sequence assignment serializes inside the
// store.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/meridian/cutover/internal/breaker"
	"github.com/meridian/cutover/internal/config"
	"github.com/meridian/cutover/internal/event"
	"github.com/meridian/cutover/internal/eventlog"
	"github.com/meridian/cutover/internal/gateway"
	"github.com/meridian/cutover/internal/router"
	"github.com/meridian/cutover/internal/validator"
)

// Pipeline processes transactions through the migration layer.
//
// Thread-safety: safe for concurrent use by many workers.
type Pipeline struct {
	registry  *config.Registry
	store     *eventlog.Store
	gw        *gateway.Gateway
	breaker   *breaker.Breaker
	router    *router.Router
	validator *validator.Validator
}

// New assembles a Pipeline over the given collaborators. The breaker's
// transition hook is wired to the event store, so every circuit mode change
// becomes a circuit-transition event.
func New(registry *config.Registry, store *eventlog.Store, gw *gateway.Gateway, opts ...validator.Option) *Pipeline {
	p := &Pipeline{
		registry:  registry,
		store:     store,
		gw:        gw,
		validator: validator.New(gw, opts...),
	}
	p.breaker = breaker.New(registry, breaker.WithTransitionFunc(p.recordTransition))
	p.router = router.New(registry, p.breaker)
	return p
}

// Breaker exposes the pipeline's circuit breaker for operator tooling.
func (p *Pipeline) Breaker() *breaker.Breaker {
	return p.breaker
}

// Router exposes the pipeline's router.
func (p *Pipeline) Router() *router.Router {
	return p.router
}

// Process runs one transaction through the migration layer.
//
// The flow is route, capture the decision, invoke the chosen backend (both
// backends when the feature is in dual-run), capture the validation outcome,
// feed the circuit breaker. Expected backend failures come back as typed
// results; the only error Process returns is an event store failure, which
// is fatal for the feature: the circuit is forced OPEN and processing of
// this transaction halts.
//
// Backend calls and event appends run on a context detached from the
// caller's cancellation: a disconnecting caller must not leave the event
// log, the validator, or the breaker with half-updated bookkeeping, and a
// routine disconnect must never read as a store failure.
func (p *Pipeline) Process(ctx context.Context, req event.TransactionRequest) (event.TransactionResult, error) {
	// Every captured event needs a transaction ID to correlate on. Callers
	// that do not supply one get a generated ID back in the result.
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	callCtx := context.WithoutCancel(ctx)

	decision := p.router.Route(req)

	if err := p.appendRoutingDecision(callCtx, decision); err != nil {
		p.haltFeature(decision.Feature, err)
		return event.TransactionResult{}, fmt.Errorf("capture routing decision: %w", err)
	}

	var result event.TransactionResult
	if p.router.DualRunEnabled(req) {
		out := p.validator.Validate(callCtx, req)
		result = out.Production

		if err := p.appendValidationResult(callCtx, decision.Feature, req.ID, out); err != nil {
			p.haltFeature(decision.Feature, err)
			return event.TransactionResult{}, fmt.Errorf("capture validation result: %w", err)
		}
	} else {
		result = p.gw.Invoke(callCtx, decision.Target, req)
	}

	p.breaker.Observe(decision.Feature, result.Outcome)
	return result, nil
}

// Rollback is the operator action that abandons the modern system for one
// feature: the rollback is captured as an event, the feature is pinned to
// legacy by explicit override, and the circuit is forced OPEN.
func (p *Pipeline) Rollback(ctx context.Context, feature, reason string) error {
	payload, err := event.EncodeRollback(feature, reason)
	if err != nil {
		return err
	}
	_, err = p.store.Append(ctx, event.Record{
		Kind:    event.KindRollback,
		Feature: feature,
		Payload: payload,
	})

	// Even an uncapturable rollback must still take effect: pinning to
	// legacy is the safety action, the event is the audit trail.
	legacy := event.TargetLegacy
	p.registry.SetOverride(feature, &legacy)
	p.breaker.Rollback(feature, reason)

	if err != nil {
		return fmt.Errorf("capture rollback: %w", err)
	}
	return nil
}

// Reset is the operator action that resumes normal routing for a feature
// after an incident: the override is cleared and the circuit closed.
func (p *Pipeline) Reset(feature string) {
	p.registry.SetOverride(feature, nil)
	p.breaker.Reset(feature)
}

func (p *Pipeline) appendRoutingDecision(ctx context.Context, d event.RoutingDecision) error {
	payload, err := event.EncodeRoutingDecision(d)
	if err != nil {
		return err
	}
	_, err = p.store.Append(ctx, event.Record{
		Kind:          event.KindRoutingDecision,
		Feature:       d.Feature,
		TransactionID: d.TransactionID,
		Payload:       payload,
	})
	return err
}

func (p *Pipeline) appendValidationResult(ctx context.Context, feature, txnID string, out validator.Outcome) error {
	payload, err := event.EncodeValidationResult(txnID, feature, out.ShadowFailed, out.Discrepancies)
	if err != nil {
		return err
	}
	_, err = p.store.Append(ctx, event.Record{
		Kind:          event.KindValidationResult,
		Feature:       feature,
		TransactionID: txnID,
		Payload:       payload,
	})
	return err
}

// recordTransition is the breaker's transition hook. It runs outside the
// per-feature lock, so the store append here never extends a critical
// section.
func (p *Pipeline) recordTransition(snap event.CircuitSnapshot, reason string) {
	payload, err := event.EncodeCircuitTransition(snap, reason)
	if err != nil {
		slog.Error("encode circuit transition", "feature", snap.Feature, "error", err)
		return
	}
	// The hook cannot surface errors to a caller; log and continue. The
	// transition itself has already taken effect in memory.
	if _, err := p.store.Append(context.Background(), event.Record{
		Kind:    event.KindCircuitTransition,
		Feature: snap.Feature,
		Payload: payload,
	}); err != nil {
		slog.Error("capture circuit transition", "feature", snap.Feature, "error", err)
	}
}

// haltFeature responds to an event store failure: the feature's circuit is
// forced OPEN so no further traffic reaches the modern system while history
// cannot be captured.
func (p *Pipeline) haltFeature(feature string, err error) {
	slog.Error("event capture failed, forcing circuit open",
		"feature", feature,
		"error", err,
	)
	p.breaker.ForceOpen(feature, "event-store-failure")
}
