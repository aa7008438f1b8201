// Package breaker implements the per-feature circuit breaker and rollback
// controller.
//
// Each feature carries its own state machine: CLOSED (rollout and dual-run
// active) or OPEN (all traffic forced to legacy). CLOSED transitions to OPEN
// when the system-error rate over a sliding window of N requests exceeds the
// configured threshold, or when an operator forces it. OPEN transitions back
// to CLOSED only through an explicit manual reset - never automatically, so
// a known-bad modern system cannot be flapped back into.
package breaker

import (
	"log/slog"
	"sync"
	"time"

	"github.com/meridian/cutover/internal/config"
	"github.com/meridian/cutover/internal/event"
)

// TransitionFunc is notified after every mode change with a snapshot of the
// state that caused it. Called outside the per-feature lock, so
// implementations may do I/O (e.g. append a circuit-transition event).
type TransitionFunc func(snap event.CircuitSnapshot, reason string)

// Transition reasons recorded with mode changes.
const (
	ReasonThreshold   = "error-rate-threshold"
	ReasonManual      = "manual"
	ReasonManualReset = "manual-reset"
)

// circuit is the mutable state for one feature.
//
// The mutex serializes counter updates and mode flips. Critical sections
// are short (increment, compare, flip) and never perform I/O.
type circuit struct {
	mu           sync.Mutex
	mode         event.CircuitMode
	errorCount   int
	requestCount int
	windowStart  time.Time
}

// Breaker tracks circuit state for all features.
//
// Thread-safety: the feature map is guarded by an RWMutex; each feature's
// counters by its own mutex. Two transactions racing on the same feature
// serialize on that feature's lock only.
type Breaker struct {
	registry *config.Registry

	mu       sync.RWMutex
	circuits map[string]*circuit

	onTransition TransitionFunc
}

// Option configures a Breaker.
type Option func(*Breaker)

// WithTransitionFunc registers the mode-change hook.
func WithTransitionFunc(fn TransitionFunc) Option {
	return func(b *Breaker) {
		b.onTransition = fn
	}
}

// New creates a Breaker reading thresholds and window sizes from registry.
func New(registry *config.Registry, opts ...Option) *Breaker {
	b := &Breaker{
		registry: registry,
		circuits: make(map[string]*circuit),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// IsOpen reports whether the feature's circuit is OPEN. Features never
// observed are CLOSED.
func (b *Breaker) IsOpen(feature string) bool {
	c := b.circuit(feature)
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode == event.CircuitOpen
}

// Observe feeds one transaction outcome into the feature's window and
// returns true if this observation tripped the circuit.
//
// Only system errors count toward the error rate: a business error is
// correct behavior, not a system failure. The window resets once it reaches
// the configured size without tripping. Observations on an OPEN circuit are
// ignored - the window restarts from zero on manual reset.
func (b *Breaker) Observe(feature string, outcome event.Outcome) bool {
	cfg := b.registry.Get(feature)
	c := b.circuit(feature)

	c.mu.Lock()
	if c.mode == event.CircuitOpen {
		c.mu.Unlock()
		return false
	}

	if c.requestCount == 0 {
		c.windowStart = time.Now()
	}
	c.requestCount++
	if outcome == event.OutcomeSystemError {
		c.errorCount++
	}

	// Trip as soon as the error count alone exceeds threshold*N: within a
	// window the count only grows, so there is no need to wait for the
	// window to fill.
	if float64(c.errorCount) > cfg.CircuitThreshold*float64(cfg.CircuitWindowSize) {
		c.mode = event.CircuitOpen
		snap := c.snapshotLocked(feature, cfg)
		c.mu.Unlock()

		slog.Error("circuit tripped",
			"feature", feature,
			"error_count", snap.ErrorCount,
			"request_count", snap.RequestCount,
			"threshold", cfg.CircuitThreshold,
			"window_size", cfg.CircuitWindowSize,
		)
		b.notify(snap, ReasonThreshold)
		return true
	}

	// Window boundary: full window without tripping, start a fresh one.
	if c.requestCount >= cfg.CircuitWindowSize {
		c.errorCount = 0
		c.requestCount = 0
	}
	c.mu.Unlock()
	return false
}

// Rollback is the explicit operator action: force the feature OPEN
// regardless of error rate. reason is recorded with the transition (e.g. an
// incident identifier); the transition itself is always reported as manual.
func (b *Breaker) Rollback(feature, reason string) {
	b.forceOpen(feature, ReasonManual+": "+reason)
}

// ForceOpen trips the circuit for safety reasons outside the error-rate
// path (e.g. the event store became unavailable for this feature).
func (b *Breaker) ForceOpen(feature, reason string) {
	b.forceOpen(feature, reason)
}

func (b *Breaker) forceOpen(feature, reason string) {
	cfg := b.registry.Get(feature)
	c := b.circuit(feature)

	c.mu.Lock()
	if c.mode == event.CircuitOpen {
		c.mu.Unlock()
		return
	}
	c.mode = event.CircuitOpen
	snap := c.snapshotLocked(feature, cfg)
	c.mu.Unlock()

	slog.Warn("circuit forced open", "feature", feature, "reason", reason)
	b.notify(snap, reason)
}

// Reset is the explicit operator action that closes an OPEN circuit. The
// window restarts from zero. Resetting a CLOSED circuit is a no-op.
func (b *Breaker) Reset(feature string) {
	cfg := b.registry.Get(feature)
	c := b.circuit(feature)

	c.mu.Lock()
	if c.mode == event.CircuitClosed {
		c.mu.Unlock()
		return
	}
	c.mode = event.CircuitClosed
	c.errorCount = 0
	c.requestCount = 0
	c.windowStart = time.Now()
	snap := c.snapshotLocked(feature, cfg)
	c.mu.Unlock()

	slog.Info("circuit reset", "feature", feature)
	b.notify(snap, ReasonManualReset)
}

// Snapshot returns a point-in-time copy of the feature's circuit state.
func (b *Breaker) Snapshot(feature string) event.CircuitSnapshot {
	cfg := b.registry.Get(feature)
	c := b.circuit(feature)

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked(feature, cfg)
}

// circuit returns the feature's state, creating it CLOSED on first use.
func (b *Breaker) circuit(feature string) *circuit {
	b.mu.RLock()
	c, ok := b.circuits[feature]
	b.mu.RUnlock()
	if ok {
		return c
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if c, ok := b.circuits[feature]; ok {
		return c
	}
	c = &circuit{mode: event.CircuitClosed, windowStart: time.Now()}
	b.circuits[feature] = c
	return c
}

// snapshotLocked copies the state. Caller must hold c.mu.
func (c *circuit) snapshotLocked(feature string, cfg config.FeatureConfig) event.CircuitSnapshot {
	return event.CircuitSnapshot{
		Feature:      feature,
		Mode:         c.mode,
		ErrorCount:   c.errorCount,
		RequestCount: c.requestCount,
		WindowStart:  c.windowStart,
		Threshold:    cfg.CircuitThreshold,
		WindowSize:   cfg.CircuitWindowSize,
	}
}

func (b *Breaker) notify(snap event.CircuitSnapshot, reason string) {
	if b.onTransition != nil {
		b.onTransition(snap, reason)
	}
}
