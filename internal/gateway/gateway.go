// Package gateway wraps the two heterogeneous back-ends behind one call
// interface and normalizes their replies into the common TransactionResult
// shape.
//
// Expected failures never cross the package boundary as errors: timeouts,
// backend faults, and malformed numeric fields all come back as typed
// system-error results, so the router and validator need no exception
// handling for them.
package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridian/cutover/internal/codec"
	"github.com/meridian/cutover/internal/event"
)

// DefaultTimeout bounds a single backend call unless overridden.
const DefaultTimeout = 2 * time.Second

// LatencyObserver receives one measurement per backend call. Consumed by the
// monitoring collaborator; implementations must be fast and non-blocking.
type LatencyObserver func(target event.Target, op event.Operation, d time.Duration)

// Gateway is the uniform call interface to the legacy and modern systems.
//
// Thread-safety: Gateway is immutable after construction and safe for
// concurrent use across pipeline workers.
type Gateway struct {
	legacy  Backend
	modern  Backend
	layout  codec.FieldLayout
	timeout time.Duration
	observe LatencyObserver
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithTimeout sets the per-call timeout. Default: DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(g *Gateway) {
		g.timeout = d
	}
}

// WithLatencyObserver registers the per-call latency hook.
func WithLatencyObserver(obs LatencyObserver) Option {
	return func(g *Gateway) {
		g.observe = obs
	}
}

// New creates a Gateway over the two backend variants.
//
// layout describes the legacy balance field (packed decimal); the modern
// backend's decimal strings need no layout.
func New(legacy, modern Backend, layout codec.FieldLayout, opts ...Option) *Gateway {
	g := &Gateway{
		legacy:  legacy,
		modern:  modern,
		layout:  layout,
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Timeout returns the configured per-call timeout. The validator uses it to
// bound its wait for the slower of two concurrent calls.
func (g *Gateway) Timeout() time.Duration {
	return g.timeout
}

// Invoke calls the chosen backend and normalizes its reply.
//
// Invoke never returns an error for expected failure modes: a timeout or
// backend fault produces a system-error result instead, so downstream
// components never special-case timeouts. The returned result always carries
// the measured latency and the system of record that produced it.
func (g *Gateway) Invoke(ctx context.Context, target event.Target, req event.TransactionRequest) event.TransactionResult {
	backend := g.legacy
	if target == event.TargetModern {
		backend = g.modern
	}

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	reply, err := backend.Call(callCtx, req)
	latency := time.Since(start)

	if g.observe != nil {
		g.observe(target, req.Operation, latency)
	}

	if err != nil {
		status := StatusBackendError
		if callCtx.Err() == context.DeadlineExceeded {
			status = StatusTimeout
		}
		slog.Warn("backend call failed",
			"target", target,
			"transaction_id", req.ID,
			"status", status,
			"latency", latency,
			"error", err,
		)
		return systemErrorResult(req.ID, target, status, latency)
	}

	result, err := g.normalize(target, req.ID, reply, latency)
	if err != nil {
		// Malformed numeric data rejects this single record; the pipeline
		// keeps running (the error is folded into a typed result here).
		slog.Warn("backend reply rejected",
			"target", target,
			"transaction_id", req.ID,
			"error", err,
		)
		return systemErrorResult(req.ID, target, StatusMalformedNumeric, latency)
	}

	slog.Debug("backend call completed",
		"target", target,
		"transaction_id", req.ID,
		"outcome", result.Outcome,
		"status", result.Status,
		"latency", latency,
	)
	return result
}

// normalize converts a backend-native reply into the common result shape.
func (g *Gateway) normalize(target event.Target, txnID string, reply Reply, latency time.Duration) (event.TransactionResult, error) {
	var (
		outcome event.Outcome
		status  string
		balance decimal.Decimal
	)

	switch target {
	case event.TargetLegacy:
		outcome, status = normalizeLegacyStatus(reply.Status)
		if len(reply.PackedBalance) > 0 {
			d, err := codec.Decode(reply.PackedBalance, g.layout)
			if err != nil {
				return event.TransactionResult{}, fmt.Errorf("legacy balance: %w", err)
			}
			balance = d
		}
	case event.TargetModern:
		outcome, status = normalizeModernStatus(reply.Status)
		if reply.Balance != "" {
			d, err := decimal.NewFromString(reply.Balance)
			if err != nil {
				return event.TransactionResult{}, fmt.Errorf("modern balance %q: %w", reply.Balance, err)
			}
			balance = d
		}
	default:
		return event.TransactionResult{}, fmt.Errorf("unknown target %q", target)
	}

	return event.TransactionResult{
		TransactionID:  txnID,
		Outcome:        outcome,
		Balance:        balance,
		SystemOfRecord: target,
		Latency:        latency,
		Status:         status,
		Raw:            reply.Raw,
	}, nil
}

func systemErrorResult(txnID string, target event.Target, status string, latency time.Duration) event.TransactionResult {
	return event.TransactionResult{
		TransactionID:  txnID,
		Outcome:        event.OutcomeSystemError,
		Balance:        decimal.Zero,
		SystemOfRecord: target,
		Latency:        latency,
		Status:         status,
	}
}
