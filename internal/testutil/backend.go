// Package testutil provides deterministic helpers for tests: scripted
// backends and latency recorders. Production code never imports it.
package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/meridian/cutover/internal/event"
	"github.com/meridian/cutover/internal/gateway"
)

// StubBackend is a scripted Backend implementation.
//
// Replies are keyed by transaction id; unscripted transactions get the
// configured default reply. An optional per-call delay simulates slow
// backends for timeout tests.
//
// Thread-safety: all methods are safe for concurrent use, so dual-run tests
// can script both sides and let the validator call them concurrently.
type StubBackend struct {
	target event.Target

	mu          sync.Mutex
	replies     map[string]gateway.Reply
	errs        map[string]error
	defaultResp gateway.Reply
	delay       time.Duration
	calls       []string
}

// NewStubBackend creates a stub for the given target. The default reply is a
// bare OK with no balance; script richer replies per transaction as needed.
func NewStubBackend(target event.Target) *StubBackend {
	def := gateway.Reply{Status: "ok"}
	if target == event.TargetLegacy {
		def = gateway.Reply{Status: "00"}
	}
	return &StubBackend{
		target:      target,
		replies:     make(map[string]gateway.Reply),
		errs:        make(map[string]error),
		defaultResp: def,
	}
}

// Target implements gateway.Backend.
func (b *StubBackend) Target() event.Target {
	return b.target
}

// Call implements gateway.Backend. Honors ctx during the scripted delay.
func (b *StubBackend) Call(ctx context.Context, req event.TransactionRequest) (gateway.Reply, error) {
	b.mu.Lock()
	delay := b.delay
	reply, scripted := b.replies[req.ID]
	err := b.errs[req.ID]
	b.calls = append(b.calls, req.ID)
	b.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return gateway.Reply{}, ctx.Err()
		}
	}

	if err != nil {
		return gateway.Reply{}, err
	}
	if !scripted {
		reply = b.defaultReply()
	}
	return reply, nil
}

// SetReply scripts the reply for one transaction id.
func (b *StubBackend) SetReply(txnID string, reply gateway.Reply) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.replies[txnID] = reply
}

// SetError scripts an infrastructure failure for one transaction id.
func (b *StubBackend) SetError(txnID string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.errs[txnID] = err
}

// SetDefaultReply replaces the reply used for unscripted transactions.
func (b *StubBackend) SetDefaultReply(reply gateway.Reply) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.defaultResp = reply
}

// SetDelay makes every call sleep for d before replying.
func (b *StubBackend) SetDelay(d time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.delay = d
}

// Calls returns the transaction ids seen, in call order.
func (b *StubBackend) Calls() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.calls))
	copy(out, b.calls)
	return out
}

// CallCount returns the number of calls received.
func (b *StubBackend) CallCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.calls)
}

func (b *StubBackend) defaultReply() gateway.Reply {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.defaultResp
}

// LatencyRecorder collects gateway latency observations for assertions.
//
// Thread-safety: safe for concurrent use.
type LatencyRecorder struct {
	mu      sync.Mutex
	samples []LatencySample
}

// LatencySample is one recorded observation.
type LatencySample struct {
	Target    event.Target
	Operation event.Operation
	Latency   time.Duration
}

// Observe is a gateway.LatencyObserver.
func (r *LatencyRecorder) Observe(target event.Target, op event.Operation, d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.samples = append(r.samples, LatencySample{Target: target, Operation: op, Latency: d})
}

// Samples returns a copy of all recorded observations.
func (r *LatencyRecorder) Samples() []LatencySample {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]LatencySample, len(r.samples))
	copy(out, r.samples)
	return out
}
