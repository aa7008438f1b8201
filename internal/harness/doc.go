// Package harness provides a scenario-based conformance framework for the
// migration layer.
//
// Scenarios are YAML documents that declare per-feature routing config,
// scripted backend replies, a flow of transactions and operator actions,
// and assertions over the resulting event trace and circuit state. Each
// scenario runs against a fresh in-memory event store with stubbed
// backends, so runs are fully deterministic and suitable for golden-file
// comparison of the captured trace.
package harness
