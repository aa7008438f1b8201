// Package eventlog is the append-only capture store for every state
// transition, routing decision, and discrepancy the migration layer
// produces.
//
// Sequence ids are assigned by an atomic in-process clock and are the sole
// ordering mechanism for replay. Appends follow a reserve-then-publish
// protocol: the sequence id is reserved from the clock first, then the
// payload row is inserted. A sequence id never becomes visible to readers
// before its payload is durably written, so replay cannot observe a gap
// that later fills in behind it.
//
// Storage is SQLite in WAL mode (concurrent reads during writes) with a
// single-writer connection pool.
package eventlog
