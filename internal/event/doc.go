// Package event defines the core records that flow through the migration
// layer: transaction requests and results, routing decisions, discrepancy
// records, circuit snapshots, and the append-only event records that capture
// all of them for audit and replay.
//
// All monetary values are exact decimals (shopspring/decimal) with a fixed
// scale of 2. Binary floats never appear in these types or in their
// serialized forms.
package event
