package event

import "fmt"

// Payload builders serialize the entities captured by event records into
// canonical JSON. Timestamps are carried on the Record envelope, not inside
// payloads, so identical decisions serialize identically across runs.

// EncodeRoutingDecision serializes a routing decision payload.
func EncodeRoutingDecision(d RoutingDecision) ([]byte, error) {
	b, err := MarshalCanonical(map[string]any{
		"transaction_id": d.TransactionID,
		"feature":        d.Feature,
		"target":         string(d.Target),
		"reason":         string(d.Reason),
	})
	if err != nil {
		return nil, fmt.Errorf("encode routing decision: %w", err)
	}
	return b, nil
}

// EncodeValidationResult serializes a dual-run validation outcome payload.
// The discrepancy list is already ordered by field name by the validator,
// which keeps the payload deterministic.
func EncodeValidationResult(txnID, feature string, shadowFailed bool, discrepancies []DiscrepancyRecord) ([]byte, error) {
	list := make([]any, len(discrepancies))
	for i, d := range discrepancies {
		list[i] = map[string]any{
			"field":        d.Field,
			"legacy_value": d.LegacyValue,
			"modern_value": d.ModernValue,
			"abs_diff":     d.AbsDiff,
			"severity":     string(d.Severity),
		}
	}

	b, err := MarshalCanonical(map[string]any{
		"transaction_id":    txnID,
		"feature":           feature,
		"shadow_failed":     shadowFailed,
		"discrepancy_count": len(discrepancies),
		"discrepancies":     list,
	})
	if err != nil {
		return nil, fmt.Errorf("encode validation result: %w", err)
	}
	return b, nil
}

// EncodeCircuitTransition serializes a circuit state change payload.
func EncodeCircuitTransition(snap CircuitSnapshot, reason string) ([]byte, error) {
	b, err := MarshalCanonical(map[string]any{
		"feature":       snap.Feature,
		"mode":          string(snap.Mode),
		"error_count":   snap.ErrorCount,
		"request_count": snap.RequestCount,
		"window_size":   snap.WindowSize,
		"reason":        reason,
	})
	if err != nil {
		return nil, fmt.Errorf("encode circuit transition: %w", err)
	}
	return b, nil
}

// EncodeRollback serializes a manual rollback payload.
func EncodeRollback(feature, reason string) ([]byte, error) {
	b, err := MarshalCanonical(map[string]any{
		"feature": feature,
		"reason":  reason,
	})
	if err != nil {
		return nil, fmt.Errorf("encode rollback: %w", err)
	}
	return b, nil
}
