package gateway

import (
	"context"

	"github.com/meridian/cutover/internal/event"
)

// Backend is the call interface to one of the two systems of record.
//
// Exactly two variants exist: the legacy transaction processor and the
// modern service layer. Dispatch happens through the Gateway by target enum,
// never by runtime type inspection.
//
// Call returns the backend's native reply. Infrastructure failures are
// returned as errors; business rejections (e.g. insufficient funds) are
// valid replies with a rejecting status. The Gateway converts both into
// normalized TransactionResults.
type Backend interface {
	// Target identifies which system this backend fronts.
	Target() event.Target

	// Call executes the request against the backend. Implementations must
	// honor ctx cancellation; the Gateway bounds every call with a timeout.
	Call(ctx context.Context, req event.TransactionRequest) (Reply, error)
}

// Reply is a backend's native response before normalization.
//
// The two systems report balances differently: the legacy processor returns
// packed-decimal bytes, the modern service returns a decimal string. Exactly
// one of PackedBalance or Balance is set, matching the backend variant.
type Reply struct {
	// Status is the backend-native status token (legacy condition code or
	// modern status string).
	Status string

	// PackedBalance is the resulting balance as a packed-decimal field.
	// Set only by the legacy backend.
	PackedBalance []byte

	// Balance is the resulting balance as a decimal string with scale 2.
	// Set only by the modern backend.
	Balance string

	// Raw carries any additional backend fields, retained for audit.
	Raw map[string]string
}

// Legacy condition codes. The processor reports outcomes as two-digit
// condition codes in the reply header.
const (
	legacyCodeOK           = "00"
	legacyCodeInsufficient = "51"
	legacyCodeNoAccount    = "54"
	legacyCodeAbend        = "98"
	legacyCodeUnavailable  = "99"
)

// Modern status strings.
const (
	modernStatusOK           = "ok"
	modernStatusInsufficient = "insufficient_funds"
	modernStatusNoAccount    = "account_not_found"
	modernStatusError        = "internal_error"
	modernStatusUnavailable  = "unavailable"
)

// Normalized status tokens shared by both systems after translation.
const (
	StatusOK                = "OK"
	StatusInsufficientFunds = "INSUFFICIENT-FUNDS"
	StatusAccountNotFound   = "ACCOUNT-NOT-FOUND"
	StatusBackendError      = "BACKEND-ERROR"
	StatusTimeout           = "TIMEOUT"
	StatusMalformedNumeric  = "MALFORMED-NUMERIC"
)

// normalizeLegacyStatus translates a legacy condition code into an outcome
// and a normalized status token. Unknown codes are treated as system errors:
// an unmapped condition code means the translation table is incomplete, and
// failing safe keeps the circuit breaker informed.
func normalizeLegacyStatus(code string) (event.Outcome, string) {
	switch code {
	case legacyCodeOK:
		return event.OutcomeSuccess, StatusOK
	case legacyCodeInsufficient:
		return event.OutcomeBusinessError, StatusInsufficientFunds
	case legacyCodeNoAccount:
		return event.OutcomeBusinessError, StatusAccountNotFound
	case legacyCodeAbend, legacyCodeUnavailable:
		return event.OutcomeSystemError, StatusBackendError
	default:
		return event.OutcomeSystemError, StatusBackendError
	}
}

// normalizeModernStatus translates a modern status string the same way.
func normalizeModernStatus(status string) (event.Outcome, string) {
	switch status {
	case modernStatusOK:
		return event.OutcomeSuccess, StatusOK
	case modernStatusInsufficient:
		return event.OutcomeBusinessError, StatusInsufficientFunds
	case modernStatusNoAccount:
		return event.OutcomeBusinessError, StatusAccountNotFound
	case modernStatusError, modernStatusUnavailable:
		return event.OutcomeSystemError, StatusBackendError
	default:
		return event.OutcomeSystemError, StatusBackendError
	}
}
