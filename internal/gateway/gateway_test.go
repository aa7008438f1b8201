package gateway_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian/cutover/internal/codec"
	"github.com/meridian/cutover/internal/event"
	"github.com/meridian/cutover/internal/gateway"
	"github.com/meridian/cutover/internal/testutil"
)

var balanceLayout = codec.FieldLayout{Bytes: 6, Scale: 2}

func newTestGateway(t *testing.T, opts ...gateway.Option) (*gateway.Gateway, *testutil.StubBackend, *testutil.StubBackend) {
	t.Helper()
	legacy := testutil.NewStubBackend(event.TargetLegacy)
	modern := testutil.NewStubBackend(event.TargetModern)
	return gateway.New(legacy, modern, balanceLayout, opts...), legacy, modern
}

func debitRequest(id string) event.TransactionRequest {
	return event.TransactionRequest{
		ID:        id,
		Operation: event.OpDebit,
		Account:   "ACCT-000123",
		Amount:    decimal.RequireFromString("25.00"),
	}
}

func TestInvoke_LegacyNormalizesPackedBalance(t *testing.T) {
	gw, legacy, _ := newTestGateway(t)

	packed, err := codec.Encode(decimal.RequireFromString("975.00"), balanceLayout)
	require.NoError(t, err)
	legacy.SetReply("txn-1", gateway.Reply{Status: "00", PackedBalance: packed})

	res := gw.Invoke(context.Background(), event.TargetLegacy, debitRequest("txn-1"))

	assert.Equal(t, event.OutcomeSuccess, res.Outcome)
	assert.Equal(t, gateway.StatusOK, res.Status)
	assert.Equal(t, event.TargetLegacy, res.SystemOfRecord)
	assert.True(t, res.Balance.Equal(decimal.RequireFromString("975.00")), "balance %s", res.Balance)
}

func TestInvoke_ModernNormalizesDecimalString(t *testing.T) {
	gw, _, modern := newTestGateway(t)
	modern.SetReply("txn-2", gateway.Reply{Status: "ok", Balance: "975.00"})

	res := gw.Invoke(context.Background(), event.TargetModern, debitRequest("txn-2"))

	assert.Equal(t, event.OutcomeSuccess, res.Outcome)
	assert.Equal(t, event.TargetModern, res.SystemOfRecord)
	assert.True(t, res.Balance.Equal(decimal.RequireFromString("975.00")))
}

func TestInvoke_BusinessErrorIsNotSystemError(t *testing.T) {
	gw, legacy, modern := newTestGateway(t)
	legacy.SetReply("txn-3", gateway.Reply{Status: "51"})
	modern.SetReply("txn-3", gateway.Reply{Status: "insufficient_funds"})

	legacyRes := gw.Invoke(context.Background(), event.TargetLegacy, debitRequest("txn-3"))
	modernRes := gw.Invoke(context.Background(), event.TargetModern, debitRequest("txn-3"))

	assert.Equal(t, event.OutcomeBusinessError, legacyRes.Outcome)
	assert.Equal(t, gateway.StatusInsufficientFunds, legacyRes.Status)
	assert.Equal(t, event.OutcomeBusinessError, modernRes.Outcome)
	assert.Equal(t, gateway.StatusInsufficientFunds, modernRes.Status)
}

func TestInvoke_TimeoutProducesSystemErrorResult(t *testing.T) {
	gw, legacy, _ := newTestGateway(t, gateway.WithTimeout(20*time.Millisecond))
	legacy.SetDelay(200 * time.Millisecond)

	res := gw.Invoke(context.Background(), event.TargetLegacy, debitRequest("txn-4"))

	assert.Equal(t, event.OutcomeSystemError, res.Outcome)
	assert.Equal(t, gateway.StatusTimeout, res.Status)
	assert.Equal(t, event.TargetLegacy, res.SystemOfRecord)
}

func TestInvoke_BackendErrorProducesSystemErrorResult(t *testing.T) {
	gw, _, modern := newTestGateway(t)
	modern.SetError("txn-5", errors.New("connection refused"))

	res := gw.Invoke(context.Background(), event.TargetModern, debitRequest("txn-5"))

	assert.Equal(t, event.OutcomeSystemError, res.Outcome)
	assert.Equal(t, gateway.StatusBackendError, res.Status)
}

func TestInvoke_MalformedPackedBalanceRejectsRecord(t *testing.T) {
	gw, legacy, _ := newTestGateway(t)
	// Wrong field length: 2 bytes where the layout expects 6.
	legacy.SetReply("txn-6", gateway.Reply{Status: "00", PackedBalance: []byte{0x12, 0x3C}})

	res := gw.Invoke(context.Background(), event.TargetLegacy, debitRequest("txn-6"))

	assert.Equal(t, event.OutcomeSystemError, res.Outcome)
	assert.Equal(t, gateway.StatusMalformedNumeric, res.Status)
}

func TestInvoke_UnknownLegacyCodeFailsSafe(t *testing.T) {
	gw, legacy, _ := newTestGateway(t)
	legacy.SetReply("txn-7", gateway.Reply{Status: "77"})

	res := gw.Invoke(context.Background(), event.TargetLegacy, debitRequest("txn-7"))

	assert.Equal(t, event.OutcomeSystemError, res.Outcome)
}

func TestInvoke_EmitsOneLatencyObservationPerCall(t *testing.T) {
	rec := &testutil.LatencyRecorder{}
	legacy := testutil.NewStubBackend(event.TargetLegacy)
	modern := testutil.NewStubBackend(event.TargetModern)
	gw := gateway.New(legacy, modern, balanceLayout, gateway.WithLatencyObserver(rec.Observe))

	gw.Invoke(context.Background(), event.TargetLegacy, debitRequest("txn-8"))
	gw.Invoke(context.Background(), event.TargetModern, debitRequest("txn-9"))

	samples := rec.Samples()
	require.Len(t, samples, 2)
	assert.Equal(t, event.TargetLegacy, samples[0].Target)
	assert.Equal(t, event.TargetModern, samples[1].Target)
	assert.Equal(t, event.OpDebit, samples[0].Operation)
}

func TestInvoke_LatencyObservedEvenOnTimeout(t *testing.T) {
	rec := &testutil.LatencyRecorder{}
	legacy := testutil.NewStubBackend(event.TargetLegacy)
	modern := testutil.NewStubBackend(event.TargetModern)
	legacy.SetDelay(200 * time.Millisecond)
	gw := gateway.New(legacy, modern, balanceLayout,
		gateway.WithTimeout(20*time.Millisecond),
		gateway.WithLatencyObserver(rec.Observe),
	)

	gw.Invoke(context.Background(), event.TargetLegacy, debitRequest("txn-10"))

	require.Len(t, rec.Samples(), 1)
	assert.GreaterOrEqual(t, rec.Samples()[0].Latency, 20*time.Millisecond)
}

func TestInvoke_ResultCarriesRawReplyFields(t *testing.T) {
	gw, _, modern := newTestGateway(t)
	modern.SetReply("txn-11", gateway.Reply{
		Status:  "ok",
		Balance: "10.00",
		Raw:     map[string]string{"trace_id": "abc-123"},
	})

	res := gw.Invoke(context.Background(), event.TargetModern, debitRequest("txn-11"))

	assert.Equal(t, "abc-123", res.Raw["trace_id"])
}
