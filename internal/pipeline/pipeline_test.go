package pipeline_test

import (
	"context"
	"errors"
	"path/filepath"
	"strconv"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian/cutover/internal/codec"
	"github.com/meridian/cutover/internal/config"
	"github.com/meridian/cutover/internal/event"
	"github.com/meridian/cutover/internal/eventlog"
	"github.com/meridian/cutover/internal/gateway"
	"github.com/meridian/cutover/internal/pipeline"
	"github.com/meridian/cutover/internal/testutil"
)

var balanceLayout = codec.FieldLayout{Bytes: 6, Scale: 2}

type fixture struct {
	pipeline *pipeline.Pipeline
	store    *eventlog.Store
	registry *config.Registry
	legacy   *testutil.StubBackend
	modern   *testutil.StubBackend
}

func newFixture(t *testing.T, yaml string) *fixture {
	t.Helper()

	store, err := eventlog.Open(filepath.Join(t.TempDir(), "events.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	var doc *config.Document
	if yaml != "" {
		doc, err = config.Parse([]byte(yaml))
		require.NoError(t, err)
	}
	registry := config.NewRegistry(doc)

	legacy := testutil.NewStubBackend(event.TargetLegacy)
	modern := testutil.NewStubBackend(event.TargetModern)
	gw := gateway.New(legacy, modern, balanceLayout)

	return &fixture{
		pipeline: pipeline.New(registry, store, gw),
		store:    store,
		registry: registry,
		legacy:   legacy,
		modern:   modern,
	}
}

func transferRequest(id string) event.TransactionRequest {
	return event.TransactionRequest{
		ID:        id,
		Operation: event.OpTransfer,
		Account:   "ACCT-" + id,
		ToAccount: "ACCT-DEST",
	}
}

func kinds(t *testing.T, store *eventlog.Store) []event.Kind {
	t.Helper()

	recs, err := store.Replay(context.Background(), 0)
	require.NoError(t, err)
	out := make([]event.Kind, len(recs))
	for i, r := range recs {
		out[i] = r.Kind
	}
	return out
}

func TestProcess_RoutesAndCapturesDecision(t *testing.T) {
	f := newFixture(t, `
features:
  transfers:
    rollout_percent: 0
`)

	result, err := f.pipeline.Process(context.Background(), transferRequest("txn-1"))
	require.NoError(t, err)

	assert.Equal(t, event.TargetLegacy, result.SystemOfRecord)
	assert.Equal(t, event.OutcomeSuccess, result.Outcome)
	assert.Equal(t, 1, f.legacy.CallCount())
	assert.Equal(t, 0, f.modern.CallCount())

	assert.Equal(t, []event.Kind{event.KindRoutingDecision}, kinds(t, f.store))
}

func TestProcess_DecisionPrecedesResult(t *testing.T) {
	f := newFixture(t, `
features:
  transfers:
    rollout_percent: 100
    dual_run_enabled: true
`)

	_, err := f.pipeline.Process(context.Background(), transferRequest("txn-1"))
	require.NoError(t, err)

	got := kinds(t, f.store)
	require.Len(t, got, 2)
	assert.Equal(t, event.KindRoutingDecision, got[0])
	assert.Equal(t, event.KindValidationResult, got[1])
}

func TestProcess_DualRunInvokesBothAndReturnsLegacy(t *testing.T) {
	f := newFixture(t, `
features:
  transfers:
    rollout_percent: 100
    dual_run_enabled: true
`)

	f.modern.SetReply("txn-1", gateway.Reply{Status: "insufficient_funds", Balance: "0.00"})

	result, err := f.pipeline.Process(context.Background(), transferRequest("txn-1"))
	require.NoError(t, err)

	// The legacy result stays authoritative during dual-run even though the
	// shadow disagreed and routing chose modern.
	assert.Equal(t, event.TargetLegacy, result.SystemOfRecord)
	assert.Equal(t, event.OutcomeSuccess, result.Outcome)
	assert.Equal(t, 1, f.legacy.CallCount())
	assert.Equal(t, 1, f.modern.CallCount())
}

func TestProcess_CircuitTripRecordsTransition(t *testing.T) {
	f := newFixture(t, `
features:
  transfers:
    rollout_percent: 0
    circuit_threshold: 0.05
    circuit_window_size: 100
`)

	// Six system errors exceed 0.05 * 100.
	for i := 0; i < 6; i++ {
		id := "txn-" + strconv.Itoa(i)
		f.legacy.SetError(id, errors.New("region abend"))
		_, err := f.pipeline.Process(context.Background(), transferRequest(id))
		require.NoError(t, err)
	}

	assert.True(t, f.pipeline.Breaker().IsOpen("transfers"))

	recs, err := f.store.ReplayKind(context.Background(), event.KindCircuitTransition, 0)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Contains(t, string(recs[0].Payload), `"mode":"open"`)
	assert.Contains(t, string(recs[0].Payload), `"reason":"error-rate-threshold"`)

	// Subsequent routing for the feature is forced to legacy.
	d := f.pipeline.Router().Route(transferRequest("txn-next"))
	assert.Equal(t, event.TargetLegacy, d.Target)
	assert.Equal(t, event.ReasonCircuitOpen, d.Reason)
}

func TestProcess_BusinessErrorsDoNotTrip(t *testing.T) {
	f := newFixture(t, `
features:
  transfers:
    rollout_percent: 0
    circuit_threshold: 0.05
    circuit_window_size: 100
`)

	f.legacy.SetDefaultReply(gateway.Reply{Status: "51"})

	for i := 0; i < 50; i++ {
		_, err := f.pipeline.Process(context.Background(), transferRequest("txn-"+strconv.Itoa(i)))
		require.NoError(t, err)
	}

	assert.False(t, f.pipeline.Breaker().IsOpen("transfers"))
}

func TestRollback_PinsFeatureToLegacy(t *testing.T) {
	f := newFixture(t, `
features:
  transfers:
    rollout_percent: 100
`)

	require.NoError(t, f.pipeline.Rollback(context.Background(), "transfers", "incident-123"))

	// After rollback, routing returns legacy with reason override
	// regardless of rollout percent.
	d := f.pipeline.Router().Route(transferRequest("txn-1"))
	assert.Equal(t, event.TargetLegacy, d.Target)
	assert.Equal(t, event.ReasonOverride, d.Reason)

	assert.True(t, f.pipeline.Breaker().IsOpen("transfers"))

	recs, err := f.store.ReplayKind(context.Background(), event.KindRollback, 0)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Contains(t, string(recs[0].Payload), `"reason":"incident-123"`)
}

func TestReset_ResumesNormalRouting(t *testing.T) {
	f := newFixture(t, `
features:
  transfers:
    rollout_percent: 100
`)

	require.NoError(t, f.pipeline.Rollback(context.Background(), "transfers", "incident-123"))
	f.pipeline.Reset("transfers")

	d := f.pipeline.Router().Route(transferRequest("txn-1"))
	assert.Equal(t, event.TargetModern, d.Target)
	assert.Equal(t, event.ReasonRollout, d.Reason)
	assert.False(t, f.pipeline.Breaker().IsOpen("transfers"))
}

func TestProcess_StoreFailureHaltsFeature(t *testing.T) {
	f := newFixture(t, `
features:
  transfers:
    rollout_percent: 100
`)

	f.store.Close()

	_, err := f.pipeline.Process(context.Background(), transferRequest("txn-1"))
	require.Error(t, err)

	// Losing event capture is fatal for the feature: the circuit opens so
	// no further traffic reaches the modern system without an audit trail.
	assert.True(t, f.pipeline.Breaker().IsOpen("transfers"))
	assert.Equal(t, 0, f.legacy.CallCount())
	assert.Equal(t, 0, f.modern.CallCount())
}

func TestProcess_ValidationResultCarriesDiscrepancies(t *testing.T) {
	f := newFixture(t, `
features:
  transfers:
    rollout_percent: 0
    dual_run_enabled: true
`)

	f.legacy.SetReply("txn-1", gateway.Reply{Status: "00", PackedBalance: mustPack(t, "100.00")})
	f.modern.SetReply("txn-1", gateway.Reply{Status: "ok", Balance: "100.02"})

	_, err := f.pipeline.Process(context.Background(), transferRequest("txn-1"))
	require.NoError(t, err)

	recs, err := f.store.ReplayKind(context.Background(), event.KindValidationResult, 0)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Contains(t, string(recs[0].Payload), `"discrepancy_count":1`)
	assert.Contains(t, string(recs[0].Payload), `"severity":"critical"`)
}

func TestProcess_ConcurrentWorkers(t *testing.T) {
	f := newFixture(t, `
features:
  transfers:
    rollout_percent: 50
    dual_run_enabled: true
`)

	const workers = 8
	const perWorker = 20

	var wg sync.WaitGroup
	errs := make(chan error, workers*perWorker)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				id := "txn-" + strconv.Itoa(w) + "-" + strconv.Itoa(i)
				if _, err := f.pipeline.Process(context.Background(), transferRequest(id)); err != nil {
					errs <- err
				}
			}
		}(w)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("Process() failed: %v", err)
	}

	// Every transaction produced exactly one decision and one validation
	// result.
	n, err := f.store.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(workers*perWorker*2), n)
}

func mustPack(t *testing.T, s string) []byte {
	t.Helper()

	d, err := decimal.NewFromString(s)
	require.NoError(t, err)
	raw, err := codec.Encode(d, balanceLayout)
	require.NoError(t, err)
	return raw
}

func TestProcess_AssignsTransactionIDWhenMissing(t *testing.T) {
	f := newFixture(t, `
features:
  transfers:
    rollout_percent: 0
`)

	req := transferRequest("")
	req.Account = "ACCT-1"

	result, err := f.pipeline.Process(context.Background(), req)
	require.NoError(t, err)
	assert.NotEmpty(t, result.TransactionID)

	recs, err := f.store.Replay(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, result.TransactionID, recs[0].TransactionID)
}

func TestProcess_CallerCancelDoesNotHaltFeature(t *testing.T) {
	f := newFixture(t, `
features:
  transfers:
    rollout_percent: 0
    dual_run_enabled: true
`)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := f.pipeline.Process(ctx, transferRequest("txn-1"))
	require.NoError(t, err)
	assert.Equal(t, event.OutcomeSuccess, result.Outcome)

	// A routine disconnect is not a store failure: the circuit stays
	// closed and the decision and validation events are both captured.
	assert.False(t, f.pipeline.Breaker().IsOpen("transfers"))
	n, err := f.store.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}
