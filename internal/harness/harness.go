package harness

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/meridian/cutover/internal/codec"
	"github.com/meridian/cutover/internal/config"
	"github.com/meridian/cutover/internal/event"
	"github.com/meridian/cutover/internal/eventlog"
	"github.com/meridian/cutover/internal/gateway"
	"github.com/meridian/cutover/internal/pipeline"
	"github.com/meridian/cutover/internal/testutil"
)

// balanceLayout is the packed-decimal layout scenarios use for legacy
// balances: 11 digits, two of them after the decimal point.
var balanceLayout = codec.FieldLayout{Bytes: 6, Scale: 2}

// Run executes a scenario and returns its result.
//
// Each scenario runs against a fresh in-memory event store and scripted
// backends, so runs are isolated and deterministic.
func Run(scenario *Scenario) (*Result, error) {
	store, err := eventlog.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("open in-memory event store: %w", err)
	}
	defer store.Close()

	registry, err := buildRegistry(scenario.Config)
	if err != nil {
		return nil, err
	}

	legacy := testutil.NewStubBackend(event.TargetLegacy)
	modern := testutil.NewStubBackend(event.TargetModern)
	if err := scriptBackend(legacy, scenario.Legacy); err != nil {
		return nil, fmt.Errorf("script legacy backend: %w", err)
	}
	if err := scriptBackend(modern, scenario.Modern); err != nil {
		return nil, fmt.Errorf("script modern backend: %w", err)
	}

	gw := gateway.New(legacy, modern, balanceLayout)
	p := pipeline.New(registry, store, gw)

	ctx := context.Background()
	result := NewResult(scenario.Name)

	for i, step := range scenario.Flow {
		if err := executeStep(ctx, p, i, step, result); err != nil {
			return nil, err
		}
	}

	trace, err := store.Replay(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("replay trace: %w", err)
	}
	result.Trace = trace

	evaluateAssertions(scenario.Assertions, p, result)
	return result, nil
}

// buildRegistry turns the scenario's inline config document into a live
// registry, running it through the same schema validation as a config file.
func buildRegistry(doc map[string]any) (*config.Registry, error) {
	if doc == nil {
		return config.NewRegistry(nil), nil
	}
	data, err := yaml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal scenario config: %w", err)
	}
	parsed, err := config.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("scenario config: %w", err)
	}
	return config.NewRegistry(parsed), nil
}

// scriptBackend installs the scenario's scripted replies on a stub.
func scriptBackend(stub *testutil.StubBackend, replies map[string]ScriptedReply) error {
	for txnID, scripted := range replies {
		if scripted.Error != "" {
			stub.SetError(txnID, errors.New(scripted.Error))
			continue
		}

		reply := gateway.Reply{Status: scripted.Status, Raw: scripted.Raw}
		if scripted.Balance != "" {
			if stub.Target() == event.TargetLegacy {
				packed, err := packBalance(scripted.Balance)
				if err != nil {
					return fmt.Errorf("transaction %s: %w", txnID, err)
				}
				reply.PackedBalance = packed
			} else {
				reply.Balance = scripted.Balance
			}
		}
		stub.SetReply(txnID, reply)
	}
	return nil
}

func packBalance(s string) ([]byte, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("balance %q: %w", s, err)
	}
	return codec.Encode(d, balanceLayout)
}

func executeStep(ctx context.Context, p *pipeline.Pipeline, index int, step FlowStep, result *Result) error {
	switch {
	case step.Transaction != nil:
		return executeTransaction(ctx, p, index, step.Transaction, result)
	case step.Rollback != nil:
		if err := p.Rollback(ctx, step.Rollback.Feature, step.Rollback.Reason); err != nil {
			return fmt.Errorf("flow[%d]: rollback: %w", index, err)
		}
		return nil
	case step.Reset != nil:
		p.Reset(step.Reset.Feature)
		return nil
	default:
		return fmt.Errorf("flow[%d]: empty step", index)
	}
}

func executeTransaction(ctx context.Context, p *pipeline.Pipeline, index int, step *TransactionStep, result *Result) error {
	req, err := buildRequest(step)
	if err != nil {
		return fmt.Errorf("flow[%d]: %w", index, err)
	}

	res, err := p.Process(ctx, req)
	if err != nil {
		return fmt.Errorf("flow[%d]: process %s: %w", index, req.ID, err)
	}
	result.Results[req.ID] = res

	if step.Expect == nil {
		return nil
	}
	if step.Expect.Target != "" && string(res.SystemOfRecord) != step.Expect.Target {
		result.AddError("flow[%d] %s: system of record = %s, want %s",
			index, req.ID, res.SystemOfRecord, step.Expect.Target)
	}
	if step.Expect.Outcome != "" && string(res.Outcome) != step.Expect.Outcome {
		result.AddError("flow[%d] %s: outcome = %s, want %s",
			index, req.ID, res.Outcome, step.Expect.Outcome)
	}
	if step.Expect.Status != "" && res.Status != step.Expect.Status {
		result.AddError("flow[%d] %s: status = %s, want %s",
			index, req.ID, res.Status, step.Expect.Status)
	}
	return nil
}

func buildRequest(step *TransactionStep) (event.TransactionRequest, error) {
	op := event.Operation(step.Operation)
	if !op.Valid() {
		return event.TransactionRequest{}, fmt.Errorf("unknown operation %q", step.Operation)
	}

	amount := decimal.Zero
	if step.Amount != "" {
		var err error
		amount, err = decimal.NewFromString(step.Amount)
		if err != nil {
			return event.TransactionRequest{}, fmt.Errorf("amount %q: %w", step.Amount, err)
		}
	}

	return event.TransactionRequest{
		ID:        step.ID,
		Operation: op,
		Account:   step.Account,
		ToAccount: step.ToAccount,
		Amount:    amount,
	}, nil
}
