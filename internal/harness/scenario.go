package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario defines one conformance scenario.
//
// A scenario declares routing configuration, scripted backend behavior, a
// flow of transactions and operator actions, and assertions over the
// resulting trace.
type Scenario struct {
	// Name uniquely identifies this scenario; it also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Config is the per-feature routing configuration document, in the same
	// shape the config loader accepts.
	Config map[string]any `yaml:"config,omitempty"`

	// Legacy scripts the legacy backend's replies, keyed by transaction id.
	Legacy map[string]ScriptedReply `yaml:"legacy,omitempty"`

	// Modern scripts the modern backend's replies, keyed by transaction id.
	Modern map[string]ScriptedReply `yaml:"modern,omitempty"`

	// Flow is the ordered list of steps to execute.
	Flow []FlowStep `yaml:"flow"`

	// Assertions validate the final trace and circuit state.
	Assertions []Assertion `yaml:"assertions"`
}

// ScriptedReply describes one backend's scripted response for a transaction.
type ScriptedReply struct {
	// Status is the backend-native status token ("00" for legacy OK, "ok"
	// for modern OK, and so on).
	Status string `yaml:"status"`

	// Balance is the resulting balance as a decimal string. For the legacy
	// backend it is packed into the scenario's field layout before use.
	Balance string `yaml:"balance,omitempty"`

	// Raw carries extra backend fields.
	Raw map[string]string `yaml:"raw,omitempty"`

	// Error, when set, makes the call fail with this message instead of
	// replying.
	Error string `yaml:"error,omitempty"`
}

// FlowStep is one step of a scenario. Exactly one of the fields is set.
type FlowStep struct {
	// Transaction processes one transaction through the pipeline.
	Transaction *TransactionStep `yaml:"transaction,omitempty"`

	// Rollback performs the operator rollback action.
	Rollback *OperatorStep `yaml:"rollback,omitempty"`

	// Reset performs the operator reset action.
	Reset *OperatorStep `yaml:"reset,omitempty"`
}

// TransactionStep describes a transaction to process and, optionally, the
// expected result.
type TransactionStep struct {
	ID        string `yaml:"id"`
	Operation string `yaml:"operation"`
	Account   string `yaml:"account"`
	ToAccount string `yaml:"to_account,omitempty"`
	Amount    string `yaml:"amount,omitempty"`

	// Expect validates the processed result. If nil, the step only has to
	// complete without a fatal error.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// ExpectClause specifies expected transaction results. Empty fields are not
// checked.
type ExpectClause struct {
	// Target is the expected routing target ("legacy" or "modern").
	Target string `yaml:"target,omitempty"`

	// Outcome is the expected result outcome ("success", "business-error",
	// "system-error").
	Outcome string `yaml:"outcome,omitempty"`

	// Status is the expected normalized status token.
	Status string `yaml:"status,omitempty"`
}

// OperatorStep names the feature an operator action applies to.
type OperatorStep struct {
	Feature string `yaml:"feature"`

	// Reason is recorded with rollbacks; ignored by reset.
	Reason string `yaml:"reason,omitempty"`
}

// Assertion validates the trace or final state.
type Assertion struct {
	// Type selects the assertion:
	//   - "route_target": the named transaction was routed to Target
	//   - "event_count": Kind appears exactly Count times in the trace
	//   - "event_order": trace kinds are exactly Kinds, in order
	//   - "circuit_mode": the feature's circuit ends in Mode
	//   - "discrepancy_count": total discrepancies across the trace is Count
	Type string `yaml:"type"`

	// Transaction is the transaction id (route_target).
	Transaction string `yaml:"transaction,omitempty"`

	// Target is the expected routing target (route_target).
	Target string `yaml:"target,omitempty"`

	// Kind is the event kind (event_count).
	Kind string `yaml:"kind,omitempty"`

	// Kinds is the expected full trace kind sequence (event_order).
	Kinds []string `yaml:"kinds,omitempty"`

	// Feature names the feature (circuit_mode).
	Feature string `yaml:"feature,omitempty"`

	// Mode is the expected circuit mode (circuit_mode).
	Mode string `yaml:"mode,omitempty"`

	// Count is the expected occurrence count (event_count,
	// discrepancy_count).
	Count int `yaml:"count"`
}

// Assertion type constants.
const (
	AssertRouteTarget      = "route_target"
	AssertEventCount       = "event_count"
	AssertEventOrder       = "event_order"
	AssertCircuitMode      = "circuit_mode"
	AssertDiscrepancyCount = "discrepancy_count"
)

// LoadScenario reads and parses a scenario YAML file. Unknown fields are
// rejected so typos fail loudly instead of silently skipping assertions.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("parse scenario YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario %s: %w", path, err)
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, step := range s.Flow {
		set := 0
		if step.Transaction != nil {
			set++
			if step.Transaction.ID == "" {
				return fmt.Errorf("flow[%d].transaction: id is required", i)
			}
			if step.Transaction.Operation == "" {
				return fmt.Errorf("flow[%d].transaction: operation is required", i)
			}
			if step.Transaction.Account == "" {
				return fmt.Errorf("flow[%d].transaction: account is required", i)
			}
		}
		if step.Rollback != nil {
			set++
			if step.Rollback.Feature == "" {
				return fmt.Errorf("flow[%d].rollback: feature is required", i)
			}
		}
		if step.Reset != nil {
			set++
			if step.Reset.Feature == "" {
				return fmt.Errorf("flow[%d].reset: feature is required", i)
			}
		}
		if set != 1 {
			return fmt.Errorf("flow[%d]: exactly one of transaction, rollback, reset is required", i)
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a); err != nil {
			return err
		}
	}
	return nil
}

func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case AssertRouteTarget:
		if a.Transaction == "" {
			return fmt.Errorf("assertions[%d]: transaction is required for route_target", index)
		}
		if a.Target == "" {
			return fmt.Errorf("assertions[%d]: target is required for route_target", index)
		}
	case AssertEventCount:
		if a.Kind == "" {
			return fmt.Errorf("assertions[%d]: kind is required for event_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative", index)
		}
	case AssertEventOrder:
		if len(a.Kinds) == 0 {
			return fmt.Errorf("assertions[%d]: kinds list is required for event_order", index)
		}
	case AssertCircuitMode:
		if a.Feature == "" {
			return fmt.Errorf("assertions[%d]: feature is required for circuit_mode", index)
		}
		if a.Mode != "closed" && a.Mode != "open" {
			return fmt.Errorf("assertions[%d]: mode must be closed or open", index)
		}
	case AssertDiscrepancyCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative", index)
		}
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
