package harness

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// RunWithGolden executes a scenario and compares its trace against the
// golden file testdata/golden/{scenario.Name}.golden.
//
// The snapshot carries sequence id, kind, feature, transaction id, and the
// canonical payload of every captured event. Timestamps are deliberately
// excluded: they live on the record envelope and would make snapshots
// non-reproducible.
//
// Regenerate golden files with:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, snapshotTrace(result))
	return result, nil
}

// snapshotTrace renders the trace as one line per event.
func snapshotTrace(result *Result) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "scenario: %s\n", result.ScenarioName)
	for _, rec := range result.Trace {
		fmt.Fprintf(&buf, "%d %s feature=%s txn=%s %s\n",
			rec.Seq, rec.Kind, rec.Feature, rec.TransactionID, rec.Payload)
	}
	return buf.Bytes()
}
