package harness

import (
	"context"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/procflow/internal/ir"
)

// TraceSnapshot is the part of a run compared against golden files.
type TraceSnapshot struct {
	ScenarioName string       `json:"scenario_name"`
	Trace        []TraceEvent `json:"trace"`
}

// Canonical converts the snapshot for canonical JSON encoding.
func (s TraceSnapshot) Canonical() ir.Object {
	trace := make(ir.Array, len(s.Trace))
	for i, e := range s.Trace {
		trace[i] = e.Canonical()
	}
	return ir.Object{
		"scenario_name": ir.String(s.ScenarioName),
		"trace":         trace,
	}
}

// MarshalTrace encodes the trace of result as canonical JSON.
func MarshalTrace(scenarioName string, result *Result) ([]byte, error) {
	return ir.MarshalCanonical(TraceSnapshot{ScenarioName: scenarioName, Trace: result.Trace}.Canonical())
}

// RunWithGolden runs scenario and compares its trace with
// testdata/golden/<name>.golden. Regenerate with:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(context.Background(), scenario)
	if err != nil {
		return nil, err
	}
	return result, AssertGolden(t, scenario.Name, result)
}

// AssertGolden compares an existing result with its golden file.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	data, err := MarshalTrace(scenarioName, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)
	return nil
}
