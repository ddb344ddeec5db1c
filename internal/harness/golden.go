package harness

import (
	"context"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/minisync/internal/index"
)

// TraceSnapshot captures the complete trace for a scenario execution.
type TraceSnapshot struct {
	ScenarioName string       `json:"scenario_name"`
	Trace        []TraceEvent `json:"trace"`
}

// RunWithGolden executes a scenario and compares the trace against a golden file.
// The golden file is stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns the result so callers can also check Pass.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(context.Background(), scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares the given result's trace against a golden file.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	traceJSON, err := index.MarshalCanonical(TraceSnapshot{
		ScenarioName: scenarioName,
		Trace:        result.Trace,
	})
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, traceJSON)
	return nil
}
