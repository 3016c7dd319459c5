package harness

import (
	"encoding/json"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// GoldenDir holds golden traces relative to the test's package directory.
const GoldenDir = "testdata/golden"

// TraceSnapshot is the golden form of a scenario run.
type TraceSnapshot struct {
	ScenarioName string       `json:"scenario_name"`
	Trace        []TraceEvent `json:"trace"`
	Stats        string       `json:"stats"`
}

// MarshalTrace renders result as indented JSON ending in a newline.
// Field order comes from TraceSnapshot and TraceEvent, so equal runs
// produce equal bytes.
func MarshalTrace(scenarioName string, result *Result) ([]byte, error) {
	snap := TraceSnapshot{ScenarioName: scenarioName, Trace: result.Trace, Stats: result.Stats}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// RunWithGolden runs scenario and checks its trace against
// GoldenDir/<name>.golden. Regenerate with `go test ./internal/harness -update`.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()
	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden checks an existing result against its golden file; a
// mismatch fails t.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()
	data, err := MarshalTrace(scenarioName, result)
	if err != nil {
		return err
	}
	goldie.New(t, goldie.WithFixtureDir(GoldenDir), goldie.WithNameSuffix(".golden")).
		Assert(t, scenarioName, data)
	return nil
}
