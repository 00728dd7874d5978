package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/fleetcrawl/internal/ir"
)

// TraceSnapshot captures the trace of a scenario execution.
// All fields use canonical JSON serialization for deterministic comparison.
type TraceSnapshot struct {
	ScenarioName string       `json:"scenario_name"`
	Trace        []TraceEvent `json:"trace"`
}

// toCanonicalMap converts a TraceSnapshot to a map[string]any for canonical JSON serialization.
// Error messages are left out: they embed driver text that may change.
func (s *TraceSnapshot) toCanonicalMap() map[string]any {
	traceList := make([]any, len(s.Trace))
	for i, ev := range s.Trace {
		m := map[string]any{
			"seq":    ev.Seq,
			"type":   ev.Type,
			"entity": ev.Entity,
		}
		if ev.LogicalID != "" {
			m["logical_id"] = ev.LogicalID
		}
		if ev.Error != "" {
			m["error"] = ev.Error
			traceList[i] = m
			continue
		}
		switch ev.Type {
		case EventUpsert:
			m["node"] = ev.Node
			m["version_id"] = ev.VersionID
			m["content_hash"] = ev.ContentHash
			m["inserted"] = ev.Inserted
		case EventSweep:
			m["observed"] = ev.Observed
			tombstones := make([]any, len(ev.Tombstones))
			for j, ts := range ev.Tombstones {
				tombstones[j] = map[string]any{"node": ts.Node, "version_id": ts.VersionID}
			}
			m["tombstones"] = tombstones
		}
		traceList[i] = m
	}

	return map[string]any{
		"scenario_name": s.ScenarioName,
		"trace":         traceList,
	}
}

// TraceJSON renders a trace as canonical JSON, the golden file format.
func TraceJSON(scenarioName string, trace []TraceEvent) ([]byte, error) {
	snapshot := TraceSnapshot{ScenarioName: scenarioName, Trace: trace}
	return ir.MarshalCanonical(snapshot.toCanonicalMap())
}

// RunWithGolden executes a scenario and compares the trace against a golden file.
// The golden file is stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if trace doesn't match golden file.
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

// AssertGolden compares the given result's trace against a golden file.
// This is useful when you've already run a scenario and want to compare
// the result against a golden file without re-running.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	traceJSON, err := TraceJSON(scenarioName, result.Trace)
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
