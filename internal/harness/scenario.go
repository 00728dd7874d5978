package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/fleetcrawl/internal/ir"
)

// Scenario is one change-tracking test case.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Entities are provisioned, in reference order, before the first step.
	Entities []ir.EntityType `yaml:"entities"`

	// Steps run in order against the same store.
	Steps []Step `yaml:"steps"`

	// Assertions validate the trace and the final store contents.
	Assertions []Assertion `yaml:"assertions"`
}

// Step is exactly one of Upsert or Sweep.
type Step struct {
	Upsert *UpsertStep `yaml:"upsert,omitempty"`
	Sweep  *SweepStep  `yaml:"sweep,omitempty"`
}

// UpsertStep merges observations one by one.
type UpsertStep struct {
	Entity       string           `yaml:"entity"`
	Observations []ir.Observation `yaml:"observations"`
}

// SweepStep tombstones every live node not in Observed.
type SweepStep struct {
	Entity   string   `yaml:"entity"`
	Observed []string `yaml:"observed"`
}

// Assertion validates the trace or the final state.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Entity is required by every type except error.
	Entity string `yaml:"entity,omitempty"`

	// Count is the expected row count (log_count, current_count).
	Count int `yaml:"count,omitempty"`

	// LogicalID selects a node (current_contains, current_absent, error).
	LogicalID string `yaml:"logical_id,omitempty"`

	// Definition is a subset of the expected definition (current_contains).
	Definition map[string]any `yaml:"definition,omitempty"`

	// Columns is a subset of the expected extra columns (current_contains).
	Columns map[string]any `yaml:"columns,omitempty"`

	// Kind is the expected error kind (error): reference, observation,
	// malformed, transient, schema or error.
	Kind string `yaml:"kind,omitempty"`
}

// Assertion type constants.
const (
	AssertLogCount        = "log_count"
	AssertCurrentCount    = "current_count"
	AssertCurrentContains = "current_contains"
	AssertCurrentAbsent   = "current_absent"
	AssertError           = "error"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML with strict field checking.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // catches typos like "assertion:" vs "assertions:"
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Entities) == 0 {
		return fmt.Errorf("entities list is required and must be non-empty")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	declared := make(map[string]bool, len(s.Entities))
	for _, e := range s.Entities {
		declared[e.Name] = true
	}

	for i, step := range s.Steps {
		switch {
		case step.Upsert != nil && step.Sweep != nil:
			return fmt.Errorf("steps[%d]: upsert and sweep are mutually exclusive", i)
		case step.Upsert != nil:
			if !declared[step.Upsert.Entity] {
				return fmt.Errorf("steps[%d]: unknown entity %q", i, step.Upsert.Entity)
			}
			if len(step.Upsert.Observations) == 0 {
				return fmt.Errorf("steps[%d]: upsert needs at least one observation", i)
			}
		case step.Sweep != nil:
			if !declared[step.Sweep.Entity] {
				return fmt.Errorf("steps[%d]: unknown entity %q", i, step.Sweep.Entity)
			}
		default:
			return fmt.Errorf("steps[%d]: one of upsert or sweep is required", i)
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, a, declared); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a Assertion, declared map[string]bool) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertLogCount, AssertCurrentCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for %s", index, a.Type)
		}
	case AssertCurrentContains, AssertCurrentAbsent:
		if a.LogicalID == "" {
			return fmt.Errorf("assertions[%d]: logical_id is required for %s", index, a.Type)
		}
	case AssertError:
		if a.LogicalID == "" || a.Kind == "" {
			return fmt.Errorf("assertions[%d]: logical_id and kind are required for error", index)
		}
		return nil
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	if !declared[a.Entity] {
		return fmt.Errorf("assertions[%d]: unknown entity %q", index, a.Entity)
	}
	return nil
}
