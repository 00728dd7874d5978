package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/fleetcrawl/internal/ir"
)

const minimalScenario = `
name: minimal
description: "One widget, one assertion"
entities:
  - name: widget
    columns:
      - {name: name, type: text}
steps:
  - upsert:
      entity: widget
      observations:
        - logical_id: w1
          definition: {color: red}
          columns: {name: One}
  - sweep:
      entity: widget
      observed: [w1]
assertions:
  - type: log_count
    entity: widget
    count: 1
`

func TestLoadScenario_ValidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "minimal.yaml")
	require.NoError(t, os.WriteFile(path, []byte(minimalScenario), 0644))

	scenario, err := LoadScenario(path)
	require.NoError(t, err)

	assert.Equal(t, "minimal", scenario.Name)
	require.Len(t, scenario.Entities, 1)
	assert.Equal(t, []ir.Column{{Name: "name", Type: ir.ColumnText}}, scenario.Entities[0].Columns)
	require.Len(t, scenario.Steps, 2)
	require.NotNil(t, scenario.Steps[0].Upsert)
	assert.Equal(t, "w1", scenario.Steps[0].Upsert.Observations[0].LogicalID)
	assert.Equal(t, "One", scenario.Steps[0].Upsert.Observations[0].Columns["name"])
	require.NotNil(t, scenario.Steps[1].Sweep)
	assert.Equal(t, []string{"w1"}, scenario.Steps[1].Sweep.Observed)
	assert.Equal(t, AssertLogCount, scenario.Assertions[0].Type)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestParseScenario_UnknownField(t *testing.T) {
	data := minimalScenario + "assertion:\n  - type: log_count\n"
	_, err := ParseScenario([]byte(data))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestParseScenario_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "missing name",
			yaml:    "description: d\n",
			wantErr: "name is required",
		},
		{
			name:    "no entities",
			yaml:    "name: n\ndescription: d\n",
			wantErr: "entities list is required",
		},
		{
			name: "empty step",
			yaml: `name: n
description: d
entities: [{name: widget}]
steps: [{}]
assertions: [{type: log_count, entity: widget}]
`,
			wantErr: "steps[0]: one of upsert or sweep is required",
		},
		{
			name: "both upsert and sweep",
			yaml: `name: n
description: d
entities: [{name: widget}]
steps:
  - upsert: {entity: widget, observations: [{logical_id: w1, definition: {}}]}
    sweep: {entity: widget}
assertions: [{type: log_count, entity: widget}]
`,
			wantErr: "mutually exclusive",
		},
		{
			name: "unknown step entity",
			yaml: `name: n
description: d
entities: [{name: widget}]
steps:
  - sweep: {entity: gadget}
assertions: [{type: log_count, entity: widget}]
`,
			wantErr: `steps[0]: unknown entity "gadget"`,
		},
		{
			name: "upsert without observations",
			yaml: `name: n
description: d
entities: [{name: widget}]
steps:
  - upsert: {entity: widget}
assertions: [{type: log_count, entity: widget}]
`,
			wantErr: "at least one observation",
		},
		{
			name: "unknown assertion type",
			yaml: `name: n
description: d
entities: [{name: widget}]
steps:
  - sweep: {entity: widget}
assertions: [{type: trace_contains, entity: widget}]
`,
			wantErr: `unknown assertion type "trace_contains"`,
		},
		{
			name: "error assertion without kind",
			yaml: `name: n
description: d
entities: [{name: widget}]
steps:
  - sweep: {entity: widget}
assertions: [{type: error, logical_id: w1}]
`,
			wantErr: "logical_id and kind are required",
		},
		{
			name: "current_contains without logical id",
			yaml: `name: n
description: d
entities: [{name: widget}]
steps:
  - sweep: {entity: widget}
assertions: [{type: current_contains, entity: widget}]
`,
			wantErr: "logical_id is required for current_contains",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
