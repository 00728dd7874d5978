package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPluralize(t *testing.T) {
	tests := []struct {
		name     string
		expected string
	}{
		{"widget", "widgets"},
		{"class", "classes"},
		{"policy", "policies"},
		{"branch", "branches"},
		{"mesh", "meshes"},
		{"kube_pod", "kube_pods"},
		{"key", "keys"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Pluralize(tt.name))
		})
	}
}

func TestViewNameExplicitPlural(t *testing.T) {
	e := EntityType{Name: "status_page", Plural: "status_pages_current"}
	assert.Equal(t, "status_pages_current", e.ViewName())
	assert.Equal(t, "status_page_log", e.LogTable())
}

func TestValidateIdentifier(t *testing.T) {
	assert.NoError(t, ValidateIdentifier("kube_pod"))
	assert.NoError(t, ValidateIdentifier("a1"))

	for _, bad := range []string{"", "Pod", "1pod", "pod-name", "pod name", "select", "order", "pod;drop"} {
		assert.Error(t, ValidateIdentifier(bad), bad)
	}
}

func TestEntityTypeValidate(t *testing.T) {
	valid := EntityType{
		Name:    "kube_pod",
		Columns: []Column{{Name: "name", Type: ColumnText}, {Name: "ready", Type: ColumnBoolean}},
		References: []Reference{
			{Name: "replica_set", Target: "kube_replica_set", Lookup: []string{"node"}},
		},
	}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(e *EntityType)
		errMsg string
	}{
		{"bad name", func(e *EntityType) { e.Name = "Kube" }, "entity name"},
		{"unknown column type", func(e *EntityType) { e.Columns[0].Type = "float" }, "unknown type"},
		{"reserved column", func(e *EntityType) { e.Columns[0].Name = "content_hash" }, "reserved column"},
		{"display name reserved", func(e *EntityType) { e.Columns[0].Name = "display_name" }, "reserved column"},
		{"duplicate column", func(e *EntityType) { e.Columns[1].Name = "name" }, "collides"},
		{"reference column collides", func(e *EntityType) { e.Columns[1].Name = "replica_set_id" }, "collides"},
		{"missing lookup", func(e *EntityType) { e.References[0].Lookup = nil }, "lookup columns required"},
		{"bad target", func(e *EntityType) { e.References[0].Target = "Bad" }, "target"},
		{"plural collides with log", func(e *EntityType) { e.Plural = "kube_pod_log" }, "collides with log table"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := valid
			e.Columns = append([]Column(nil), valid.Columns...)
			e.References = append([]Reference(nil), valid.References...)
			tt.mutate(&e)
			err := e.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestHasColumn(t *testing.T) {
	e := EntityType{
		Name:       "kube_pod",
		Columns:    []Column{{Name: "name", Type: ColumnText}},
		References: []Reference{{Name: "replica_set", Target: "kube_replica_set", Lookup: []string{"node"}}},
	}

	assert.True(t, e.HasColumn("name"))
	assert.True(t, e.HasColumn("node"))
	assert.True(t, e.HasColumn("replica_set_id"))
	assert.False(t, e.HasColumn("namespace"))
}
