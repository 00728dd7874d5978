package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/fleetcrawl/internal/ir"
)

func ref(name, target string) ir.Reference {
	return ir.Reference{Name: name, Target: target, Lookup: []string{"node"}}
}

func TestAnalyzeReferenceCycles_Empty(t *testing.T) {
	assert.Empty(t, AnalyzeReferenceCycles(nil))
}

func TestAnalyzeReferenceCycles_DAG(t *testing.T) {
	entities := []ir.EntityType{
		{Name: "deployment"},
		{Name: "replica_set", References: []ir.Reference{ref("deployment", "deployment")}},
		{Name: "pod", References: []ir.Reference{ref("replica_set", "replica_set"), ref("node", "host")}},
		{Name: "host"},
	}
	assert.Empty(t, AnalyzeReferenceCycles(entities))
}

func TestAnalyzeReferenceCycles_SelfReference(t *testing.T) {
	entities := []ir.EntityType{
		{Name: "team", References: []ir.Reference{ref("parent", "team")}},
	}

	cycles := AnalyzeReferenceCycles(entities)
	require.Len(t, cycles, 1)
	assert.Equal(t, []string{"team", "team"}, cycles[0].Path)
	assert.Contains(t, cycles[0].Message, "references itself")
}

func TestAnalyzeReferenceCycles_TwoNode(t *testing.T) {
	entities := []ir.EntityType{
		{Name: "a", References: []ir.Reference{ref("b", "b")}},
		{Name: "b", References: []ir.Reference{ref("a", "a")}},
	}

	cycles := AnalyzeReferenceCycles(entities)
	require.Len(t, cycles, 1)
	assert.Equal(t, []string{"a", "b", "a"}, cycles[0].Path)
	assert.Equal(t, "reference cycle: a -> b -> a", cycles[0].Message)
}

func TestAnalyzeReferenceCycles_ThreeNodeWithTail(t *testing.T) {
	entities := []ir.EntityType{
		{Name: "x", References: []ir.Reference{ref("y", "y")}},
		{Name: "y", References: []ir.Reference{ref("z", "z")}},
		{Name: "z", References: []ir.Reference{ref("x", "x")}},
		{Name: "leaf", References: []ir.Reference{ref("x", "x")}},
	}

	cycles := AnalyzeReferenceCycles(entities)
	require.Len(t, cycles, 1)
	assert.Equal(t, []string{"x", "y", "z", "x"}, cycles[0].Path)
}

func TestAnalyzeReferenceCycles_Multiple(t *testing.T) {
	entities := []ir.EntityType{
		{Name: "b", References: []ir.Reference{ref("c", "c")}},
		{Name: "c", References: []ir.Reference{ref("b", "b")}},
		{Name: "a", References: []ir.Reference{ref("a", "a")}},
	}

	cycles := AnalyzeReferenceCycles(entities)
	require.Len(t, cycles, 2)
	assert.Equal(t, []string{"a", "a"}, cycles[0].Path)
	assert.Equal(t, []string{"b", "c", "b"}, cycles[1].Path)
}

func TestAnalyzeReferenceCycles_UnknownTargetIgnored(t *testing.T) {
	entities := []ir.EntityType{
		{Name: "pod", References: []ir.Reference{ref("node", "host")}},
	}
	assert.Empty(t, AnalyzeReferenceCycles(entities))
}
