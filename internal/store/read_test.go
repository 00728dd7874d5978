package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/fleetcrawl/internal/ir"
)

func TestCurrent_EmptyIsNotNil(t *testing.T) {
	s := createTestStore(t)
	provision(t, s, widgetType())

	current, err := s.Current(context.Background(), widgetType())
	require.NoError(t, err)
	assert.NotNil(t, current)
	assert.Empty(t, current)
}

func TestCurrent_OrderedByNode(t *testing.T) {
	s := createTestStore(t)
	provision(t, s, widgetType())

	for _, id := range []string{"w1", "w2", "https://example.com"} {
		upsert(t, s, widgetType(), ir.Observation{LogicalID: id, Definition: color("red")})
	}

	current, err := s.Current(context.Background(), widgetType())
	require.NoError(t, err)
	require.Len(t, current, 3)
	for i := 1; i < len(current); i++ {
		assert.Less(t, current[i-1].Node, current[i].Node)
	}
}

func TestCurrent_DisplayName(t *testing.T) {
	s := createTestStore(t)
	e := widgetType()
	e.NameExpression = "'widget ' || name"
	provision(t, s, e)

	upsert(t, s, e, ir.Observation{LogicalID: "w1", Columns: map[string]any{"name": "alpha"}})

	current, err := s.Current(context.Background(), e)
	require.NoError(t, err)
	require.Len(t, current, 1)
	assert.Equal(t, "widget alpha", current[0].DisplayName)
}

func TestHistory_UnknownNode(t *testing.T) {
	s := createTestStore(t)
	provision(t, s, widgetType())

	history, err := s.History(context.Background(), widgetType(), "never-seen")
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestLookupCurrent(t *testing.T) {
	s := createTestStore(t)
	provision(t, s, widgetType())
	ctx := context.Background()

	a := upsert(t, s, widgetType(), ir.Observation{LogicalID: "w1", Columns: map[string]any{"name": "alpha"}})
	upsert(t, s, widgetType(), ir.Observation{LogicalID: "w2", Columns: map[string]any{"name": "beta"}})

	got, err := s.LookupCurrent(ctx, widgetType(), map[string]any{"name": "alpha"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, a.VersionID, got[0].VersionID)

	got, err = s.LookupCurrent(ctx, widgetType(), map[string]any{"node": "w1", "name": "alpha"})
	require.NoError(t, err)
	require.Len(t, got, 1)

	got, err = s.LookupCurrent(ctx, widgetType(), map[string]any{"node": "w2", "name": "alpha"})
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = s.LookupCurrent(ctx, widgetType(), map[string]any{"colour": "red"})
	assert.Error(t, err)
}
