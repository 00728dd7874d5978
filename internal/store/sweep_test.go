package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/fleetcrawl/internal/ir"
	"github.com/roach88/fleetcrawl/internal/testutil"
)

func TestSweep_TombstonesUnobservedNodes(t *testing.T) {
	s := createTestStore(t)
	provision(t, s, widgetType())
	ctx := context.Background()

	upsert(t, s, widgetType(), ir.Observation{LogicalID: "w1", Definition: color("red")})
	w2 := upsert(t, s, widgetType(), ir.Observation{LogicalID: "w2", Definition: color("blue")})

	result, err := s.Sweep(ctx, widgetType(), []string{"w1"})
	require.NoError(t, err)

	assert.Equal(t, "widget", result.Entity)
	assert.Equal(t, 1, result.Observed)
	assert.Equal(t, 2, result.LiveBefore)
	assert.Equal(t, 1, result.Tombstoned)
	require.Len(t, result.Tombstones, 1)

	tomb := result.Tombstones[0]
	assert.True(t, tomb.Deleted)
	assert.True(t, tomb.Inserted)
	assert.Equal(t, w2.Node, tomb.Node)
	assert.Equal(t, w2.ContentHash, tomb.ContentHash)
	assert.Equal(t, w2.Definition, tomb.Definition)
	assert.NotEqual(t, w2.VersionID, tomb.VersionID)
	assert.True(t, tomb.ObservedAt.After(w2.ObservedAt))

	current, err := s.Current(ctx, widgetType())
	require.NoError(t, err)
	require.Len(t, current, 1)
	assert.Equal(t, ir.DeriveStableID(ir.NamespaceNode, "w1"), current[0].Node)
}

func TestSweep_AllObservedIsNoop(t *testing.T) {
	s := createTestStore(t)
	provision(t, s, widgetType())
	ctx := context.Background()

	w1 := upsert(t, s, widgetType(), ir.Observation{LogicalID: "w1", Definition: color("red")})

	// Node ids and natural keys are interchangeable in the observed set.
	result, err := s.Sweep(ctx, widgetType(), []string{w1.Node})
	require.NoError(t, err)
	assert.Zero(t, result.Tombstoned)
	assert.Empty(t, result.Tombstones)
	assert.NotNil(t, result.Tombstones)

	n, err := s.CountLog(ctx, widgetType())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSweep_EmptyTable(t *testing.T) {
	s := createTestStore(t)
	provision(t, s, widgetType())

	result, err := s.Sweep(context.Background(), widgetType(), nil)
	require.NoError(t, err)
	assert.Zero(t, result.LiveBefore)
	assert.Zero(t, result.Tombstoned)
}

func TestSweep_RepeatedSweepDoesNotDuplicateTombstones(t *testing.T) {
	s := createTestStore(t)
	provision(t, s, widgetType())
	ctx := context.Background()

	upsert(t, s, widgetType(), ir.Observation{LogicalID: "w1", Definition: color("red")})

	first, err := s.Sweep(ctx, widgetType(), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Tombstoned)

	second, err := s.Sweep(ctx, widgetType(), nil)
	require.NoError(t, err)
	assert.Zero(t, second.LiveBefore)
	assert.Zero(t, second.Tombstoned)

	n, err := s.CountLog(ctx, widgetType())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestSweep_Reappearance(t *testing.T) {
	s := createTestStore(t)
	provision(t, s, widgetType())
	ctx := context.Background()

	upsert(t, s, widgetType(), ir.Observation{LogicalID: "w1", Definition: color("red")})
	_, err := s.Sweep(ctx, widgetType(), nil)
	require.NoError(t, err)

	back := upsert(t, s, widgetType(), ir.Observation{LogicalID: "w1", Definition: color("green")})
	assert.True(t, back.Inserted)

	current, err := s.Current(ctx, widgetType())
	require.NoError(t, err)
	require.Len(t, current, 1)
	assert.Equal(t, back.VersionID, current[0].VersionID)

	history, err := s.History(ctx, widgetType(), "w1")
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.False(t, history[0].Deleted)
	assert.True(t, history[1].Deleted)
	assert.False(t, history[2].Deleted)
}

// An identical definition reappearing after deletion merges into the
// original row, so the node stays tombstoned until its content changes.
func TestSweep_ReappearanceWithPreviousContentMerges(t *testing.T) {
	s := createTestStore(t)
	provision(t, s, widgetType())
	ctx := context.Background()

	first := upsert(t, s, widgetType(), ir.Observation{LogicalID: "w1", Definition: color("red")})
	_, err := s.Sweep(ctx, widgetType(), nil)
	require.NoError(t, err)

	again := upsert(t, s, widgetType(), ir.Observation{LogicalID: "w1", Definition: color("red")})
	assert.False(t, again.Inserted)
	assert.Equal(t, first.VersionID, again.VersionID)

	current, err := s.Current(ctx, widgetType())
	require.NoError(t, err)
	assert.Empty(t, current)
}

func TestSweep_WidgetLifecycle(t *testing.T) {
	s := createTestStore(t)
	w := widgetType()
	provision(t, s, w)
	ctx := context.Background()

	countLog := func() int {
		n, err := s.CountLog(ctx, w)
		require.NoError(t, err)
		return n
	}

	// Cycle 1: first sighting.
	red := upsert(t, s, w, ir.Observation{LogicalID: "w1", Definition: color("red")})
	_, err := s.Sweep(ctx, w, []string{"w1"})
	require.NoError(t, err)
	assert.Equal(t, testutil.SequentialID(1), red.VersionID)
	assert.True(t, red.Inserted)
	assert.Equal(t, 1, countLog())

	// Cycle 2: unchanged.
	same := upsert(t, s, w, ir.Observation{LogicalID: "w1", Definition: color("red")})
	_, err = s.Sweep(ctx, w, []string{"w1"})
	require.NoError(t, err)
	assert.Equal(t, testutil.SequentialID(1), same.VersionID)
	assert.False(t, same.Inserted)
	assert.Equal(t, 1, countLog())

	// Cycle 3: changed.
	blue := upsert(t, s, w, ir.Observation{LogicalID: "w1", Definition: color("blue")})
	_, err = s.Sweep(ctx, w, []string{"w1"})
	require.NoError(t, err)
	assert.Equal(t, testutil.SequentialID(3), blue.VersionID)
	assert.True(t, blue.Inserted)
	assert.Equal(t, 2, countLog())

	// Cycle 4: gone.
	result, err := s.Sweep(ctx, w, nil)
	require.NoError(t, err)
	require.Len(t, result.Tombstones, 1)
	assert.Equal(t, testutil.SequentialID(4), result.Tombstones[0].VersionID)
	assert.Equal(t, blue.ContentHash, result.Tombstones[0].ContentHash)
	assert.Equal(t, 3, countLog())

	current, err := s.Current(ctx, w)
	require.NoError(t, err)
	assert.Empty(t, current)

	// Cycle 5: back with new content.
	green := upsert(t, s, w, ir.Observation{LogicalID: "w1", Definition: color("green")})
	_, err = s.Sweep(ctx, w, []string{"w1"})
	require.NoError(t, err)
	assert.Equal(t, testutil.SequentialID(5), green.VersionID)
	assert.Equal(t, 4, countLog())

	current, err = s.Current(ctx, w)
	require.NoError(t, err)
	require.Len(t, current, 1)
	assert.Equal(t, green.VersionID, current[0].VersionID)
	assert.Equal(t, ir.IRObject{"color": ir.IRString("green")}, current[0].Definition)
}

func TestSweep_InvalidObservedKey(t *testing.T) {
	s := createTestStore(t)
	provision(t, s, widgetType())

	_, err := s.Sweep(context.Background(), widgetType(), []string{""})
	require.Error(t, err)
	assert.True(t, IsObservationError(err))
}
