package store

import (
	"context"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/fleetcrawl/internal/ir"
	"github.com/roach88/fleetcrawl/internal/testutil"
)

func TestUpsert_InsertsFirstVersion(t *testing.T) {
	s := createTestStore(t)
	provision(t, s, widgetType())

	rec := upsert(t, s, widgetType(), ir.Observation{LogicalID: "w1", Definition: color("red")})

	assert.True(t, rec.Inserted)
	assert.Equal(t, testutil.SequentialID(1), rec.VersionID)
	assert.Equal(t, ir.DeriveStableID(ir.NamespaceNode, "w1"), rec.Node)
	assert.Equal(t, ir.MustContentHash(color("red")), rec.ContentHash)
	assert.Equal(t, ir.IRObject{"color": ir.IRString("red")}, rec.Definition)
	assert.False(t, rec.Deleted)
	assert.False(t, rec.ObservedAt.IsZero())
	assert.Equal(t, "widget", rec.Entity)
}

func TestUpsert_IdenticalDefinitionIsNoop(t *testing.T) {
	s := createTestStore(t)
	provision(t, s, widgetType())
	ctx := context.Background()

	first := upsert(t, s, widgetType(), ir.Observation{LogicalID: "w1", Definition: color("red")})
	second := upsert(t, s, widgetType(), ir.Observation{LogicalID: "w1", Definition: color("red")})

	assert.False(t, second.Inserted)
	assert.Equal(t, first.VersionID, second.VersionID)
	assert.Equal(t, first.ContentHash, second.ContentHash)

	n, err := s.CountLog(ctx, widgetType())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestUpsert_KeyOrderDoesNotMatter(t *testing.T) {
	s := createTestStore(t)
	provision(t, s, widgetType())

	a := upsert(t, s, widgetType(), ir.Observation{LogicalID: "w1", Definition: map[string]any{"a": 1, "b": 2}})
	b := upsert(t, s, widgetType(), ir.Observation{LogicalID: "w1", Definition: map[string]any{"b": 2.0, "a": 1}})

	assert.False(t, b.Inserted)
	assert.Equal(t, a.VersionID, b.VersionID)
}

func TestUpsert_ChangedDefinitionAppends(t *testing.T) {
	s := createTestStore(t)
	provision(t, s, widgetType())
	ctx := context.Background()

	red := upsert(t, s, widgetType(), ir.Observation{LogicalID: "w1", Definition: color("red")})
	blue := upsert(t, s, widgetType(), ir.Observation{LogicalID: "w1", Definition: color("blue")})

	assert.True(t, blue.Inserted)
	assert.NotEqual(t, red.VersionID, blue.VersionID)
	assert.Equal(t, red.Node, blue.Node)
	assert.True(t, blue.ObservedAt.After(red.ObservedAt))

	current, err := s.Current(ctx, widgetType())
	require.NoError(t, err)
	require.Len(t, current, 1)
	assert.Equal(t, blue.VersionID, current[0].VersionID)

	history, err := s.History(ctx, widgetType(), "w1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, red.VersionID, history[0].VersionID)
	assert.Equal(t, blue.VersionID, history[1].VersionID)
}

func TestUpsert_SameDefinitionDifferentNodes(t *testing.T) {
	s := createTestStore(t)
	provision(t, s, widgetType())

	w1 := upsert(t, s, widgetType(), ir.Observation{LogicalID: "w1", Definition: color("red")})
	w2 := upsert(t, s, widgetType(), ir.Observation{LogicalID: "w2", Definition: color("red")})

	assert.True(t, w1.Inserted)
	assert.True(t, w2.Inserted)
	assert.Equal(t, w1.ContentHash, w2.ContentHash)
	assert.NotEqual(t, w1.Node, w2.Node)
}

func TestUpsert_PayloadOutsideHash(t *testing.T) {
	s := createTestStore(t)
	provision(t, s, widgetType())

	first := upsert(t, s, widgetType(), ir.Observation{
		LogicalID:  "w1",
		Definition: color("red"),
		Status:     map[string]any{"ready": false},
	})
	second := upsert(t, s, widgetType(), ir.Observation{
		LogicalID:  "w1",
		Definition: color("red"),
		Status:     map[string]any{"ready": true},
		Metadata:   map[string]any{"labels": map[string]any{"tier": "web"}},
	})

	assert.False(t, second.Inserted, "status and metadata do not create versions")
	assert.Equal(t, first.VersionID, second.VersionID)
	assert.Equal(t, ir.IRObject{"ready": ir.IRBool(false)}, second.Status)
	assert.Equal(t, ir.IRNull{}, second.Metadata)
}

func TestUpsert_UUIDLogicalIDUsedVerbatim(t *testing.T) {
	s := createTestStore(t)
	provision(t, s, widgetType())

	rec := upsert(t, s, widgetType(), ir.Observation{
		LogicalID:  "8F14E45F-CEEA-467A-9575-6B3A5E1D4C2B",
		Definition: color("red"),
	})
	assert.Equal(t, "8f14e45f-ceea-467a-9575-6b3a5e1d4c2b", rec.Node)
}

func TestUpsert_EmptyLogicalID(t *testing.T) {
	s := createTestStore(t)
	provision(t, s, widgetType())

	_, err := s.Upsert(context.Background(), widgetType(), ir.Observation{Definition: color("red")})
	require.Error(t, err)
	assert.True(t, IsObservationError(err))
}

func TestUpsert_MalformedDefinition(t *testing.T) {
	s := createTestStore(t)
	provision(t, s, widgetType())
	ctx := context.Background()

	_, err := s.Upsert(ctx, widgetType(), ir.Observation{
		LogicalID:  "w1",
		Definition: map[string]any{"ratio": math.NaN()},
	})
	require.Error(t, err)
	assert.True(t, IsMalformedDefinition(err))

	n, err := s.CountLog(ctx, widgetType())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestUpsert_NullDefinition(t *testing.T) {
	s := createTestStore(t)
	provision(t, s, widgetType())

	rec := upsert(t, s, widgetType(), ir.Observation{LogicalID: "w1"})
	assert.True(t, rec.Inserted)
	assert.Equal(t, ir.IRNull{}, rec.Definition)
	assert.Equal(t, ir.MustContentHash(nil), rec.ContentHash)
}

func TestUpsert_UndeclaredColumn(t *testing.T) {
	s := createTestStore(t)
	provision(t, s, widgetType())

	_, err := s.Upsert(context.Background(), widgetType(), ir.Observation{
		LogicalID: "w1",
		Columns:   map[string]any{"size": 3},
	})
	require.Error(t, err)
	assert.True(t, IsObservationError(err))
	assert.Contains(t, err.Error(), "size")
}

func TestUpsert_ColumnTypes(t *testing.T) {
	s := createTestStore(t)
	e := ir.EntityType{
		Name: "host",
		Columns: []ir.Column{
			{Name: "hostname", Type: ir.ColumnText},
			{Name: "cores", Type: ir.ColumnInteger},
			{Name: "virtual", Type: ir.ColumnBoolean},
			{Name: "booted_at", Type: ir.ColumnTimestamp},
			{Name: "labels", Type: ir.ColumnJSON},
			{Name: "machine_id", Type: ir.ColumnUUID},
		},
	}
	provision(t, s, e)

	booted := time.Date(2024, 3, 1, 12, 30, 0, 0, time.FixedZone("CET", 3600))
	rec := upsert(t, s, e, ir.Observation{
		LogicalID:  "db-1",
		Definition: map[string]any{"os": "linux"},
		Columns: map[string]any{
			"hostname":   "db-1.internal",
			"cores":      16,
			"virtual":    true,
			"booted_at":  booted,
			"labels":     map[string]any{"role": "db"},
			"machine_id": "A0EEBC99-9C0B-4EF8-BB6D-6BB9BD380A11",
		},
	})

	assert.Equal(t, "db-1.internal", rec.Columns["hostname"])
	assert.Equal(t, int64(16), rec.Columns["cores"])
	assert.Equal(t, true, rec.Columns["virtual"])
	got, ok := rec.Columns["booted_at"].(time.Time)
	require.True(t, ok, "booted_at is %T", rec.Columns["booted_at"])
	assert.True(t, booted.Equal(got), "got %s", got)
	assert.Equal(t, ir.IRObject{"role": ir.IRString("db")}, rec.Columns["labels"])
	assert.Equal(t, "a0eebc99-9c0b-4ef8-bb6d-6bb9bd380a11", rec.Columns["machine_id"])
}

func TestUpsert_ColumnTypeMismatch(t *testing.T) {
	s := createTestStore(t)
	e := ir.EntityType{
		Name:    "host",
		Columns: []ir.Column{{Name: "cores", Type: ir.ColumnInteger}, {Name: "machine_id", Type: ir.ColumnUUID}},
	}
	provision(t, s, e)

	cases := map[string]map[string]any{
		"string for integer": {"cores": "sixteen"},
		"fraction":           {"cores": 1.5},
		"malformed uuid":     {"machine_id": "not-a-uuid"},
		"integer for uuid":   {"machine_id": 7},
	}
	for name, cols := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := s.Upsert(context.Background(), e, ir.Observation{LogicalID: "h", Columns: cols})
			require.Error(t, err)
			assert.True(t, IsObservationError(err), "got %v", err)
		})
	}
}

func deploymentType() ir.EntityType {
	return ir.EntityType{
		Name:       "deployment",
		Columns:    []ir.Column{{Name: "name", Type: ir.ColumnText}},
		References: []ir.Reference{{Name: "app", Target: "app", Lookup: []string{"name"}}},
	}
}

func TestUpsert_ResolvesReference(t *testing.T) {
	s := createTestStore(t)
	provision(t, s, appType(), deploymentType())

	app := upsert(t, s, appType(), ir.Observation{LogicalID: "app-1", Definition: color("red"), Columns: map[string]any{"name": "checkout"}})
	dep := upsert(t, s, deploymentType(), ir.Observation{
		LogicalID:  "dep-1",
		Definition: map[string]any{"replicas": 3},
		Columns:    map[string]any{"name": "checkout-web"},
		References: map[string]map[string]any{"app": {"name": "checkout"}},
	})

	assert.Equal(t, map[string]string{"app": app.VersionID}, dep.References)
}

func TestUpsert_ReferenceFollowsNewestVersion(t *testing.T) {
	s := createTestStore(t)
	provision(t, s, appType(), deploymentType())

	upsert(t, s, appType(), ir.Observation{LogicalID: "app-1", Definition: color("red"), Columns: map[string]any{"name": "checkout"}})
	newer := upsert(t, s, appType(), ir.Observation{LogicalID: "app-1", Definition: color("blue"), Columns: map[string]any{"name": "checkout"}})

	dep := upsert(t, s, deploymentType(), ir.Observation{
		LogicalID:  "dep-1",
		References: map[string]map[string]any{"app": {"name": "checkout"}},
	})
	assert.Equal(t, newer.VersionID, dep.References["app"])
}

func TestUpsert_ReferenceByNode(t *testing.T) {
	s := createTestStore(t)
	dep := deploymentType()
	dep.References[0].Lookup = []string{"node"}
	provision(t, s, appType(), dep)

	app := upsert(t, s, appType(), ir.Observation{LogicalID: "app-1", Definition: color("red")})
	rec := upsert(t, s, dep, ir.Observation{
		LogicalID:  "dep-1",
		References: map[string]map[string]any{"app": {"node": "app-1"}},
	})
	assert.Equal(t, app.VersionID, rec.References["app"])
}

func TestUpsert_ReferenceMiss(t *testing.T) {
	s := createTestStore(t)
	provision(t, s, appType(), deploymentType())
	ctx := context.Background()

	_, err := s.Upsert(ctx, deploymentType(), ir.Observation{
		LogicalID:  "dep-1",
		References: map[string]map[string]any{"app": {"name": "ghost"}},
	})
	require.Error(t, err)
	assert.True(t, IsReferenceError(err))
	assert.Contains(t, err.Error(), "name=ghost")

	n, err := s.CountLog(ctx, deploymentType())
	require.NoError(t, err)
	assert.Zero(t, n, "nothing is written on a reference miss")
}

func TestUpsert_ReferenceToDeletedTarget(t *testing.T) {
	s := createTestStore(t)
	provision(t, s, appType(), deploymentType())
	ctx := context.Background()

	upsert(t, s, appType(), ir.Observation{LogicalID: "app-1", Columns: map[string]any{"name": "checkout"}})
	_, err := s.Sweep(ctx, appType(), nil)
	require.NoError(t, err)

	_, err = s.Upsert(ctx, deploymentType(), ir.Observation{
		LogicalID:  "dep-1",
		References: map[string]map[string]any{"app": {"name": "checkout"}},
	})
	require.Error(t, err)
	assert.True(t, IsReferenceError(err))
}

func TestUpsert_UndeclaredReference(t *testing.T) {
	s := createTestStore(t)
	provision(t, s, widgetType())

	_, err := s.Upsert(context.Background(), widgetType(), ir.Observation{
		LogicalID:  "w1",
		References: map[string]map[string]any{"owner": {"name": "x"}},
	})
	require.Error(t, err)
	assert.True(t, IsObservationError(err))
}

func TestUpsert_ReferenceMissingLookupColumn(t *testing.T) {
	s := createTestStore(t)
	provision(t, s, appType(), deploymentType())

	_, err := s.Upsert(context.Background(), deploymentType(), ir.Observation{
		LogicalID:  "dep-1",
		References: map[string]map[string]any{"app": {"team": "payments"}},
	})
	require.Error(t, err)
	assert.True(t, IsReferenceError(err), "got %v", err)

	var refErr *ReferenceResolutionError
	require.ErrorAs(t, err, &refErr)
	assert.Equal(t, "app", refErr.Reference)
	assert.True(t, strings.Contains(err.Error(), `"name"`))
}

func TestUpsert_RequiredReferenceOmitted(t *testing.T) {
	s := createTestStore(t)
	provision(t, s, appType(), deploymentType())
	ctx := context.Background()

	upsert(t, s, appType(), ir.Observation{LogicalID: "app-1", Columns: map[string]any{"name": "checkout"}})

	_, err := s.Upsert(ctx, deploymentType(), ir.Observation{
		LogicalID:  "dep-1",
		Definition: map[string]any{"replicas": 3},
	})
	require.Error(t, err)
	assert.True(t, IsReferenceError(err), "got %v", err)
	assert.ErrorIs(t, err, ErrReferenceNotSupplied)

	_, err = s.Upsert(ctx, deploymentType(), ir.Observation{
		LogicalID:  "dep-1",
		References: map[string]map[string]any{"app": nil},
	})
	assert.ErrorIs(t, err, ErrReferenceNotSupplied)

	n, err := s.CountLog(ctx, deploymentType())
	require.NoError(t, err)
	assert.Zero(t, n, "nothing is written without a required reference")
}

func TestUpsert_OptionalReferenceOmitted(t *testing.T) {
	s := createTestStore(t)
	dep := deploymentType()
	dep.References[0].Optional = true
	provision(t, s, appType(), dep)
	ctx := context.Background()

	bare := upsert(t, s, dep, ir.Observation{LogicalID: "dep-1", Definition: map[string]any{"replicas": 1}})
	assert.True(t, bare.Inserted)
	assert.Empty(t, bare.References)

	_, err := s.Upsert(ctx, dep, ir.Observation{
		LogicalID:  "dep-2",
		References: map[string]map[string]any{"app": {"name": "ghost"}},
	})
	assert.True(t, IsReferenceError(err), "a supplied optional reference must still resolve")

	app := upsert(t, s, appType(), ir.Observation{LogicalID: "app-1", Columns: map[string]any{"name": "checkout"}})
	owned := upsert(t, s, dep, ir.Observation{
		LogicalID:  "dep-2",
		References: map[string]map[string]any{"app": {"name": "checkout"}},
	})
	assert.Equal(t, app.VersionID, owned.References["app"])
}

func TestUpsert_ReferenceTargetNotProvisioned(t *testing.T) {
	s := createTestStore(t)
	owned := ir.EntityType{
		Name:       "deployment",
		References: []ir.Reference{{Name: "owner", Target: "team", Lookup: []string{"name"}}},
	}

	_, err := s.Upsert(context.Background(), owned, ir.Observation{
		LogicalID:  "dep-1",
		References: map[string]map[string]any{"owner": {"name": "payments"}},
	})
	require.Error(t, err)
	assert.True(t, IsReferenceError(err))
	assert.Contains(t, err.Error(), "not provisioned")
}
