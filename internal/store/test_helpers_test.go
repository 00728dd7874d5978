package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/roach88/fleetcrawl/internal/ir"
	"github.com/roach88/fleetcrawl/internal/testutil"
)

// createTestStore creates a new temp-dir store with deterministic ids and
// clock.
func createTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	opts = append([]Option{
		WithIDGenerator(testutil.NewSequentialIDs()),
		WithClock(testutil.NewStepClock()),
	}, opts...)
	s, err := Open(path, opts...)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func widgetType() ir.EntityType {
	return ir.EntityType{
		Name:    "widget",
		Columns: []ir.Column{{Name: "name", Type: ir.ColumnText}},
	}
}

func appType() ir.EntityType {
	return ir.EntityType{
		Name:    "app",
		Columns: []ir.Column{{Name: "name", Type: ir.ColumnText}},
	}
}

// provision provisions entity types or fails the test.
func provision(t *testing.T, s *Store, entities ...ir.EntityType) {
	t.Helper()
	if err := s.ProvisionAll(context.Background(), entities); err != nil {
		t.Fatalf("ProvisionAll() failed: %v", err)
	}
}

// upsert upserts an observation or fails the test.
func upsert(t *testing.T, s *Store, e ir.EntityType, obs ir.Observation) ir.VersionRecord {
	t.Helper()
	rec, err := s.Upsert(context.Background(), e, obs)
	if err != nil {
		t.Fatalf("Upsert(%s) failed: %v", obs.LogicalID, err)
	}
	return rec
}

func color(c string) map[string]any {
	return map[string]any{"color": c}
}
