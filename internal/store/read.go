package store

import (
	"context"
	"fmt"
	"sort"

	"github.com/roach88/fleetcrawl/internal/ir"
	"github.com/roach88/fleetcrawl/internal/schema"
)

// Current returns the current view of an entity type ordered by node.
// Returns an empty slice (not nil) if there are no live nodes.
func (s *Store) Current(ctx context.Context, e ir.EntityType) ([]ir.VersionRecord, error) {
	rows, err := s.db.QueryContext(ctx, schema.Current(e))
	if err != nil {
		return nil, wrapIO("read current", e.Name, err)
	}
	recs, err := scanRecords(e, rows, e.NameExpression != "")
	if err != nil {
		return nil, wrapIO("read current", e.Name, err)
	}
	return recs, nil
}

// History returns every log row of one logical node, oldest first,
// tombstones included. logicalID may be a natural key or a node id.
func (s *Store) History(ctx context.Context, e ir.EntityType, logicalID string) ([]ir.VersionRecord, error) {
	node, err := ir.ResolveLogicalID(logicalID)
	if err != nil {
		return nil, &ObservationError{Entity: e.Name, LogicalID: logicalID, Field: "logical_id", Message: err.Error()}
	}
	rows, err := s.db.QueryContext(ctx, schema.History(s.dialect, e), node)
	if err != nil {
		return nil, wrapIO("read history", e.Name, err)
	}
	recs, err := scanRecords(e, rows, false)
	if err != nil {
		return nil, wrapIO("read history", e.Name, err)
	}
	return recs, nil
}

// LookupCurrent returns current rows whose columns equal the given values,
// newest first. A "node" key is resolved like a logical id.
func (s *Store) LookupCurrent(ctx context.Context, e ir.EntityType, match map[string]any) ([]ir.VersionRecord, error) {
	cols := make([]string, 0, len(match))
	for c := range match {
		cols = append(cols, c)
	}
	sort.Strings(cols)

	query, err := schema.Lookup(s.dialect, e, cols)
	if err != nil {
		return nil, err
	}
	args := make([]any, len(cols))
	for i, c := range cols {
		args[i], err = lookupArg(e, c, match[c])
		if err != nil {
			return nil, fmt.Errorf("lookup %s: %w", e.Name, err)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapIO("lookup current", e.Name, err)
	}
	recs, err := scanRecords(e, rows, e.NameExpression != "")
	if err != nil {
		return nil, wrapIO("lookup current", e.Name, err)
	}
	return recs, nil
}

// CountLog returns the number of log rows, tombstones included.
func (s *Store) CountLog(ctx context.Context, e ir.EntityType) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, schema.CountLog(e)).Scan(&n); err != nil {
		return 0, wrapIO("count log", e.Name, err)
	}
	return n, nil
}
