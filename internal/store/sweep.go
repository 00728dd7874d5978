package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/fleetcrawl/internal/ir"
	"github.com/roach88/fleetcrawl/internal/schema"
)

// Sweep tombstones every live node of the entity type that is not in
// observed. Observed entries may be natural keys or node ids.
//
// Each tombstone copies the node's current row with a fresh version id,
// observed_at = now and deleted = TRUE. The whole sweep runs in one
// transaction. A node whose identical tombstone already exists (it was
// deleted before with the same content, came back, and is gone again)
// keeps its old tombstone row and is not counted.
func (s *Store) Sweep(ctx context.Context, e ir.EntityType, observed []string) (ir.SweepResult, error) {
	keep := make(map[string]bool, len(observed))
	for _, key := range observed {
		node, err := ir.ResolveLogicalID(key)
		if err != nil {
			return ir.SweepResult{}, &ObservationError{Entity: e.Name, LogicalID: key, Field: "logical_id", Message: err.Error()}
		}
		keep[node] = true
	}

	result := ir.SweepResult{Entity: e.Name, Observed: len(keep), Tombstones: []ir.VersionRecord{}}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ir.SweepResult{}, wrapIO("sweep: begin", e.Name, err)
	}
	defer tx.Rollback()

	live, err := liveNodes(ctx, tx, e)
	if err != nil {
		return ir.SweepResult{}, wrapIO("sweep: live nodes", e.Name, err)
	}
	result.LiveBefore = len(live)

	stmt := schema.Tombstone(s.dialect, e)
	now := s.clock.Now().UTC()
	for _, node := range live {
		if keep[node] {
			continue
		}
		row := tx.QueryRowContext(ctx, stmt, s.ids.Generate(), now, node)
		rec, err := scanRecord(e, row, false)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return ir.SweepResult{}, wrapIO("sweep: tombstone "+node, e.Name, err)
		}
		rec.Inserted = true
		result.Tombstones = append(result.Tombstones, rec)
	}
	result.Tombstoned = len(result.Tombstones)

	if err := tx.Commit(); err != nil {
		return ir.SweepResult{}, wrapIO("sweep: commit", e.Name, err)
	}
	return result, nil
}

func liveNodes(ctx context.Context, tx *sql.Tx, e ir.EntityType) ([]string, error) {
	rows, err := tx.QueryContext(ctx, schema.LiveNodes(e))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	nodes := []string{}
	for rows.Next() {
		var node string
		if err := rows.Scan(&node); err != nil {
			return nil, fmt.Errorf("scan node: %w", err)
		}
		nodes = append(nodes, node)
	}
	return nodes, rows.Err()
}
