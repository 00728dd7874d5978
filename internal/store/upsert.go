package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"github.com/roach88/fleetcrawl/internal/ir"
	"github.com/roach88/fleetcrawl/internal/schema"
)

// Upsert merges one observation into the entity's log.
//
// The definition is hashed; if the node already has a row with the same
// content hash (and the same deleted flag) that row's definition is
// refreshed in place and returned with Inserted false. Otherwise a new row
// is appended with a fresh version id and Inserted true.
//
// Declared references are resolved against the target's current view
// first. A required reference that is missing, incomplete or finds no live
// target is a ReferenceResolutionError and nothing is written.
func (s *Store) Upsert(ctx context.Context, e ir.EntityType, obs ir.Observation) (ir.VersionRecord, error) {
	node, err := ir.ResolveLogicalID(obs.LogicalID)
	if err != nil {
		return ir.VersionRecord{}, &ObservationError{Entity: e.Name, LogicalID: obs.LogicalID, Field: "logical_id", Message: err.Error()}
	}

	for name := range obs.Columns {
		if _, ok := e.Column(name); !ok {
			return ir.VersionRecord{}, &ObservationError{Entity: e.Name, LogicalID: obs.LogicalID, Field: name, Message: "column not declared on entity type"}
		}
	}

	refs, err := s.resolveReferences(ctx, e, obs)
	if err != nil {
		return ir.VersionRecord{}, err
	}

	definition, err := ir.FromAny(obs.Definition)
	if err != nil {
		return ir.VersionRecord{}, fmt.Errorf("upsert %s %q: %w", e.Name, obs.LogicalID, err)
	}
	hash, err := ir.ContentHash(definition)
	if err != nil {
		return ir.VersionRecord{}, fmt.Errorf("upsert %s %q: %w", e.Name, obs.LogicalID, err)
	}

	args, versionID, err := s.upsertArgs(e, obs, node, refs, definition, hash)
	if err != nil {
		return ir.VersionRecord{}, err
	}

	row := s.db.QueryRowContext(ctx, schema.Upsert(s.dialect, e), args...)
	rec, err := scanRecord(e, row, false)
	if err != nil {
		return ir.VersionRecord{}, wrapIO("upsert", e.Name, err)
	}
	rec.Inserted = rec.VersionID == versionID
	return rec, nil
}

func (s *Store) upsertArgs(e ir.EntityType, obs ir.Observation, node string, refs map[string]string, definition ir.IRValue, hash string) ([]any, string, error) {
	versionID := s.ids.Generate()
	refByColumn := make(map[string]string, len(e.References))
	for _, r := range e.References {
		refByColumn[r.ColumnName()] = r.Name
	}

	payload := map[string]any{
		"metadata":      obs.Metadata,
		"specification": obs.Specification,
		"status":        obs.Status,
	}

	names := schema.ColumnNames(e)
	args := make([]any, len(names))
	for i, name := range names {
		var err error
		switch name {
		case "version_id":
			args[i] = versionID
		case "node":
			args[i] = node
		case "definition":
			args[i], err = marshalJSON(definition)
		case "metadata", "specification", "status":
			args[i], err = marshalJSON(payload[name])
		case "content_hash":
			args[i] = hash
		case "observed_at":
			args[i] = s.clock.Now().UTC()
		case "deleted":
			args[i] = false
		default:
			if ref, ok := refByColumn[name]; ok {
				if id, ok := refs[ref]; ok {
					args[i] = id
				}
				continue
			}
			col, _ := e.Column(name)
			args[i], err = encodeColumn(col, obs.Columns[name])
			if err != nil {
				return nil, "", &ObservationError{Entity: e.Name, LogicalID: obs.LogicalID, Field: name, Message: err.Error()}
			}
		}
		if err != nil {
			return nil, "", fmt.Errorf("upsert %s %q: %s: %w", e.Name, obs.LogicalID, name, err)
		}
	}
	return args, versionID, nil
}

// resolveReferences maps each declared reference to the version id of the
// target's current row. A required reference the observation leaves out
// fails the upsert; an optional one is stored as NULL.
func (s *Store) resolveReferences(ctx context.Context, e ir.EntityType, obs ir.Observation) (map[string]string, error) {
	var undeclared []string
	for name := range obs.References {
		if _, ok := e.Reference(name); !ok {
			undeclared = append(undeclared, name)
		}
	}
	if len(undeclared) > 0 {
		sort.Strings(undeclared)
		return nil, &ObservationError{Entity: e.Name, LogicalID: obs.LogicalID, Field: undeclared[0], Message: "reference not declared on entity type"}
	}

	out := make(map[string]string, len(e.References))
	for _, ref := range e.References {
		lookup, supplied := obs.References[ref.Name]
		refErr := func(err error) error {
			return &ReferenceResolutionError{
				Entity: e.Name, LogicalID: obs.LogicalID, Reference: ref.Name,
				Target: ref.Target, Lookup: lookup, Err: err,
			}
		}

		if !supplied || lookup == nil {
			if ref.Optional {
				continue
			}
			return nil, refErr(ErrReferenceNotSupplied)
		}

		target, ok := s.Entity(ref.Target)
		if !ok {
			return nil, refErr(fmt.Errorf("entity type %s is not provisioned", ref.Target))
		}

		args := make([]any, len(ref.Lookup))
		for i, col := range ref.Lookup {
			v, present := lookup[col]
			if !present || v == nil {
				return nil, refErr(fmt.Errorf("lookup column %q missing", col))
			}
			arg, err := lookupArg(target, col, v)
			if err != nil {
				return nil, refErr(err)
			}
			args[i] = arg
		}

		query, err := schema.ResolveReference(s.dialect, target, ref.Lookup)
		if err != nil {
			return nil, refErr(err)
		}

		var versionID string
		err = s.db.QueryRowContext(ctx, query, args...).Scan(&versionID)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, refErr(nil)
		}
		if err != nil {
			return nil, wrapIO("resolve reference "+ref.Name, e.Name, err)
		}
		out[ref.Name] = versionID
	}
	return out, nil
}

// lookupArg converts a lookup value to a bind parameter for the target
// column. Natural keys looked up by node go through the same logical id
// resolution as observations.
func lookupArg(target ir.EntityType, col string, v any) (any, error) {
	if col == "node" {
		key, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("lookup node: %T is not a string", v)
		}
		return ir.ResolveLogicalID(key)
	}
	if c, ok := target.Column(col); ok {
		return encodeColumn(c, v)
	}
	return v, nil
}
