package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/roach88/fleetcrawl/internal/ir"
	"github.com/roach88/fleetcrawl/internal/schema"
)

// Provision creates or migrates the log table, indexes and current view of
// an entity type. It is idempotent: re-running it with the same descriptor
// changes nothing, and columns added to the descriptor since the last run
// are added to the table. Failures are returned as SchemaProvisionError.
func (s *Store) Provision(ctx context.Context, e ir.EntityType) error {
	if err := e.Validate(); err != nil {
		return &SchemaProvisionError{Entity: e.Name, Err: err}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &SchemaProvisionError{Entity: e.Name, Err: fmt.Errorf("begin transaction: %w", err)}
	}
	defer tx.Rollback()

	exec := func(stmt string) error {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return &SchemaProvisionError{Entity: e.Name, Statement: stmt, Err: err}
		}
		return nil
	}

	if err := exec(schema.CreateTable(s.dialect, e)); err != nil {
		return err
	}

	existing, err := existingColumns(ctx, tx, s.dialect, e.LogTable())
	if err != nil {
		return &SchemaProvisionError{Entity: e.Name, Err: err}
	}
	for _, name := range schema.ColumnNames(e) {
		if existing[name] {
			continue
		}
		stmt, err := schema.AddColumn(s.dialect, e, name)
		if err != nil {
			return &SchemaProvisionError{Entity: e.Name, Err: err}
		}
		if err := exec(stmt); err != nil {
			return err
		}
		s.log.Info().Str("entity", e.Name).Str("column", name).Msg("added column")
	}

	for _, stmt := range schema.Indexes(e) {
		if err := exec(stmt); err != nil {
			return err
		}
	}
	for _, stmt := range schema.View(e) {
		if err := exec(stmt); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return &SchemaProvisionError{Entity: e.Name, Err: fmt.Errorf("commit: %w", err)}
	}

	s.mu.Lock()
	s.entities[e.Name] = e
	s.mu.Unlock()

	s.register(ctx, e)
	return nil
}

// ProvisionAll provisions entity types in reference order so that every
// foreign key target exists before its dependants.
func (s *Store) ProvisionAll(ctx context.Context, entities []ir.EntityType) error {
	levels, err := schema.Levels(entities)
	if err != nil {
		return &SchemaProvisionError{Entity: "*", Err: err}
	}
	for _, e := range schema.Flatten(levels) {
		if err := s.Provision(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

// Entity returns a provisioned entity type by name.
func (s *Store) Entity(name string) (ir.EntityType, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entities[name]
	return e, ok
}

// register records the descriptor in entity_types. Failures are logged and
// otherwise ignored: the registry is informational.
func (s *Store) register(ctx context.Context, e ir.EntityType) {
	if !s.registry {
		return
	}

	descriptor, err := json.Marshal(e)
	if err != nil {
		s.log.Warn().Err(err).Str("entity", e.Name).Msg("registry: marshal descriptor")
		return
	}
	hash, err := ir.DescriptorHash(e)
	if err != nil {
		s.log.Warn().Err(err).Str("entity", e.Name).Msg("registry: hash descriptor")
		return
	}

	d := s.dialect
	stmt := fmt.Sprintf(`INSERT INTO entity_types (name, plural, descriptor, descriptor_hash, registered_at)
VALUES (%s, %s, %s, %s, %s)
ON CONFLICT (name) DO UPDATE SET
  plural = excluded.plural,
  descriptor = excluded.descriptor,
  descriptor_hash = excluded.descriptor_hash,
  registered_at = excluded.registered_at
WHERE entity_types.descriptor_hash <> excluded.descriptor_hash`,
		d.Placeholder(1), d.Placeholder(2), d.Placeholder(3), d.Placeholder(4), d.Placeholder(5))

	if _, err := s.db.ExecContext(ctx, stmt, e.Name, e.ViewName(), string(descriptor), hash, s.clock.Now()); err != nil {
		s.log.Warn().Err(err).Str("entity", e.Name).Msg("registry: register entity type")
	}
}

// RegisteredEntity is one row of the entity_types registry.
type RegisteredEntity struct {
	Name           string
	Plural         string
	Descriptor     ir.EntityType
	DescriptorHash string
}

// Registered lists the registry contents ordered by name.
func (s *Store) Registered(ctx context.Context) ([]RegisteredEntity, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT name, plural, descriptor, descriptor_hash FROM entity_types ORDER BY name")
	if err != nil {
		return nil, wrapIO("list registry", "entity_types", err)
	}
	defer rows.Close()

	out := []RegisteredEntity{}
	for rows.Next() {
		var r RegisteredEntity
		var descriptor string
		if err := rows.Scan(&r.Name, &r.Plural, &descriptor, &r.DescriptorHash); err != nil {
			return nil, fmt.Errorf("scan registry: %w", err)
		}
		if err := json.Unmarshal([]byte(descriptor), &r.Descriptor); err != nil {
			return nil, fmt.Errorf("decode descriptor %s: %w", r.Name, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func existingColumns(ctx context.Context, tx *sql.Tx, d schema.Dialect, table string) (map[string]bool, error) {
	rows, err := tx.QueryContext(ctx, d.ColumnsQuery(), table)
	if err != nil {
		return nil, fmt.Errorf("list columns of %s: %w", table, err)
	}
	defer rows.Close()

	cols := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan column name: %w", err)
		}
		cols[name] = true
	}
	return cols, rows.Err()
}
