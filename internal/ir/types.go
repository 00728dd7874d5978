package ir

import (
	"time"
)

// ColumnType is the storage type of an extra column on an entity type.
type ColumnType string

const (
	ColumnText      ColumnType = "text"
	ColumnInteger   ColumnType = "integer"
	ColumnBoolean   ColumnType = "boolean"
	ColumnTimestamp ColumnType = "timestamp"
	ColumnJSON      ColumnType = "json"
	ColumnUUID      ColumnType = "uuid"
)

// ValidColumnTypes defines allowed column types.
var ValidColumnTypes = map[ColumnType]bool{
	ColumnText:      true,
	ColumnInteger:   true,
	ColumnBoolean:   true,
	ColumnTimestamp: true,
	ColumnJSON:      true,
	ColumnUUID:      true,
}

// Column is a typed extra column copied from observations into the log.
type Column struct {
	Name string     `json:"name" yaml:"name"`
	Type ColumnType `json:"type" yaml:"type"`
}

// Reference declares a foreign key from one entity type to another. The
// referencing row stores the target's version id, found by looking up the
// Lookup columns in the target's current view. Every observation must
// supply a required reference; an Optional one may be left out.
type Reference struct {
	Name     string   `json:"name" yaml:"name"`
	Target   string   `json:"target" yaml:"target"`
	Lookup   []string `json:"lookup" yaml:"lookup"`
	Optional bool     `json:"optional,omitempty" yaml:"optional,omitempty"`
}

// ColumnName is the log column holding the resolved version id.
func (r Reference) ColumnName() string {
	return r.Name + "_id"
}

// EntityType describes one kind of crawled object and its storage layout.
type EntityType struct {
	Name           string      `json:"name" yaml:"name"`
	Plural         string      `json:"plural,omitempty" yaml:"plural,omitempty"`
	Columns        []Column    `json:"columns,omitempty" yaml:"columns,omitempty"`
	References     []Reference `json:"references,omitempty" yaml:"references,omitempty"`
	NameExpression string      `json:"name_expression,omitempty" yaml:"name_expression,omitempty"`
}

// LogTable is the append-only table name.
func (e EntityType) LogTable() string {
	return e.Name + "_log"
}

// ViewName is the current view name: the explicit plural if set, otherwise
// the pluralized entity name.
func (e EntityType) ViewName() string {
	if e.Plural != "" {
		return e.Plural
	}
	return Pluralize(e.Name)
}

// Column returns the extra column with the given name.
func (e EntityType) Column(name string) (Column, bool) {
	for _, c := range e.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// Reference returns the reference with the given name.
func (e EntityType) Reference(name string) (Reference, bool) {
	for _, r := range e.References {
		if r.Name == name {
			return r, true
		}
	}
	return Reference{}, false
}

// HasColumn reports whether name is queryable on the current view, either
// as an extra column or as one of the fixed log columns.
func (e EntityType) HasColumn(name string) bool {
	if _, ok := e.Column(name); ok {
		return true
	}
	for _, r := range e.References {
		if r.ColumnName() == name {
			return true
		}
	}
	return fixedColumns[name]
}

func (e EntityType) descriptor() IRObject {
	cols := make(IRArray, 0, len(e.Columns))
	for _, c := range e.Columns {
		cols = append(cols, IRObject{"name": IRString(c.Name), "type": IRString(c.Type)})
	}
	refs := make(IRArray, 0, len(e.References))
	for _, r := range e.References {
		lookup := make(IRArray, 0, len(r.Lookup))
		for _, l := range r.Lookup {
			lookup = append(lookup, IRString(l))
		}
		refs = append(refs, IRObject{
			"name":     IRString(r.Name),
			"target":   IRString(r.Target),
			"lookup":   lookup,
			"optional": IRBool(r.Optional),
		})
	}
	return IRObject{
		"name":            IRString(e.Name),
		"plural":          IRString(e.ViewName()),
		"columns":         cols,
		"references":      refs,
		"name_expression": IRString(e.NameExpression),
	}
}

// Observation is one externally observed object, as produced by a
// connector. Definition, Specification, Status and Metadata accept any value
// encoding/json can encode.
type Observation struct {
	// LogicalID is the natural key. A UUID is used verbatim; anything else is
	// mapped through DeriveStableID.
	LogicalID     string `json:"logical_id" yaml:"logical_id"`
	Definition    any    `json:"definition" yaml:"definition"`
	Specification any    `json:"specification,omitempty" yaml:"specification,omitempty"`
	Status        any    `json:"status,omitempty" yaml:"status,omitempty"`
	Metadata      any    `json:"metadata,omitempty" yaml:"metadata,omitempty"`

	// Columns carries values for the entity type's extra columns.
	Columns map[string]any `json:"columns,omitempty" yaml:"columns,omitempty"`

	// References maps reference name to lookup column values in the target.
	References map[string]map[string]any `json:"references,omitempty" yaml:"references,omitempty"`
}

// VersionRecord is one row of an entity type's log.
type VersionRecord struct {
	VersionID     string            `json:"version_id"`
	Entity        string            `json:"entity"`
	Node          string            `json:"node"`
	Columns       map[string]any    `json:"columns,omitempty"`
	References    map[string]string `json:"references,omitempty"` // reference name -> target version id
	Definition    IRValue           `json:"definition"`
	Metadata      IRValue           `json:"metadata"`
	Specification IRValue           `json:"specification"`
	Status        IRValue           `json:"status"`
	ContentHash   string            `json:"content_hash"`
	ObservedAt    time.Time         `json:"observed_at"`
	Deleted       bool              `json:"deleted"`
	DisplayName   string            `json:"display_name,omitempty"`

	// Inserted is set by upserts: true when the row was appended, false when
	// an existing row with the same content was refreshed.
	Inserted bool `json:"inserted"`
}

// SweepResult summarizes one deletion sweep.
type SweepResult struct {
	Entity     string          `json:"entity"`
	Observed   int             `json:"observed"`
	LiveBefore int             `json:"live_before"`
	Tombstoned int             `json:"tombstoned"`
	Tombstones []VersionRecord `json:"tombstones,omitempty"`
}
