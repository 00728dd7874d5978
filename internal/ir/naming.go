package ir

import (
	"fmt"
	"regexp"
	"strings"
)

var identifierPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// fixedColumns are present on every log table and current view.
var fixedColumns = map[string]bool{
	"version_id":    true,
	"node":          true,
	"definition":    true,
	"metadata":      true,
	"specification": true,
	"status":        true,
	"content_hash":  true,
	"observed_at":   true,
	"deleted":       true,
}

// sqlKeywords are rejected as identifiers so DDL never needs quoting.
var sqlKeywords = map[string]bool{
	"all": true, "and": true, "as": true, "asc": true, "by": true,
	"check": true, "column": true, "constraint": true, "create": true,
	"default": true, "delete": true, "desc": true, "distinct": true,
	"drop": true, "from": true, "group": true, "having": true, "in": true,
	"index": true, "insert": true, "into": true, "is": true, "join": true,
	"limit": true, "not": true, "null": true, "offset": true, "on": true,
	"or": true, "order": true, "primary": true, "references": true,
	"select": true, "table": true, "to": true, "union": true, "unique": true,
	"update": true, "user": true, "using": true, "view": true, "where": true,
	"with": true, "true": true, "false": true,
}

// IsReservedColumn reports whether name is taken by a fixed log column or
// the view's display_name.
func IsReservedColumn(name string) bool {
	return fixedColumns[name] || name == "display_name"
}

// Pluralize derives the current view name from an entity name:
// ss -> sses, cy -> cies, ch/sh -> +es, otherwise +s.
func Pluralize(name string) string {
	switch {
	case strings.HasSuffix(name, "ss"):
		return name + "es"
	case strings.HasSuffix(name, "cy"):
		return strings.TrimSuffix(name, "y") + "ies"
	case strings.HasSuffix(name, "ch"), strings.HasSuffix(name, "sh"):
		return name + "es"
	default:
		return name + "s"
	}
}

// ValidateIdentifier checks that name is usable unquoted as a SQL identifier.
func ValidateIdentifier(name string) error {
	if !identifierPattern.MatchString(name) {
		return fmt.Errorf("invalid identifier %q: must match %s", name, identifierPattern)
	}
	if sqlKeywords[name] {
		return fmt.Errorf("invalid identifier %q: reserved SQL keyword", name)
	}
	return nil
}

// Validate checks a single entity type in isolation. Cross-type checks
// (unknown targets, cycles) live with the descriptor compiler.
func (e EntityType) Validate() error {
	if err := ValidateIdentifier(e.Name); err != nil {
		return fmt.Errorf("entity name: %w", err)
	}
	if err := ValidateIdentifier(e.ViewName()); err != nil {
		return fmt.Errorf("entity %s plural: %w", e.Name, err)
	}
	if e.ViewName() == e.LogTable() {
		return fmt.Errorf("entity %s: plural %q collides with log table", e.Name, e.ViewName())
	}

	seen := make(map[string]string)
	claim := func(col, owner string) error {
		if IsReservedColumn(col) {
			return fmt.Errorf("entity %s: %s %q uses a reserved column name", e.Name, owner, col)
		}
		if prev, ok := seen[col]; ok {
			return fmt.Errorf("entity %s: %s %q collides with %s", e.Name, owner, col, prev)
		}
		seen[col] = owner
		return nil
	}

	for _, c := range e.Columns {
		if err := ValidateIdentifier(c.Name); err != nil {
			return fmt.Errorf("entity %s column: %w", e.Name, err)
		}
		if !ValidColumnTypes[c.Type] {
			return fmt.Errorf("entity %s column %s: unknown type %q", e.Name, c.Name, c.Type)
		}
		if err := claim(c.Name, "column"); err != nil {
			return err
		}
	}

	for _, r := range e.References {
		if err := ValidateIdentifier(r.Name); err != nil {
			return fmt.Errorf("entity %s reference: %w", e.Name, err)
		}
		if err := ValidateIdentifier(r.Target); err != nil {
			return fmt.Errorf("entity %s reference %s target: %w", e.Name, r.Name, err)
		}
		if len(r.Lookup) == 0 {
			return fmt.Errorf("entity %s reference %s: lookup columns required", e.Name, r.Name)
		}
		for _, l := range r.Lookup {
			if err := ValidateIdentifier(l); err != nil {
				return fmt.Errorf("entity %s reference %s lookup: %w", e.Name, r.Name, err)
			}
		}
		if err := claim(r.ColumnName(), "reference"); err != nil {
			return err
		}
	}
	return nil
}
