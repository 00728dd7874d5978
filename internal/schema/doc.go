// Package schema generates the SQL that backs an entity type: the
// append-only log table, its indexes, the current view, and the statements
// the store runs against them.
//
// Everything here is a pure function of a Dialect and an ir.EntityType.
// Identifiers are validated by ir.ValidateIdentifier and interpolated
// unquoted; values are always bound as parameters.
package schema
