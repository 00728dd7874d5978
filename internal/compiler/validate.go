package compiler

import (
	"fmt"

	"github.com/roach88/fleetcrawl/internal/ir"
)

// Validation error codes (E100-E199)
const (
	ErrInvalidIdentifier   = "E101" // name not usable as an unquoted SQL identifier
	ErrUnknownColumnType   = "E102" // column type not in ir.ValidColumnTypes
	ErrReservedColumn      = "E103" // column or reference collides with a fixed column
	ErrDuplicateName       = "E104" // duplicate entity, column or reference name
	ErrUnknownTarget       = "E105" // reference target not declared
	ErrUnknownLookupColumn = "E106" // lookup column missing on the target
	ErrReferenceCycle      = "E107" // entity types reference each other
	ErrMissingLookup       = "E108" // reference without lookup columns
	ErrInvalidEntity       = "E109" // any other descriptor error
)

// ValidationError represents a descriptor validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate checks a set of entity types, individually and against each
// other. Returns all errors found (does not fail-fast).
func Validate(entities []ir.EntityType) []ValidationError {
	var errs []ValidationError

	byName := make(map[string]ir.EntityType, len(entities))
	for _, e := range entities {
		if _, dup := byName[e.Name]; dup {
			errs = append(errs, ValidationError{
				Field:   "entity." + e.Name,
				Message: fmt.Sprintf("duplicate entity name: %q", e.Name),
				Code:    ErrDuplicateName,
			})
			continue
		}
		byName[e.Name] = e
	}

	for _, e := range entities {
		errs = append(errs, validateEntity(e)...)
		errs = append(errs, validateReferences(e, byName)...)
	}

	for _, c := range AnalyzeReferenceCycles(entities) {
		errs = append(errs, ValidationError{
			Field:   "entity." + c.Path[0],
			Message: c.Message,
			Code:    ErrReferenceCycle,
		})
	}

	return errs
}

// validateEntity checks one descriptor in isolation.
func validateEntity(e ir.EntityType) []ValidationError {
	var errs []ValidationError
	prefix := "entity." + e.Name

	if err := ir.ValidateIdentifier(e.Name); err != nil {
		errs = append(errs, ValidationError{Field: prefix, Message: err.Error(), Code: ErrInvalidIdentifier})
	}

	seen := make(map[string]bool)
	for _, c := range e.Columns {
		field := prefix + ".columns." + c.Name
		if err := ir.ValidateIdentifier(c.Name); err != nil {
			errs = append(errs, ValidationError{Field: field, Message: err.Error(), Code: ErrInvalidIdentifier})
		}
		if ir.IsReservedColumn(c.Name) {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("column name %q is reserved", c.Name),
				Code:    ErrReservedColumn,
			})
		}
		if !ir.ValidColumnTypes[c.Type] {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("unknown column type %q", c.Type),
				Code:    ErrUnknownColumnType,
			})
		}
		if seen[c.Name] {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("duplicate column name: %q", c.Name),
				Code:    ErrDuplicateName,
			})
		}
		seen[c.Name] = true
	}

	for _, r := range e.References {
		field := prefix + ".references." + r.Name
		if err := ir.ValidateIdentifier(r.Name); err != nil {
			errs = append(errs, ValidationError{Field: field, Message: err.Error(), Code: ErrInvalidIdentifier})
		}
		if ir.IsReservedColumn(r.ColumnName()) {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("reference column %q is reserved", r.ColumnName()),
				Code:    ErrReservedColumn,
			})
		}
		if seen[r.ColumnName()] {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("reference column %q collides with another column", r.ColumnName()),
				Code:    ErrDuplicateName,
			})
		}
		seen[r.ColumnName()] = true
		if len(r.Lookup) == 0 {
			errs = append(errs, ValidationError{
				Field:   field + ".lookup",
				Message: "at least one lookup column is required",
				Code:    ErrMissingLookup,
			})
		}
	}

	// Whatever the checks above do not cover (plural naming and the like).
	if len(errs) == 0 {
		if err := e.Validate(); err != nil {
			errs = append(errs, ValidationError{Field: prefix, Message: err.Error(), Code: ErrInvalidEntity})
		}
	}
	return errs
}

// validateReferences checks targets and lookup columns against the set.
func validateReferences(e ir.EntityType, byName map[string]ir.EntityType) []ValidationError {
	var errs []ValidationError
	for _, r := range e.References {
		field := fmt.Sprintf("entity.%s.references.%s", e.Name, r.Name)
		target, ok := byName[r.Target]
		if !ok {
			errs = append(errs, ValidationError{
				Field:   field + ".target",
				Message: fmt.Sprintf("unknown target entity %q", r.Target),
				Code:    ErrUnknownTarget,
			})
			continue
		}
		for _, col := range r.Lookup {
			if !target.HasColumn(col) {
				errs = append(errs, ValidationError{
					Field:   field + ".lookup",
					Message: fmt.Sprintf("target %s has no column %q", r.Target, col),
					Code:    ErrUnknownLookupColumn,
				})
			}
		}
	}
	return errs
}
