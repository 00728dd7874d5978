package compiler

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/fleetcrawl/internal/ir"
)

// CompileEntity parses a CUE value into an EntityType.
//
// The CUE value should be the entity struct itself, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`entity: widget: { columns: { name: "text" } }`)
//	e, err := CompileEntity(v.LookupPath(cue.ParsePath("entity.widget")))
//
// Columns and references keep their declaration order.
func CompileEntity(v cue.Value) (*ir.EntityType, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	e := &ir.EntityType{}

	labels := v.Path().Selectors()
	if len(labels) > 0 {
		e.Name = labels[len(labels)-1].String()
	}

	var err error
	if e.Plural, err = optionalString(v, "plural"); err != nil {
		return nil, err
	}
	if e.NameExpression, err = optionalString(v, "name_expression"); err != nil {
		return nil, err
	}

	e.Columns, err = parseColumns(v)
	if err != nil {
		return nil, err
	}
	e.References, err = parseReferences(v)
	if err != nil {
		return nil, err
	}

	return e, nil
}

func optionalString(v cue.Value, field string) (string, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return "", nil
	}
	s, err := fv.String()
	if err != nil {
		return "", &CompileError{Field: field, Message: "must be a string", Pos: fv.Pos()}
	}
	return s, nil
}

// parseColumns reads `columns: { <name>: "<type>" }`.
func parseColumns(v cue.Value) ([]ir.Column, error) {
	colsVal := v.LookupPath(cue.ParsePath("columns"))
	if !colsVal.Exists() {
		return nil, nil
	}

	iter, err := colsVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var cols []ir.Column
	for iter.Next() {
		name := iter.Label()
		typ, err := iter.Value().String()
		if err != nil {
			return nil, &CompileError{
				Field:   "columns." + name,
				Message: "column type must be a string such as \"text\" or \"integer\"",
				Pos:     iter.Value().Pos(),
			}
		}
		cols = append(cols, ir.Column{Name: name, Type: ir.ColumnType(typ)})
	}
	return cols, nil
}

// parseReferences reads `references: { <name>: { target: "...", lookup: [...], optional?: bool } }`.
func parseReferences(v cue.Value) ([]ir.Reference, error) {
	refsVal := v.LookupPath(cue.ParsePath("references"))
	if !refsVal.Exists() {
		return nil, nil
	}

	iter, err := refsVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var refs []ir.Reference
	for iter.Next() {
		name := iter.Label()
		refVal := iter.Value()
		ref := ir.Reference{Name: name}

		targetVal := refVal.LookupPath(cue.ParsePath("target"))
		if !targetVal.Exists() {
			return nil, &CompileError{
				Field:   fmt.Sprintf("references.%s.target", name),
				Message: "reference target is required",
				Pos:     refVal.Pos(),
			}
		}
		if ref.Target, err = targetVal.String(); err != nil {
			return nil, formatCUEError(err)
		}

		lookupVal := refVal.LookupPath(cue.ParsePath("lookup"))
		if !lookupVal.Exists() {
			return nil, &CompileError{
				Field:   fmt.Sprintf("references.%s.lookup", name),
				Message: "reference lookup columns are required",
				Pos:     refVal.Pos(),
			}
		}
		lookupIter, err := lookupVal.List()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for lookupIter.Next() {
			col, err := lookupIter.Value().String()
			if err != nil {
				return nil, formatCUEError(err)
			}
			ref.Lookup = append(ref.Lookup, col)
		}

		if optVal := refVal.LookupPath(cue.ParsePath("optional")); optVal.Exists() {
			if ref.Optional, err = optVal.Bool(); err != nil {
				return nil, &CompileError{
					Field:   fmt.Sprintf("references.%s.optional", name),
					Message: "must be a boolean",
					Pos:     optVal.Pos(),
				}
			}
		}

		refs = append(refs, ref)
	}
	return refs, nil
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	// CUE errors may contain multiple errors
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
