package store

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"

	"github.com/roach88/fleetcrawl/internal/ir"
)

// MalformedDefinitionError is returned when a definition cannot be hashed.
type MalformedDefinitionError = ir.MalformedDefinitionError

// TransientIOError wraps store failures that may succeed on retry: lock
// contention, dropped connections, timeouts.
type TransientIOError struct {
	Op     string
	Entity string
	Err    error
}

func (e *TransientIOError) Error() string {
	return fmt.Sprintf("%s %s: transient I/O error: %v", e.Op, e.Entity, e.Err)
}

func (e *TransientIOError) Unwrap() error { return e.Err }

// ErrReferenceNotSupplied is the cause of a ReferenceResolutionError for a
// required reference the observation left out.
var ErrReferenceNotSupplied = errors.New("required reference not supplied")

// ReferenceResolutionError reports a declared reference that could not be
// resolved: it was not supplied, its lookup was incomplete, or the lookup
// found no live row in the target's current view.
type ReferenceResolutionError struct {
	Entity    string
	LogicalID string
	Reference string
	Target    string
	Lookup    map[string]any
	Err       error
}

func (e *ReferenceResolutionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %q: reference %s to %s: %v",
			e.Entity, e.LogicalID, e.Reference, e.Target, e.Err)
	}
	keys := make([]string, 0, len(e.Lookup))
	for k := range e.Lookup {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, len(keys))
	for i, k := range keys {
		pairs[i] = fmt.Sprintf("%s=%v", k, e.Lookup[k])
	}
	return fmt.Sprintf("%s %q: reference %s: no current %s with %s",
		e.Entity, e.LogicalID, e.Reference, e.Target, strings.Join(pairs, ", "))
}

func (e *ReferenceResolutionError) Unwrap() error { return e.Err }

// SchemaProvisionError reports DDL that could not be applied.
type SchemaProvisionError struct {
	Entity    string
	Statement string
	Err       error
}

func (e *SchemaProvisionError) Error() string {
	return fmt.Sprintf("provision %s: %v", e.Entity, e.Err)
}

func (e *SchemaProvisionError) Unwrap() error { return e.Err }

// ObservationError reports an observation that does not fit its entity
// type: undeclared references or columns, values of the wrong type, a
// missing logical id.
type ObservationError struct {
	Entity    string
	LogicalID string
	Field     string
	Message   string
}

func (e *ObservationError) Error() string {
	return fmt.Sprintf("%s %q: %s: %s", e.Entity, e.LogicalID, e.Field, e.Message)
}

// IsTransient reports whether err is or wraps a TransientIOError.
func IsTransient(err error) bool {
	var te *TransientIOError
	return errors.As(err, &te)
}

// IsReferenceError reports whether err is or wraps a ReferenceResolutionError.
func IsReferenceError(err error) bool {
	var re *ReferenceResolutionError
	return errors.As(err, &re)
}

// IsSchemaProvisionError reports whether err is or wraps a SchemaProvisionError.
func IsSchemaProvisionError(err error) bool {
	var se *SchemaProvisionError
	return errors.As(err, &se)
}

// IsObservationError reports whether err is or wraps an ObservationError.
func IsObservationError(err error) bool {
	var oe *ObservationError
	return errors.As(err, &oe)
}

// IsMalformedDefinition reports whether err is or wraps a MalformedDefinitionError.
func IsMalformedDefinition(err error) bool {
	return ir.IsMalformedDefinition(err)
}

// wrapIO annotates err with op and entity, classifying retryable failures
// as TransientIOError.
func wrapIO(op, entity string, err error) error {
	if err == nil {
		return nil
	}
	if isTransient(err) {
		return &TransientIOError{Op: op, Entity: entity, Err: err}
	}
	return fmt.Errorf("%s %s: %w", op, entity, err)
}

func isTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, driver.ErrBadConn) {
		return true
	}
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked
	}
	return pgconn.Timeout(err) || pgconn.SafeToRetry(err)
}
