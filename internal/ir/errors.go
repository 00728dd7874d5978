package ir

import (
	"errors"
	"fmt"
)

// MalformedDefinitionError reports a definition that cannot be serialized
// to canonical JSON.
type MalformedDefinitionError struct {
	Reason string
	Err    error
}

func (e *MalformedDefinitionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed definition: %s: %v", e.Reason, e.Err)
	}
	return "malformed definition: " + e.Reason
}

func (e *MalformedDefinitionError) Unwrap() error {
	return e.Err
}

// IsMalformedDefinition reports whether err is or wraps a MalformedDefinitionError.
func IsMalformedDefinition(err error) bool {
	var mde *MalformedDefinitionError
	return errors.As(err, &mde)
}
