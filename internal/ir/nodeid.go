package ir

import (
	"errors"

	"github.com/google/uuid"
)

// NamespaceNode is the namespace natural keys are derived under. It is the
// RFC 4122 URL namespace so ids can be reproduced with any UUIDv5 tool.
var NamespaceNode = uuid.NameSpaceURL

// ErrEmptyLogicalID is returned for observations without a natural key.
var ErrEmptyLogicalID = errors.New("logical id is empty")

// DeriveStableID maps a natural key to a UUIDv5 under namespace. It is pure:
// the same inputs give the same id on every host and every run.
func DeriveStableID(namespace uuid.UUID, naturalKey string) string {
	return uuid.NewSHA1(namespace, []byte(naturalKey)).String()
}

// ResolveLogicalID returns the node id for a natural key. Keys that already
// parse as a UUID are used verbatim in canonical lower-case form.
func ResolveLogicalID(naturalKey string) (string, error) {
	if naturalKey == "" {
		return "", ErrEmptyLogicalID
	}
	if id, err := uuid.Parse(naturalKey); err == nil {
		return id.String(), nil
	}
	return DeriveStableID(NamespaceNode, naturalKey), nil
}
