package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content addressing.
// Version suffix enables future algorithm migration.
const (
	DomainDefinition = "fleetcrawl/definition/v1"
	DomainDescriptor = "fleetcrawl/descriptor/v1"
)

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// ContentHash computes the content hash of an object definition: 64 hex
// characters, identical for semantically identical definitions regardless
// of key order or integral-number spelling.
func ContentHash(definition any) (string, error) {
	canonical, err := MarshalCanonical(definition)
	if err != nil {
		return "", fmt.Errorf("content hash: %w", err)
	}
	return hashWithDomain(DomainDefinition, canonical), nil
}

// DescriptorHash fingerprints an entity type descriptor for the registry.
func DescriptorHash(e EntityType) (string, error) {
	canonical, err := MarshalCanonical(e.descriptor())
	if err != nil {
		return "", fmt.Errorf("descriptor hash: %w", err)
	}
	return hashWithDomain(DomainDescriptor, canonical), nil
}

// MustContentHash is like ContentHash but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustContentHash(definition any) string {
	h, err := ContentHash(definition)
	if err != nil {
		panic(err)
	}
	return h
}
