// Package ir provides the foundational types for fleetcrawl: entity type
// descriptors, observations, version records, and the canonical value
// representation used for content addressing.
//
// All other internal packages import ir; ir imports nothing internal.
//
// Key design constraints:
//   - Definitions are hashed from RFC 8785 canonical JSON only
//   - Logical node ids are UUIDs, derived deterministically from natural keys
//   - Version ids are UUIDv7 and never change once written
//   - All JSON tags use snake_case
package ir
