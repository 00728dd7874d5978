// Package store provides the versioned log store for crawled entities.
//
// Each entity type owns an append-only log table and a current view:
//   - <name>_log: one row per observed version, never updated except for a
//     definition refresh on identical content
//   - <plural>: the newest non-deleted row per logical node
//
// # Critical Patterns
//
// Content addressing:
//   - UNIQUE(node, content_hash, deleted) makes repeat observations no-ops
//   - ON CONFLICT ... DO UPDATE refreshes the stored definition in place, so
//     version ids referenced elsewhere stay valid
//
// Deterministic ordering:
//   - The current row is chosen by (observed_at DESC, version_id DESC);
//     version ids are UUIDv7 so the tie-break follows creation order
//   - All read queries carry an ORDER BY
//
// Deletion:
//   - Sweep appends tombstones (deleted = TRUE) for live nodes that were not
//     observed; nothing is ever physically removed
//
// # Backends
//
// SQLite (github.com/mattn/go-sqlite3) runs on a single connection in WAL
// mode. Postgres goes through a pgx pool exposed as database/sql.
package store
