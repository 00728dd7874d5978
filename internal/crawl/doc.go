// Package crawl runs crawl cycles: every connector is observed, its
// observations are upserted concurrently, and the entity type is then swept
// for nodes that were not seen.
//
// Entity types are processed in reference order. Types with no reference
// between them share a level and run concurrently; levels run one after
// another so that a reference target has been upserted (and swept) before
// the types pointing at it resolve their references.
//
// A failed upsert never aborts its siblings. Its logical id still counts
// as observed, so a transient write failure cannot make the sweep delete a
// node that exists. Whether the sweep runs at all is decided by
// SweepPolicy.
package crawl
