// Package store provides SQLite-backed history of statistics snapshots.
//
// A snapshot is a copy of every nonzero statistics entry at one moment,
// tagged with the device name and a free-form label (for example the
// benchmark that produced it).
//
// # Ordering
//
//   - Snapshots are ordered by seq, a logical counter assigned inside the
//     insert transaction. Wall-clock time is never used for ordering.
//   - Entries within a snapshot are ordered by index.
//
// # Connections
//
// Every connection runs in WAL mode with synchronous=NORMAL, a 5s busy
// timeout and foreign keys enforced, so deleting a snapshot removes its
// entries. The schema version lives in PRAGMA user_version.
//
// Snapshot IDs are UUIDv7, so they also sort by creation time.
package store
