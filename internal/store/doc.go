// Package store provides a SQLite-backed evaluation journal.
//
// The journal is an append-only log of runs. Each run holds the events
// applied to one dampening lifecycle, in order:
//   - activate: a policy became active for a key (policy stored as JSON)
//   - deactivate: the key was discarded
//   - reset: the key was explicitly reset after acting on a verdict
//   - round: one evaluation round, its "now" and the resulting verdict
//
// Round verdicts carry an evidence hash (ir.EvidenceHash) so a replay can be
// compared against the recording without storing the full trail.
//
// # Ordering
//
// All ordering uses seq INTEGER (logical clock per run), never timestamps.
// Queries use ORDER BY seq ASC so results are identical across reads.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
