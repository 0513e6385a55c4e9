// Package storage keeps the audit history of the daemon: alerts fired or
// skipped, playback sessions and operator actions.
//
// Backends:
//   - "file": JSON Lines, dependency-free
//   - "sqlite": modernc.org/sqlite through sqlx
//   - "postgres": lib/pq through sqlx
//
// History is informational only; the schedule is never restored from it.
package storage
