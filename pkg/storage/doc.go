// Package storage is the Persistence Store: a SQLite-backed table
// store for instances, snapshots, health samples and metrics samples,
// with ordinal .sql/.down.sql migrations embedded and applied by
// Migrate. See SQLiteStore for the Store implementation.
package storage
