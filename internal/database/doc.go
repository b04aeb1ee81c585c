// Package database manages the PostgreSQL connection pool used by the event recorder.
//
// The recorder keeps one append-only table, realtime_events, keyed by a
// client-generated UUID so retried batches never duplicate rows.
package database
