// Package recorder persists every realtime event to PostgreSQL.
//
// Handlers only enqueue rows, so the client's dispatch goroutine never waits
// on the database. A consumer goroutine batches rows and inserts them with
// pgx.Batch, flushing on size or on the flush interval. Inserts are
// append-only with ON CONFLICT DO NOTHING on the row id.
package recorder
