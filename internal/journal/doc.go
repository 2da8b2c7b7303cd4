// Package journal appends outcome signals to a PostgreSQL table.
//
// The Journal is an outcome.Sink: signals are buffered and written in
// batches with pgx, on size or on a flush interval. Rows are keyed by the
// signal id, so a replayed signal is ignored.
package journal
