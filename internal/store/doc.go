// Package store holds the canonical keyed collection of ticket entries.
//
// Every write derives a new immutable snapshot from the previous one and
// publishes it atomically. Readers never observe a partially applied update,
// and a rekey removes the old key and inserts the new one in the same step.
//
// Writes are serialized by a mutex; the engine performs them all from its
// update loop, so the mutex only matters for standalone use.
package store
