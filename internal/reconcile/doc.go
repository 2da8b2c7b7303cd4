// Package reconcile folds backend play snapshots into the locally known
// ticket list.
//
// The backend is authoritative for every ticket it reports. Local knowledge
// survives only where the backend is silent: session fields the backend does
// not carry (transaction hashes, fulfillment), the awaiting flag of pending
// tickets, and tickets submitted moments ago that are not indexed yet.
//
// Merge is idempotent: merging the same snapshot into its own output
// returns the output unchanged.
package reconcile
