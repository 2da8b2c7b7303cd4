// Package poller polls the backend for ticket state.
//
// Settler follows a single ticket after its settlement deploy is accepted,
// until the backend reports a terminal status or the attempt bound runs out.
// Refresher periodically fetches the round snapshot and the account's full
// play list for reconciliation.
package poller
