// Package wallet defines the boundary with the wallet that signs and sends
// lottery transactions.
//
// The wallet hands back a deploy hash as soon as a transaction is sent and
// then reports its progress as a stream of status updates:
//
//	sent       accepted by the wallet, no result yet
//	processed  executed on chain, success or an execution error
//	cancelled  rejected by the user
//	timeout    the wallet gave up waiting
//	error      the wallet failed to send
//
// Classify turns one update into a Result or a rejection error. Retrying a
// rejected transaction is the wallet's business, never the caller's.
package wallet
