// Package engine ties the reconciliation components together for one
// account.
//
// A single goroutine owns every piece of tracking state (live set, task
// registry, notifier, current round). Background work (resolution,
// fulfillment watches, settlement polls, periodic refresh) performs I/O
// only and reports back by posting a Msg to that goroutine, where one
// update function applies it to the Store.
//
// Every background task is registered under a uuid token. A message whose
// token no longer matches the registry is dropped, so a task cancelled or
// superseded while its I/O was in flight cannot touch the Store.
package engine
