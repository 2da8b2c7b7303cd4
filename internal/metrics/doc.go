// Package metrics provides Prometheus metrics for monitoring.
//
// Key metrics:
//   - Deploy-hash resolution attempts and outcomes
//   - Fulfillment push events and ready signals
//   - Settlement poll attempts and outcomes
//   - Merge count, store size and refresh latency
//   - Outcome signals and swallowed background errors
//
// A nil *Metrics is valid and records nothing.
package metrics
