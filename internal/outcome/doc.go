// Package outcome turns ticket status transitions into one-time outcome
// signals and fans them out to sinks.
package outcome
