// Package model defines the ticket types shared across the engine.
//
// Conventions:
//   - Amounts: decimal.Decimal in CSPR display units, converted exactly
//     from backend motes (see package money).
//   - Identifiers: RequestID is the Store key. It starts out as the entry
//     deploy hash (placeholder) and becomes the short canonical request id
//     ("0x5") once the backend has indexed the purchase.
//   - Timestamps: time.Time, UTC.
package model
