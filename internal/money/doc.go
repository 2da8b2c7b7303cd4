// Package money converts between the chain's smallest unit (motes) and
// CSPR display values.
//
// Conventions:
//   - Backend amounts are integer motes, carried as decimal.Decimal.
//   - 1 CSPR = 1,000,000,000 motes; conversion is an exact decimal shift.
//   - Rounding happens only in the Format helpers, half away from zero.
//   - Comparisons ("prize > 0") use the unrounded value.
package money
