// Package api provides the client for the lottery backend REST API.
//
// Endpoints (relative to the configured base URL, e.g. http://localhost:3001/api):
//   - GET /player/{account}/plays[?status=pending|settled]
//   - GET /play/{deployHash}
//   - GET /lottery/current
//
// Liveness is served outside the /api prefix at GET /health.
//
// Amounts are reported in motes (1 CSPR = 1e9 motes), as JSON strings or numbers.
package api
