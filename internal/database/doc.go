// Package database provides the PostgreSQL connection pool and schema
// migrations for the candle store.
//
// The schema lives in migrations/ and is embedded into the binary, so the
// same SQL backs the migrate command and the database-backed tests:
//   - instrument: surrogate smallint key, external uid, history flag
//   - candle: (instrument, timestamp) keyed minute bars with OHLC checks
package database
