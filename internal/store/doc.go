// Package store implements the instrument and candle queries the history
// scheduler runs against PostgreSQL, plus the instrument upsert used by
// the instruments import command.
package store
