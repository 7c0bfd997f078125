// Package model defines shared data types used across the candle history ingester.
//
// All types mirror the database schema in internal/database/migrations.
//
// Conventions:
//   - Timestamps: int32 minutes since 2000-01-01T00:00:00Z (see ToMinutes)
//   - Prices: float32 (PostgreSQL real)
//   - IDs: int16 surrogate keys everywhere, uuid.UUID for the external instrument UID
package model
