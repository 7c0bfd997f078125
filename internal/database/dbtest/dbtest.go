// Package dbtest connects tests to a scratch PostgreSQL database.
//
// Tests using it are skipped unless CANDLED_TEST_DATABASE_URL names a
// database the test may migrate and write to.
package dbtest

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rickgao/candled/internal/database"
)

// EnvURL names the connection URL variable.
const EnvURL = "CANDLED_TEST_DATABASE_URL"

// Pool returns a pool on a migrated test database, closed at test cleanup.
func Pool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	url := os.Getenv(EnvURL)
	if url == "" {
		t.Skipf("%s not set", EnvURL)
	}

	m, err := database.NewMigratorURL(url, nil)
	if err != nil {
		t.Fatalf("create migrator: %v", err)
	}
	if _, err := database.MigrateUp(m); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	m.Close()

	pool, err := pgxpool.New(context.Background(), url)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)
	return pool
}

// Instrument inserts a throwaway instrument and returns its id. It and its
// candles are deleted at test cleanup.
func Instrument(t *testing.T, pool *pgxpool.Pool, assetType, figi string) int16 {
	t.Helper()
	ctx := context.Background()

	uid := uuid.New()
	var id int16
	err := pool.QueryRow(ctx, `
		INSERT INTO instrument (uid, asset_type, name, ticker, figi)
		VALUES ($1, $2, $3, $3, NULLIF($4, ''))
		RETURNING id
	`, uid, assetType, "test-"+uid.String()[:8], figi).Scan(&id)
	if err != nil {
		t.Fatalf("insert instrument: %v", err)
	}

	t.Cleanup(func() {
		pool.Exec(ctx, `DELETE FROM candle WHERE instrument = $1`, id)
		pool.Exec(ctx, `DELETE FROM instrument WHERE id = $1`, id)
	})
	return id
}

// CountCandles returns the number of candles stored for an instrument.
func CountCandles(t *testing.T, pool *pgxpool.Pool, id int16) int64 {
	t.Helper()
	var n int64
	if err := pool.QueryRow(context.Background(), `SELECT count(*) FROM candle WHERE instrument = $1`, id).Scan(&n); err != nil {
		t.Fatalf("count candles: %v", err)
	}
	return n
}
