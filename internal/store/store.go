package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rickgao/candled/internal/model"
)

// Store reads and writes instruments and candle bounds.
type Store struct {
	db     *pgxpool.Pool
	logger *slog.Logger
}

// New creates a Store.
func New(db *pgxpool.Pool, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger}
}

const instrumentColumns = `i.id, i.uid, i.asset_type, i.name, i.ticker, coalesce(i.figi, ''), i.lot,
	i.otc, i.qual, i.api_trade_available, i.has_earliest_1min_candle`

// EarliestCandles returns instruments of the given asset types that have a
// FIGI and no history flag, each with its earliest candle time.
func (s *Store) EarliestCandles(ctx context.Context, assetTypes []model.AssetType) ([]model.HistoryBound, error) {
	return s.bounds(ctx, `
		SELECT `+instrumentColumns+`, min(c.timestamp)
		FROM instrument i
		LEFT JOIN candle c ON c.instrument = i.id
		WHERE NOT i.has_earliest_1min_candle
			AND i.figi IS NOT NULL AND i.figi <> ''
			AND i.asset_type = ANY($1)
		GROUP BY i.id
		ORDER BY i.id
	`, assetTypes)
}

// LatestCandles returns instruments of the given asset types that have a
// FIGI, each with its latest candle time, oldest first.
func (s *Store) LatestCandles(ctx context.Context, assetTypes []model.AssetType) ([]model.HistoryBound, error) {
	return s.bounds(ctx, `
		SELECT `+instrumentColumns+`, max(c.timestamp)
		FROM instrument i
		LEFT JOIN candle c ON c.instrument = i.id
		WHERE i.figi IS NOT NULL AND i.figi <> ''
			AND i.asset_type = ANY($1)
		GROUP BY i.id
		ORDER BY max(c.timestamp) NULLS FIRST, i.id
	`, assetTypes)
}

func (s *Store) bounds(ctx context.Context, query string, assetTypes []model.AssetType) ([]model.HistoryBound, error) {
	types := make([]string, len(assetTypes))
	for i, t := range assetTypes {
		types[i] = string(t)
	}

	rows, err := s.db.Query(ctx, query, types)
	if err != nil {
		return nil, fmt.Errorf("query candle bounds: %w", err)
	}

	bounds, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.HistoryBound, error) {
		var (
			b       model.HistoryBound
			minutes *int32
		)
		err := row.Scan(
			&b.Instrument.ID,
			&b.Instrument.UID,
			&b.Instrument.AssetType,
			&b.Instrument.Name,
			&b.Instrument.Ticker,
			&b.Instrument.FIGI,
			&b.Instrument.Lot,
			&b.Instrument.OTC,
			&b.Instrument.QualifiedOnly,
			&b.Instrument.APITradeAvailable,
			&b.Instrument.HasEarliestCandle,
			&minutes,
		)
		if minutes != nil {
			b.Timestamp = model.ToTime(*minutes)
		}
		return b, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan candle bounds: %w", err)
	}
	return bounds, nil
}

// MarkHasEarliestCandle records that the instrument's backward history is
// exhausted.
func (s *Store) MarkHasEarliestCandle(ctx context.Context, instrumentID int16) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE instrument SET has_earliest_1min_candle = true WHERE id = $1`, instrumentID)
	if err != nil {
		return fmt.Errorf("mark history beginning: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("mark history beginning: instrument %d not found", instrumentID)
	}
	return nil
}

// UpsertResult counts the outcome of UpsertInstruments.
type UpsertResult struct {
	Inserted int
	Updated  int
}

// UpsertInstruments inserts new instruments and updates known ones, keyed
// by UID. The surrogate id and the history flag of existing rows are kept.
func (s *Store) UpsertInstruments(ctx context.Context, instruments []model.Instrument) (UpsertResult, error) {
	var res UpsertResult
	if len(instruments) == 0 {
		return res, nil
	}

	start := time.Now()
	err := runTx(ctx, s.db, func(ctx context.Context, tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, inst := range instruments {
			batch.Queue(`
				INSERT INTO instrument (uid, asset_type, name, ticker, figi, lot, otc, qual, api_trade_available)
				VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, $8, $9)
				ON CONFLICT (uid) DO UPDATE SET
					asset_type = EXCLUDED.asset_type,
					name = EXCLUDED.name,
					ticker = EXCLUDED.ticker,
					figi = EXCLUDED.figi,
					lot = EXCLUDED.lot,
					otc = EXCLUDED.otc,
					qual = EXCLUDED.qual,
					api_trade_available = EXCLUDED.api_trade_available
				RETURNING (xmax = 0)
			`, inst.UID, string(inst.AssetType), inst.Name, inst.Ticker, inst.FIGI,
				inst.Lot, inst.OTC, inst.QualifiedOnly, inst.APITradeAvailable)
		}

		results := tx.SendBatch(ctx, batch)
		defer results.Close()

		for _, inst := range instruments {
			var inserted bool
			if err := results.QueryRow().Scan(&inserted); err != nil {
				return fmt.Errorf("upsert instrument %s: %w", inst.UID, err)
			}
			if inserted {
				res.Inserted++
			} else {
				res.Updated++
			}
		}
		return results.Close()
	})
	if err != nil {
		return UpsertResult{}, err
	}

	s.logger.Info("instruments upserted",
		"inserted", res.Inserted,
		"updated", res.Updated,
		"duration", time.Since(start),
	)
	return res, nil
}

// Instrument returns the instrument with the given UID.
func (s *Store) Instrument(ctx context.Context, uid uuid.UUID) (model.Instrument, error) {
	var inst model.Instrument
	err := s.db.QueryRow(ctx, `SELECT `+instrumentColumns+` FROM instrument i WHERE i.uid = $1`, uid).Scan(
		&inst.ID,
		&inst.UID,
		&inst.AssetType,
		&inst.Name,
		&inst.Ticker,
		&inst.FIGI,
		&inst.Lot,
		&inst.OTC,
		&inst.QualifiedOnly,
		&inst.APITradeAvailable,
		&inst.HasEarliestCandle,
	)
	if err != nil {
		return model.Instrument{}, fmt.Errorf("get instrument %s: %w", uid, err)
	}
	return inst, nil
}

// CountCandles returns the number of candles stored for an instrument.
func (s *Store) CountCandles(ctx context.Context, instrumentID int16) (int64, error) {
	var n int64
	err := s.db.QueryRow(ctx, `SELECT count(*) FROM candle WHERE instrument = $1`, instrumentID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count candles: %w", err)
	}
	return n, nil
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// runTx runs f in a transaction, committing if f returns nil.
func runTx(ctx context.Context, db *pgxpool.Pool, f func(ctx context.Context, tx pgx.Tx) error) error {
	tx, err := db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := f(ctx, tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
