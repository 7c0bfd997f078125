package writer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrSessionClosed is returned when a committed or rolled back session is used.
var ErrSessionClosed = errors.New("load session closed")

// CandleColumns is the column order of bulk copy rows.
const CandleColumns = "instrument, timestamp, open, close, high, low, volume"

// LoaderStats aggregates counters over all sessions of a loader.
type LoaderStats struct {
	Sessions   int64
	Commits    int64
	Rollbacks  int64
	RowsCopied int64
	RowsAdded  int64
	Conflicts  int64 // Copied rows already present in candle
}

// CandleLoader opens bulk load sessions against the candle table.
type CandleLoader struct {
	db     *pgxpool.Pool
	logger *slog.Logger

	mu    sync.Mutex
	stats LoaderStats
}

// NewCandleLoader creates a CandleLoader.
func NewCandleLoader(db *pgxpool.Pool, logger *slog.Logger) *CandleLoader {
	if logger == nil {
		logger = slog.Default()
	}
	return &CandleLoader{
		db:     db,
		logger: logger,
	}
}

// Stats returns current counters.
func (l *CandleLoader) Stats() LoaderStats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stats
}

func (l *CandleLoader) update(f func(s *LoaderStats)) {
	l.mu.Lock()
	f(&l.stats)
	l.mu.Unlock()
}

// Begin starts a transaction and creates its scratch table. The caller
// must Close the session, also after Commit.
func (l *CandleLoader) Begin(ctx context.Context) (*Session, error) {
	tx, err := l.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}

	table := pgx.Identifier{"candle_" + strings.ReplaceAll(uuid.NewString(), "-", "")}.Sanitize()
	_, err = tx.Exec(ctx, `CREATE TEMP TABLE `+table+
		` (LIKE candle INCLUDING DEFAULTS INCLUDING CONSTRAINTS) ON COMMIT DROP`)
	if err != nil {
		tx.Rollback(ctx)
		return nil, fmt.Errorf("create scratch table: %w", err)
	}

	l.update(func(s *LoaderStats) { s.Sessions++ })

	return &Session{
		loader: l,
		tx:     tx,
		table:  table,
		start:  time.Now(),
	}, nil
}

// Session is one transactional bulk load. It is not safe for concurrent use.
type Session struct {
	loader *CandleLoader
	tx     pgx.Tx
	table  string
	start  time.Time
	copied int64
	done   bool
}

// Copy streams CSV rows from r into the scratch table and returns the
// number of rows copied. Rows must be "<instrument>;<minutes>;open;close;high;low;volume\n".
// A failed Copy leaves the session usable only for Close.
func (s *Session) Copy(ctx context.Context, r io.Reader) (int64, error) {
	if s.done {
		return 0, ErrSessionClosed
	}

	sql := `COPY ` + s.table + ` (` + CandleColumns + `) FROM STDIN (FORMAT csv, DELIMITER ';')`
	tag, err := s.tx.Conn().PgConn().CopyFrom(ctx, r, sql)
	if err != nil {
		return 0, fmt.Errorf("copy into scratch table: %w", err)
	}

	n := tag.RowsAffected()
	s.copied += n
	s.loader.update(func(st *LoaderStats) { st.RowsCopied += n })
	return n, nil
}

// Commit merges the scratch table into candle, skipping rows whose key
// already exists, and commits. It returns the number of rows added. On
// failure the transaction is rolled back.
func (s *Session) Commit(ctx context.Context) (int64, error) {
	if s.done {
		return 0, ErrSessionClosed
	}
	s.done = true

	tag, err := s.tx.Exec(ctx, `INSERT INTO candle (`+CandleColumns+`)
		SELECT `+CandleColumns+` FROM `+s.table+`
		ON CONFLICT DO NOTHING`)
	if err != nil {
		s.rollback(ctx)
		return 0, fmt.Errorf("merge candles: %w", err)
	}

	if err := s.tx.Commit(ctx); err != nil {
		s.rollback(ctx)
		return 0, fmt.Errorf("commit: %w", err)
	}

	added := tag.RowsAffected()
	s.loader.update(func(st *LoaderStats) {
		st.Commits++
		st.RowsAdded += added
		st.Conflicts += s.copied - added
	})
	s.loader.logger.Debug("candle history committed",
		"copied", s.copied,
		"added", added,
		"duration", time.Since(s.start),
	)
	return added, nil
}

// Close rolls back the session if it was not committed. It is a no-op
// after Commit or a previous Close.
func (s *Session) Close(ctx context.Context) error {
	if s.done {
		return nil
	}
	s.done = true

	s.loader.logger.Warn("candle history not committed",
		"table", s.table,
		"copied", s.copied,
	)
	return s.rollback(ctx)
}

func (s *Session) rollback(ctx context.Context) error {
	s.loader.update(func(st *LoaderStats) { st.Rollbacks++ })
	if err := s.tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return fmt.Errorf("rollback: %w", err)
	}
	return nil
}
