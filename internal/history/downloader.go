package history

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rickgao/candled/internal/api"
	"github.com/rickgao/candled/internal/metrics"
	"github.com/rickgao/candled/internal/model"
)

// Synthesized statuses for requests that produced no usable response.
const (
	StatusTimeout = http.StatusGatewayTimeout
	StatusUnknown = 520
)

// Outcome classifies one download attempt.
type Outcome int

const (
	Success Outcome = iota
	BoundaryReached
	TransientFailure
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case BoundaryReached:
		return "boundary"
	case TransientFailure:
		return "transient_failure"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Result is the classified result of one (instrument, year) download.
type Result struct {
	Outcome   Outcome
	RateLimit api.RateLimit
	Read      int64 // Rows read from the archive
	Added     int64 // Rows added to the candle table
	Err       error // Cause of a TransientFailure, if any
}

// StatusCode is the HTTP status, or a synthesized one.
func (r Result) StatusCode() int {
	return r.RateLimit.StatusCode
}

// ArchiveSource issues archive requests.
type ArchiveSource interface {
	HistoryURL(figi string, year int) string
	GetHistory(ctx context.Context, figi string, year int) (*http.Response, error)
}

// LoadSession is one transactional bulk load.
type LoadSession interface {
	// Copy streams rows in bulk copy format into the session.
	Copy(ctx context.Context, r io.Reader) (int64, error)
	// Commit merges the staged rows and returns how many were added.
	Commit(ctx context.Context) (int64, error)
	// Close rolls back an uncommitted session. It is safe after Commit.
	Close(ctx context.Context) error
}

// SessionOpener begins a new load session.
type SessionOpener func(ctx context.Context) (LoadSession, error)

// Downloader fetches one instrument year and loads it.
type Downloader struct {
	source  ArchiveSource
	open    SessionOpener
	bufSize int
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewDownloader creates a Downloader. bufSize bounds each write into the
// pipe between decompression and loading.
func NewDownloader(source ArchiveSource, open SessionOpener, bufSize int, m *metrics.Metrics, logger *slog.Logger) *Downloader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Downloader{
		source:  source,
		open:    open,
		bufSize: bufSize,
		logger:  logger,
		metrics: m,
		now:     time.Now,
	}
}

// Download requests the archive for inst and year and, on a 2xx response,
// loads it in one transaction.
//
// Every failure except cancellation of ctx is reported as a
// TransientFailure result with a nil error. The error is non-nil only when
// ctx is done.
func (d *Downloader) Download(ctx context.Context, inst model.Instrument, year int) (Result, error) {
	start := d.now()
	url := d.source.HistoryURL(inst.FIGI, year)
	log := d.logger.With(
		"asset_type", inst.AssetType,
		"instrument", inst.Name,
		"year", year,
	)

	res, err := d.download(ctx, inst, year, url, log)
	if err != nil {
		return Result{}, err
	}

	d.metrics.ObserveDownload(res.Outcome.String(), res.Read, res.Added, d.now().Sub(start))
	if res.Outcome == Success {
		if res.Added == res.Read {
			log.Info("candles added",
				"added", res.Added,
				"duration", d.now().Sub(start),
			)
		} else {
			log.Info("some candles added",
				"added", res.Added,
				"read", res.Read,
				"duration", d.now().Sub(start),
			)
		}
	}
	return res, nil
}

func (d *Downloader) download(ctx context.Context, inst model.Instrument, year int, url string, log *slog.Logger) (Result, error) {
	reqCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	resp, err := d.source.GetHistory(reqCtx, inst.FIGI, year)
	if err != nil {
		return d.failure(ctx, log, url, err)
	}
	defer resp.Body.Close()

	rl := api.ParseRateLimit(resp.Header, resp.StatusCode, d.now())
	if rl.Degraded {
		log.Debug("rate limit headers missing", "status", resp.StatusCode)
	}

	switch {
	case api.IsNoData(resp.StatusCode):
		log.Info("no history", "status", resp.StatusCode)
		return Result{Outcome: BoundaryReached, RateLimit: rl}, nil
	case resp.StatusCode == http.StatusTooManyRequests:
		log.Error("download failed", "status", resp.StatusCode)
		return Result{Outcome: TransientFailure, RateLimit: rl}, nil
	case !rl.IsSuccess():
		log.Warn("download failed", "status", resp.StatusCode, "url", url)
		return Result{Outcome: TransientFailure, RateLimit: rl}, nil
	}

	read, added, err := d.load(reqCtx, cancel, log, inst, resp.Body)
	if err != nil {
		return d.failure(ctx, log, url, err)
	}
	return Result{Outcome: Success, RateLimit: rl, Read: read, Added: added}, nil
}

// load streams body through the archive reader and row transform into a
// new load session and commits it. cancel aborts the request when the
// consumer side fails, so the producer is not left blocked on the body.
func (d *Downloader) load(ctx context.Context, cancel context.CancelFunc, log *slog.Logger, inst model.Instrument, body io.Reader) (read, added int64, err error) {
	session, err := d.open(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("open load session: %w", err)
	}
	defer func() {
		if err != nil {
			d.metrics.IncRollback()
		}
		if cerr := session.Close(context.WithoutCancel(ctx)); cerr != nil {
			log.Warn("close load session", "error", cerr)
		}
	}()

	pr, pw := io.Pipe()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		_, err := StreamArchive(gctx, body, pw, d.bufSize)
		pw.CloseWithError(err)
		if err != nil {
			return fmt.Errorf("stream archive: %w", err)
		}
		return nil
	})

	var copyErr error
	g.Go(func() error {
		rows := NewCandleReader(pr, inst.ID)
		_, copyErr = session.Copy(gctx, rows)
		read = rows.Rows()
		if copyErr != nil {
			copyErr = fmt.Errorf("copy candles: %w", copyErr)
			pr.CloseWithError(copyErr)
			cancel()
			return copyErr
		}
		pr.Close()
		return nil
	})

	if err := g.Wait(); err != nil {
		// Prefer the consumer's error: the producer fails as a consequence.
		if copyErr != nil {
			return read, 0, copyErr
		}
		return read, 0, err
	}

	added, err = session.Commit(ctx)
	if err != nil {
		return read, 0, fmt.Errorf("commit candles: %w", err)
	}
	return read, added, nil
}

// failure converts err into a TransientFailure result, unless ctx is done.
func (d *Downloader) failure(ctx context.Context, log *slog.Logger, url string, err error) (Result, error) {
	if ctx.Err() != nil {
		log.Debug("download canceled", "error", err)
		return Result{}, ctx.Err()
	}

	status := StatusUnknown
	if isTimeout(err) {
		status = StatusTimeout
	}
	log.Error("download failed",
		"status", status,
		"url", url,
		"error", err,
	)
	return Result{
		Outcome:   TransientFailure,
		RateLimit: api.FailureRateLimit(status, d.now()),
		Err:       err,
	}, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
