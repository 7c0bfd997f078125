package history

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rickgao/candled/internal/metrics"
	"github.com/rickgao/candled/internal/model"
)

// CandleStore is the persisted state the scheduler reads and updates.
type CandleStore interface {
	// EarliestCandles returns instruments of the given asset types that
	// have an external code and no history flag, with their earliest candle.
	EarliestCandles(ctx context.Context, assetTypes []model.AssetType) ([]model.HistoryBound, error)
	// LatestCandles returns instruments of the given asset types that have
	// an external code, with their latest candle.
	LatestCandles(ctx context.Context, assetTypes []model.AssetType) ([]model.HistoryBound, error)
	// MarkHasEarliestCandle records that backward history is exhausted.
	MarkHasEarliestCandle(ctx context.Context, instrumentID int16) error
}

// HistoryDownloader downloads and loads one instrument year.
type HistoryDownloader interface {
	Download(ctx context.Context, inst model.Instrument, year int) (Result, error)
}

// AbandonedError reports a work item that failed its second attempt.
type AbandonedError struct {
	Item   WorkItem
	Status int
	Err    error
}

func (e *AbandonedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: abandoned after retry with status %d: %v", e.Item, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: abandoned after retry with status %d", e.Item, e.Status)
}

func (e *AbandonedError) Unwrap() error {
	return e.Err
}

// Report summarizes one walk.
type Report struct {
	Requests   int
	Succeeded  int
	Boundaries int
	Retries    int
	Abandoned  []WorkItem
	Errors     []error // per-instrument failures; the walk continued past them
}

// Scheduler walks instrument histories backward and forward, one request
// at a time.
type Scheduler struct {
	store      CandleStore
	downloader HistoryDownloader
	assetTypes []model.AssetType
	logger     *slog.Logger
	metrics    *metrics.Metrics
	now        func() time.Time
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithClock sets the clock used to pick starting years.
func WithClock(now func() time.Time) SchedulerOption {
	return func(s *Scheduler) {
		s.now = now
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) SchedulerOption {
	return func(s *Scheduler) {
		s.metrics = m
	}
}

// NewScheduler creates a Scheduler for instruments of the given asset types.
func NewScheduler(store CandleStore, downloader HistoryDownloader, assetTypes []model.AssetType, logger *slog.Logger, opts ...SchedulerOption) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{
		store:      store,
		downloader: downloader,
		assetTypes: assetTypes,
		logger:     logger,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// walk holds the direction-specific rules of a drain.
type walk struct {
	name string
	// next returns the follow-up item after a successful download.
	next func(item WorkItem) (WorkItem, bool)
	// boundary handles a BoundaryReached outcome.
	boundary func(ctx context.Context, item WorkItem, report *Report)
}

// WalkBackward downloads history for every instrument whose beginning has
// not been found, one year at a time toward the past, until the archive
// reports no data. The instrument is then flagged as complete.
//
// The returned error is non-nil only if ctx is done or the starting points
// cannot be read. Per-instrument failures are collected in the report.
func (s *Scheduler) WalkBackward(ctx context.Context) (Report, error) {
	bounds, err := s.store.EarliestCandles(ctx, s.assetTypes)
	if err != nil {
		return Report{}, fmt.Errorf("load earliest candles: %w", err)
	}

	current := s.now().UTC().Year()
	var q WorkQueue
	for _, b := range bounds {
		year := current - 1
		if b.HasCandles() {
			year = b.Timestamp.UTC().Year() - 1
		}
		q.Push(WorkItem{Instrument: b.Instrument, Year: year, Priority: PriorityNormal})
	}

	s.logger.Info("walking history backward", "instruments", q.Len())

	return s.drain(ctx, &q, walk{
		name: "backward",
		next: func(item WorkItem) (WorkItem, bool) {
			return WorkItem{Instrument: item.Instrument, Year: item.Year - 1, Priority: PriorityHigh}, true
		},
		boundary: func(ctx context.Context, item WorkItem, report *Report) {
			if err := s.store.MarkHasEarliestCandle(ctx, item.Instrument.ID); err != nil {
				s.logger.Error("failed to mark history beginning",
					"instrument", item.Instrument.Name,
					"error", err,
				)
				report.Errors = append(report.Errors, fmt.Errorf("%s: mark history beginning: %w", item, err))
				return
			}
			s.logger.Info("history beginning found",
				"asset_type", item.Instrument.AssetType,
				"instrument", item.Instrument.Name,
				"year", item.Year+1,
			)
		},
	})
}

// WalkForward downloads history from each instrument's latest stored
// candle up to the current year. An instrument without candles starts at
// the beginning of the current year. Instruments whose start is not before
// yesterday are skipped.
//
// The returned error is non-nil only if ctx is done or the starting points
// cannot be read. Per-instrument failures are collected in the report.
func (s *Scheduler) WalkForward(ctx context.Context) (Report, error) {
	bounds, err := s.store.LatestCandles(ctx, s.assetTypes)
	if err != nil {
		return Report{}, fmt.Errorf("load latest candles: %w", err)
	}

	now := s.now().UTC()
	current := now.Year()
	yesterday := now.AddDate(0, 0, -1)

	var q WorkQueue
	var incomplete []string
	for _, b := range bounds {
		if !b.Instrument.HasEarliestCandle {
			incomplete = append(incomplete, b.Instrument.Name)
		}
		// No candles counts as having history up to the start of the year.
		latest := time.Date(current, time.January, 1, 0, 0, 0, 0, time.UTC)
		if b.HasCandles() {
			latest = b.Timestamp.UTC()
		}
		if !latest.Before(yesterday) {
			continue
		}
		year := latest.Year()
		q.Push(WorkItem{Instrument: b.Instrument, Year: year, Priority: pastPriority(year, current)})
	}

	if len(incomplete) > 0 {
		s.logger.Warn("history beginning not found yet, run backfill",
			"count", len(incomplete),
			"instruments", incomplete,
		)
	}
	s.logger.Info("walking history forward", "instruments", q.Len(), "current", len(bounds)-q.Len())

	return s.drain(ctx, &q, walk{
		name: "forward",
		next: func(item WorkItem) (WorkItem, bool) {
			// The walk may run past New Year.
			current := s.now().UTC().Year()
			if item.Year >= current {
				return WorkItem{}, false
			}
			year := item.Year + 1
			return WorkItem{Instrument: item.Instrument, Year: year, Priority: pastPriority(year, current)}, true
		},
		boundary: func(ctx context.Context, item WorkItem, report *Report) {
			s.logger.Debug("no newer history", "instrument", item.Instrument.Name, "year", item.Year)
		},
	})
}

func pastPriority(year, current int) Priority {
	if year < current {
		return PriorityHigh
	}
	return PriorityNormal
}

// drain pops and downloads until the queue is empty.
func (s *Scheduler) drain(ctx context.Context, q *WorkQueue, w walk) (Report, error) {
	var report Report
	log := s.logger.With("walk", w.name)

	for {
		s.metrics.SetQueueDepth(q.Len())
		item, ok := q.Pop()
		if !ok {
			break
		}

		res, err := s.downloader.Download(ctx, item.Instrument, item.Year)
		report.Requests++
		if err != nil {
			return report, err
		}

		switch res.Outcome {
		case Success:
			report.Succeeded++
			if next, ok := w.next(item); ok {
				q.Push(next)
			}
		case BoundaryReached:
			report.Boundaries++
			w.boundary(ctx, item, &report)
		default:
			if item.Priority != PriorityLow {
				report.Retries++
				q.Push(WorkItem{Instrument: item.Instrument, Year: item.Year, Priority: PriorityLow})
				break
			}
			abandoned := &AbandonedError{Item: item, Status: res.StatusCode(), Err: res.Err}
			log.Error("download abandoned",
				"asset_type", item.Instrument.AssetType,
				"instrument", item.Instrument.Name,
				"year", item.Year,
				"status", res.StatusCode(),
			)
			s.metrics.IncAbandoned()
			report.Abandoned = append(report.Abandoned, item)
			report.Errors = append(report.Errors, abandoned)
		}

		if q.Len() == 0 {
			continue
		}
		err = res.RateLimit.Wait(ctx, func(d time.Duration) {
			log.Debug("waiting for rate limit reset", "wait", d)
			s.metrics.ObserveThrottle(d)
		})
		if err != nil {
			return report, err
		}
	}

	log.Info("walk finished",
		"requests", report.Requests,
		"succeeded", report.Succeeded,
		"boundaries", report.Boundaries,
		"retries", report.Retries,
		"abandoned", len(report.Abandoned),
	)
	return report, nil
}
