package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors for history ingestion.
type Metrics struct {
	Downloads        *prometheus.CounterVec // labels: outcome
	CandlesRead      prometheus.Counter
	CandlesAdded     prometheus.Counter
	DownloadDuration prometheus.Histogram
	ThrottleWait     prometheus.Histogram
	ThrottleTotal    prometheus.Counter
	QueueDepth       prometheus.Gauge
	Abandoned        prometheus.Counter
	LoadRollbacks    prometheus.Counter
}

// New creates the collectors and registers them with reg. A nil reg
// registers with the default registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		Downloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "candled_downloads_total",
			Help: "History archive downloads by outcome",
		}, []string{"outcome"}),
		CandlesRead: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "candled_candles_read_total",
			Help: "Candle rows read from history archives",
		}),
		CandlesAdded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "candled_candles_added_total",
			Help: "Candle rows added to the candle table",
		}),
		DownloadDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "candled_download_duration_seconds",
			Help:    "Time to download and load one instrument year",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		ThrottleWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "candled_throttle_wait_seconds",
			Help:    "Time spent waiting for the rate limit window to reset",
			Buckets: []float64{1, 5, 10, 20, 30, 45, 60},
		}),
		ThrottleTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "candled_throttle_total",
			Help: "Times the scheduler waited for the rate limit window",
		}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "candled_queue_depth",
			Help: "Work items waiting in the history scheduler queue",
		}),
		Abandoned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "candled_abandoned_total",
			Help: "Instrument years abandoned after the retry failed",
		}),
		LoadRollbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "candled_load_rollbacks_total",
			Help: "Bulk load sessions rolled back without commit",
		}),
	}

	reg.MustRegister(
		m.Downloads,
		m.CandlesRead,
		m.CandlesAdded,
		m.DownloadDuration,
		m.ThrottleWait,
		m.ThrottleTotal,
		m.QueueDepth,
		m.Abandoned,
		m.LoadRollbacks,
	)

	return m
}

// ObserveDownload records one finished download.
func (m *Metrics) ObserveDownload(outcome string, read, added int64, d time.Duration) {
	if m == nil {
		return
	}
	m.Downloads.WithLabelValues(outcome).Inc()
	m.CandlesRead.Add(float64(read))
	m.CandlesAdded.Add(float64(added))
	m.DownloadDuration.Observe(d.Seconds())
}

// ObserveThrottle records one rate limit wait.
func (m *Metrics) ObserveThrottle(d time.Duration) {
	if m == nil {
		return
	}
	m.ThrottleTotal.Inc()
	m.ThrottleWait.Observe(d.Seconds())
}

// SetQueueDepth records the current scheduler queue length.
func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.QueueDepth.Set(float64(n))
}

// IncAbandoned records one abandoned work item.
func (m *Metrics) IncAbandoned() {
	if m == nil {
		return
	}
	m.Abandoned.Inc()
}

// IncRollback records one uncommitted load session.
func (m *Metrics) IncRollback() {
	if m == nil {
		return
	}
	m.LoadRollbacks.Inc()
}
