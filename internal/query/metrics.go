package query

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the query engine's prometheus collectors.
type Metrics struct {
	Queries      *prometheus.CounterVec
	RowsEmitted  prometheus.Counter
	InitDuration prometheus.Histogram
	ChunksMerged prometheus.Histogram
}

// NewMetrics creates the query collectors. They still need registering.
func NewMetrics() *Metrics {
	const (
		namespace = "chunkstore"
		subsystem = "query"
	)

	return &Metrics{
		Queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "queries_total",
			Help:      "Number of query handles initialized",
		}, []string{"sparse_fill"}),

		RowsEmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "rows_emitted_total",
			Help:      "Number of rows returned by query handles",
		}),

		InitDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "init_duration_seconds",
			Help:      "Time spent resolving a query and fetching its chunks",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}),

		ChunksMerged: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "chunks_per_query",
			Help:      "Number of chunks a query handle merges",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}),
	}
}

// PrometheusCollectors returns every collector, for registration.
func (m *Metrics) PrometheusCollectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.Queries,
		m.RowsEmitted,
		m.InitDuration,
		m.ChunksMerged,
	}
}

func (m *Metrics) observeInit(fill SparseFillStrategy, start time.Time, numChunks int) {
	if m == nil {
		return
	}
	m.Queries.WithLabelValues(fill.String()).Inc()
	m.InitDuration.Observe(time.Since(start).Seconds())
	m.ChunksMerged.Observe(float64(numChunks))
}

func (m *Metrics) observeRows(n int) {
	if m == nil || n == 0 {
		return
	}
	m.RowsEmitted.Add(float64(n))
}
