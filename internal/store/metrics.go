package store

import (
	"github.com/arkilian/chunkstore/internal/chunk"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the store's prometheus collectors.
type Metrics struct {
	ChunksInserted *prometheus.CounterVec
	RowsInserted   *prometheus.CounterVec
	EventsInserted prometheus.Counter
	HeapBytes      prometheus.Gauge
}

// NewMetrics creates the store collectors. They still need registering.
func NewMetrics() *Metrics {
	const (
		namespace = "chunkstore"
		subsystem = "store"
	)

	return &Metrics{
		ChunksInserted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "chunks_inserted_total",
			Help:      "Number of chunks inserted",
		}, []string{"kind"}),

		RowsInserted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "rows_inserted_total",
			Help:      "Number of rows inserted",
		}, []string{"kind"}),

		EventsInserted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "events_inserted_total",
			Help:      "Number of non-null component cells inserted",
		}),

		HeapBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "heap_bytes",
			Help:      "Heap size of the chunks held by the store",
		}),
	}
}

// PrometheusCollectors returns every collector, for registration.
func (m *Metrics) PrometheusCollectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.ChunksInserted,
		m.RowsInserted,
		m.EventsInserted,
		m.HeapBytes,
	}
}

func (m *Metrics) observeInsert(c *chunk.Chunk) {
	if m == nil {
		return
	}
	kind := "temporal"
	if c.IsStatic() {
		kind = "static"
	}
	m.ChunksInserted.WithLabelValues(kind).Inc()
	m.RowsInserted.WithLabelValues(kind).Add(float64(c.NumRows()))
	m.EventsInserted.Add(float64(c.NumEventsCumulative()))
	m.HeapBytes.Add(float64(c.HeapSizeBytes()))
}
