package archive

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the archiver's prometheus collectors.
type Metrics struct {
	ChunksSaved  prometheus.Counter
	ChunksLoaded prometheus.Counter
	BytesWritten prometheus.Counter
	BytesRead    prometheus.Counter
	CacheHits    prometheus.Counter
	Failures     *prometheus.CounterVec
}

// NewMetrics creates the archive collectors. They still need registering.
func NewMetrics() *Metrics {
	const (
		namespace = "chunkstore"
		subsystem = "archive"
	)

	return &Metrics{
		ChunksSaved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "chunks_saved_total",
			Help:      "Number of chunks written to object storage",
		}),

		ChunksLoaded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "chunks_loaded_total",
			Help:      "Number of archived chunks inserted into a store",
		}),

		BytesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "written_bytes_total",
			Help:      "Compressed bytes written to object storage",
		}),

		BytesRead: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "read_bytes_total",
			Help:      "Compressed bytes read from object storage or the local cache",
		}),

		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "cache_hits_total",
			Help:      "Number of chunk objects served from the local cache",
		}),

		Failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "failures_total",
			Help:      "Number of failed chunk saves and loads",
		}, []string{"op"}),
	}
}

// PrometheusCollectors returns every collector, for registration.
func (m *Metrics) PrometheusCollectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.ChunksSaved,
		m.ChunksLoaded,
		m.BytesWritten,
		m.BytesRead,
		m.CacheHits,
		m.Failures,
	}
}

func (m *Metrics) observeSave(n int) {
	if m == nil {
		return
	}
	m.ChunksSaved.Inc()
	m.BytesWritten.Add(float64(n))
}

func (m *Metrics) observeLoad(n int) {
	if m == nil {
		return
	}
	m.ChunksLoaded.Inc()
	m.BytesRead.Add(float64(n))
}

func (m *Metrics) observeCacheHits(n int) {
	if m == nil {
		return
	}
	m.CacheHits.Add(float64(n))
}

func (m *Metrics) observeFailure(op string) {
	if m == nil {
		return
	}
	m.Failures.WithLabelValues(op).Inc()
}
