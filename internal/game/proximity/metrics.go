package proximity

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics with bounded cardinality (no per-creature labels).
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	entries    prometheus.Gauge
	inserts    prometheus.Counter
	duplicates prometheus.Counter
	rebuilds   prometheus.Counter
	queries    *prometheus.CounterVec // kind: "nearby", "nearest"
	failures   *prometheus.CounterVec // kind: "nearby", "nearest"
	cacheHits  prometheus.Counter
	cacheMiss  prometheus.Counter
	results    prometheus.Histogram
}

// NewMetrics creates the index metrics and registers them with reg.
// A nil reg leaves them unregistered, which is what tests want.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		entries: f.NewGauge(prometheus.GaugeOpts{
			Name: "creature_tree_entries",
			Help: "Creatures currently indexed",
		}),
		inserts: f.NewCounter(prometheus.CounterOpts{
			Name: "creature_tree_inserts_total",
			Help: "Accepted creature insertions",
		}),
		duplicates: f.NewCounter(prometheus.CounterOpts{
			Name: "creature_tree_duplicate_inserts_total",
			Help: "Insertions rejected because the handle was already indexed",
		}),
		rebuilds: f.NewCounter(prometheus.CounterOpts{
			Name: "creature_tree_clears_total",
			Help: "Bulk clears of the index",
		}),
		queries: f.NewCounterVec(prometheus.CounterOpts{
			Name: "creature_tree_range_queries_total",
			Help: "Range queries issued against the spatial backend",
		}, []string{"kind"}),
		failures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "creature_tree_range_query_failures_total",
			Help: "Range queries rejected by the spatial backend",
		}, []string{"kind"}),
		cacheHits: f.NewCounter(prometheus.CounterOpts{
			Name: "creature_tree_nearby_cache_hits_total",
			Help: "Visual-range queries served from the per-tick cache",
		}),
		cacheMiss: f.NewCounter(prometheus.CounterOpts{
			Name: "creature_tree_nearby_cache_misses_total",
			Help: "Visual-range queries that had to search the index",
		}),
		results: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "creature_tree_query_results",
			Help:    "Number of creatures returned per range query",
			Buckets: []float64{0, 1, 2, 4, 8, 16, 32, 64, 128},
		}),
	}
}

func (m *Metrics) insert(ok bool, size int) {
	if m == nil {
		return
	}
	if !ok {
		m.duplicates.Inc()
		return
	}
	m.inserts.Inc()
	m.entries.Set(float64(size))
}

func (m *Metrics) clear() {
	if m == nil {
		return
	}
	m.rebuilds.Inc()
	m.entries.Set(0)
}

func (m *Metrics) cache(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.cacheHits.Inc()
	} else {
		m.cacheMiss.Inc()
	}
}

func (m *Metrics) query(kind string, n int, err error) {
	if m == nil {
		return
	}
	m.queries.WithLabelValues(kind).Inc()
	if err != nil {
		m.failures.WithLabelValues(kind).Inc()
		return
	}
	m.results.Observe(float64(n))
}
