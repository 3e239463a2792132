package metrics

import "github.com/prometheus/client_golang/prometheus"

// Searcher metrics, labelled by registered searcher name.
var (
	SearchRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_requests_total",
			Help:      "Total number of searcher calls",
		},
		[]string{"searcher", "op", "status"}, // op: "search" / "batch"
	)

	SearchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_duration_seconds",
			Help:      "Searcher call duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"searcher", "op"},
	)

	SearchHits = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_hits",
			Help:      "Number of hits returned per query",
			Buckets:   []float64{0, 1, 5, 10, 20, 50, 100, 1000},
		},
		[]string{"searcher"},
	)
)

// RegisterSearchMetrics registers the searcher collectors.
func RegisterSearchMetrics() {
	mustRegister(SearchRequestsTotal, SearchDuration, SearchHits)
}
