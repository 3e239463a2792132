package metrics

import "github.com/prometheus/client_golang/prometheus"

// Reformulation metrics, labelled by method name.
var (
	ReformulationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reformulations_total",
			Help:      "Total number of reformulated queries",
		},
		[]string{"method", "status"},
	)

	ReformulationBatchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reformulation_batch_duration_seconds",
			Help:      "Duration of one reformulation batch in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300, 900},
		},
		[]string{"method"},
	)
)

// RegisterReformulationMetrics registers the reformulation collectors.
func RegisterReformulationMetrics() {
	mustRegister(ReformulationsTotal, ReformulationBatchDuration)
}
