package vectorstore

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OperationsTotal counts index operations.
	// Labels: index (sql, chromem, qdrant), op (add, search, delete), result (success, error)
	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragd",
			Subsystem: "vectorstore",
			Name:      "operations_total",
			Help:      "Total number of vector index operations",
		},
		[]string{"index", "op", "result"},
	)

	// OperationDuration tracks how long index operations take.
	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ragd",
			Subsystem: "vectorstore",
			Name:      "operation_duration_seconds",
			Help:      "Duration of vector index operations in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"index", "op"},
	)

	// SearchMatches tracks how many matches a search returns after the
	// distance threshold.
	SearchMatches = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ragd",
			Subsystem: "vectorstore",
			Name:      "search_matches",
			Help:      "Matches returned per search",
			Buckets:   []float64{0, 1, 2, 5, 10, 20, 50, 100, 500},
		},
		[]string{"index"},
	)
)

// observe records one operation outcome.
func observe(index, op string, start time.Time, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	OperationsTotal.WithLabelValues(index, op, result).Inc()
	OperationDuration.WithLabelValues(index, op).Observe(time.Since(start).Seconds())
}
