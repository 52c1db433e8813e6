package oracle

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// endpoint: embeddings 或 chat；status: success 或 error
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "text_distorter",
		Subsystem: "oracle",
		Name:      "requests_total",
		Help:      "Requests sent to the OpenAI API, by endpoint and status",
	}, []string{"endpoint", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "text_distorter",
		Subsystem: "oracle",
		Name:      "request_duration_seconds",
		Help:      "Latency of OpenAI API requests",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	}, []string{"endpoint"})

	// result: hit, miss 或 error
	cacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "text_distorter",
		Subsystem: "oracle",
		Name:      "embedding_cache_lookups_total",
		Help:      "Embedding cache lookups, by result",
	}, []string{"result"})
)

func recordRequest(endpoint string, seconds float64, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	requestsTotal.WithLabelValues(endpoint, status).Inc()
	requestDuration.WithLabelValues(endpoint).Observe(seconds)
}
