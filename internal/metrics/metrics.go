package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "support_chat_requests_total",
		Help: "Chat requests handled, labeled by outcome.",
	}, []string{"status"})

	ChunksStreamed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "support_chat_chunks_streamed_total",
		Help: "Upstream chunks observed by the orchestrator.",
	})

	DispatchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "support_department_dispatches_total",
		Help: "Department dispatches attempted.",
	}, []string{"department"})

	DispatchFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "support_department_dispatch_failures_total",
		Help: "Department dispatches that failed and degraded to an apology.",
	}, []string{"department"})

	DispatchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "support_department_dispatch_duration_seconds",
		Help:    "Latency of department backend calls.",
		Buckets: prometheus.DefBuckets,
	}, []string{"department"})

	TurnsPerRequest = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "support_chat_turns_per_request",
		Help:    "Upstream turns taken before a request completed.",
		Buckets: []float64{1, 2, 3, 4, 5},
	})
)
