package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	MessagesCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messages_created_total",
			Help: "Number of messages persisted, by kind.",
		},
		[]string{"kind"},
	)

	AllocatorRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "id_allocator_retries_total",
			Help: "Number of id allocations retried after losing the counter update.",
		},
	)

	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Number of HTTP requests, by route, method and status code.",
		},
		[]string{"route", "method", "code"},
	)

	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency, by route and method.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)
)

func init() {
	prometheus.MustRegister(MessagesCreated)
	prometheus.MustRegister(AllocatorRetries)
	prometheus.MustRegister(HTTPRequests)
	prometheus.MustRegister(HTTPDuration)
}
