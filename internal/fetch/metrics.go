package fetch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the coordinator's Prometheus collectors.
type Metrics struct {
	// Listing fetches by source and outcome ("ok" or "error")
	Listings *prometheus.CounterVec

	// GETs that reached the network
	Requests        *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	CacheHits   prometheus.Counter
	CacheMisses prometheus.Counter

	// Image completions served from another caller's in-flight request
	SharedImages prometheus.Counter

	Failures *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		Listings: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "photorama_listing_fetches_total",
				Help: "Listing fetches by source and outcome",
			},
			[]string{"source", "outcome"},
		),
		Requests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "photorama_network_requests_total",
				Help: "HTTP GETs issued to the remote API",
			},
			[]string{"target"}, // "listing" or "image"
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "photorama_network_request_duration_seconds",
				Help:    "Latency of HTTP GETs to the remote API",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"target"},
		),
		CacheHits: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "photorama_image_cache_hits_total",
				Help: "Image requests answered from the disk cache",
			},
		),
		CacheMisses: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "photorama_image_cache_misses_total",
				Help: "Image requests that needed a download",
			},
		),
		SharedImages: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "photorama_image_shared_results_total",
				Help: "Image completions that shared an in-flight download",
			},
		),
		Failures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "photorama_fetch_failures_total",
				Help: "Failed operations by error kind",
			},
			[]string{"kind"},
		),
	}
}

func (m *Metrics) recordFailure(err error) {
	if kind := KindOf(err); kind != 0 {
		m.Failures.WithLabelValues(kind.String()).Inc()
	}
}
