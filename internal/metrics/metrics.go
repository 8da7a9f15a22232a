// Package metrics exposes prometheus instrumentation for the data-access layer
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "mldash"

var (
	cacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Total request cache hits",
		},
		[]string{"endpoint"},
	)

	cacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Total request cache misses",
		},
		[]string{"endpoint"},
	)

	cacheInvalidations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_invalidated_entries_total",
			Help:      "Entries removed by prefix invalidation",
		},
		[]string{"prefix"},
	)

	requestTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_requests_total",
			Help:      "Logical backend requests by outcome kind",
		},
		[]string{"method", "endpoint", "outcome"},
	)

	requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backend_request_duration_seconds",
			Help:      "Duration of logical backend requests, retries included",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	retries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_retries_total",
			Help:      "Retry attempts issued after a recoverable failure",
		},
		[]string{"endpoint"},
	)

	sharedCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inflight_shared_total",
			Help:      "Callers that joined an already pending network call",
		},
		[]string{"endpoint"},
	)

	panelFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "panel_failures_total",
			Help:      "Panel renders that ended in a failure block",
		},
		[]string{"panel", "retry"},
	)

	registerOnce sync.Once
)

// Init registers all collectors with the default registry. Safe to call more than once.
func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(cacheHits, cacheMisses, cacheInvalidations,
			requestTotal, requestDuration, retries, sharedCalls, panelFailures)
	})
}

// Handler serves the default registry
func Handler() http.Handler {
	return promhttp.Handler()
}

func IncCacheHit(endpoint string) {
	cacheHits.WithLabelValues(endpoint).Inc()
}

func IncCacheMiss(endpoint string) {
	cacheMisses.WithLabelValues(endpoint).Inc()
}

func AddCacheInvalidations(prefix string, n int) {
	if n > 0 {
		cacheInvalidations.WithLabelValues(prefix).Add(float64(n))
	}
}

// ObserveRequest records one settled logical request. outcome is "ok" or an error kind.
func ObserveRequest(method, endpoint, outcome string, d time.Duration) {
	requestTotal.WithLabelValues(method, endpoint, outcome).Inc()
	requestDuration.WithLabelValues(method, endpoint).Observe(d.Seconds())
}

func IncRetry(endpoint string) {
	retries.WithLabelValues(endpoint).Inc()
}

func IncShared(endpoint string) {
	sharedCalls.WithLabelValues(endpoint).Inc()
}

func IncPanelFailure(panel string, retry bool) {
	label := "false"
	if retry {
		label = "true"
	}
	panelFailures.WithLabelValues(panel, label).Inc()
}
