// Package metrics holds the Prometheus collectors of the server and the
// handler that exposes them.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "boardcontext"

var Registry = prometheus.NewRegistry()

var (
	HTTPRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "HTTP requests by route pattern, method and status.",
	}, []string{"route", "method", "status"})

	HTTPDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency by route pattern.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route", "method"})

	LimitHits = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "plan_limit_hits_total",
		Help:      "Requests refused because a plan cap was reached.",
	}, []string{"kind"})

	BoardRollbacks = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "board_rollbacks_total",
		Help:      "Auto-provisioned boards deleted after an access denial.",
	})

	ViewerDemotions = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "viewer_demotions_total",
		Help:      "Viewers restricted by viewer cap enforcement.",
	})

	StorageBytesDelta = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "storage_bytes_delta_total",
		Help:      "Absolute bytes added to or removed from tenant storage counters.",
	}, []string{"direction"})

	JobRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "job_runs_total",
		Help:      "Scheduled job runs by job and outcome.",
	}, []string{"job", "outcome"})

	RateLimited = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rate_limited_total",
		Help:      "Requests rejected by the rate limiter.",
	})
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		HTTPRequests, HTTPDuration, LimitHits, BoardRollbacks, ViewerDemotions, StorageBytesDelta, JobRuns, RateLimited,
	)
}

// ObserveStorage records a storage counter change.
func ObserveStorage(delta int64) {
	switch {
	case delta > 0:
		StorageBytesDelta.WithLabelValues("up").Add(float64(delta))
	case delta < 0:
		StorageBytesDelta.WithLabelValues("down").Add(float64(-delta))
	}
}

// Handler serves the registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
