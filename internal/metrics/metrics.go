// Package metrics exposes Prometheus collectors for the crawler.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	postingsTotal        *prometheus.CounterVec
	targetsTotal         *prometheus.CounterVec
	fetchRequestsTotal   *prometheus.CounterVec
	fetchDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus collectors. It is safe to call multiple
// times; the Observe helpers call it themselves.
func Init() {
	once.Do(func() {
		postingsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_postings_total",
				Help: "Total reconciled postings, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		targetsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_targets_total",
				Help: "Total processed targets, labeled by result.",
			},
			[]string{"result"},
		)

		fetchRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_fetch_requests_total",
				Help: "Total upstream HTTP requests, labeled by status class.",
			},
			[]string{"class"},
		)

		fetchDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "crawler_fetch_duration_seconds",
				Help:    "Histogram of upstream fetch latencies.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"class"},
		)
	})
}

// ObservePosting increments the posting counter for an outcome.
func ObservePosting(outcome string) {
	Init()
	postingsTotal.WithLabelValues(outcome).Inc()
}

// ObserveTarget increments the target counter for a per-target result
// ("changed", "unchanged", or "error").
func ObserveTarget(result string) {
	Init()
	targetsTotal.WithLabelValues(result).Inc()
}

// ObserveFetch records one upstream request.
func ObserveFetch(class string, duration time.Duration) {
	Init()
	fetchRequestsTotal.WithLabelValues(class).Inc()
	fetchDurationSeconds.WithLabelValues(class).Observe(duration.Seconds())
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	Init()
	return promhttp.Handler()
}

// NewRouter builds the metrics/health router served while a pass runs.
func NewRouter() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", Handler())
	return r
}
