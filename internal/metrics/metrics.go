package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Search provider outcomes.
const (
	OutcomeOK          = "ok"
	OutcomeEmpty       = "empty"
	OutcomeRateLimited = "rate_limited"
	OutcomeError       = "error"
	OutcomeBlocked     = "blocked"
)

var (
	FetchRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "liaison_fetch_requests_total",
			Help: "Total number of outbound page fetches",
		},
		[]string{"host", "status", "blocked", "block_src"},
	)

	FetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "liaison_fetch_duration_seconds",
			Help:    "Duration of outbound page fetches in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"host"},
	)

	FetchBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "liaison_fetch_bytes_total",
			Help: "Total bytes downloaded across all fetches",
		},
		[]string{"host"},
	)

	ProxyFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "liaison_proxy_failures_total",
			Help: "Total number of proxy failures during fetches",
		},
		[]string{"proxy_url"},
	)

	SearchOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "liaison_search_provider_outcomes_total",
			Help: "Search provider attempts by outcome",
		},
		[]string{"provider", "outcome"},
	)

	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "liaison_search_cache_lookups_total",
			Help: "Search cache lookups by result",
		},
		[]string{"result"},
	)

	ContentDrops = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "liaison_content_fetch_drops_total",
			Help: "Post pages dropped during content fetch, by reason",
		},
		[]string{"reason"},
	)

	GenerationRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "liaison_generation_requests_total",
			Help: "Comment generation calls by provider and result",
		},
		[]string{"provider", "result"},
	)

	GenerationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "liaison_generation_duration_seconds",
			Help:    "Duration of comment generation calls in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"provider"},
	)

	SubmissionAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "liaison_submission_attempts_total",
			Help: "Comment submission attempts by variant and status",
		},
		[]string{"variant", "status"},
	)

	BatchItems = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "liaison_batch_items_total",
			Help: "Batch items processed by result",
		},
		[]string{"result"},
	)
)

// RecordFetch updates the fetch metrics for one response. A zero status
// means the request failed before a response arrived.
func RecordFetch(host string, status int, blocked bool, blockSrc string, size int, d time.Duration) {
	statusStr := strconv.Itoa(status)
	if status == 0 {
		statusStr = "error"
	}
	FetchRequestsTotal.WithLabelValues(host, statusStr, strconv.FormatBool(blocked), blockSrc).Inc()
	FetchDuration.WithLabelValues(host).Observe(d.Seconds())
	FetchBytesTotal.WithLabelValues(host).Add(float64(size))
}

// RecordSearchOutcome counts one provider attempt.
func RecordSearchOutcome(provider, outcome string) {
	SearchOutcomes.WithLabelValues(provider, outcome).Inc()
}

// RecordCacheLookup counts a cache hit or miss.
func RecordCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	CacheLookups.WithLabelValues(result).Inc()
}

// RecordContentDrop counts a post page that produced no usable text.
func RecordContentDrop(reason string) {
	ContentDrops.WithLabelValues(reason).Inc()
}

// RecordGeneration counts one generation call and its latency.
func RecordGeneration(provider string, err error, d time.Duration) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	GenerationRequests.WithLabelValues(provider, result).Inc()
	GenerationDuration.WithLabelValues(provider).Observe(d.Seconds())
}

// RecordSubmission counts one submission variant attempt. A zero status
// means a transport failure.
func RecordSubmission(variant string, status int) {
	statusStr := strconv.Itoa(status)
	if status == 0 {
		statusStr = "error"
	}
	SubmissionAttempts.WithLabelValues(variant, statusStr).Inc()
}

// RecordBatchItem counts one processed batch item.
func RecordBatchItem(posted bool, failed bool) {
	switch {
	case failed:
		BatchItems.WithLabelValues("failed").Inc()
	case posted:
		BatchItems.WithLabelValues("posted").Inc()
	default:
		BatchItems.WithLabelValues("generated").Inc()
	}
}

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Server is a standalone listener exposing /metrics, used by one-shot CLI
// runs that have no API server.
type Server struct {
	srv *http.Server
}

// Start begins listening on addr and exposes /metrics.
func Start(addr string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "addr", addr, "err", err)
		}
	}()

	return &Server{srv: srv}
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) error {
	if s == nil || s.srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}
