// Package metrics exposes Prometheus counters for the sync engines.
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Queue labels.
const (
	QueueForms    = "forms"
	QueuePayments = "payments"
)

// Queue row results.
const (
	ResultSynced   = "synced"
	ResultFailed   = "failed"
	ResultDeferred = "deferred"
)

// Cache refresh results.
const (
	RefreshFetched  = "fetched"
	RefreshFresh    = "fresh"
	RefreshFallback = "fallback"
)

var (
	namespace = "oilsync"
	subsystem = "sync"

	queueRows = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "queue_rows_total",
			Help:      "Queued rows processed by a drain pass, by queue and result",
		},
		[]string{"queue", "result"},
	)

	cacheReads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "cache_reads_total",
			Help:      "Read-through cache reads, by cache and whether the network was used",
		},
		[]string{"cache", "result"},
	)

	skippedPasses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "skipped_passes_total",
			Help:      "Sync passes dropped because one was already running",
		},
		[]string{"engine"},
	)

	passDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "pass_duration_seconds",
			Help:      "Duration of sync passes in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
		},
		[]string{"engine"},
	)
)

// RecordQueueRow counts one processed queue row.
func RecordQueueRow(queue, result string) {
	queueRows.WithLabelValues(queue, result).Inc()
}

// QueueRows returns the counter for queue and result.
func QueueRows(queue, result string) prometheus.Counter {
	return queueRows.WithLabelValues(queue, result)
}

// RecordCacheRead counts one read-through read.
func RecordCacheRead(cache, result string) {
	cacheReads.WithLabelValues(cache, result).Inc()
}

// CacheReads returns the counter for cache and result.
func CacheReads(cache, result string) prometheus.Counter {
	return cacheReads.WithLabelValues(cache, result)
}

// IncSkipped counts a dropped re-entrant pass.
func IncSkipped(engine string) {
	skippedPasses.WithLabelValues(engine).Inc()
}

// Skipped returns the skipped-pass counter for engine.
func Skipped(engine string) prometheus.Counter {
	return skippedPasses.WithLabelValues(engine)
}

// ObservePass records how long a pass took.
func ObservePass(engine string, d time.Duration) {
	passDuration.WithLabelValues(engine).Observe(d.Seconds())
}

// SetupMetricsEndpoint serves /metrics on addr in the background.
func SetupMetricsEndpoint(addr string, logger *zap.SugaredLogger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorw("metrics server stopped", "addr", addr, "error", err)
		}
	}()
	return srv
}
