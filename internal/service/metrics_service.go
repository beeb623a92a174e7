package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/mooc-session-miner/internal/models"
)

// MetricsService encapsulates Prometheus instrumentation for the admin API and
// the segmentation pipeline, and keeps lightweight totals for JSON snapshots.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Observer
	cacheWrite      prometheus.Observer
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	events          *prometheus.CounterVec
	documents       *prometheus.CounterVec
	writeFailures   *prometheus.CounterVec
	writeDuration   *prometheus.HistogramVec
	unresolved      prometheus.Counter
	late            prometheus.Counter
	openLearners    *prometheus.GaugeVec
	runs            *prometheus.CounterVec
	runDuration     prometheus.Observer

	cacheHitCount  uint64
	cacheMissCount uint64
	requestCount   uint64
	eventCount     uint64
	documentCount  uint64
	failureCount   uint64
	runCount       uint64
}

// NewMetricsService registers the collectors on a private registry.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "course_model_cache_latency_seconds",
		Help:    "Latency of course model cache lookups",
		Buckets: prometheus.DefBuckets,
	})

	cacheWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "course_model_cache_write_seconds",
		Help:    "Latency of course model cache writes",
		Buckets: prometheus.DefBuckets,
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "course_model_cache_hits_total",
		Help: "Course model cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "course_model_cache_misses_total",
		Help: "Course model cache misses",
	})

	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pipeline_events_total",
		Help: "Tracking-log lines by decode outcome",
	}, []string{"outcome"})

	documents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pipeline_documents_written_total",
		Help: "Documents written per collection",
	}, []string{"collection"})

	writeFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pipeline_storage_write_failures_total",
		Help: "Failed batch writes per collection",
	}, []string{"collection"})

	writeDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pipeline_storage_write_seconds",
		Help:    "Duration of batch writes per collection",
		Buckets: prometheus.DefBuckets,
	}, []string{"collection"})

	unresolved := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pipeline_unresolved_elements_total",
		Help: "Events referencing elements missing from the course model",
	})

	late := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pipeline_late_events_total",
		Help: "Events dropped for arriving behind a closed window",
	})

	openLearners := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "pipeline_open_learners",
		Help: "Learners with an open window after the last chunk",
	}, []string{"segmenter"})

	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pipeline_runs_total",
		Help: "Finished course runs by status",
	}, []string{"status"})

	runDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "pipeline_run_duration_seconds",
		Help:    "Wall time of course runs",
		Buckets: prometheus.ExponentialBuckets(1, 2, 14),
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheWrite, cacheHits, cacheMisses,
		events, documents, writeFailures, writeDuration, unresolved, late, openLearners, runs, runDuration, goroutines)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		cacheLatency:    cacheLatency,
		cacheWrite:      cacheWrite,
		cacheHits:       cacheHits,
		cacheMisses:     cacheMisses,
		events:          events,
		documents:       documents,
		writeFailures:   writeFailures,
		writeDuration:   writeDuration,
		unresolved:      unresolved,
		late:            late,
		openLearners:    openLearners,
		runs:            runs,
		runDuration:     runDuration,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
	atomic.AddUint64(&m.requestCount, 1)
}

// RecordCacheOperation records a course model cache lookup.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
		return
	}
	m.cacheMisses.Inc()
	atomic.AddUint64(&m.cacheMissCount, 1)
}

// ObserveCacheWrite tracks the duration of cache writes.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// RecordEvents counts decoded, filtered and malformed lines of a log file.
func (m *MetricsService) RecordEvents(decoded, filtered int, malformed map[string]int) {
	if m == nil {
		return
	}
	m.events.WithLabelValues("decoded").Add(float64(decoded))
	m.events.WithLabelValues("filtered").Add(float64(filtered))
	for reason, n := range malformed {
		m.events.WithLabelValues("malformed_" + reason).Add(float64(n))
	}
	atomic.AddUint64(&m.eventCount, uint64(decoded))
}

// RecordWrite records one collection batch write.
func (m *MetricsService) RecordWrite(collection string, written int, duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.writeDuration.WithLabelValues(collection).Observe(duration.Seconds())
	if err != nil {
		m.writeFailures.WithLabelValues(collection).Inc()
		atomic.AddUint64(&m.failureCount, 1)
		return
	}
	m.documents.WithLabelValues(collection).Add(float64(written))
	atomic.AddUint64(&m.documentCount, uint64(written))
}

// RecordSegmenter publishes the counters of one segmenter after a chunk.
func (m *MetricsService) RecordSegmenter(name string, openLearners, unresolved, late int) {
	if m == nil {
		return
	}
	m.openLearners.WithLabelValues(name).Set(float64(openLearners))
	if unresolved > 0 {
		m.unresolved.Add(float64(unresolved))
	}
	if late > 0 {
		m.late.Add(float64(late))
	}
}

// RecordRun counts a finished run.
func (m *MetricsService) RecordRun(status models.RunStatus, duration time.Duration) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(string(status)).Inc()
	m.runDuration.Observe(duration.Seconds())
	atomic.AddUint64(&m.runCount, 1)
}

// Snapshot returns aggregated totals for the JSON metrics endpoint.
func (m *MetricsService) Snapshot() models.PipelineMetrics {
	if m == nil {
		return models.PipelineMetrics{}
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)

	var ratio float64
	if hits+misses > 0 {
		ratio = float64(hits) / float64(hits+misses)
	}
	return models.PipelineMetrics{
		RequestsTotal:    atomic.LoadUint64(&m.requestCount),
		CacheHitRatio:    ratio,
		EventsDecoded:    atomic.LoadUint64(&m.eventCount),
		DocumentsWritten: atomic.LoadUint64(&m.documentCount),
		WriteFailures:    atomic.LoadUint64(&m.failureCount),
		RunsFinished:     atomic.LoadUint64(&m.runCount),
		Goroutines:       runtime.NumGoroutine(),
		GeneratedAt:      time.Now().UTC(),
	}
}
