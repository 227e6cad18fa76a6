package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	initOnce sync.Once

	httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "studiovault",
		Name:      "http_requests_total",
		Help:      "HTTP requests by route, method and status.",
	}, []string{"route", "method", "status"})

	httpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "studiovault",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency by route and method.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route", "method"})

	ingestFiles = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "studiovault",
		Subsystem: "ingest",
		Name:      "files_total",
		Help:      "Ingested files by terminal outcome.",
	}, []string{"outcome"})

	ingestBytes = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "studiovault",
		Subsystem: "ingest",
		Name:      "committed_bytes_total",
		Help:      "Post-compression bytes committed to the ledger.",
	})

	quotaRejections = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "studiovault",
		Subsystem: "quota",
		Name:      "rejections_total",
		Help:      "Quota rejections by stage (preflight or commit).",
	}, []string{"stage"})

	archiveAssets = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "studiovault",
		Subsystem: "archive",
		Name:      "assets_total",
		Help:      "Assets processed by the archive exporter by outcome.",
	}, []string{"outcome"})

	selectionSubmissions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "studiovault",
		Subsystem: "selection",
		Name:      "submissions_total",
		Help:      "Selection submissions by outcome.",
	}, []string{"outcome"})
)

// InitMetrics registers all collectors with the default registry. Safe to call
// more than once.
func InitMetrics() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			httpDuration,
			ingestFiles,
			ingestBytes,
			quotaRejections,
			archiveAssets,
			selectionSubmissions,
		)
	})
}

// Middleware records request counts and latency per matched route.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		httpRequests.WithLabelValues(route, c.Request.Method, strconv.Itoa(c.Writer.Status())).Inc()
		httpDuration.WithLabelValues(route, c.Request.Method).Observe(time.Since(start).Seconds())
	}
}

// Register attaches the Prometheus metrics endpoint to the router.
func Register(router *gin.Engine, path string) {
	router.GET(path, gin.WrapH(promhttp.Handler()))
}

// FileIngested counts a file reaching a terminal ingestion state.
func FileIngested(outcome string) {
	ingestFiles.WithLabelValues(outcome).Inc()
}

// BytesCommitted adds committed post-compression bytes.
func BytesCommitted(n int64) {
	if n > 0 {
		ingestBytes.Add(float64(n))
	}
}

// QuotaRejected counts a ledger rejection at the given stage.
func QuotaRejected(stage string) {
	quotaRejections.WithLabelValues(stage).Inc()
}

// ArchiveAsset counts one asset handled by the exporter.
func ArchiveAsset(outcome string) {
	archiveAssets.WithLabelValues(outcome).Inc()
}

// SelectionSubmitted counts a submission attempt.
func SelectionSubmitted(outcome string) {
	selectionSubmissions.WithLabelValues(outcome).Inc()
}
