package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "method", "status"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"route", "method"},
	)

	EmbedRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "embed_requests_total",
			Help: "Total number of embedding requests by provider and outcome",
		},
		[]string{"provider", "outcome"},
	)
	EmbedRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "embed_request_duration_seconds",
			Help:    "Embedding request duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"provider"},
	)
	EmbedCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "embed_cache_total",
			Help: "Embedding cache lookups by layer and result",
		},
		[]string{"layer", "result"},
	)

	VectorIndexSize = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "vector_index_entries",
			Help: "Entries in the published vector index snapshot",
		},
		[]string{"namespace"},
	)
	VectorIndexRebuildsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vector_index_rebuilds_total",
			Help: "Vector index rebuilds by namespace and outcome",
		},
		[]string{"namespace", "outcome"},
	)

	EvaluationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "evaluations_total",
			Help: "Total number of resume evaluations by verdict",
		},
		[]string{"verdict"},
	)
	RelevanceScoreHistogram = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "evaluation_relevance_score",
			Help:    "Distribution of relevance_score ([0,100])",
			Buckets: []float64{10, 20, 30, 40, 50, 60, 70, 75, 80, 90, 100},
		},
	)
)

var registerOnce sync.Once

// InitMetrics registers every collector with the default registry. Safe to call more than once.
func InitMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(HTTPRequestsTotal)
		prometheus.MustRegister(HTTPRequestDuration)
		prometheus.MustRegister(EmbedRequestsTotal)
		prometheus.MustRegister(EmbedRequestDuration)
		prometheus.MustRegister(EmbedCacheTotal)
		prometheus.MustRegister(VectorIndexSize)
		prometheus.MustRegister(VectorIndexRebuildsTotal)
		prometheus.MustRegister(EvaluationsTotal)
		prometheus.MustRegister(RelevanceScoreHistogram)
	})
}

// HTTPMetricsMiddleware records Prometheus metrics for each request.
func HTTPMetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		dur := time.Since(start).Seconds()
		// Route pattern may be unavailable outside chi router; guard nil
		var route string
		if rc := chi.RouteContext(r.Context()); rc != nil {
			route = rc.RoutePattern()
		}
		if route == "" {
			route = r.URL.Path
		}
		HTTPRequestsTotal.WithLabelValues(route, r.Method, http.StatusText(ww.Status())).Inc()
		HTTPRequestDuration.WithLabelValues(route, r.Method).Observe(dur)
	})
}

// ObserveEvaluation records the verdict and relevance score of a finished evaluation.
func ObserveEvaluation(verdict string, relevance float64) {
	EvaluationsTotal.WithLabelValues(verdict).Inc()
	if relevance >= 0 && relevance <= 100 {
		RelevanceScoreHistogram.Observe(relevance)
	}
}

// ObserveEmbed records one embedding provider call.
func ObserveEmbed(provider string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	EmbedRequestsTotal.WithLabelValues(provider, outcome).Inc()
	EmbedRequestDuration.WithLabelValues(provider).Observe(time.Since(start).Seconds())
}

// CacheLookup records a hit or miss for an embedding cache layer.
func CacheLookup(layer string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	EmbedCacheTotal.WithLabelValues(layer, result).Inc()
}

// SetIndexSize publishes the current entry count of a namespace.
func SetIndexSize(namespace string, n int) {
	VectorIndexSize.WithLabelValues(namespace).Set(float64(n))
}

// IndexRebuilt counts a namespace rebuild with its outcome (rebuilt, data_loss, failed).
func IndexRebuilt(namespace, outcome string) {
	VectorIndexRebuildsTotal.WithLabelValues(namespace, outcome).Inc()
}
