package metrics

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "focus_http_requests_total",
		Help: "Total number of HTTP requests processed.",
	}, []string{"method", "route", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "focus_http_request_duration_seconds",
		Help:    "Histogram of latencies for HTTP requests.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	dbLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "focus_db_latency_seconds",
		Help:    "Histogram of database operation latencies.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "route"})

	jobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "focus_completion_jobs_total",
		Help: "Completion events processed by outcome.",
	}, []string{"source", "outcome"})

	recomputeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "focus_leaderboard_recompute_seconds",
		Help:    "Latency of a single user's leaderboard recomputation.",
		Buckets: prometheus.DefBuckets,
	})

	broadcastsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "focus_leaderboard_broadcasts_total",
		Help: "Leaderboard snapshot pushes by outcome.",
	}, []string{"outcome"})

	wsConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "focus_websocket_connections",
		Help: "Currently connected websocket clients.",
	})
)

// Middleware records request metrics labelled by the matched chi route pattern.
func Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			route := routePattern(r)
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			httpRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
			httpRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		})
	}
}

// Handler exposes the Prometheus metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveDBLatency records database latency for a given operation.
func ObserveDBLatency(ctx context.Context, operation string, start time.Time) {
	dbLatency.WithLabelValues(operation, routeFromContext(ctx)).Observe(time.Since(start).Seconds())
}

// ObserveJob counts a processed completion event. Source is "pool" or "kafka".
func ObserveJob(source string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	jobsTotal.WithLabelValues(source, outcome).Inc()
}

// ObserveRecompute records how long a leaderboard recomputation took.
func ObserveRecompute(start time.Time) {
	recomputeDuration.Observe(time.Since(start).Seconds())
}

// ObserveBroadcast counts a leaderboard snapshot push.
func ObserveBroadcast(err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	broadcastsTotal.WithLabelValues(outcome).Inc()
}

// SetWebSocketConnections reports the live client count.
func SetWebSocketConnections(n int) {
	wsConnections.Set(float64(n))
}

func routeFromContext(ctx context.Context) string {
	if rctx := chi.RouteContext(ctx); rctx != nil {
		if pattern := strings.TrimSpace(rctx.RoutePattern()); pattern != "" {
			return pattern
		}
	}
	return "background"
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := strings.TrimSpace(rctx.RoutePattern()); pattern != "" {
			return pattern
		}
	}
	return "unmatched"
}
