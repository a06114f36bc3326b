package obs

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	accountOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookie_account_operations_total",
			Help: "Account lifecycle operations by outcome.",
		},
		[]string{"op", "outcome"},
	)

	passwordHashSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bookie_password_hash_seconds",
			Help:    "Argon2 derivation latency in seconds.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"kind"},
	)

	initOnce sync.Once
)

// Init registers the metrics in the default registry. Safe to call more than once.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(httpInFlight, httpRequestsTotal, httpRequestDuration, accountOperations, passwordHashSeconds)
	})
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveAccountOperation counts one lifecycle operation; outcome is "ok" or an error class.
func ObserveAccountOperation(op, outcome string) {
	accountOperations.WithLabelValues(op, outcome).Inc()
}

// ObservePasswordHash records one Argon2 derivation; kind is "hash" or "verify".
func ObservePasswordHash(kind string, d time.Duration) {
	passwordHashSeconds.WithLabelValues(kind).Observe(d.Seconds())
}

// Instrument measures in-flight requests, totals and latency per canonical path.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		defer httpInFlight.Dec()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		status := strconv.Itoa(sw.code)
		httpRequestDuration.WithLabelValues(method, path, status).Observe(time.Since(start).Seconds())
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	})
}

// CanonicalPath collapses account ids so label cardinality stays bounded:
// /v1/admin/accounts/42/password becomes /v1/admin/accounts/:id/password.
func CanonicalPath(raw string) string {
	if i := strings.IndexAny(raw, "?#"); i >= 0 {
		raw = raw[:i]
	}
	if raw == "" {
		return "/"
	}
	segments := strings.Split(strings.TrimPrefix(raw, "/"), "/")
	if len(segments) >= 4 && segments[0] == "v1" && segments[1] == "admin" && segments[2] == "accounts" {
		switch len(segments) {
		case 4:
			return "/v1/admin/accounts/:id"
		case 5:
			if segments[4] == "password" || segments[4] == "profile" {
				return "/v1/admin/accounts/:id/" + segments[4]
			}
		}
	}
	return raw
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
