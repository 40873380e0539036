package observability

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flightqa_http_requests_total",
			Help: "Total number of HTTP requests by route and status.",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "flightqa_http_request_duration_seconds",
			Help:    "HTTP request latency by route. Streams are measured until the last event.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 40, 80},
		},
		[]string{"method", "route", "status"},
	)

	httpFirstByteSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "flightqa_http_first_byte_seconds",
			Help:    "Time until the first response body byte, by route.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20},
		},
		[]string{"method", "route"},
	)
)

func init() {
	prometheus.MustRegister(httpRequestsTotal, httpRequestDurationSeconds, httpFirstByteSeconds)
}

var knownRoutes = map[string]struct{}{
	"/v1/health":   {},
	"/v1/ready":    {},
	"/v1/metrics":  {},
	"/v1/stream":   {},
	"/v1/query":    {},
	"/v1/airlines": {},
	"/v1/policies": {},
}

// RouteLabel maps a request path onto a bounded set of metric labels.
func RouteLabel(path string) string {
	if _, ok := knownRoutes[path]; ok {
		return path
	}
	if rest, ok := strings.CutPrefix(path, "/v1/policies/"); ok && rest != "" && !strings.Contains(rest, "/") {
		return "/v1/policies/{file}"
	}
	return "other"
}
