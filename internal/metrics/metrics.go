// Package metrics holds the Prometheus collectors shared by the HTTP layer
// and the session service. A nil *Metrics is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "session_auth"

// Session operation outcomes
const (
	ResultIssued   = "issued"   // new tokens minted
	ResultCached   = "cached"   // existing session returned
	ResultRejected = "rejected" // unauthorized
	ResultError    = "error"    // store or cache failure
	ResultEnded    = "ended"
)

type Metrics struct {
	RequestsTotal     *prometheus.CounterVec
	RequestDuration   *prometheus.HistogramVec
	SessionOperations *prometheus.CounterVec
	RateLimited       prometheus.Counter
}

// New creates the collectors and registers them with reg
func New(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		RequestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "HTTP requests by route pattern and status class",
			},
			[]string{"route", "status"},
		),
		RequestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"route"},
		),
		SessionOperations: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "session_operations_total",
				Help:      "Session lifecycle operations by outcome",
			},
			[]string{"operation", "result"},
		),
		RateLimited: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rate_limited_total",
				Help:      "Login attempts rejected by the rate limiter",
			},
		),
	}
}

func (m *Metrics) ObserveSession(operation, result string) {
	if m == nil {
		return
	}
	m.SessionOperations.WithLabelValues(operation, result).Inc()
}

func (m *Metrics) ObserveRequest(route string, status int, seconds float64) {
	if m == nil {
		return
	}
	m.RequestDuration.WithLabelValues(route).Observe(seconds)
	m.RequestsTotal.WithLabelValues(route, StatusClass(status)).Inc()
}

func (m *Metrics) ObserveRateLimited() {
	if m == nil {
		return
	}
	m.RateLimited.Inc()
}

// StatusClass buckets a status code as 2xx, 3xx, 4xx or 5xx
func StatusClass(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
