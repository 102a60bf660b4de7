package services

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Request outcomes recorded on weather_requests_total.
const (
	OutcomeSuccess        = "success"
	OutcomeUpstreamStatus = "upstream_status"
	OutcomeTransportError = "transport_error"
	OutcomeDecodeError    = "decode_error"
	OutcomeEmptyBody      = "empty_body"
	OutcomeSuperseded     = "superseded"
	OutcomeDiscarded      = "discarded"
)

// Reasons recorded on weather_dropped_transitions_total.
const (
	dropSubscriberFull = "subscriber_full"
	dropForwardFull    = "forward_full"
)

type coordinatorMetrics struct {
	requests           *prometheus.CounterVec
	requestLatency     prometheus.Histogram
	activeCoordinators prometheus.Gauge
	droppedTransitions *prometheus.CounterVec
	activeSessions     prometheus.Gauge
}

var (
	metricsInstance *coordinatorMetrics
	metricsOnce     sync.Once
	defaultRegistry = prometheus.DefaultRegisterer
)

func newCoordinatorMetrics() *coordinatorMetrics {
	metricsOnce.Do(func() {
		metricsInstance = &coordinatorMetrics{
			requests: promauto.With(defaultRegistry).NewCounterVec(prometheus.CounterOpts{
				Name: "weather_requests_total",
				Help: "Weather requests by outcome",
			}, []string{"outcome"}),
			requestLatency: promauto.With(defaultRegistry).NewHistogram(prometheus.HistogramOpts{
				Name:    "weather_request_duration_seconds",
				Help:    "Time taken by weather API calls",
				Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
			}),
			activeCoordinators: promauto.With(defaultRegistry).NewGauge(prometheus.GaugeOpts{
				Name: "weather_active_coordinators",
				Help: "Current number of open fetch coordinators",
			}),
			droppedTransitions: promauto.With(defaultRegistry).NewCounterVec(prometheus.CounterOpts{
				Name: "weather_dropped_transitions_total",
				Help: "State transitions dropped before reaching an observer",
			}, []string{"reason"}),
			activeSessions: promauto.With(defaultRegistry).NewGauge(prometheus.GaugeOpts{
				Name: "weather_active_sessions",
				Help: "Current number of open weather sessions",
			}),
		}
	})
	return metricsInstance
}

// For testing purposes - reset metrics onto a fresh registry.
func resetMetricsForTesting() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	defaultRegistry = reg
	metricsInstance = nil
	metricsOnce = sync.Once{}
	return reg
}
