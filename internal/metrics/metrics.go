// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the service collectors.
type Metrics struct {
	Transitions    *prometheus.CounterVec
	EventsRecorded *prometheus.CounterVec
	Requests       *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "geoattend",
			Name:      "attendance_transitions_total",
			Help:      "Check-in and check-out attempts by outcome.",
		}, []string{"action", "outcome"}),
		EventsRecorded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "geoattend",
			Name:      "audit_events_total",
			Help:      "Audit events consumed from the queue by result.",
		}, []string{"kind", "result"}),
		Requests: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "geoattend",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
	reg.MustRegister(m.Transitions, m.EventsRecorded, m.Requests)
	return m
}

// Transition counts one check-in or check-out attempt.
func (m *Metrics) Transition(action, outcome string) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(action, outcome).Inc()
}

// Recorded counts one consumed audit event.
func (m *Metrics) Recorded(kind, result string) {
	if m == nil {
		return
	}
	m.EventsRecorded.WithLabelValues(kind, result).Inc()
}

// GinMiddleware observes request latency labelled by the matched route.
func (m *Metrics) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.Requests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}
