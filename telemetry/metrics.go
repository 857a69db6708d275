package telemetry

import (
	"context"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	auth "github.com/Small-Group-Org/prd-proto-hub"
)

// Metrics holds the collectors exported on /metrics.
type Metrics struct {
	registry       *prometheus.Registry
	events         *prometheus.CounterVec
	sinkErrors     *prometheus.CounterVec
	requests       *prometheus.CounterVec
	requestSeconds *prometheus.HistogramVec
}

// NewMetrics registers the auth collectors on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		events: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "auth_activity_events_total",
				Help: "Audit events emitted by action.",
			},
			[]string{"action"},
		),
		sinkErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "auth_activity_sink_errors_total",
				Help: "Audit events the downstream sink failed to record.",
			},
			[]string{"action"},
		),
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests.",
			},
			[]string{"method", "route", "status"},
		),
		requestSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latencies in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}

	m.registry.MustRegister(m.events, m.sinkErrors, m.requests, m.requestSeconds)
	return m
}

// Registry exposes the registry, used by tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
}

// Middleware counts requests by route pattern, never by raw path.
func (m *Metrics) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			} else {
				status = fiber.StatusInternalServerError
			}
		}

		route := c.Route().Path
		m.requests.WithLabelValues(c.Method(), route, strconv.Itoa(status)).Inc()
		m.requestSeconds.WithLabelValues(c.Method(), route).Observe(time.Since(start).Seconds())
		return err
	}
}

// Sink decorates next, counting every event it sees.
func (m *Metrics) Sink(next auth.ActivitySink) *MetricsSink {
	return &MetricsSink{metrics: m, next: next}
}

// MetricsSink is an auth.ActivitySink that counts events before forwarding.
type MetricsSink struct {
	metrics *Metrics
	next    auth.ActivitySink
}

var _ auth.ActivitySink = (*MetricsSink)(nil)

func (s *MetricsSink) Record(ctx context.Context, event auth.ActivityEvent) error {
	action := string(event.EventType)
	s.metrics.events.WithLabelValues(action).Inc()

	if s.next == nil {
		return nil
	}

	if err := s.next.Record(ctx, event); err != nil {
		s.metrics.sinkErrors.WithLabelValues(action).Inc()
		return err
	}
	return nil
}
