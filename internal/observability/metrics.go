package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service collectors on a private registry. All methods
// are safe on a nil receiver so components can run without instrumentation.
type Metrics struct {
	registry *prometheus.Registry

	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	errors          *prometheus.CounterVec

	ticketEvents   *prometheus.CounterVec
	notifications  *prometheus.CounterVec
	fanoutDuration prometheus.Histogram
	deliveries     *prometheus.CounterVec
	queueDepth     prometheus.Gauge
}

// NewMetrics initializes and registers collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_errors_total",
			Help: "HTTP errors by domain error code.",
		}, []string{"method", "path", "code"}),
		ticketEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "support_ticket_events_total",
			Help: "Ticket events committed to the outbox.",
		}, []string{"kind"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "support_notifications_total",
			Help: "Notifications written by fan-out, by outcome (created or folded).",
		}, []string{"kind", "outcome"}),
		fanoutDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "support_fanout_duration_seconds",
			Help:    "Time spent draining one ticket's outbox.",
			Buckets: prometheus.DefBuckets,
		}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "support_notification_deliveries_total",
			Help: "Push deliveries by channel and result.",
		}, []string{"channel", "result"}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "support_dispatch_queue_depth",
			Help: "Tickets waiting in the fan-out dispatcher.",
		}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requests, m.requestDuration, m.errors,
		m.ticketEvents, m.notifications, m.fanoutDuration, m.deliveries, m.queueDepth,
	)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(method, path, code).Inc()
}

// RecordTicketEvent counts an outbox append.
func (m *Metrics) RecordTicketEvent(kind string) {
	if m == nil {
		return
	}
	m.ticketEvents.WithLabelValues(kind).Inc()
}

// RecordNotification counts a fan-out write.
func (m *Metrics) RecordNotification(kind string, folded bool) {
	if m == nil {
		return
	}
	outcome := "created"
	if folded {
		outcome = "folded"
	}
	m.notifications.WithLabelValues(kind, outcome).Inc()
}

// ObserveFanout records how long a ticket drain took.
func (m *Metrics) ObserveFanout(duration time.Duration) {
	if m == nil {
		return
	}
	m.fanoutDuration.Observe(duration.Seconds())
}

// RecordDelivery counts a push attempt.
func (m *Metrics) RecordDelivery(channel string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.deliveries.WithLabelValues(channel, result).Inc()
}

// AddQueueDepth moves the dispatcher queue gauge.
func (m *Metrics) AddQueueDepth(delta float64) {
	if m == nil {
		return
	}
	m.queueDepth.Add(delta)
}
