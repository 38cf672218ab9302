package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics stores Prometheus collectors used by API, dispatcher, and
// scheduler flows.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal        *prometheus.CounterVec
	httpRequestDuration      *prometheus.HistogramVec
	messagesSentTotal        *prometheus.CounterVec
	messagesFailedTotal      *prometheus.CounterVec
	messagesRateLimitedTotal *prometheus.CounterVec
	rateLimitedTotal         *prometheus.CounterVec
	sendDuration             *prometheus.HistogramVec
	sendRetriesTotal         *prometheus.CounterVec
	workerInflight           prometheus.Gauge
	jobsFiredTotal           prometheus.Counter
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "sms_engine",
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests processed by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "sms_engine",
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds by method and path.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		messagesSentTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "sms_engine",
				Name:      "messages_sent_total",
				Help:      "Total number of messages delivered, grouped by provider.",
			},
			[]string{"provider"},
		),
		messagesFailedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "sms_engine",
				Name:      "messages_failed_total",
				Help:      "Total number of messages that ended in a failed state, grouped by provider and reason.",
			},
			[]string{"provider", "reason"},
		),
		messagesRateLimitedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "sms_engine",
				Name:      "messages_rate_limited_total",
				Help:      "Total number of messages that settled rate limited because every provider quota was exhausted.",
			},
			[]string{"provider"},
		),
		rateLimitedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "sms_engine",
				Name:      "rate_limited_total",
				Help:      "Total number of sends skipped because a provider quota window was exhausted.",
			},
			[]string{"provider"},
		),
		sendDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "sms_engine",
				Name:      "send_duration_seconds",
				Help:      "Provider send duration in seconds grouped by provider.",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
			},
			[]string{"provider"},
		),
		sendRetriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "sms_engine",
				Name:      "send_retries_total",
				Help:      "Total number of same-provider retries after transient failures.",
			},
			[]string{"provider"},
		),
		workerInflight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "sms_engine",
				Name:      "worker_inflight",
				Help:      "Current number of in-flight dispatch operations.",
			},
		),
		jobsFiredTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "sms_engine",
				Name:      "jobs_fired_total",
				Help:      "Total number of scheduled jobs fired into the dispatch queue.",
			},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.messagesSentTotal,
		m.messagesFailedTotal,
		m.messagesRateLimitedTotal,
		m.rateLimitedTotal,
		m.sendDuration,
		m.sendRetriesTotal,
		m.workerInflight,
		m.jobsFiredTotal,
	)

	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) HTTPMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		path := routePath(c)
		// Avoid self-scrape noise for request counters.
		if path == "/metrics" {
			return err
		}

		m.recordHTTPRequest(c.Method(), path, statusFromResult(c, err), time.Since(start))
		return err
	}
}

func (m *Metrics) IncMessageSent(provider string) {
	if m == nil {
		return
	}
	m.messagesSentTotal.WithLabelValues(normalizeProviderLabel(provider)).Inc()
}

func (m *Metrics) IncMessageFailed(provider string, reason string) {
	if m == nil {
		return
	}
	reasonLabel := strings.TrimSpace(strings.ToLower(reason))
	if reasonLabel == "" {
		reasonLabel = "unknown"
	}
	m.messagesFailedTotal.WithLabelValues(normalizeProviderLabel(provider), reasonLabel).Inc()
}

func (m *Metrics) IncMessageRateLimited(provider string) {
	if m == nil {
		return
	}
	m.messagesRateLimitedTotal.WithLabelValues(normalizeProviderLabel(provider)).Inc()
}

func (m *Metrics) IncRateLimited(provider string) {
	if m == nil {
		return
	}
	m.rateLimitedTotal.WithLabelValues(normalizeProviderLabel(provider)).Inc()
}

func (m *Metrics) ObserveSendDuration(provider string, duration time.Duration) {
	if m == nil {
		return
	}
	seconds := duration.Seconds()
	if seconds < 0 {
		seconds = 0
	}
	m.sendDuration.WithLabelValues(normalizeProviderLabel(provider)).Observe(seconds)
}

func (m *Metrics) IncSendRetry(provider string) {
	if m == nil {
		return
	}
	m.sendRetriesTotal.WithLabelValues(normalizeProviderLabel(provider)).Inc()
}

func (m *Metrics) IncWorkerInFlight() {
	if m == nil {
		return
	}
	m.workerInflight.Inc()
}

func (m *Metrics) DecWorkerInFlight() {
	if m == nil {
		return
	}
	m.workerInflight.Dec()
}

func (m *Metrics) IncJobFired() {
	if m == nil {
		return
	}
	m.jobsFiredTotal.Inc()
}

func (m *Metrics) recordHTTPRequest(method string, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}

	methodLabel := strings.ToUpper(strings.TrimSpace(method))
	if methodLabel == "" {
		methodLabel = "UNKNOWN"
	}
	pathLabel := strings.TrimSpace(path)
	if pathLabel == "" {
		pathLabel = "unmatched"
	}

	m.httpRequestsTotal.WithLabelValues(methodLabel, pathLabel, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(methodLabel, pathLabel).Observe(duration.Seconds())
}

func routePath(c *fiber.Ctx) string {
	if c == nil {
		return "unmatched"
	}

	if route := c.Route(); route != nil {
		if path := strings.TrimSpace(route.Path); path != "" {
			return path
		}
	}
	return "unmatched"
}

func statusFromResult(c *fiber.Ctx, err error) int {
	if err != nil {
		if fiberErr, ok := err.(*fiber.Error); ok {
			return fiberErr.Code
		}
		return fiber.StatusInternalServerError
	}

	if c == nil {
		return fiber.StatusOK
	}

	status := c.Response().StatusCode()
	if status == 0 {
		return fiber.StatusOK
	}
	return status
}

func normalizeProviderLabel(provider string) string {
	normalized := strings.ToLower(strings.TrimSpace(provider))
	if normalized == "" {
		return "unknown"
	}
	return normalized
}
