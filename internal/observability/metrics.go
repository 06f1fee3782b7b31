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

// Metrics stores Prometheus collectors used by the API, the scheduler and
// batch runs.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	contactsTotal       *prometheus.CounterVec
	invitesSentTotal    *prometheus.CounterVec
	groupsCreatedTotal  *prometheus.CounterVec
	batchDuration       *prometheus.HistogramVec
	batchesInflight     *prometheus.GaugeVec
	batchFailuresTotal  *prometheus.CounterVec
	gatewayCallDuration *prometheus.HistogramVec
}

const metricsNamespace = "group_enroller"

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests processed by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds by method and path.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		contactsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "contacts_enrolled_total",
				Help:      "Total number of processed contacts by account and terminal status.",
			},
			[]string{"account", "status"},
		),
		invitesSentTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "invites_sent_total",
				Help:      "Total number of private invites delivered to invite-only contacts.",
			},
			[]string{"account"},
		),
		groupsCreatedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "groups_created_total",
				Help:      "Total number of groups created by the capacity manager.",
			},
			[]string{"account"},
		),
		batchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "batch_duration_seconds",
				Help:      "Wall time of a batch run in seconds grouped by account.",
				Buckets:   prometheus.ExponentialBuckets(1, 2, 14),
			},
			[]string{"account"},
		),
		batchesInflight: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "batches_inflight",
				Help:      "Current number of running batches grouped by account.",
			},
			[]string{"account"},
		),
		batchFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "batch_failures_total",
				Help:      "Total number of batches that aborted, grouped by account and reason.",
			},
			[]string{"account", "reason"},
		),
		gatewayCallDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "gateway_call_duration_seconds",
				Help:      "Messaging gateway call duration in seconds grouped by operation.",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
			},
			[]string{"operation"},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.contactsTotal,
		m.invitesSentTotal,
		m.groupsCreatedTotal,
		m.batchDuration,
		m.batchesInflight,
		m.batchFailuresTotal,
		m.gatewayCallDuration,
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

func (m *Metrics) IncContactProcessed(account string, status string) {
	if m == nil {
		return
	}
	m.contactsTotal.WithLabelValues(normalizeLabel(account), normalizeLabel(status)).Inc()
}

func (m *Metrics) IncInviteSent(account string) {
	if m == nil {
		return
	}
	m.invitesSentTotal.WithLabelValues(normalizeLabel(account)).Inc()
}

func (m *Metrics) IncGroupCreated(account string) {
	if m == nil {
		return
	}
	m.groupsCreatedTotal.WithLabelValues(normalizeLabel(account)).Inc()
}

func (m *Metrics) ObserveBatchDuration(account string, duration time.Duration) {
	if m == nil {
		return
	}
	m.batchDuration.WithLabelValues(normalizeLabel(account)).Observe(nonNegativeSeconds(duration))
}

func (m *Metrics) IncBatchInFlight(account string) {
	if m == nil {
		return
	}
	m.batchesInflight.WithLabelValues(normalizeLabel(account)).Inc()
}

func (m *Metrics) DecBatchInFlight(account string) {
	if m == nil {
		return
	}
	m.batchesInflight.WithLabelValues(normalizeLabel(account)).Dec()
}

func (m *Metrics) IncBatchFailed(account string, reason string) {
	if m == nil {
		return
	}
	m.batchFailuresTotal.WithLabelValues(normalizeLabel(account), normalizeLabel(reason)).Inc()
}

func (m *Metrics) ObserveGatewayCall(operation string, duration time.Duration) {
	if m == nil {
		return
	}
	m.gatewayCallDuration.WithLabelValues(normalizeLabel(operation)).Observe(nonNegativeSeconds(duration))
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

func nonNegativeSeconds(duration time.Duration) float64 {
	seconds := duration.Seconds()
	if seconds < 0 {
		return 0
	}
	return seconds
}

func normalizeLabel(value string) string {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "" {
		return "unknown"
	}
	return normalized
}
