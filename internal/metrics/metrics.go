// Package metrics holds the Prometheus collectors exported by leadline.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics holds all Prometheus collectors. A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPResponseSize    *prometheus.HistogramVec

	AuthFailuresTotal  *prometheus.CounterVec
	AuthSuccessesTotal *prometheus.CounterVec

	LeadsCreatedTotal  prometheus.Counter
	NotificationsTotal *prometheus.CounterVec

	RateLimitRejectionsTotal *prometheus.CounterVec

	ServerStartTime prometheus.Gauge
}

// New creates and registers all metrics on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,

		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "leadline_http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path_pattern", "status_code"}),

		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "leadline_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path_pattern"}),

		HTTPResponseSize: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "leadline_http_response_size_bytes",
			Help:    "HTTP response size in bytes.",
			Buckets: prometheus.ExponentialBuckets(100, 10, 6),
		}, []string{"method", "path_pattern"}),

		AuthFailuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "leadline_auth_failures_total",
			Help: "Total number of failed signups and signins.",
		}, []string{"action"}),

		AuthSuccessesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "leadline_auth_successes_total",
			Help: "Total number of successful signups and signins.",
		}, []string{"action"}),

		LeadsCreatedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "leadline_leads_created_total",
			Help: "Total number of leads submitted.",
		}),

		NotificationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "leadline_notifications_total",
			Help: "Lead notification emails by kind and outcome.",
		}, []string{"kind", "status"}),

		RateLimitRejectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "leadline_ratelimit_rejections_total",
			Help: "Total number of rate limit rejections.",
		}, []string{"scope"}),

		ServerStartTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "leadline_server_start_time_seconds",
			Help: "Unix timestamp when the server started.",
		}),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPResponseSize,
		m.AuthFailuresTotal,
		m.AuthSuccessesTotal,
		m.LeadsCreatedTotal,
		m.NotificationsTotal,
		m.RateLimitRejectionsTotal,
		m.ServerStartTime,
	)
	m.ServerStartTime.Set(float64(time.Now().Unix()))

	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return m
}

// Registry returns the private Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RegisterDBPoolCollector registers a custom DB pool stats collector.
func (m *Metrics) RegisterDBPoolCollector(statFunc DBPoolStatFunc) {
	m.registry.MustRegister(NewDBPoolCollector(statFunc))
}

// ObserveHTTP records one served request.
func (m *Metrics) ObserveHTTP(method, pattern string, status int, d time.Duration, bytes int) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, pattern, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, pattern).Observe(d.Seconds())
	m.HTTPResponseSize.WithLabelValues(method, pattern).Observe(float64(bytes))
}

// IncAuthFailure counts a failed signup or signin.
func (m *Metrics) IncAuthFailure(action string) {
	if m == nil {
		return
	}
	m.AuthFailuresTotal.WithLabelValues(action).Inc()
}

// IncAuthSuccess counts a successful signup or signin.
func (m *Metrics) IncAuthSuccess(action string) {
	if m == nil {
		return
	}
	m.AuthSuccessesTotal.WithLabelValues(action).Inc()
}

// IncLeadCreated counts a submitted lead.
func (m *Metrics) IncLeadCreated() {
	if m == nil {
		return
	}
	m.LeadsCreatedTotal.Inc()
}

// RecordNotification counts a notification outcome.
func (m *Metrics) RecordNotification(kind, status string) {
	if m == nil {
		return
	}
	m.NotificationsTotal.WithLabelValues(kind, status).Inc()
}

// IncRateLimitRejection counts a request rejected by the limiter for scope.
func (m *Metrics) IncRateLimitRejection(scope string) {
	if m == nil {
		return
	}
	m.RateLimitRejectionsTotal.WithLabelValues(scope).Inc()
}
