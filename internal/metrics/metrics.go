package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	globalMetrics *Metrics
	globalMu      sync.RWMutex
)

// Metrics holds all Prometheus metrics for mailpilot
type Metrics struct {
	// Job counters
	JobsStartedTotal   *prometheus.CounterVec
	JobsFinishedTotal  *prometheus.CounterVec
	JobRecipientsTotal *prometheus.CounterVec
	JobsActive         *prometheus.GaugeVec

	// Provider calls
	ProviderRequestsTotal          *prometheus.CounterVec
	ProviderRequestDurationSeconds *prometheus.HistogramVec

	// API metrics
	APIRequestsTotal          *prometheus.CounterVec
	APIRequestDurationSeconds *prometheus.HistogramVec
	APIErrorsTotal            *prometheus.CounterVec

	// System metrics
	Accounts         prometheus.Gauge
	UptimeSeconds    prometheus.Gauge
	Goroutines       prometheus.Gauge
	StorageUsedBytes prometheus.Gauge

	registry *prometheus.Registry
}

// New creates a new Metrics instance with all metrics registered
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		JobsStartedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailpilot_jobs_started_total",
				Help: "Total number of bulk jobs started",
			},
			[]string{"kind"},
		),
		JobsFinishedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailpilot_jobs_finished_total",
				Help: "Total number of bulk jobs that reached a terminal status",
			},
			[]string{"kind", "status"},
		),
		JobRecipientsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailpilot_job_recipients_total",
				Help: "Total number of recipients processed by bulk jobs",
			},
			[]string{"kind", "status"},
		),
		JobsActive: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "mailpilot_jobs_active",
				Help: "Number of bulk jobs currently processing, waiting or paused",
			},
			[]string{"kind"},
		),

		ProviderRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailpilot_provider_requests_total",
				Help: "Total number of requests made to the email provider",
			},
			[]string{"operation", "result"},
		),
		ProviderRequestDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mailpilot_provider_request_duration_seconds",
				Help:    "Email provider request duration in seconds",
				Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"operation"},
		),

		APIRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailpilot_api_requests_total",
				Help: "Total number of API requests",
			},
			[]string{"method", "path", "status"},
		),
		APIRequestDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mailpilot_api_request_duration_seconds",
				Help:    "API request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		APIErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailpilot_api_errors_total",
				Help: "Total number of API errors",
			},
			[]string{"error_type"},
		),

		Accounts: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "mailpilot_accounts",
				Help: "Number of stored provider accounts",
			},
		),
		UptimeSeconds: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "mailpilot_uptime_seconds",
				Help: "Server uptime in seconds",
			},
		),
		Goroutines: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "mailpilot_goroutines",
				Help: "Number of active goroutines",
			},
		),
		StorageUsedBytes: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "mailpilot_storage_used_bytes",
				Help: "Account database file size in bytes",
			},
		),

		registry: reg,
	}

	reg.MustRegister(
		m.JobsStartedTotal,
		m.JobsFinishedTotal,
		m.JobRecipientsTotal,
		m.JobsActive,
		m.ProviderRequestsTotal,
		m.ProviderRequestDurationSeconds,
		m.APIRequestsTotal,
		m.APIRequestDurationSeconds,
		m.APIErrorsTotal,
		m.Accounts,
		m.UptimeSeconds,
		m.Goroutines,
		m.StorageUsedBytes,
	)

	return m
}

// Registry returns the Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// SetGlobal sets the global metrics instance
func SetGlobal(m *Metrics) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalMetrics = m
}

// Global returns the global metrics instance
func Global() *Metrics {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalMetrics
}

// IncJobsStarted increments the started job counter
func IncJobsStarted(kind string) {
	if m := Global(); m != nil {
		m.JobsStartedTotal.WithLabelValues(kind).Inc()
	}
}

// IncJobsFinished increments the finished job counter for a terminal status
func IncJobsFinished(kind, status string) {
	if m := Global(); m != nil {
		m.JobsFinishedTotal.WithLabelValues(kind, status).Inc()
	}
}

// IncJobRecipients counts one processed recipient
func IncJobRecipients(kind string, ok bool) {
	m := Global()
	if m == nil {
		return
	}
	status := "success"
	if !ok {
		status = "failed"
	}
	m.JobRecipientsTotal.WithLabelValues(kind, status).Inc()
}

// ObserveProviderRequest records one provider call
func ObserveProviderRequest(operation, result string, d time.Duration) {
	m := Global()
	if m == nil {
		return
	}
	m.ProviderRequestsTotal.WithLabelValues(operation, result).Inc()
	m.ProviderRequestDurationSeconds.WithLabelValues(operation).Observe(d.Seconds())
}
