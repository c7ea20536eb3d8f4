// Package metrics exposes API metrics to Prometheus and publishes worker
// metrics to CloudWatch.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"skyguard/internal/types"
)

// Prometheus holds the API process collectors. Each instance owns its
// registry so tests can create as many as they like.
type Prometheus struct {
	registry *prometheus.Registry

	httpDuration  *prometheus.HistogramVec
	alertsSent    *prometheus.CounterVec
	recipients    *prometheus.CounterVec
	partialFanout *prometheus.CounterVec
	rateLimited   prometheus.Counter
	auditDropped  prometheus.Counter
	cycleAlerts   prometheus.Counter
	cycleFailures prometheus.Counter
}

// NewPrometheus registers the collectors under namespace.
func NewPrometheus(namespace string) *Prometheus {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Prometheus{
		registry: reg,
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		}, []string{"method", "route", "status"}),
		alertsSent: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_sent_total",
			Help:      "Alerts persisted by the fan-out engine",
		}, []string{"alert_type", "source"}),
		recipients: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alert_recipients_total",
			Help:      "Recipient rows written by the fan-out engine",
		}, []string{"alert_type"}),
		partialFanout: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alert_partial_fanout_total",
			Help:      "Sends that stopped before every recipient was written",
		}, []string{"alert_type"}),
		rateLimited: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alert_rate_limited_total",
			Help:      "Sends rejected by the per-sender limiter",
		}),
		auditDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_write_failures_total",
			Help:      "Audit entries that could not be stored",
		}),
		cycleAlerts: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "weather_cycle_alerts_total",
			Help:      "Alerts created by manually triggered monitor cycles",
		}),
		cycleFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "weather_cycle_location_failures_total",
			Help:      "Locations that failed during manually triggered monitor cycles",
		}),
	}
}

// Handler serves the registry in the Prometheus text format.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{Registry: p.registry})
}

// ObserveRequest records one HTTP request. route is the matched pattern,
// not the raw path, to keep label cardinality bounded.
func (p *Prometheus) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	p.httpDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(elapsed.Seconds())
}

// AlertSent implements alerting.Recorder.
func (p *Prometheus) AlertSent(alertType types.AlertType, source string, recipients int) {
	p.alertsSent.WithLabelValues(string(alertType), source).Inc()
	p.recipients.WithLabelValues(string(alertType)).Add(float64(recipients))
}

// PartialFanout implements alerting.Recorder.
func (p *Prometheus) PartialFanout(alertType types.AlertType) {
	p.partialFanout.WithLabelValues(string(alertType)).Inc()
}

// RateLimited implements alerting.Recorder.
func (p *Prometheus) RateLimited() {
	p.rateLimited.Inc()
}

// AuditWriteFailed implements audit.FailureCounter.
func (p *Prometheus) AuditWriteFailed() {
	p.auditDropped.Inc()
}

// MonitorCycle records the outcome of an API-triggered evaluator run.
func (p *Prometheus) MonitorCycle(alertsCreated, failures int) {
	p.cycleAlerts.Add(float64(alertsCreated))
	p.cycleFailures.Add(float64(failures))
}
