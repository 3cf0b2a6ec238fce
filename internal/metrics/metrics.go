// Package metrics exposes pipeline counters in Prometheus format.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the desk collectors. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	registry *prometheus.Registry

	Messages            *prometheus.CounterVec
	Escalations         *prometheus.CounterVec
	FaultReports        *prometheus.CounterVec
	GenerationFallbacks *prometheus.CounterVec
	Rejected            *prometheus.CounterVec
	Notifications       *prometheus.CounterVec
	ActiveSessions      prometheus.Gauge
	ProcessDuration     prometheus.Histogram
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		Messages: f.NewCounterVec(prometheus.CounterOpts{
			Name: "desk_messages_total",
			Help: "Messages processed, by the stage that produced the reply",
		}, []string{"stage"}),
		Escalations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "desk_escalations_total",
			Help: "Conversations handed to a human, by reason",
		}, []string{"reason"}),
		FaultReports: f.NewCounterVec(prometheus.CounterOpts{
			Name: "desk_fault_reports_total",
			Help: "Fault report updates, by urgency and status",
		}, []string{"urgency", "status"}),
		GenerationFallbacks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "desk_generation_fallbacks_total",
			Help: "Replies served by the rule-based fallback, by cause",
		}, []string{"cause"}),
		Rejected: f.NewCounterVec(prometheus.CounterOpts{
			Name: "desk_rejected_total",
			Help: "Messages stopped by the security filter, by kind",
		}, []string{"kind"}),
		Notifications: f.NewCounterVec(prometheus.CounterOpts{
			Name: "desk_notifications_total",
			Help: "Notification sends, by kind, sink and outcome",
		}, []string{"kind", "sink", "status"}),
		ActiveSessions: f.NewGauge(prometheus.GaugeOpts{
			Name: "desk_active_sessions",
			Help: "Sessions currently held in memory",
		}),
		ProcessDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "desk_process_duration_seconds",
			Help:    "Time taken to process one message",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Message(stage string) {
	if m != nil {
		m.Messages.WithLabelValues(stage).Inc()
	}
}

func (m *Metrics) Escalation(reason string) {
	if m != nil {
		m.Escalations.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) FaultReport(urgency, status string) {
	if m != nil {
		m.FaultReports.WithLabelValues(urgency, status).Inc()
	}
}

func (m *Metrics) Fallback(cause string) {
	if m != nil {
		m.GenerationFallbacks.WithLabelValues(cause).Inc()
	}
}

func (m *Metrics) Reject(kind string) {
	if m != nil {
		m.Rejected.WithLabelValues(kind).Inc()
	}
}

// Notification counts one send; err nil means it was delivered.
func (m *Metrics) Notification(kind, sink string, err error) {
	if m == nil {
		return
	}
	status := "sent"
	if err != nil {
		status = "failed"
	}
	m.Notifications.WithLabelValues(kind, sink, status).Inc()
}

func (m *Metrics) SetActiveSessions(n int) {
	if m != nil {
		m.ActiveSessions.Set(float64(n))
	}
}

// Observe records how long one message took since start.
func (m *Metrics) Observe(start time.Time) {
	if m != nil {
		m.ProcessDuration.Observe(time.Since(start).Seconds())
	}
}
