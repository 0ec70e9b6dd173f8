// Package metrics exposes consultation pipeline metrics to Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups the collectors of the consultation pipeline. A nil *Metrics
// records nothing.
type Metrics struct {
	ConsultationsTotal *prometheus.CounterVec
	StageDuration      *prometheus.HistogramVec
	FallbacksTotal     *prometheus.CounterVec
	DegradedTotal      *prometheus.CounterVec
	ActiveSessions     prometheus.Gauge
	WebsocketClients   prometheus.Gauge
}

// New registers the collectors on reg
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ConsultationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "aidoctor_consultations_total",
			Help: "Finished consultations by persona, language and outcome",
		}, []string{"persona", "language", "outcome"}),

		StageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "aidoctor_stage_duration_seconds",
			Help:    "Latency of each external pipeline stage",
			Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32, 64},
		}, []string{"stage", "status"}),

		FallbacksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "aidoctor_fallbacks_total",
			Help: "Fallback attempts taken by operation",
		}, []string{"operation"}),

		DegradedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "aidoctor_degraded_total",
			Help: "Stages that failed and were replaced by an error text or missing audio",
		}, []string{"stage"}),

		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "aidoctor_active_sessions",
			Help: "Consultation sessions currently held in memory",
		}),

		WebsocketClients: factory.NewGauge(prometheus.GaugeOpts{
			Name: "aidoctor_websocket_clients",
			Help: "Connected progress subscribers",
		}),
	}
}

// ObserveStage records how long a stage took
func (m *Metrics) ObserveStage(stage string, start time.Time, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.StageDuration.WithLabelValues(stage, status).Observe(time.Since(start).Seconds())
}

// Fallback counts one fallback attempt of operation
func (m *Metrics) Fallback(operation string) {
	if m == nil {
		return
	}
	m.FallbacksTotal.WithLabelValues(operation).Inc()
}

// Degraded counts a stage whose failure was absorbed into the result
func (m *Metrics) Degraded(stage string) {
	if m == nil {
		return
	}
	m.DegradedTotal.WithLabelValues(stage).Inc()
}

// Consultation counts a finished consultation
func (m *Metrics) Consultation(persona, language, outcome string) {
	if m == nil {
		return
	}
	m.ConsultationsTotal.WithLabelValues(persona, language, outcome).Inc()
}

// SessionOpened and SessionClosed track the active session gauge
func (m *Metrics) SessionOpened() {
	if m != nil {
		m.ActiveSessions.Inc()
	}
}

func (m *Metrics) SessionClosed() {
	if m != nil {
		m.ActiveSessions.Dec()
	}
}

// ClientConnected and ClientDisconnected track websocket subscribers
func (m *Metrics) ClientConnected() {
	if m != nil {
		m.WebsocketClients.Inc()
	}
}

func (m *Metrics) ClientDisconnected() {
	if m != nil {
		m.WebsocketClients.Dec()
	}
}
