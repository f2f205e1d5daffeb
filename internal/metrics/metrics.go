package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the session counters. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	reg *prometheus.Registry

	Sessions      *prometheus.CounterVec
	SessionErrors *prometheus.CounterVec
	StageDuration *prometheus.HistogramVec
	UploadBytes   prometheus.Histogram
	ActiveSession prometheus.Gauge
}

// New registers every metric on a fresh registry so tests can build as many
// as they like.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		reg: reg,
		Sessions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voiceask_sessions_total",
			Help: "Sessions finished, by outcome",
		}, []string{"outcome"}),
		SessionErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voiceask_session_errors_total",
			Help: "Failed sessions, by error kind",
		}, []string{"kind"}),
		StageDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "voiceask_stage_duration_seconds",
			Help:    "Time spent in each session stage",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms to ~100s
		}, []string{"stage"}),
		UploadBytes: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "voiceask_upload_bytes",
			Help:    "Size of uploaded recordings",
			Buckets: prometheus.ExponentialBuckets(1024, 2, 12), // 1KB to ~4MB
		}),
		ActiveSession: f.NewGauge(prometheus.GaugeOpts{
			Name: "voiceask_session_active",
			Help: "1 while a session is running",
		}),
	}
}

func (m *Metrics) SessionStarted() {
	if m == nil {
		return
	}
	m.ActiveSession.Set(1)
}

func (m *Metrics) SessionFinished(outcome, kind string) {
	if m == nil {
		return
	}
	m.ActiveSession.Set(0)
	m.Sessions.WithLabelValues(outcome).Inc()
	if kind != "" {
		m.SessionErrors.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (m *Metrics) ObserveUpload(bytes int) {
	if m == nil {
		return
	}
	m.UploadBytes.Observe(float64(bytes))
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}
