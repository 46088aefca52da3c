package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics contains the Prometheus metrics for the voice pipeline.
type Metrics struct {
	registry *prometheus.Registry

	// Voice session metrics
	ActiveSessions  prometheus.Gauge
	SessionsOpened  prometheus.Counter
	SessionsClosed  *prometheus.CounterVec
	SessionDuration prometheus.Histogram

	// Queue metrics
	SentencesEnqueued   prometheus.Counter
	SentencesDuplicated prometheus.Counter
	DrainedSentences    prometheus.Counter

	// Interpretation metrics
	Interpretations *prometheus.CounterVec
	SnapshotErrors  prometheus.Counter

	// Confirmation and execution metrics
	Confirmations     *prometheus.CounterVec
	Executions        *prometheus.CounterVec
	ExecutionDuration prometheus.Histogram
}

// New registers every metric on a fresh registry, so independent
// instances never collide.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		ActiveSessions: f.NewGauge(prometheus.GaugeOpts{
			Name: "bond_voice_sessions_active",
			Help: "Current number of live voice sessions",
		}),
		SessionsOpened: f.NewCounter(prometheus.CounterOpts{
			Name: "bond_voice_sessions_opened_total",
			Help: "Total number of voice sessions opened",
		}),
		SessionsClosed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bond_voice_sessions_closed_total",
			Help: "Total number of voice sessions closed, by reason",
		}, []string{"reason"}),
		SessionDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "bond_voice_session_duration_seconds",
			Help:    "Lifetime of voice sessions",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		}),

		SentencesEnqueued: f.NewCounter(prometheus.CounterOpts{
			Name: "bond_queue_sentences_enqueued_total",
			Help: "Total number of sentences added to the queue",
		}),
		SentencesDuplicated: f.NewCounter(prometheus.CounterOpts{
			Name: "bond_queue_sentences_duplicated_total",
			Help: "Total number of sentences collapsed into a pending duplicate",
		}),
		DrainedSentences: f.NewCounter(prometheus.CounterOpts{
			Name: "bond_queue_sentences_drained_total",
			Help: "Total number of sentences handed to consumers",
		}),

		Interpretations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bond_interpretations_total",
			Help: "Total number of interpreted sentences, by tier and action",
		}, []string{"tier", "action"}),
		SnapshotErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "bond_board_snapshot_errors_total",
			Help: "Total number of failed board snapshot fetches",
		}),

		Confirmations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bond_confirmations_total",
			Help: "Total number of confirmation requests, by status",
		}, []string{"status"}),
		Executions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bond_executions_total",
			Help: "Total number of executed commands, by action and result",
		}, []string{"action", "result"}),
		ExecutionDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "bond_execution_duration_seconds",
			Help:    "Time spent applying a command to the tracker",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) SessionOpened(speaker string) {
	m.ActiveSessions.Inc()
	m.SessionsOpened.Inc()
}

func (m *Metrics) SessionClosed(speaker string, reason string, lifetime time.Duration) {
	m.ActiveSessions.Dec()
	m.SessionsClosed.WithLabelValues(reason).Inc()
	m.SessionDuration.Observe(lifetime.Seconds())
}

func (m *Metrics) SentenceEnqueued(added bool) {
	if added {
		m.SentencesEnqueued.Inc()
	} else {
		m.SentencesDuplicated.Inc()
	}
}

func (m *Metrics) SentencesDrained(n int) {
	m.DrainedSentences.Add(float64(n))
}

func (m *Metrics) Interpreted(tier, action string) {
	m.Interpretations.WithLabelValues(tier, action).Inc()
}

func (m *Metrics) SnapshotFailed() {
	m.SnapshotErrors.Inc()
}

func (m *Metrics) Confirmation(status string) {
	m.Confirmations.WithLabelValues(status).Inc()
}

func (m *Metrics) Executed(action string, success bool, took time.Duration) {
	result := "success"
	if !success {
		result = "failure"
	}
	m.Executions.WithLabelValues(action, result).Inc()
	m.ExecutionDuration.Observe(took.Seconds())
}
