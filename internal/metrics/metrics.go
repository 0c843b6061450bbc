// Package metrics exposes the Session Engine's Prometheus instrumentation.
// The pack's services wire github.com/prometheus/client_golang/prometheus/promhttp
// in front of the default registry (see hololive-kakao-bot-go and
// mcp-llm-server-go's health handlers); Collector extends that with the
// domain counters/histograms this engine needs, registered with promauto
// against a dedicated registry so tests can construct throwaway instances.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector holds every metric the Session Engine and host sweep emit.
type Collector struct {
	registry *prometheus.Registry

	sessionsInitialized prometheus.Counter
	sessionsCompleted   prometheus.Counter
	sessionsHibernated  prometheus.Counter
	activeSessions      prometheus.Gauge
	liveConnections     prometheus.Gauge

	questionsStarted prometheus.Counter
	questionsEnded   prometheus.Counter

	answersAdmitted *prometheus.CounterVec
	rateLimited     prometheus.Counter

	storageLatency prometheus.Histogram
}

// New builds a Collector registered against a fresh registry. Production
// wiring serves reg via promhttp.HandlerFor, mirroring the pack's promhttp
// exposition; tests can call New() per-case without colliding on the
// default global registry.
func New() *Collector {
	reg := prometheus.NewRegistry()
	c := &Collector{
		registry: reg,
		sessionsInitialized: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "ropequiz_sessions_initialized_total",
			Help: "Sessions that completed init().",
		}),
		sessionsCompleted: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "ropequiz_sessions_completed_total",
			Help: "Sessions that reached the completed phase.",
		}),
		sessionsHibernated: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "ropequiz_sessions_hibernated_total",
			Help: "Sessions stopped by the idle sweep.",
		}),
		activeSessions: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "ropequiz_active_sessions",
			Help: "Session engines currently running in this process.",
		}),
		liveConnections: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "ropequiz_live_connections",
			Help: "Live WebSocket connections across all sessions in this process.",
		}),
		questionsStarted: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "ropequiz_questions_started_total",
			Help: "Questions started across all sessions.",
		}),
		questionsEnded: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "ropequiz_questions_ended_total",
			Help: "Questions ended across all sessions.",
		}),
		answersAdmitted: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "ropequiz_answers_admitted_total",
			Help: "Answers admitted, labeled by correctness.",
		}, []string{"correct"}),
		rateLimited: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "ropequiz_rate_limited_total",
			Help: "Inbound messages dropped by the per-connection rate limiter.",
		}),
		storageLatency: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "ropequiz_storage_latency_seconds",
			Help:    "Latency of Storage Adapter calls.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	return c
}

// Registry returns the registry to serve via promhttp.HandlerFor.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

func (c *Collector) SessionInitialized() { c.sessionsInitialized.Inc() }
func (c *Collector) SessionCompleted()   { c.sessionsCompleted.Inc() }
func (c *Collector) SessionHibernated()  { c.sessionsHibernated.Inc() }

func (c *Collector) SessionStarted() { c.activeSessions.Inc() }
func (c *Collector) SessionStopped() { c.activeSessions.Dec() }

func (c *Collector) ConnectionOpened() { c.liveConnections.Inc() }
func (c *Collector) ConnectionClosed() { c.liveConnections.Dec() }

func (c *Collector) QuestionStarted() { c.questionsStarted.Inc() }

// QuestionEnded records an ended question; total and correct are the
// attempt counts computed by the lifecycle controller's stats pass.
func (c *Collector) QuestionEnded(total, correct int) {
	c.questionsEnded.Inc()
	_ = total
	_ = correct
}

func (c *Collector) AnswerAdmitted(correct bool) {
	label := "false"
	if correct {
		label = "true"
	}
	c.answersAdmitted.WithLabelValues(label).Inc()
}

func (c *Collector) RateLimited() { c.rateLimited.Inc() }

func (c *Collector) ObserveStorageLatencySeconds(seconds float64) {
	c.storageLatency.Observe(seconds)
}
