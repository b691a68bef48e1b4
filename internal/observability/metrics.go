package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects gateway-level counters and histograms.
type Metrics struct {
	registry *prometheus.Registry

	decisions     *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	providerCalls *prometheus.CounterVec
	spendCommitted *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())

	m := &Metrics{
		registry: reg,
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_decisions_total",
			Help: "Pipeline decisions by final outcome and terminating stage.",
		}, []string{"outcome", "stage"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gateway_stage_duration_seconds",
			Help:    "Duration of each pipeline stage.",
			Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5, 30},
		}, []string{"stage"}),
		providerCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_provider_calls_total",
			Help: "Upstream provider calls by provider and result code.",
		}, []string{"provider", "code"}),
		spendCommitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_spend_committed_usd_total",
			Help: "Cost committed against budgets, in USD.",
		}, []string{"app_id"}),
	}
	reg.MustRegister(m.decisions, m.stageDuration, m.providerCalls, m.spendCommitted)
	return m
}

func (m *Metrics) ObserveDecision(outcome, stage string) {
	m.decisions.WithLabelValues(outcome, stage).Inc()
}

func (m *Metrics) ObserveStage(stage string, seconds float64) {
	m.stageDuration.WithLabelValues(stage).Observe(seconds)
}

func (m *Metrics) ObserveProviderCall(provider, code string) {
	m.providerCalls.WithLabelValues(provider, code).Inc()
}

func (m *Metrics) ObserveSpend(appID string, usd float64) {
	m.spendCommitted.WithLabelValues(appID).Add(usd)
}

// Handler serves the /metrics scrape endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
