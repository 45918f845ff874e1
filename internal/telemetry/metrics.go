package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the router.
type Metrics struct {
	RequestTotal        *prometheus.CounterVec
	RequestDurationMs   *prometheus.HistogramVec
	TokensTotal         *prometheus.CounterVec
	CostUSDTotal        *prometheus.CounterVec
	BudgetRejectedTotal *prometheus.CounterVec
	TrimmedMessages     prometheus.Counter
}

// NewMetrics creates and registers all Prometheus metrics against reg.
// Pass prometheus.DefaultRegisterer in production and a fresh registry
// in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		RequestTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "claw_router_request_total",
			Help: "Total number of chat completion requests processed.",
		}, []string{"provider", "model", "intent", "priority", "status"}),

		RequestDurationMs: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "claw_router_request_duration_ms",
			Help:    "End to end request duration in milliseconds (including provider latency).",
			Buckets: []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000},
		}, []string{"provider", "model"}),

		TokensTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "claw_router_tokens_total",
			Help: "Total tokens processed.",
		}, []string{"provider", "model", "direction"}),

		CostUSDTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "claw_router_cost_usd_total",
			Help: "Estimated total cost in USD.",
		}, []string{"provider", "model"}),

		BudgetRejectedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "claw_router_budget_rejected_total",
			Help: "Requests rejected because a provider spend cap would be exceeded.",
		}, []string{"provider"}),

		TrimmedMessages: factory.NewCounter(prometheus.CounterOpts{
			Name: "claw_router_trimmed_messages_total",
			Help: "Messages dropped while fitting prompts into token budgets.",
		}),
	}
}

// RecordRequest records metrics for a completed request.
func (m *Metrics) RecordRequest(labels RequestLabels) {
	m.RequestTotal.WithLabelValues(
		labels.Provider, labels.Model, labels.Intent, labels.Priority, labels.Status,
	).Inc()

	m.RequestDurationMs.WithLabelValues(
		labels.Provider, labels.Model,
	).Observe(labels.DurationMs)

	if labels.PromptTokens > 0 {
		m.TokensTotal.WithLabelValues(
			labels.Provider, labels.Model, "prompt",
		).Add(float64(labels.PromptTokens))
	}

	if labels.CompletionTokens > 0 {
		m.TokensTotal.WithLabelValues(
			labels.Provider, labels.Model, "completion",
		).Add(float64(labels.CompletionTokens))
	}

	if labels.CostUSD > 0 {
		m.CostUSDTotal.WithLabelValues(
			labels.Provider, labels.Model,
		).Add(labels.CostUSD)
	}

	if labels.TrimmedMessages > 0 {
		m.TrimmedMessages.Add(float64(labels.TrimmedMessages))
	}
}

// RecordBudgetRejection records a request turned away at admission.
func (m *Metrics) RecordBudgetRejection(provider string) {
	m.BudgetRejectedTotal.WithLabelValues(provider).Inc()
}

// RequestLabels holds the label values for recording a request.
type RequestLabels struct {
	Provider         string
	Model            string
	Intent           string
	Priority         string
	Status           string
	DurationMs       float64
	PromptTokens     int
	CompletionTokens int
	CostUSD          float64
	TrimmedMessages  int
}
