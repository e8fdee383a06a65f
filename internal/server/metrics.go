package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"sponsorrail/internal/executor"
	"sponsorrail/internal/workflow"
)

// Metrics is a private registry. It also observes the workflow, executor and
// custody packages so their counters land here.
type Metrics struct {
	registry         *prometheus.Registry
	workflowsTotal   *prometheus.CounterVec
	submissionsTotal *prometheus.CounterVec
	ownershipPolls   *prometheus.CounterVec
	pollAttempts     prometheus.Histogram
	reconcilePending prometheus.Gauge
}

func NewMetrics() *Metrics {
	workflows := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sponsorrail_workflows_total",
		Help: "Finished workflow runs by kind and outcome",
	}, []string{"kind", "outcome"})

	submissions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sponsorrail_submissions_total",
		Help: "Sponsored transaction submissions by call and result",
	}, []string{"call", "result"})

	polls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sponsorrail_ownership_polls_total",
		Help: "Ownership verifications by outcome",
	}, []string{"outcome"})

	attempts := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "sponsorrail_ownership_poll_attempts",
		Help:    "Reads spent per ownership verification",
		Buckets: []float64{1, 2, 3, 5, 8, 13},
	})

	pending := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sponsorrail_reconcile_pending",
		Help: "Journal entries awaiting reconciliation",
	})

	r := prometheus.NewRegistry()
	r.MustRegister(workflows, submissions, polls, attempts, pending)

	return &Metrics{
		registry:         r,
		workflowsTotal:   workflows,
		submissionsTotal: submissions,
		ownershipPolls:   polls,
		pollAttempts:     attempts,
		reconcilePending: pending,
	}
}

func (m *Metrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveWorkflow(kind workflow.Kind, outcome string) {
	m.workflowsTotal.WithLabelValues(string(kind), outcome).Inc()
}

func (m *Metrics) ObserveSubmission(label string, outcome executor.Outcome) {
	result := "success"
	if !outcome.Success {
		result = "failure"
		if outcome.Digest == "" {
			result = "not_submitted"
		}
	}
	m.submissionsTotal.WithLabelValues(label, result).Inc()
}

func (m *Metrics) ObserveOwnershipPoll(verified bool, attempts int) {
	outcome := "verified"
	if !verified {
		outcome = "unverified"
	}
	m.ownershipPolls.WithLabelValues(outcome).Inc()
	m.pollAttempts.Observe(float64(attempts))
}

func (m *Metrics) SetReconcilePending(n int) {
	m.reconcilePending.Set(float64(n))
}
