// Package metrics holds the Prometheus instruments for scoring and policy
// evaluation.
//
// Instruments are registered on the Registerer passed to New, so tests can
// use an isolated registry. A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "sengol"

// Metrics groups the instruments shared by the evaluation and submission services.
type Metrics struct {
	// PolicyOutcomes counts per-policy batch outcomes.
	// Labels: outcome (evaluated, violated, error)
	PolicyOutcomes *prometheus.CounterVec

	// ViolationsCreated counts new OPEN violation records.
	ViolationsCreated prometheus.Counter

	// BatchDuration measures evaluate-all runs.
	// Labels: status (complete, timeout)
	BatchDuration *prometheus.HistogramVec

	// ScoringFailures counts submissions whose scores could not be stored.
	ScoringFailures prometheus.Counter

	// DataIssues counts dropped question/response payloads.
	DataIssues prometheus.Counter
}

// New creates and registers all instruments on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		PolicyOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "policy",
			Name:      "evaluations_total",
			Help:      "Policy evaluations by batch outcome",
		}, []string{"outcome"}),
		ViolationsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "policy",
			Name:      "violations_created_total",
			Help:      "New OPEN violation records",
		}),
		BatchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "policy",
			Name:      "batch_duration_seconds",
			Help:      "Duration of evaluate-all batches",
			Buckets:   prometheus.DefBuckets,
		}, []string{"status"}),
		ScoringFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scoring",
			Name:      "failures_total",
			Help:      "Submissions whose scores could not be computed or stored",
		}),
		DataIssues: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scoring",
			Name:      "data_issues_total",
			Help:      "Question or response payloads dropped during normalization",
		}),
	}
	reg.MustRegister(m.PolicyOutcomes, m.ViolationsCreated, m.BatchDuration, m.ScoringFailures, m.DataIssues)
	return m
}

func (m *Metrics) ObservePolicy(outcome string) {
	if m == nil {
		return
	}
	m.PolicyOutcomes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ViolationCreated() {
	if m == nil {
		return
	}
	m.ViolationsCreated.Inc()
}

func (m *Metrics) ObserveBatch(d time.Duration, timedOut bool) {
	if m == nil {
		return
	}
	status := "complete"
	if timedOut {
		status = "timeout"
	}
	m.BatchDuration.WithLabelValues(status).Observe(d.Seconds())
}

func (m *Metrics) ScoringFailed() {
	if m == nil {
		return
	}
	m.ScoringFailures.Inc()
}

func (m *Metrics) DataIssue(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.DataIssues.Add(float64(n))
}
