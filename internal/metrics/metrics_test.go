package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetricsRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObservePolicy("violated")
	m.ObservePolicy("violated")
	m.ObservePolicy("error")
	m.ViolationCreated()
	m.ScoringFailed()
	m.DataIssue(3)
	m.DataIssue(0)
	m.ObserveBatch(20*time.Millisecond, true)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.PolicyOutcomes.WithLabelValues("violated")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PolicyOutcomes.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ViolationsCreated))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ScoringFailures))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.DataIssues))
	assert.Equal(t, 1, testutil.CollectAndCount(m.BatchDuration))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObservePolicy("evaluated")
		m.ViolationCreated()
		m.ObserveBatch(time.Second, false)
		m.ScoringFailed()
		m.DataIssue(1)
	})
}
