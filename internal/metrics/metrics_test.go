package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elsanchez/krakguard/internal/domain"
)

func TestMetrics_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveCall()
	m.ObserveCall()
	m.ObserveOutcome(domain.OutcomeApply)
	m.ObserveOutcome(domain.OutcomeAbortBatch)
	m.ObserveBatch(domain.BatchAborted)
	m.ObserveFault("after_save")
	m.ObserveApplyError()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.calls))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.outcomes.WithLabelValues("apply")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.outcomes.WithLabelValues("abort_batch")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.batches.WithLabelValues("aborted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.faults.WithLabelValues("after_save")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.applyErrors))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveCall()
		m.ObserveOutcome(domain.OutcomeApply)
		m.ObserveBatch(domain.BatchCompleted)
		m.ObserveFault("before_save")
		m.ObserveApplyError()
	})
}
