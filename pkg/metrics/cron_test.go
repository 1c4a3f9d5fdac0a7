package metrics

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCronJobMetricsRecordsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCronJobMetrics(reg)
	job := "purchase-order-archival"

	m.ObserveRun(job, 250*time.Millisecond, nil)
	m.ObserveRun(job, time.Second, errors.New("db down"))
	m.ObserveRun("", time.Second, nil)
	m.IncSkipped()
	m.IncSkipped()
	m.IncLockLost()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues(job, outcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues(job, outcomeFailure)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("unknown", outcomeSuccess)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.skipped))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.lockLost))
	assert.Greater(t, testutil.ToFloat64(m.lastSuccess.WithLabelValues(job)), 0.0)

	mfs, err := reg.Gather()
	require.NoError(t, err)
	count, err := fetchHistogramCount(mfs, "cron_job_duration_seconds", "job", job)
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)
}

func TestNilCronJobMetricsIsNoop(t *testing.T) {
	m := NewCronJobMetrics(nil)
	assert.Nil(t, m)
	assert.NotPanics(t, func() {
		m.ObserveRun("job", time.Second, nil)
		m.IncSkipped()
		m.IncLockLost()
	})
}

func fetchCounterValue(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	metric, err := findSeries(mfs, name, label, value)
	if err != nil {
		return 0, err
	}
	return metric.GetCounter().GetValue(), nil
}

func fetchHistogramCount(mfs []*dto.MetricFamily, name, label, value string) (uint64, error) {
	metric, err := findSeries(mfs, name, label, value)
	if err != nil {
		return 0, err
	}
	return metric.GetHistogram().GetSampleCount(), nil
}

func findSeries(mfs []*dto.MetricFamily, name, label, value string) (*dto.Metric, error) {
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.GetMetric() {
			for _, pair := range metric.GetLabel() {
				if pair.GetName() == label && pair.GetValue() == value {
					return metric, nil
				}
			}
		}
		return nil, fmt.Errorf("metric %q has no series with %s=%s", name, label, value)
	}
	return nil, fmt.Errorf("metric %q not found", name)
}
