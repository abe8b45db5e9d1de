package telemetry

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func TestNoopCollector(t *testing.T) {
	collector := Noop()
	require.NotNil(t, collector)
	collector.ObserveCondition("winter", "valid", time.Second)
	collector.IncError("GrammarError")
	collector.IncRun("completed")
}

func TestPrometheusCollectorRegistersAndReusesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewPrometheusCollector(reg)
	require.NoError(t, err)

	collector.IncError("GrammarError")

	again, err := NewPrometheusCollector(reg)
	require.NoError(t, err)
	require.Same(t, collector.errors, again.errors)

	again.IncError("GrammarError")

	mf := gather(t, reg, "tsa_errors_total")
	requireCounterValue(t, mf, 2)
}

func TestPrometheusCollectorObserveCondition(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewPrometheusCollector(reg)
	require.NoError(t, err)

	collector.ObserveCondition("winter", "valid", 20*time.Millisecond)
	collector.ObserveCondition("winter", "invalid", 0)
	collector.IncRun("completed")

	conditions := gather(t, reg, "tsa_conditions_total")
	require.Len(t, conditions.Metric, 2)

	duration := gather(t, reg, "tsa_condition_evaluation_seconds")
	require.Len(t, duration.Metric, 1)
	require.Equal(t, uint64(1), duration.Metric[0].GetHistogram().GetSampleCount())

	requireCounterValue(t, gather(t, reg, "tsa_runs_total"), 1)
}

func TestWriteTextfile(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewPrometheusCollector(reg)
	require.NoError(t, err)
	collector.IncRun("failed")

	path := filepath.Join(t.TempDir(), "tsa.prom")
	require.NoError(t, WriteTextfile(path, reg))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), `tsa_runs_total{status="failed"} 1`)
}

func gather(t *testing.T, reg *prometheus.Registry, name string) *dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() == name {
			return mf
		}
	}
	t.Fatalf("metric %s not gathered", name)
	return nil
}

func requireCounterValue(t *testing.T, mf *dto.MetricFamily, value float64) {
	t.Helper()
	require.Len(t, mf.Metric, 1)
	require.NotNil(t, mf.Metric[0].Counter)
	require.Equal(t, value, mf.Metric[0].Counter.GetValue())
}
