package telemetry

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_CountersAccumulate(t *testing.T) {
	m := NewMetrics("missionsim")

	m.RecordBatch()
	m.RecordBatch()
	m.RecordReset("divergence")
	m.RecordExtension()
	m.RecordSimulation("fresh", 10*time.Millisecond)
	m.RecordFailure("")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.batches))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.resets.WithLabelValues("divergence")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.extensions))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.simulations.WithLabelValues("fresh")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.failures.WithLabelValues("unknown")))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordBatch()
		m.RecordReset("x")
		m.RecordExtension()
		m.RecordSimulation("fresh", time.Second)
		m.RecordFailure("x")
	})
	assert.Nil(t, m.Registry())
	assert.NoError(t, m.WriteTextfile(filepath.Join(t.TempDir(), "unused.prom")))
}

func TestMetrics_WriteTextfile(t *testing.T) {
	m := NewMetrics("missionsim")
	m.RecordBatch()
	path := filepath.Join(t.TempDir(), "metrics.prom")

	require.NoError(t, m.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "missionsim_batches_total 1"))
}

func TestSpans_NoProviderIsSafe(t *testing.T) {
	_, span := StartSpan(context.Background(), "test")
	assert.NotPanics(t, func() { EndSpan(span, errors.New("boom")) })
}
