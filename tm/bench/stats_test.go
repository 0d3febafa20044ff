package bench

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func histogramCount(t *testing.T, h prometheus.Histogram) uint64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, h.Write(&m))
	return m.GetHistogram().GetSampleCount()
}

func TestRecordLRIncrementsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	s, err := NewStats(reg)
	require.NoError(t, err)

	s.RecordLR()
	s.RecordLR()
	assert.Equal(t, float64(2), counterValue(t, s.lrCount))
}

func TestResolvedLatencyForgetsRound(t *testing.T) {
	reg := prometheus.NewRegistry()
	s, err := NewStats(reg)
	require.NoError(t, err)

	s.MarkRoundStart(5000)
	s.RecordFirstShare(5000)
	s.RecordResolved(5000)

	assert.Equal(t, uint64(1), histogramCount(t, s.firstShareLag))
	assert.Equal(t, uint64(1), histogramCount(t, s.resolvedLag))
	_, ok := s.roundStart[5000]
	assert.False(t, ok, "RecordResolved should forget the round")

	// A second RecordResolved for the same dts with no new MarkRoundStart
	// is a no-op, since the round was already forgotten.
	s.RecordResolved(5000)
	assert.Equal(t, uint64(1), histogramCount(t, s.resolvedLag))
}

func TestNewStatsRejectsDuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewStats(reg)
	require.NoError(t, err)

	_, err = NewStats(reg)
	assert.Error(t, err, "expected the second NewStats on the same registry to fail on name collision")
}
