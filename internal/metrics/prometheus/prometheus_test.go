package prometheus

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	io_prometheus_client "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, cv *prometheus.CounterVec, labels ...string) float64 {
	t.Helper()
	c, err := cv.GetMetricWithLabelValues(labels...)
	require.NoError(t, err)
	var m io_prometheus_client.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m io_prometheus_client.Metric
	require.NoError(t, g.Write(&m))
	return m.GetGauge().GetValue()
}

func TestTransferMetricsRecordBytesAndComplete(t *testing.T) {
	reg := prometheus.NewRegistry()
	s := New(reg)

	s.Transfer().RecordBytes("send", 1024)
	s.Transfer().RecordBytes("send", 2048)
	s.Transfer().RecordBytes("receive", 512)

	assert.Equal(t, float64(3072), counterValue(t, s.transfer.bytesTotal, "send"))
	assert.Equal(t, float64(512), counterValue(t, s.transfer.bytesTotal, "receive"))

	s.Transfer().RecordComplete("send", 3072, 2*time.Second)
	assert.Equal(t, float64(1), counterValue(t, s.transfer.completedTotal, "send"))
}

func TestTransferMetricsRecordFailed(t *testing.T) {
	reg := prometheus.NewRegistry()
	s := New(reg)

	s.Transfer().RecordFailed("send", "D3_301")
	s.Transfer().RecordFailed("send", "D3_301")
	s.Transfer().RecordFailed("receive", "D2_205")

	assert.Equal(t, float64(2), counterValue(t, s.transfer.failedTotal, "send", "D3_301"))
	assert.Equal(t, float64(1), counterValue(t, s.transfer.failedTotal, "receive", "D2_205"))
}

func TestTransferMetricsActiveGauge(t *testing.T) {
	reg := prometheus.NewRegistry()
	s := New(reg)

	s.Transfer().SetActiveTransfers(3)
	assert.Equal(t, float64(3), gaugeValue(t, s.transfer.activeGauge))
}

func TestSessionMetricsCreatedAndDestroyed(t *testing.T) {
	reg := prometheus.NewRegistry()
	s := New(reg)

	s.Session().RecordCreated()
	s.Session().RecordCreated()
	assert.Equal(t, float64(2), gaugeValue(t, s.session.activeGauge))

	s.Session().RecordDestroyed("session_closed", 5*time.Second)
	assert.Equal(t, float64(1), counterValue(t, s.session.destroyedTotal, "session_closed"))
	assert.Equal(t, float64(1), gaugeValue(t, s.session.activeGauge))
}

func TestMetricsNilSafe(t *testing.T) {
	var tm *transferMetrics
	var sm *sessionMetrics

	tm.RecordBytes("send", 10)
	tm.RecordComplete("send", 10, time.Second)
	tm.RecordFailed("send", "D3_301")
	tm.RecordSyncPoint("send")
	tm.SetActiveTransfers(1)

	sm.RecordCreated()
	sm.RecordDestroyed("reason", time.Second)
	sm.SetActiveSessions(1)
}

func TestDoubleRegistrationDoesNotPanic(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	assert.NotPanics(t, func() { New(reg) })
}
