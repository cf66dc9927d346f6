package promsink

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"

	"github.com/hors-sit/pesitd/internal/diag"
	promcollector "github.com/hors-sit/pesitd/internal/metrics/prometheus"
)

func TestOnStateTracksSessionLifecycle(t *testing.T) {
	reg := prometheus.NewRegistry()
	set := promcollector.New(reg)
	s := New(set)

	s.OnState("sess-1", "", "CONNECTED")
	_, tracked := s.started["sess-1"]
	assert.True(t, tracked)

	time.Sleep(time.Millisecond)
	s.OnState("sess-1", "CONNECTED", "TERMINAL")
	_, stillTracked := s.started["sess-1"]
	assert.False(t, stillTracked)
}

func TestOnBytesOnCompleteOnFailedDoNotPanic(t *testing.T) {
	reg := prometheus.NewRegistry()
	set := promcollector.New(reg)
	s := New(set)

	assert.NotPanics(t, func() {
		s.OnBytes(1, 4096, 8192, true, 2)
		s.OnComplete(1, 8192, time.Second)
		s.OnFailed(2, diag.UnexpectedFPDU, "bad fpdu")
	})
}
