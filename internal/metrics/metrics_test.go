package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.Consultation("modern", "en", "complete")
	m.Consultation("modern", "en", "complete")
	m.Fallback("reasoning")
	m.Degraded("speech")
	m.ObserveStage("analyzing", time.Now(), nil)
	m.ObserveStage("analyzing", time.Now(), errors.New("boom"))
	m.SessionOpened()
	m.SessionOpened()
	m.SessionClosed()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ConsultationsTotal.WithLabelValues("modern", "en", "complete")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FallbacksTotal.WithLabelValues("reasoning")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DegradedTotal.WithLabelValues("speech")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ActiveSessions))
	assert.Equal(t, 2, testutil.CollectAndCount(m.StageDuration))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.Consultation("modern", "en", "complete")
	m.Fallback("speech")
	m.Degraded("transcription")
	m.ObserveStage("speaking", time.Now(), nil)
	m.SessionOpened()
	m.ClientConnected()
}
