package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gathered(t *testing.T, m *Metrics) map[string]float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	require.NoError(t, err)
	out := make(map[string]float64)
	for _, f := range families {
		for _, metric := range f.GetMetric() {
			switch {
			case metric.GetCounter() != nil:
				out[f.GetName()] = metric.GetCounter().GetValue()
			case metric.GetGauge() != nil:
				out[f.GetName()] = metric.GetGauge().GetValue()
			}
		}
	}
	return out
}

func TestCounters(t *testing.T) {
	m := New()
	m.FramesRead.Add(3)
	m.FramesProcessed.Add(2)
	m.FramesFailed.Add(1)
	m.Streaming.Store(true)
	m.ObserveProcess(42 * time.Millisecond)

	got := gathered(t, m)
	assert.Equal(t, 3.0, got["facemap_frames_read_total"])
	assert.Equal(t, 2.0, got["facemap_frames_processed_total"])
	assert.Equal(t, 1.0, got["facemap_frames_failed_total"])
	assert.Equal(t, 0.0, got["facemap_runs_rejected_total"])
	assert.Equal(t, 1.0, got["facemap_live_streaming"])
	assert.Equal(t, 42.0, got["facemap_process_latency_ms"])
}

func TestHandler(t *testing.T) {
	m := New()
	m.FramesRendered.Add(7)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, 200, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "facemap_frames_rendered_total 7"))
}
