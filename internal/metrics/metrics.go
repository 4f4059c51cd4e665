// Package metrics counts frames through the capture loop and exposes them
// to Prometheus.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the loop counters. The zero value is not usable; call New.
type Metrics struct {
	FramesRead      atomic.Uint64
	FramesProcessed atomic.Uint64
	FramesFailed    atomic.Uint64
	FramesRendered  atomic.Uint64
	RunsRejected    atomic.Uint64
	RunsStarted     atomic.Uint64

	ProcessLatencyMs atomic.Uint64 // last frame
	Streaming        atomic.Bool

	registry *prometheus.Registry
}

// New creates the counters and registers them on a private registry
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	counters := []struct {
		name, help string
		v          *atomic.Uint64
	}{
		{"facemap_frames_read_total", "Frames acquired from a device or file", &m.FramesRead},
		{"facemap_frames_processed_total", "Frames that passed the processor chain", &m.FramesProcessed},
		{"facemap_frames_failed_total", "Frames whose processor chain failed", &m.FramesFailed},
		{"facemap_frames_rendered_total", "Frames handed to a preview window or output file", &m.FramesRendered},
		{"facemap_runs_rejected_total", "Runs stopped by the content filter", &m.RunsRejected},
		{"facemap_runs_started_total", "Preview, live and render runs started", &m.RunsStarted},
	}
	for _, c := range counters {
		v := c.v
		m.registry.MustRegister(prometheus.NewCounterFunc(
			prometheus.CounterOpts{Name: c.name, Help: c.help},
			func() float64 { return float64(v.Load()) },
		))
	}

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "facemap_process_latency_ms",
			Help: "Processor chain latency of the last frame in milliseconds",
		},
		func() float64 { return float64(m.ProcessLatencyMs.Load()) },
	))
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "facemap_live_streaming",
			Help: "1 while the live loop is running",
		},
		func() float64 {
			if m.Streaming.Load() {
				return 1
			}
			return 0
		},
	))
	return m
}

// ObserveProcess records the chain latency of one frame
func (m *Metrics) ObserveProcess(d time.Duration) {
	m.ProcessLatencyMs.Store(uint64(d.Milliseconds()))
}

// Registry exposes the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the Prometheus HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
