// Package metrics exports Prometheus counters and gauges over the lock
// protocol's internal state: messages sent/received by type, the
// current logical clock value, outstanding queue depth, and
// request-to-entry latency. None of it sits on the protocol's blocking
// path — every call is a lock-free update of a counter, gauge or
// histogram.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder implements core.MetricsRecorder on top of a dedicated
// Prometheus registry, so multiple peers in the same test binary don't
// collide on the global default registry.
type Recorder struct {
	registry *prometheus.Registry

	sent     *prometheus.CounterVec
	received *prometheus.CounterVec
	clock    prometheus.Gauge
	queue    prometheus.Gauge
	latency  prometheus.Histogram
}

// New builds a Recorder labelled with pid, registered on its own
// registry.
func New(pid int32) *Recorder {
	registry := prometheus.NewRegistry()
	labels := prometheus.Labels{"pid": strconv.Itoa(int(pid))}

	factory := promauto.With(registry)
	return &Recorder{
		registry: registry,
		sent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "dlock",
			Name:        "messages_sent_total",
			Help:        "Messages sent by this peer, by message type.",
			ConstLabels: labels,
		}, []string{"type"}),
		received: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "dlock",
			Name:        "messages_received_total",
			Help:        "Messages received by this peer, by message type.",
			ConstLabels: labels,
		}, []string{"type"}),
		clock: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   "dlock",
			Name:        "logical_clock",
			Help:        "Current value of this peer's Lamport clock.",
			ConstLabels: labels,
		}),
		queue: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   "dlock",
			Name:        "queue_depth",
			Help:        "Outstanding lock requests in this peer's local queue replica.",
			ConstLabels: labels,
		}),
		latency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   "dlock",
			Name:        "request_latency_seconds",
			Help:        "Time from RequestLock call to lock acquisition.",
			ConstLabels: labels,
			Buckets:     prometheus.DefBuckets,
		}),
	}
}

func (r *Recorder) MessageSent(t string)     { r.sent.WithLabelValues(t).Inc() }
func (r *Recorder) MessageReceived(t string) { r.received.WithLabelValues(t).Inc() }
func (r *Recorder) ClockValue(v int32)       { r.clock.Set(float64(v)) }
func (r *Recorder) QueueDepth(n int)         { r.queue.Set(float64(n)) }
func (r *Recorder) RequestLatency(s float64) { r.latency.Observe(s) }

// Serve starts an HTTP server exposing /metrics in the Prometheus text
// exposition format. It runs until ctx is cancelled.
func (r *Recorder) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{}))

	server := &http.Server{Addr: addr, Handler: mux}
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
