// Package metrics exposes relay counters in Prometheus format.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "unreadbell"

// Metrics holds the relay's collectors. A nil *Metrics is valid and records
// nothing, so components can take it unconditionally.
type Metrics struct {
	registry *prometheus.Registry

	ticks           prometheus.Counter
	emits           *prometheus.CounterVec
	dropped         prometheus.Counter
	sendFailures    prometheus.Counter
	reconnects      prometheus.Counter
	connectionState *prometheus.GaugeVec
	packets         *prometheus.CounterVec
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "ticks_total",
			Help: "Scheduler ticks executed.",
		}),
		emits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "emits_total",
			Help: "Updates sent to the listener.",
		}, []string{"forced"}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "sends_dropped_total",
			Help: "Updates dropped because the channel was not connected.",
		}),
		sendFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "send_failures_total",
			Help: "Writes that failed on an open channel.",
		}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "connect_attempts_total",
			Help: "Connection attempts, including the first.",
		}),
		connectionState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "connection_state",
			Help: "1 for the current connection state, 0 otherwise.",
		}, []string{"state"}),
		packets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "listener_packets_total",
			Help: "Packets received by the listener.",
		}, []string{"result"}),
	}
	reg.MustRegister(m.ticks, m.emits, m.dropped, m.sendFailures, m.reconnects, m.connectionState, m.packets)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Tick counts one scheduler tick.
func (m *Metrics) Tick() {
	if m != nil {
		m.ticks.Inc()
	}
}

// Emit counts a sent update, labelled by whether it was forced.
func (m *Metrics) Emit(forced bool) {
	if m != nil {
		m.emits.WithLabelValues(fmt.Sprint(forced)).Inc()
	}
}

// Dropped counts an update dropped while disconnected.
func (m *Metrics) Dropped() {
	if m != nil {
		m.dropped.Inc()
	}
}

// SendFailure counts a write that failed on an open channel.
func (m *Metrics) SendFailure() {
	if m != nil {
		m.sendFailures.Inc()
	}
}

// ConnectAttempt counts one connection attempt.
func (m *Metrics) ConnectAttempt() {
	if m != nil {
		m.reconnects.Inc()
	}
}

// State marks current as the active connection state among all.
func (m *Metrics) State(current string, all []string) {
	if m == nil {
		return
	}
	for _, s := range all {
		v := 0.0
		if s == current {
			v = 1
		}
		m.connectionState.WithLabelValues(s).Set(v)
	}
}

// Packet counts a listener packet by result ("ok" or "invalid").
func (m *Metrics) Packet(result string) {
	if m != nil {
		m.packets.WithLabelValues(result).Inc()
	}
}

// Handler serves the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on bind until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, bind string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: bind, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server: %w", err)
	}
}
