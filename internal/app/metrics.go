package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Poll outcome labels.
const (
	outcomeUpdated  = "updated"
	outcomeDesynced = "desynced"
	outcomeFailed   = "failed"
	outcomeStale    = "stale"
	outcomeOK       = "ok"
	outcomeError    = "error"
)

// Metrics collects sync and action counters on a private registry. A nil
// *Metrics records nothing.
type Metrics struct {
	registry  *prometheus.Registry
	polls     *prometheus.CounterVec
	snapshots *prometheus.CounterVec
	actions   *prometheus.CounterVec
	updates   prometheus.Counter
	anomalies prometheus.Counter
	cursor    prometheus.Gauge
	backoff   prometheus.Gauge
	windows   prometheus.Gauge
}

// NewMetrics registers the tether collectors on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tether",
			Name:      "polls_total",
			Help:      "Update polls by outcome.",
		}, []string{"outcome"}),
		snapshots: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tether",
			Name:      "snapshots_total",
			Help:      "Snapshot fetches by outcome.",
		}, []string{"outcome"}),
		actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tether",
			Name:      "action_requests_total",
			Help:      "do-actions requests by outcome.",
		}, []string{"outcome"}),
		updates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tether",
			Name:      "updates_applied_total",
			Help:      "Update records applied to the store.",
		}),
		anomalies: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tether",
			Name:      "update_anomalies_total",
			Help:      "Update records skipped as anomalies.",
		}),
		cursor: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "tether",
			Name:      "update_cursor",
			Help:      "Current nextUpdateId.",
		}),
		backoff: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "tether",
			Name:      "backoff_seconds",
			Help:      "Delay before the next retry, zero when healthy.",
		}),
		windows: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "tether",
			Name:      "windows",
			Help:      "Windows held in the store.",
		}),
	}
	m.registry.MustRegister(m.polls, m.snapshots, m.actions, m.updates, m.anomalies, m.cursor, m.backoff, m.windows)
	return m
}

// Registry exposes the registry for tests and custom handlers.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) poll(outcome string) {
	if m == nil {
		return
	}
	m.polls.WithLabelValues(outcome).Inc()
}

func (m *Metrics) snapshot(outcome string) {
	if m == nil {
		return
	}
	m.snapshots.WithLabelValues(outcome).Inc()
}

func (m *Metrics) action(outcome string) {
	if m == nil {
		return
	}
	m.actions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) applied(updates, anomalies int) {
	if m == nil {
		return
	}
	m.updates.Add(float64(updates))
	m.anomalies.Add(float64(anomalies))
}

func (m *Metrics) observe(cursor int64, windows int, backoff time.Duration) {
	if m == nil {
		return
	}
	m.cursor.Set(float64(cursor))
	m.windows.Set(float64(windows))
	m.backoff.Set(backoff.Seconds())
}

// ServeMetrics serves /metrics on addr until ctx is cancelled.
func ServeMetrics(ctx context.Context, addr string, m *Metrics, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("metrics listener started", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
