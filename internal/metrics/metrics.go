// Package metrics exposes Prometheus counters for the trading loop and the
// execution coordinator. The registry is optional; when disabled the bot
// relies on the shutdown summary alone.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every instrument the bot emits. All fields are safe for
// concurrent use.
type Metrics struct {
	Ticks            prometheus.Counter
	Signals          *prometheus.CounterVec
	Executions       *prometheus.CounterVec
	QuoteUpdates     *prometheus.CounterVec
	ExecutionLatency prometheus.Histogram

	registry *prometheus.Registry
}

// New builds a self-contained registry so tests can construct multiple
// instances without duplicate-registration panics.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Ticks: factory.NewCounter(prometheus.CounterOpts{
			Name: "crossarb_ticks_total",
			Help: "Trading loop iterations.",
		}),
		Signals: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "crossarb_signals_total",
			Help: "Spread signals by direction.",
		}, []string{"direction"}),
		Executions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "crossarb_executions_total",
			Help: "Dual-leg executions by outcome.",
		}, []string{"outcome"}),
		QuoteUpdates: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "crossarb_quote_updates_total",
			Help: "Top-of-book updates accepted by venue.",
		}, []string{"venue"}),
		ExecutionLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "crossarb_execution_seconds",
			Help:    "Wall time of a dual-leg execution.",
			Buckets: prometheus.DefBuckets,
		}),
		registry: reg,
	}
}

// Serve blocks, exposing /metrics on addr until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("metrics listening", slog.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
