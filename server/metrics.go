package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the capture server collectors
type Metrics struct {
	Captured      *prometheus.CounterVec
	CapturedBytes prometheus.Counter
	Rejected      *prometheus.CounterVec
	Pruned        prometheus.Counter
	Stored        prometheus.Gauge
}

// NewMetrics creates the collectors and registers them on reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Captured: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "catchhook",
			Name:      "captured_requests_total",
			Help:      "Webhook requests stored, by method",
		}, []string{"method"}),
		CapturedBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "catchhook",
			Name:      "captured_bytes_total",
			Help:      "Body bytes stored",
		}),
		Rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "catchhook",
			Name:      "rejected_requests_total",
			Help:      "Webhook requests refused, by reason",
		}, []string{"reason"}),
		Pruned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "catchhook",
			Name:      "pruned_requests_total",
			Help:      "Stored requests removed by retention",
		}),
		Stored: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "catchhook",
			Name:      "stored_requests",
			Help:      "Requests currently stored",
		}),
	}
	reg.MustRegister(m.Captured, m.CapturedBytes, m.Rejected, m.Pruned, m.Stored)
	return m
}

func (m *Metrics) observeCapture(method string, bodyLen int, pruned int64) {
	m.Captured.WithLabelValues(method).Inc()
	m.CapturedBytes.Add(float64(bodyLen))
	m.Pruned.Add(float64(pruned))
	m.Stored.Add(float64(1 - pruned))
}

// ServeMetrics serves the registry in Prometheus format until ctx is done
func (m *Metrics) ServeMetrics(ctx context.Context, port int, gatherer prometheus.Gatherer, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/metrics", http.StatusFound)
	})

	addr := fmt.Sprintf(":%d", port)
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("metrics endpoint listening", "addr", addr)

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics endpoint failed", "error", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	server.Shutdown(shutdownCtx)
}
