package client

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts controller activity. A nil *Metrics is valid and records nothing.
type Metrics struct {
	PollsTotal    *prometheus.CounterVec
	SelectsTotal  *prometheus.CounterVec
	ListSize      prometheus.Gauge
	LastSuccessTS prometheus.Gauge
}

// NewMetrics creates the controller collectors and registers them on reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		PollsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "catchhook",
			Subsystem: "controller",
			Name:      "polls_total",
			Help:      "List fetches by trigger and result",
		}, []string{"trigger", "result"}),
		SelectsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "catchhook",
			Subsystem: "controller",
			Name:      "selects_total",
			Help:      "Request selections by source and result",
		}, []string{"source", "result"}),
		ListSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "catchhook",
			Subsystem: "controller",
			Name:      "list_size",
			Help:      "Number of requests in the last fetched list",
		}),
		LastSuccessTS: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "catchhook",
			Subsystem: "controller",
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful list fetch",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.PollsTotal, m.SelectsTotal, m.ListSize, m.LastSuccessTS)
	}
	return m
}

func (m *Metrics) observePoll(trigger string, err error, size int, unix float64) {
	if m == nil {
		return
	}
	if err != nil {
		m.PollsTotal.WithLabelValues(trigger, "error").Inc()
		return
	}
	m.PollsTotal.WithLabelValues(trigger, "ok").Inc()
	m.ListSize.Set(float64(size))
	m.LastSuccessTS.Set(unix)
}

func (m *Metrics) observeSelect(source string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.SelectsTotal.WithLabelValues(source, result).Inc()
}
