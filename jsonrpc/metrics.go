package jsonrpc

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metric label used for calls that never resolved to a registered method.
const unroutedMethod = "-"

type metrics struct {
	calls    *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	f := promauto.With(reg)
	return &metrics{
		calls: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "ledgerrpc",
				Subsystem: "rpc",
				Name:      "calls_total",
				Help:      "Total number of JSON-RPC calls by method and result code (0 for success).",
			},
			[]string{"method", "code"},
		),
		duration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "ledgerrpc",
				Subsystem: "rpc",
				Name:      "call_duration_seconds",
				Help:      "JSON-RPC handler duration in seconds.",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
			},
			[]string{"method"},
		),
	}
}

func (m *metrics) observe(resp *Response, routed bool) {
	if m == nil {
		return
	}
	method := unroutedMethod
	if routed {
		method = resp.Request.Method
	}
	code := 0
	if resp.Error != nil {
		code = resp.Error.Code
	}
	m.calls.WithLabelValues(method, strconv.Itoa(code)).Inc()
	if routed {
		m.duration.WithLabelValues(method).Observe(resp.Elapsed.Seconds())
	}
}
