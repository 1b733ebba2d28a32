package websocket

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/luciancaetano/wsrouter"
)

const metricsNamespace = "wsrouter"

type metrics struct {
	messages    *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	connections prometheus.Gauge
	closes      *prometheus.CounterVec
	pushes      *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	factory := promauto.With(reg)
	return &metrics{
		messages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "messages_total",
			Help:      "Inbound messages by type and dispatch outcome.",
		}, []string{"type", "outcome"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "dispatch_duration_seconds",
			Help:      "Time spent dispatching one inbound message.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"type"}),
		connections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "connections_active",
			Help:      "Live connections.",
		}),
		closes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "connection_closes_total",
			Help:      "Closed connections by reason.",
		}, []string{"reason"}),
		pushes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "push_deliveries_total",
			Help:      "Push deliveries by outcome.",
		}, []string{"outcome"}),
	}
}

func (m *metrics) observeMessage(typ, outcome string, elapsed time.Duration) {
	m.messages.WithLabelValues(typ, outcome).Inc()
	m.duration.WithLabelValues(typ).Observe(elapsed.Seconds())
}

func (m *metrics) closed(reason wsrouter.CloseReason) {
	m.closes.WithLabelValues(reason.String()).Inc()
}

func (m *metrics) pushed(ok bool) {
	outcome := "delivered"
	if !ok {
		outcome = "failed"
	}
	m.pushes.WithLabelValues(outcome).Inc()
}
