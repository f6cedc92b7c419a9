package status

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dmaslov/tablefeed/internal/router"
	"github.com/dmaslov/tablefeed/internal/transport"
)

// stateValue maps connection states onto a numeric gauge.
func stateValue(st transport.State) float64 {
	switch st {
	case transport.StateConnected:
		return 3
	case transport.StateConnecting:
		return 2
	case transport.StateReconnecting:
		return 1
	default:
		return 0
	}
}

// Metrics publishes feed counters to a Prometheus registry. Collectors
// read live values through closures at scrape time, so the transport and
// router stay free of metrics plumbing.
type Metrics struct {
	registry *prometheus.Registry
}

// NewMetrics registers collectors over the observable and router counters.
func NewMetrics(obs *Observable, stats func() router.Stats) *Metrics {
	reg := prometheus.NewRegistry()

	reg.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "tablefeed_connection_state",
			Help: "Connection state: 0 disconnected, 1 reconnecting, 2 connecting, 3 connected.",
		},
		func() float64 { return stateValue(obs.Current().State) },
	))

	reg.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "tablefeed_connect_attempts",
			Help: "Failed connect cycles since the last successful open.",
		},
		func() float64 { return float64(obs.Current().Attempts) },
	))

	reg.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "tablefeed_using_fallback",
			Help: "1 when the active socket is the fallback endpoint.",
		},
		func() float64 {
			if obs.Current().UsingFallback {
				return 1
			}
			return 0
		},
	))

	reg.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "tablefeed_degraded",
			Help: "1 when the feed is in a degraded state.",
		},
		func() float64 {
			if obs.Current().Degraded {
				return 1
			}
			return 0
		},
	))

	reg.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "tablefeed_log_messages",
			Help: "Messages currently held in the bounded log.",
		},
		func() float64 { return float64(obs.Current().BufferLen) },
	))

	reg.MustRegister(prometheus.NewCounterFunc(
		prometheus.CounterOpts{
			Name: "tablefeed_reconnects_total",
			Help: "Transitions into the reconnecting state.",
		},
		func() float64 { return float64(obs.Reconnects()) },
	))

	reg.MustRegister(prometheus.NewCounterFunc(
		prometheus.CounterOpts{
			Name: "tablefeed_frames_received_total",
			Help: "Raw frames received from the transport.",
		},
		func() float64 { return float64(stats().FramesReceived) },
	))

	reg.MustRegister(prometheus.NewCounterFunc(
		prometheus.CounterOpts{
			Name: "tablefeed_messages_routed_total",
			Help: "Messages delivered to at least one subscriber.",
		},
		func() float64 { return float64(stats().Routed) },
	))

	reg.MustRegister(prometheus.NewCounterFunc(
		prometheus.CounterOpts{
			Name: "tablefeed_decode_errors_total",
			Help: "Frames dropped because they failed decode validation.",
		},
		func() float64 { return float64(stats().DecodeErrors) },
	))

	return &Metrics{registry: reg}
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
