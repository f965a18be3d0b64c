package nodeclient

import (
	"github.com/prometheus/client_golang/prometheus"
)

// call outcomes, used as the "outcome" label of the calls counter
const (
	outcomeOK             = "ok"
	outcomeRemoteError    = "remote_error"
	outcomeTimeout        = "timeout"
	outcomeConnectionLost = "connection_lost"
	outcomeNotConnected   = "not_connected"
	outcomeProtocolError  = "protocol_error"
)

type metrics struct {
	calls           *prometheus.CounterVec
	pending         prometheus.Gauge
	connected       prometheus.Gauge
	reconnects      prometheus.Counter
	unmatchedFrames prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clutch_node",
			Name:      "calls_total",
			Help:      "Number of node RPC calls by outcome",
		}, []string{"outcome"}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "clutch_node",
			Name:      "pending_calls",
			Help:      "Number of node RPC calls awaiting a response",
		}),
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "clutch_node",
			Name:      "connected",
			Help:      "1 if the node connection is live, 0 otherwise",
		}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "clutch_node",
			Name:      "reconnects_total",
			Help:      "Number of times the node connection was lost or failed to establish",
		}),
		unmatchedFrames: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "clutch_node",
			Name:      "unmatched_frames_total",
			Help:      "Number of inbound frames that matched no pending call",
		}),
	}
	reg.MustRegister(m.calls, m.pending, m.connected, m.reconnects, m.unmatchedFrames)
	return m
}
