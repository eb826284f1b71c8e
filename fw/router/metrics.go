package router

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Reasons a frame or message is dropped, used as the drops_total label.
const (
	DropDecode       = "decode"
	DropAddress      = "address"
	DropPec          = "pec"
	DropSequence     = "sequence"
	DropNoSlot       = "no_slot"
	DropUnknown      = "unknown_conversation"
	DropTooLarge     = "too_large"
	DropNoRoute      = "no_route"
	DropQueueFull    = "queue_full"
	DropUnmatched    = "unmatched_response"
	DropNoListener   = "no_listener"
	DropListenerFull = "listener_full"
	DropSend         = "send"
)

type metrics struct {
	rxFrames   *prometheus.CounterVec
	txFrames   *prometheus.CounterVec
	rxMessages *prometheus.CounterVec
	txMessages *prometheus.CounterVec
	bridged    *prometheus.CounterVec
	drops      *prometheus.CounterVec
	latency    prometheus.Histogram
}

func newMetrics(reg prometheus.Registerer, r *Router) *metrics {
	f := promauto.With(reg)
	m := &metrics{
		rxFrames: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mctpd",
			Name:      "rx_frames_total",
			Help:      "Frames received per port.",
		}, []string{"port"}),
		txFrames: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mctpd",
			Name:      "tx_frames_total",
			Help:      "Frames sent per port.",
		}, []string{"port"}),
		rxMessages: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mctpd",
			Name:      "rx_messages_total",
			Help:      "Messages reassembled for local delivery per port.",
		}, []string{"port", "type"}),
		txMessages: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mctpd",
			Name:      "tx_messages_total",
			Help:      "Messages sent per port.",
		}, []string{"port"}),
		bridged: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mctpd",
			Name:      "bridged_messages_total",
			Help:      "Messages forwarded to another port, by outgoing port.",
		}, []string{"port"}),
		drops: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mctpd",
			Name:      "drops_total",
			Help:      "Frames and messages dropped, by reason.",
		}, []string{"reason"}),
		latency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "mctpd",
			Name:      "request_duration_seconds",
			Help:      "Time from sending a request to receiving its response.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),
	}

	f.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "mctpd",
		Name:      "active_reassemblies",
		Help:      "Busy reassembly contexts.",
	}, func() float64 {
		r.stackMu.Lock()
		defer r.stackMu.Unlock()
		return float64(r.stack.ActiveReassemblies())
	})
	f.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "mctpd",
		Name:      "active_flows",
		Help:      "Outstanding requests owned by this endpoint.",
	}, func() float64 {
		r.stackMu.Lock()
		defer r.stackMu.Unlock()
		return float64(r.stack.ActiveFlows())
	})

	return m
}
