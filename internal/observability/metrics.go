// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Stream metrics
	TransactionsReceived prometheus.Counter
	PingsReceived        prometheus.Counter
	PongsSent            prometheus.Counter
	PongSendFailures     prometheus.Counter
	PongsReceived        prometheus.Counter
	OtherEvents          *prometheus.CounterVec
	StreamErrors         *prometheus.CounterVec
	MonitorState         prometheus.Gauge
	HighestSlotSeen      prometheus.Gauge

	// State metrics
	TrackedTransactions prometheus.Gauge

	// Fanout metrics
	BusReceivers   prometheus.Gauge
	LaggedMessages *prometheus.CounterVec
	FeedClients    prometheus.Gauge
	RelayPublished prometheus.Counter
	RelayFailures  prometheus.Counter

	// Latency metrics
	RPCCallLatency *prometheus.HistogramVec

	// Health metrics
	LastTransactionTimestamp prometheus.Gauge

	highestSlot atomic.Uint64
}

// NewMetrics creates a new Metrics instance registered with reg.
// A nil reg registers with the global Prometheus registry.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "solana_tx_monitor"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Metrics{
		// Stream metrics
		TransactionsReceived: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "transactions_received_total",
			Help:      "Total number of transaction updates received",
		}),
		PingsReceived: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "pings_received_total",
			Help:      "Total number of server pings received",
		}),
		PongsSent: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "pongs_sent_total",
			Help:      "Total number of ping replies sent",
		}),
		PongSendFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "pong_send_failures_total",
			Help:      "Total number of ping replies that failed to send",
		}),
		PongsReceived: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "pongs_received_total",
			Help:      "Total number of pong acknowledgements received",
		}),
		OtherEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "other_events_total",
			Help:      "Total number of ignored updates by kind",
		}, []string{"kind"}),
		StreamErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "errors_total",
			Help:      "Total number of stream errors by gRPC code",
		}, []string{"code"}),
		MonitorState: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "monitor_state",
			Help:      "Current monitor state (0=connecting, 1=subscribing, 2=streaming, 3=terminated)",
		}),
		HighestSlotSeen: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "highest_slot_seen",
			Help:      "Highest slot number seen in a transaction update",
		}),

		// State metrics
		TrackedTransactions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "state",
			Name:      "tracked_transactions",
			Help:      "Number of distinct signatures held in shared state",
		}),

		// Fanout metrics
		BusReceivers: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "fanout",
			Name:      "bus_receivers",
			Help:      "Number of receivers observing the last published transaction",
		}),
		LaggedMessages: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fanout",
			Name:      "lagged_messages_total",
			Help:      "Total number of messages dropped for slow receivers by consumer",
		}, []string{"consumer"}),
		FeedClients: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "fanout",
			Name:      "feed_clients",
			Help:      "Number of connected websocket feed clients",
		}),
		RelayPublished: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fanout",
			Name:      "relay_published_total",
			Help:      "Total number of signatures published to redis",
		}),
		RelayFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fanout",
			Name:      "relay_failures_total",
			Help:      "Total number of failed redis publishes",
		}),

		// Latency metrics
		RPCCallLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "call_duration_seconds",
			Help:      "Unary RPC call latency in seconds",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"method"}),

		// Health metrics
		LastTransactionTimestamp: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_transaction_timestamp",
			Help:      "Unix timestamp of the last transaction update",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("", nil)

// RecordTransaction counts a transaction update and tracks its slot.
func (m *Metrics) RecordTransaction(slot uint64, unixSeconds float64) {
	m.TransactionsReceived.Inc()
	m.LastTransactionTimestamp.Set(unixSeconds)
	for {
		cur := m.highestSlot.Load()
		if slot <= cur {
			return
		}
		if m.highestSlot.CompareAndSwap(cur, slot) {
			m.HighestSlotSeen.Set(float64(slot))
			return
		}
	}
}

// RecordPing counts a server ping and the outcome of the reply.
func (m *Metrics) RecordPing(replyErr error) {
	m.PingsReceived.Inc()
	if replyErr != nil {
		m.PongSendFailures.Inc()
		return
	}
	m.PongsSent.Inc()
}

// RecordPong counts a pong acknowledgement.
func (m *Metrics) RecordPong() {
	m.PongsReceived.Inc()
}

// RecordOtherEvent counts an ignored update.
func (m *Metrics) RecordOtherEvent(kind string) {
	m.OtherEvents.WithLabelValues(kind).Inc()
}

// RecordStreamError counts a stream failure by gRPC code name.
func (m *Metrics) RecordStreamError(code string) {
	m.StreamErrors.WithLabelValues(code).Inc()
}

// SetMonitorState updates the monitor state gauge.
func (m *Metrics) SetMonitorState(state int) {
	m.MonitorState.Set(float64(state))
}

// UpdateTracked updates the tracked transactions gauge.
func (m *Metrics) UpdateTracked(n int) {
	m.TrackedTransactions.Set(float64(n))
}

// UpdateBusReceivers updates the bus receivers gauge.
func (m *Metrics) UpdateBusReceivers(n int) {
	m.BusReceivers.Set(float64(n))
}

// RecordLagged counts messages a consumer missed.
func (m *Metrics) RecordLagged(consumer string, missed uint64) {
	m.LaggedMessages.WithLabelValues(consumer).Add(float64(missed))
}

// RecordRelayPublish counts a redis publish attempt.
func (m *Metrics) RecordRelayPublish(err error) {
	if err != nil {
		m.RelayFailures.Inc()
		return
	}
	m.RelayPublished.Inc()
}

// RecordRPCLatency records RPC call latency.
func (m *Metrics) RecordRPCLatency(method string, seconds float64) {
	m.RPCCallLatency.WithLabelValues(method).Observe(seconds)
}

// RecordRPCLatency records RPC call latency on the default metrics.
func RecordRPCLatency(method string, seconds float64) {
	DefaultMetrics.RecordRPCLatency(method, seconds)
}
