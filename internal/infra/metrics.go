package infra

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts bridge activity with atomic operations.
// It is exported to Prometheus through NewCollector.
type Metrics struct {
	// Counters
	signalsReceived atomic.Uint64
	signalsRejected atomic.Uint64
	ordersSubmitted atomic.Uint64
	submitErrors    atomic.Uint64
	statusCallbacks atomic.Uint64
	executions      atomic.Uint64
	gatewayErrors   atomic.Uint64
	droppedEvents   atomic.Uint64
	reconnects      atomic.Uint64
	publishErrors   atomic.Uint64

	// Submit latency tracking
	latencySumNs atomic.Int64
	latencyCount atomic.Uint64

	// Gauges
	gatewayConnected atomic.Int32 // 1 = ready, 0 = not ready
}

// GlobalMetrics is the process-wide metrics instance.
var GlobalMetrics = &Metrics{}

func (m *Metrics) RecordSignal()       { m.signalsReceived.Add(1) }
func (m *Metrics) RecordRejected()     { m.signalsRejected.Add(1) }
func (m *Metrics) RecordSubmitError()  { m.submitErrors.Add(1) }
func (m *Metrics) RecordOrderStatus()  { m.statusCallbacks.Add(1) }
func (m *Metrics) RecordExecution()    { m.executions.Add(1) }
func (m *Metrics) RecordGatewayError() { m.gatewayErrors.Add(1) }
func (m *Metrics) RecordDroppedEvent() { m.droppedEvents.Add(1) }
func (m *Metrics) RecordReconnect()    { m.reconnects.Add(1) }

// RecordPublishErrors counts stream messages the broker did not accept.
func (m *Metrics) RecordPublishErrors(n int) { m.publishErrors.Add(uint64(n)) }

// RecordSubmitted records an accepted order with its submit latency.
func (m *Metrics) RecordSubmitted(latency time.Duration) {
	m.ordersSubmitted.Add(1)
	m.latencySumNs.Add(latency.Nanoseconds())
	m.latencyCount.Add(1)
}

// SetGatewayReady sets the readiness gauge.
func (m *Metrics) SetGatewayReady(ready bool) {
	if ready {
		m.gatewayConnected.Store(1)
	} else {
		m.gatewayConnected.Store(0)
	}
}

// MetricsSnapshot is a point-in-time view of all metrics.
type MetricsSnapshot struct {
	SignalsReceived uint64
	SignalsRejected uint64
	OrdersSubmitted uint64
	SubmitErrors    uint64
	StatusCallbacks uint64
	Executions      uint64
	GatewayErrors   uint64
	DroppedEvents   uint64
	Reconnects      uint64
	PublishErrors   uint64
	AvgLatencyNs    int64
	GatewayReady    bool
	Timestamp       time.Time
}

// Snapshot returns current metrics as a snapshot.
func (m *Metrics) Snapshot() MetricsSnapshot {
	var avgLatency int64
	count := m.latencyCount.Load()
	if count > 0 {
		avgLatency = m.latencySumNs.Load() / int64(count)
	}

	return MetricsSnapshot{
		SignalsReceived: m.signalsReceived.Load(),
		SignalsRejected: m.signalsRejected.Load(),
		OrdersSubmitted: m.ordersSubmitted.Load(),
		SubmitErrors:    m.submitErrors.Load(),
		StatusCallbacks: m.statusCallbacks.Load(),
		Executions:      m.executions.Load(),
		GatewayErrors:   m.gatewayErrors.Load(),
		DroppedEvents:   m.droppedEvents.Load(),
		Reconnects:      m.reconnects.Load(),
		PublishErrors:   m.publishErrors.Load(),
		AvgLatencyNs:    avgLatency,
		GatewayReady:    m.gatewayConnected.Load() == 1,
		Timestamp:       time.Now(),
	}
}

// Reset clears all metrics (for testing).
func (m *Metrics) Reset() {
	m.signalsReceived.Store(0)
	m.signalsRejected.Store(0)
	m.ordersSubmitted.Store(0)
	m.submitErrors.Store(0)
	m.statusCallbacks.Store(0)
	m.executions.Store(0)
	m.gatewayErrors.Store(0)
	m.droppedEvents.Store(0)
	m.reconnects.Store(0)
	m.publishErrors.Store(0)
	m.latencySumNs.Store(0)
	m.latencyCount.Store(0)
	m.gatewayConnected.Store(0)
}

var (
	descSignals = prometheus.NewDesc("bridge_signals_total",
		"Webhook signals by outcome", []string{"outcome"}, nil)
	descOrders = prometheus.NewDesc("bridge_orders_submitted_total",
		"Orders accepted by the gateway transport", nil, nil)
	descSubmitErrors = prometheus.NewDesc("bridge_submit_errors_total",
		"Order submissions refused by the gateway transport", nil, nil)
	descCallbacks = prometheus.NewDesc("bridge_gateway_callbacks_total",
		"Gateway callbacks by kind", []string{"kind"}, nil)
	descDropped = prometheus.NewDesc("bridge_dropped_events_total",
		"Events dropped because the recorder inbox was full", nil, nil)
	descReconnects = prometheus.NewDesc("bridge_gateway_reconnects_total",
		"Gateway session reconnect attempts after a drop", nil, nil)
	descPublishErrors = prometheus.NewDesc("bridge_publish_errors_total",
		"Event stream messages that failed delivery", nil, nil)
	descLatency = prometheus.NewDesc("bridge_submit_latency_avg_seconds",
		"Average placeOrder write latency", nil, nil)
	descReady = prometheus.NewDesc("bridge_gateway_ready",
		"1 when the gateway session has a valid order id", nil, nil)
)

type collector struct {
	m *Metrics
}

// NewCollector exposes m as a prometheus.Collector.
func NewCollector(m *Metrics) prometheus.Collector {
	return collector{m: m}
}

func (c collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- descSignals
	ch <- descOrders
	ch <- descSubmitErrors
	ch <- descCallbacks
	ch <- descDropped
	ch <- descReconnects
	ch <- descPublishErrors
	ch <- descLatency
	ch <- descReady
}

func (c collector) Collect(ch chan<- prometheus.Metric) {
	s := c.m.Snapshot()

	ready := 0.0
	if s.GatewayReady {
		ready = 1
	}

	ch <- prometheus.MustNewConstMetric(descSignals, prometheus.CounterValue, float64(s.SignalsReceived), "received")
	ch <- prometheus.MustNewConstMetric(descSignals, prometheus.CounterValue, float64(s.SignalsRejected), "rejected")
	ch <- prometheus.MustNewConstMetric(descOrders, prometheus.CounterValue, float64(s.OrdersSubmitted))
	ch <- prometheus.MustNewConstMetric(descSubmitErrors, prometheus.CounterValue, float64(s.SubmitErrors))
	ch <- prometheus.MustNewConstMetric(descCallbacks, prometheus.CounterValue, float64(s.StatusCallbacks), "order_status")
	ch <- prometheus.MustNewConstMetric(descCallbacks, prometheus.CounterValue, float64(s.Executions), "execution")
	ch <- prometheus.MustNewConstMetric(descCallbacks, prometheus.CounterValue, float64(s.GatewayErrors), "error")
	ch <- prometheus.MustNewConstMetric(descDropped, prometheus.CounterValue, float64(s.DroppedEvents))
	ch <- prometheus.MustNewConstMetric(descReconnects, prometheus.CounterValue, float64(s.Reconnects))
	ch <- prometheus.MustNewConstMetric(descPublishErrors, prometheus.CounterValue, float64(s.PublishErrors))
	ch <- prometheus.MustNewConstMetric(descLatency, prometheus.GaugeValue, time.Duration(s.AvgLatencyNs).Seconds())
	ch <- prometheus.MustNewConstMetric(descReady, prometheus.GaugeValue, ready)
}
