package infra

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_RecordSubmitted(t *testing.T) {
	m := &Metrics{}

	m.RecordSubmitted(1000 * time.Nanosecond)
	m.RecordSubmitted(2000 * time.Nanosecond)
	m.RecordSubmitted(3000 * time.Nanosecond)

	snap := m.Snapshot()

	if snap.OrdersSubmitted != 3 {
		t.Errorf("Expected 3 orders, got %d", snap.OrdersSubmitted)
	}

	// Average latency: (1000 + 2000 + 3000) / 3 = 2000
	if snap.AvgLatencyNs != 2000 {
		t.Errorf("Expected avg latency 2000, got %d", snap.AvgLatencyNs)
	}
}

func TestMetrics_GatewayReady(t *testing.T) {
	m := &Metrics{}

	if m.Snapshot().GatewayReady {
		t.Error("Expected gateway not ready initially")
	}

	m.SetGatewayReady(true)
	if !m.Snapshot().GatewayReady {
		t.Error("Expected gateway ready")
	}

	m.SetGatewayReady(false)
	if m.Snapshot().GatewayReady {
		t.Error("Expected gateway not ready")
	}
}

func TestMetrics_Reset(t *testing.T) {
	m := &Metrics{}

	m.RecordSignal()
	m.RecordRejected()
	m.RecordSubmitError()
	m.RecordDroppedEvent()
	m.SetGatewayReady(true)

	m.Reset()
	snap := m.Snapshot()

	if snap.SignalsReceived != 0 || snap.SignalsRejected != 0 {
		t.Error("Expected signal counters cleared after reset")
	}
	if snap.SubmitErrors != 0 || snap.DroppedEvents != 0 {
		t.Error("Expected error counters cleared after reset")
	}
	if snap.GatewayReady {
		t.Error("Expected readiness cleared after reset")
	}
}

func TestCollector(t *testing.T) {
	m := &Metrics{}
	m.RecordSignal()
	m.RecordSignal()
	m.RecordRejected()

	c := NewCollector(m)

	if n := testutil.CollectAndCount(c); n != 12 {
		t.Errorf("Expected 12 series, got %d", n)
	}
	if n := testutil.CollectAndCount(c, "bridge_signals_total"); n != 2 {
		t.Errorf("Expected 2 signal series, got %d", n)
	}
}
