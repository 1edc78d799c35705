package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"signal_bridge/internal/domain"
	"signal_bridge/internal/event"
	"signal_bridge/internal/infra"
)

type fakeGateway struct {
	mu        sync.Mutex
	ready     bool
	nextID    int64
	err       error
	contracts []domain.Contract
	orders    []domain.Order
}

func (g *fakeGateway) Start(context.Context) error { return nil }
func (g *fakeGateway) Stop()                       {}

func (g *fakeGateway) IsReady() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.ready
}

func (g *fakeGateway) Submit(_ context.Context, c domain.Contract, o domain.Order) (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.contracts = append(g.contracts, c)
	g.orders = append(g.orders, o)
	if g.err != nil {
		return 0, g.err
	}
	id := g.nextID
	g.nextID++
	return id, nil
}

type fakeRecorder struct {
	events []*event.SubmissionEvent
}

func (r *fakeRecorder) RecordSubmission(ev *event.SubmissionEvent) {
	r.events = append(r.events, ev)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestOrderService_Place(t *testing.T) {
	gw := &fakeGateway{ready: true, nextID: 100}
	rec := &fakeRecorder{}
	metrics := &infra.Metrics{}
	svc := NewOrderService(gw, rec, domain.DefaultContractDefaults(), metrics, quietLogger())

	id, err := svc.Place(context.Background(), domain.TradeSignal{Ticker: "AAPL", Action: "BUY", Quantity: 10}, "req-1")
	if err != nil {
		t.Fatalf("Place failed: %v", err)
	}
	if id != 100 {
		t.Errorf("expected order id 100, got %d", id)
	}

	want := domain.Contract{Symbol: "AAPL", SecType: "STK", Exchange: "SMART", Currency: "USD"}
	if gw.contracts[0] != want {
		t.Errorf("unexpected contract %+v", gw.contracts[0])
	}
	if o := gw.orders[0]; o.Action != "BUY" || o.OrderType != "MKT" || o.TotalQuantity != 10 {
		t.Errorf("unexpected order %+v", o)
	}

	if len(rec.events) != 1 || rec.events[0].OrderID != 100 || rec.events[0].RequestID != "req-1" {
		t.Errorf("submission not recorded: %+v", rec.events)
	}
	if got := metrics.Snapshot().OrdersSubmitted; got != 1 {
		t.Errorf("expected 1 submitted order, got %d", got)
	}
}

func TestOrderService_NotReadyDoesNotSubmit(t *testing.T) {
	gw := &fakeGateway{ready: false}
	rec := &fakeRecorder{}
	svc := NewOrderService(gw, rec, domain.DefaultContractDefaults(), &infra.Metrics{}, quietLogger())

	_, err := svc.Place(context.Background(), domain.TradeSignal{Ticker: "AAPL", Action: "BUY", Quantity: 1}, "")
	if !errors.Is(err, domain.ErrNotReady) {
		t.Fatalf("expected ErrNotReady, got %v", err)
	}
	if len(gw.orders) != 0 {
		t.Error("gateway must not be called when not ready")
	}
	if len(rec.events) != 0 {
		t.Error("nothing should be recorded")
	}
}

func TestOrderService_SubmitError(t *testing.T) {
	gw := &fakeGateway{ready: true, err: &domain.SubmissionError{OrderID: 5, Err: errors.New("broken pipe")}}
	rec := &fakeRecorder{}
	metrics := &infra.Metrics{}
	svc := NewOrderService(gw, rec, domain.DefaultContractDefaults(), metrics, quietLogger())

	_, err := svc.Place(context.Background(), domain.TradeSignal{Ticker: "MSFT", Action: "SELL", Quantity: 3}, "")
	var subErr *domain.SubmissionError
	if !errors.As(err, &subErr) {
		t.Fatalf("expected SubmissionError, got %v", err)
	}
	if len(rec.events) != 0 {
		t.Error("failed submission must not be recorded")
	}
	if got := metrics.Snapshot().SubmitErrors; got != 1 {
		t.Errorf("expected 1 submit error, got %d", got)
	}
}

func TestOrderService_CustomDefaults(t *testing.T) {
	gw := &fakeGateway{ready: true, nextID: 1}
	defaults := domain.ContractDefaults{SecType: "STK", Exchange: "ARCA", Currency: "USD"}
	svc := NewOrderService(gw, nil, defaults, &infra.Metrics{}, quietLogger())

	if _, err := svc.Place(context.Background(), domain.TradeSignal{Ticker: "SPY", Action: "BUY", Quantity: 1}, ""); err != nil {
		t.Fatal(err)
	}
	if gw.contracts[0].Exchange != "ARCA" {
		t.Errorf("expected ARCA, got %s", gw.contracts[0].Exchange)
	}
}
