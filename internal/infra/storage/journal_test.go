package storage

import (
	"context"
	"path/filepath"
	"testing"

	"signal_bridge/internal/event"

	"github.com/shopspring/decimal"
)

func setupTestJournal(t *testing.T) *Journal {
	j, err := NewJournal(filepath.Join(t.TempDir(), "data", "orders.db"))
	if err != nil {
		t.Fatalf("failed to open journal: %v", err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}

func TestRecordSubmissionAndGet(t *testing.T) {
	j := setupTestJournal(t)
	ctx := context.Background()

	ev := &event.SubmissionEvent{
		BaseEvent: event.NewBase(),
		OrderID:   100,
		Symbol:    "AAPL",
		Action:    "BUY",
		OrderType: "MKT",
		Quantity:  10,
		Exchange:  "SMART",
		Currency:  "USD",
		RequestID: "req-1",
	}
	if err := j.RecordSubmission(ctx, ev); err != nil {
		t.Fatalf("RecordSubmission failed: %v", err)
	}

	rec, err := j.GetOrder(ctx, 100)
	if err != nil {
		t.Fatalf("GetOrder failed: %v", err)
	}
	if rec == nil {
		t.Fatal("order not found")
	}
	if rec.Symbol != "AAPL" || rec.Quantity != 10 || rec.Status != statusPendingSubmit {
		t.Errorf("unexpected record: %+v", rec)
	}
	if rec.SubmittedAt == nil {
		t.Error("expected submitted_at to be set")
	}
}

func TestGetOrder_NotFound(t *testing.T) {
	j := setupTestJournal(t)

	rec, err := j.GetOrder(context.Background(), 42)
	if err != nil {
		t.Fatalf("GetOrder failed: %v", err)
	}
	if rec != nil {
		t.Errorf("expected nil record, got %+v", rec)
	}
}

func TestStatusBeforeSubmission(t *testing.T) {
	j := setupTestJournal(t)
	ctx := context.Background()

	// The gateway can report status before the recorder sees the submission.
	status := &event.OrderStatusEvent{
		BaseEvent:    event.NewBase(),
		OrderID:      7,
		Status:       "Filled",
		Filled:       decimal.NewFromInt(5),
		Remaining:    decimal.Zero,
		AvgFillPrice: decimal.RequireFromString("187.25"),
		PermID:       99,
	}
	if err := j.ApplyStatus(ctx, status); err != nil {
		t.Fatalf("ApplyStatus failed: %v", err)
	}
	sub := &event.SubmissionEvent{BaseEvent: event.NewBase(), OrderID: 7, Symbol: "MSFT", Action: "SELL", OrderType: "MKT", Quantity: 5}
	if err := j.RecordSubmission(ctx, sub); err != nil {
		t.Fatalf("RecordSubmission failed: %v", err)
	}

	rec, err := j.GetOrder(ctx, 7)
	if err != nil || rec == nil {
		t.Fatalf("GetOrder: %v %v", rec, err)
	}
	if rec.Status != "Filled" {
		t.Errorf("status overwritten by submission: %s", rec.Status)
	}
	if rec.Symbol != "MSFT" || rec.Quantity != 5 {
		t.Errorf("submission fields missing: %+v", rec)
	}
	if !rec.AvgFillPrice.Equal(decimal.RequireFromString("187.25")) {
		t.Errorf("expected avg fill 187.25, got %s", rec.AvgFillPrice)
	}
}

func TestApplyStatusUpdates(t *testing.T) {
	j := setupTestJournal(t)
	ctx := context.Background()

	j.RecordSubmission(ctx, &event.SubmissionEvent{BaseEvent: event.NewBase(), OrderID: 1, Symbol: "AAPL", Quantity: 10})
	j.ApplyStatus(ctx, &event.OrderStatusEvent{OrderID: 1, Status: "Submitted", Remaining: decimal.NewFromInt(10)})
	j.ApplyStatus(ctx, &event.OrderStatusEvent{OrderID: 1, Status: "Filled", Filled: decimal.NewFromInt(10)})

	rec, _ := j.GetOrder(ctx, 1)
	if rec.Status != "Filled" {
		t.Errorf("expected Filled, got %s", rec.Status)
	}
	if !rec.Filled.Equal(decimal.NewFromInt(10)) || !rec.Remaining.IsZero() {
		t.Errorf("unexpected fill state: filled=%s remaining=%s", rec.Filled, rec.Remaining)
	}
}

func TestMarkOpenKeepsReportedStatus(t *testing.T) {
	j := setupTestJournal(t)
	ctx := context.Background()

	j.ApplyStatus(ctx, &event.OrderStatusEvent{OrderID: 3, Status: "Filled"})
	open := &event.OpenOrderEvent{OrderID: 3, Symbol: "TSLA", Action: "BUY", OrderType: "MKT", Quantity: decimal.NewFromInt(2), Status: "Submitted"}
	if err := j.MarkOpen(ctx, open); err != nil {
		t.Fatalf("MarkOpen failed: %v", err)
	}

	rec, _ := j.GetOrder(ctx, 3)
	if rec.Status != "Filled" {
		t.Errorf("expected Filled to survive openOrder, got %s", rec.Status)
	}
	if rec.Symbol != "TSLA" || rec.Quantity != 2 {
		t.Errorf("expected contract details from openOrder, got %+v", rec)
	}
}

func TestRecordExecutionIdempotent(t *testing.T) {
	j := setupTestJournal(t)
	ctx := context.Background()

	exec := &event.ExecutionEvent{
		ReqID:      -1,
		OrderID:    5,
		ExecID:     "0001f4e8.01",
		Symbol:     "AAPL",
		Side:       "BOT",
		Shares:     decimal.NewFromInt(10),
		Price:      decimal.RequireFromString("190.10"),
		ExecutedAt: "20240102 15:30:00",
	}
	for i := 0; i < 2; i++ {
		if err := j.RecordExecution(ctx, exec); err != nil {
			t.Fatalf("RecordExecution #%d failed: %v", i, err)
		}
	}
	j.RecordExecution(ctx, &event.ExecutionEvent{OrderID: 6, ExecID: "other"})

	execs, err := j.ListExecutions(ctx, 5)
	if err != nil {
		t.Fatalf("ListExecutions failed: %v", err)
	}
	if len(execs) != 1 {
		t.Fatalf("expected 1 execution, got %d", len(execs))
	}
	if !execs[0].Price.Equal(decimal.RequireFromString("190.10")) {
		t.Errorf("unexpected price %s", execs[0].Price)
	}
}

func TestNewJournal_EmptyPath(t *testing.T) {
	if _, err := NewJournal(""); err == nil {
		t.Error("expected error for empty path")
	}
}
