package engine

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"signal_bridge/internal/event"
	"signal_bridge/internal/infra"

	"github.com/shopspring/decimal"
)

type fakeJournal struct {
	mu     sync.Mutex
	events []event.Event
	fail   bool
}

func (j *fakeJournal) add(ev event.Event) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.events = append(j.events, ev)
	if j.fail {
		return errors.New("disk full")
	}
	return nil
}

func (j *fakeJournal) RecordSubmission(_ context.Context, ev *event.SubmissionEvent) error {
	return j.add(ev)
}
func (j *fakeJournal) ApplyStatus(_ context.Context, ev *event.OrderStatusEvent) error {
	return j.add(ev)
}
func (j *fakeJournal) MarkOpen(_ context.Context, ev *event.OpenOrderEvent) error { return j.add(ev) }
func (j *fakeJournal) RecordExecution(_ context.Context, ev *event.ExecutionEvent) error {
	return j.add(ev)
}

func (j *fakeJournal) snapshot() []event.Event {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]event.Event(nil), j.events...)
}

type fakePublisher struct {
	published chan event.Event
}

func (p *fakePublisher) Publish(_ context.Context, ev event.Event) error {
	p.published <- ev
	return nil
}

func newTestLogger() (*slog.Logger, *syncBuffer) {
	buf := &syncBuffer{}
	return slog.New(slog.NewTextHandler(buf, nil)), buf
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestRecorder_SequencesAndFansOut(t *testing.T) {
	journal := &fakeJournal{}
	pub := &fakePublisher{published: make(chan event.Event, 16)}
	logger, logs := newTestLogger()
	rec := NewRecorder(16, journal, pub, &infra.Metrics{}, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go rec.Run(ctx)

	rec.OnReady(&event.ReadyEvent{BaseEvent: event.NewBase(), NextOrderID: 100, GatewayOrderID: 100})
	rec.RecordSubmission(&event.SubmissionEvent{BaseEvent: event.NewBase(), OrderID: 100, Symbol: "AAPL", Action: "BUY", Quantity: 10})
	rec.OnOrderStatus(&event.OrderStatusEvent{BaseEvent: event.NewBase(), OrderID: 100, Status: "Filled", Filled: decimal.NewFromInt(10)})
	rec.OnExecDetails(&event.ExecutionEvent{BaseEvent: event.NewBase(), OrderID: 100, ExecID: "e1", Shares: decimal.NewFromInt(10)})

	var got []event.Event
	for i := 0; i < 4; i++ {
		select {
		case ev := <-pub.published:
			got = append(got, ev)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out after %d events", i)
		}
	}

	for i, ev := range got {
		if ev.GetSeq() != uint64(i+1) {
			t.Errorf("event %d has seq %d", i, ev.GetSeq())
		}
	}

	// ready is not a journal event
	if n := len(journal.snapshot()); n != 3 {
		t.Errorf("expected 3 journal writes, got %d", n)
	}

	out := logs.String()
	for _, want := range []string{"Next Valid Order ID", "Placed order", "OrderStatus", "ExecDetails", "order_id=100"} {
		if !strings.Contains(out, want) {
			t.Errorf("activity log missing %q", want)
		}
	}
}

func TestRecorder_DropsWhenInboxFull(t *testing.T) {
	metrics := &infra.Metrics{}
	logger, logs := newTestLogger()
	rec := NewRecorder(1, nil, nil, metrics, logger)

	// Run is not started: the second event cannot be buffered.
	rec.OnOrderStatus(&event.OrderStatusEvent{BaseEvent: event.NewBase(), OrderID: 1, Status: "Submitted"})
	rec.OnOrderStatus(&event.OrderStatusEvent{BaseEvent: event.NewBase(), OrderID: 1, Status: "Filled"})

	if got := metrics.Snapshot().DroppedEvents; got != 1 {
		t.Errorf("expected 1 dropped event, got %d", got)
	}
	// both lines still reach the activity log
	if strings.Count(logs.String(), "OrderStatus") != 2 {
		t.Errorf("expected both status lines logged, got %q", logs.String())
	}
}

func TestRecorder_JournalErrorDoesNotStop(t *testing.T) {
	journal := &fakeJournal{fail: true}
	pub := &fakePublisher{published: make(chan event.Event, 4)}
	logger, logs := newTestLogger()
	rec := NewRecorder(4, journal, pub, &infra.Metrics{}, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go rec.Run(ctx)

	rec.OnOpenOrder(&event.OpenOrderEvent{BaseEvent: event.NewBase(), OrderID: 3, Symbol: "MSFT"})

	select {
	case ev := <-pub.published:
		if ev.OrderKey() != 3 {
			t.Errorf("unexpected event %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("publisher not reached after journal failure")
	}
	if !strings.Contains(logs.String(), "Journal write failed") {
		t.Error("expected journal failure to be logged")
	}
}

func TestRecorder_DrainsOnShutdown(t *testing.T) {
	journal := &fakeJournal{}
	rec := NewRecorder(8, journal, nil, &infra.Metrics{}, slog.New(slog.NewTextHandler(&syncBuffer{}, nil)))

	rec.RecordSubmission(&event.SubmissionEvent{BaseEvent: event.NewBase(), OrderID: 7})
	rec.RecordSubmission(&event.SubmissionEvent{BaseEvent: event.NewBase(), OrderID: 8})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rec.Run(ctx) // returns after draining

	if n := len(journal.snapshot()); n != 2 {
		t.Errorf("expected buffered events drained, got %d", n)
	}
}

func TestRecorder_GatewayErrorLevels(t *testing.T) {
	logger, logs := newTestLogger()
	rec := NewRecorder(4, nil, nil, &infra.Metrics{}, logger)

	rec.OnError(&event.GatewayErrorEvent{BaseEvent: event.NewBase(), ID: -1, Code: 2104, Message: "farm OK"})
	rec.OnError(&event.GatewayErrorEvent{BaseEvent: event.NewBase(), ID: 12, Code: 201, Message: "Order rejected"})

	out := logs.String()
	if !strings.Contains(out, "level=INFO msg=\"Gateway error\" id=-1 code=2104") {
		t.Errorf("expected informational code at INFO, got %q", out)
	}
	if !strings.Contains(out, "level=ERROR msg=\"Gateway error\" id=12 code=201") {
		t.Errorf("expected rejection at ERROR, got %q", out)
	}
}

func TestRecorder_EventAfterStopIsCounted(t *testing.T) {
	journal := &fakeJournal{}
	metrics := &infra.Metrics{}
	logger, logs := newTestLogger()
	rec := NewRecorder(8, journal, nil, metrics, logger)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rec.Run(ctx)

	rec.RecordSubmission(&event.SubmissionEvent{BaseEvent: event.NewBase(), OrderID: 42})

	if got := metrics.Snapshot().DroppedEvents; got != 1 {
		t.Errorf("expected late event counted as dropped, got %d", got)
	}
	if n := len(journal.snapshot()); n != 0 {
		t.Errorf("expected nothing journaled after stop, got %d", n)
	}
	if !strings.Contains(logs.String(), "Recorder stopped, event not journaled") {
		t.Error("expected late event to be logged")
	}
}
