package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"signal_bridge/internal/event"
	"signal_bridge/internal/infra"
)

const drainTimeout = 5 * time.Second

// Journal persists order lifecycle events.
type Journal interface {
	RecordSubmission(ctx context.Context, ev *event.SubmissionEvent) error
	ApplyStatus(ctx context.Context, ev *event.OrderStatusEvent) error
	MarkOpen(ctx context.Context, ev *event.OpenOrderEvent) error
	RecordExecution(ctx context.Context, ev *event.ExecutionEvent) error
}

// Publisher forwards events to an external stream.
type Publisher interface {
	Publish(ctx context.Context, ev event.Event) error
}

// Recorder is the activity log of the bridge. Every callback is logged
// synchronously; the event is then sequenced on a single goroutine and
// handed to the journal and the publisher.
type Recorder struct {
	inbox     chan event.Event
	nextSeq   uint64
	journal   Journal
	publisher Publisher
	metrics   *infra.Metrics
	logger    *slog.Logger

	// stopMu orders enqueue against shutdown: once stopped is set nothing
	// new enters the inbox, so the final drain sees every accepted event.
	stopMu  sync.RWMutex
	stopped bool
}

// NewRecorder creates a recorder. journal and publisher may be nil.
func NewRecorder(inboxSize int, journal Journal, publisher Publisher, metrics *infra.Metrics, logger *slog.Logger) *Recorder {
	if inboxSize <= 0 {
		inboxSize = 1024
	}
	if metrics == nil {
		metrics = infra.GlobalMetrics
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		inbox:     make(chan event.Event, inboxSize),
		nextSeq:   1,
		journal:   journal,
		publisher: publisher,
		metrics:   metrics,
		logger:    logger,
	}
}

// Run consumes the inbox until ctx is done, then drains what is buffered.
// It must run in a single goroutine. Cancel ctx only after every producer
// (HTTP server, gateway session) has stopped; later events are counted as dropped.
func (r *Recorder) Run(ctx context.Context) {
	r.logger.Info("Recorder started")
	for {
		select {
		case <-ctx.Done():
			r.stopMu.Lock()
			r.stopped = true
			r.stopMu.Unlock()
			r.drain()
			r.logger.Info("Recorder stopped")
			return
		case ev := <-r.inbox:
			r.processEvent(ctx, ev)
		}
	}
}

func (r *Recorder) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	for {
		select {
		case ev := <-r.inbox:
			r.processEvent(ctx, ev)
		default:
			return
		}
	}
}

func (r *Recorder) processEvent(ctx context.Context, ev event.Event) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("Recorder panic recovered", slog.Any("panic", p), slog.String("type", string(ev.GetType())))
		}
	}()

	ev.SetSeq(r.nextSeq)
	r.nextSeq++

	if r.journal != nil {
		if err := r.persist(ctx, ev); err != nil {
			r.logger.Error("Journal write failed",
				slog.Uint64("seq", ev.GetSeq()), slog.String("type", string(ev.GetType())),
				slog.Int64("order_id", ev.OrderKey()), slog.Any("error", err))
		}
	}

	if r.publisher != nil {
		if err := r.publisher.Publish(ctx, ev); err != nil {
			r.logger.Warn("Event publish failed",
				slog.Uint64("seq", ev.GetSeq()), slog.String("type", string(ev.GetType())), slog.Any("error", err))
		}
	}
}

func (r *Recorder) persist(ctx context.Context, ev event.Event) error {
	switch e := ev.(type) {
	case *event.SubmissionEvent:
		return r.journal.RecordSubmission(ctx, e)
	case *event.OrderStatusEvent:
		return r.journal.ApplyStatus(ctx, e)
	case *event.OpenOrderEvent:
		return r.journal.MarkOpen(ctx, e)
	case *event.ExecutionEvent:
		return r.journal.RecordExecution(ctx, e)
	default:
		return nil
	}
}

func (r *Recorder) enqueue(ev event.Event) {
	r.stopMu.RLock()
	defer r.stopMu.RUnlock()

	if r.stopped {
		r.metrics.RecordDroppedEvent()
		r.logger.Warn("Recorder stopped, event not journaled",
			slog.String("type", string(ev.GetType())), slog.Int64("order_id", ev.OrderKey()))
		return
	}

	select {
	case r.inbox <- ev:
	default:
		r.metrics.RecordDroppedEvent()
		r.logger.Warn("Recorder inbox full, event not journaled",
			slog.String("type", string(ev.GetType())), slog.Int64("order_id", ev.OrderKey()))
	}
}

// RecordSubmission logs an order that was written to the gateway.
func (r *Recorder) RecordSubmission(ev *event.SubmissionEvent) {
	r.logger.Info("Placed order",
		slog.Int64("order_id", ev.OrderID), slog.String("action", ev.Action),
		slog.Int64("quantity", ev.Quantity), slog.String("symbol", ev.Symbol),
		slog.String("request_id", ev.RequestID))
	r.enqueue(ev)
}

func (r *Recorder) OnReady(ev *event.ReadyEvent) {
	r.logger.Info("Next Valid Order ID",
		slog.Int64("order_id", ev.NextOrderID), slog.Int64("gateway_order_id", ev.GatewayOrderID))
	r.enqueue(ev)
}

func (r *Recorder) OnConnection(ev *event.ConnectionEvent) {
	r.logger.Info("Gateway session", slog.String("state", ev.State), slog.String("reason", ev.Reason))
	r.enqueue(ev)
}

func (r *Recorder) OnOrderStatus(ev *event.OrderStatusEvent) {
	r.logger.Info("OrderStatus",
		slog.Int64("order_id", ev.OrderID), slog.String("status", ev.Status),
		slog.String("filled", ev.Filled.String()), slog.String("remaining", ev.Remaining.String()),
		slog.String("avg_fill_price", ev.AvgFillPrice.String()))
	r.enqueue(ev)
}

func (r *Recorder) OnOpenOrder(ev *event.OpenOrderEvent) {
	r.logger.Info("OpenOrder",
		slog.Int64("order_id", ev.OrderID), slog.String("symbol", ev.Symbol),
		slog.String("action", ev.Action), slog.String("quantity", ev.Quantity.String()),
		slog.String("status", ev.Status))
	r.enqueue(ev)
}

func (r *Recorder) OnExecDetails(ev *event.ExecutionEvent) {
	r.logger.Info("ExecDetails",
		slog.Int64("req_id", ev.ReqID), slog.Int64("order_id", ev.OrderID),
		slog.String("symbol", ev.Symbol), slog.String("exec_id", ev.ExecID),
		slog.String("quantity", ev.Shares.String()), slog.String("price", ev.Price.String()))
	r.enqueue(ev)
}

// OnError logs gateway error frames. Codes 2100-2199 are informational
// farm/connectivity notices.
func (r *Recorder) OnError(ev *event.GatewayErrorEvent) {
	level := slog.LevelError
	if ev.Code >= 2100 && ev.Code < 2200 {
		level = slog.LevelInfo
	}
	r.logger.Log(context.Background(), level, "Gateway error",
		slog.Int64("id", ev.ID), slog.Int("code", ev.Code), slog.String("message", ev.Message))
	r.enqueue(ev)
}
