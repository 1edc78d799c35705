package ibkr

import "signal_bridge/internal/event"

// Wrapper receives gateway callbacks. All methods run on the session's
// read goroutine and must not block for long.
type Wrapper interface {
	OnReady(ev *event.ReadyEvent)
	OnConnection(ev *event.ConnectionEvent)
	OnOrderStatus(ev *event.OrderStatusEvent)
	OnOpenOrder(ev *event.OpenOrderEvent)
	OnExecDetails(ev *event.ExecutionEvent)
	OnError(ev *event.GatewayErrorEvent)
}

// NopWrapper ignores every callback. Embed it to implement a subset.
type NopWrapper struct{}

func (NopWrapper) OnReady(*event.ReadyEvent)             {}
func (NopWrapper) OnConnection(*event.ConnectionEvent)   {}
func (NopWrapper) OnOrderStatus(*event.OrderStatusEvent) {}
func (NopWrapper) OnOpenOrder(*event.OpenOrderEvent)     {}
func (NopWrapper) OnExecDetails(*event.ExecutionEvent)   {}
func (NopWrapper) OnError(*event.GatewayErrorEvent)      {}
