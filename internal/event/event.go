package event

import (
	"time"

	"github.com/shopspring/decimal"
)

// Type identifies the kind of order lifecycle event.
type Type string

const (
	TypeReady        Type = "ready"
	TypeConnection   Type = "connection"
	TypeSubmission   Type = "submission"
	TypeOrderStatus  Type = "order_status"
	TypeOpenOrder    Type = "open_order"
	TypeExecution    Type = "execution"
	TypeGatewayError Type = "gateway_error"
)

// Event is anything the recorder sequences and fans out.
type Event interface {
	GetSeq() uint64
	SetSeq(seq uint64)
	GetType() Type
	GetTs() time.Time
	// OrderKey is the order id the event belongs to, 0 if none.
	OrderKey() int64
}

// BaseEvent carries the fields shared by every event.
type BaseEvent struct {
	Seq uint64    `json:"seq"`
	Ts  time.Time `json:"ts"`
}

func (b *BaseEvent) GetSeq() uint64    { return b.Seq }
func (b *BaseEvent) SetSeq(seq uint64) { b.Seq = seq }
func (b *BaseEvent) GetTs() time.Time  { return b.Ts }

// NewBase stamps an event with the current time.
func NewBase() BaseEvent {
	return BaseEvent{Ts: time.Now()}
}

// ReadyEvent: the gateway handed out the next valid order id.
type ReadyEvent struct {
	BaseEvent
	NextOrderID    int64 `json:"next_order_id"`
	GatewayOrderID int64 `json:"gateway_order_id"` // as sent; lower than NextOrderID after a reconnect
}

func (e *ReadyEvent) GetType() Type   { return TypeReady }
func (e *ReadyEvent) OrderKey() int64 { return 0 }

// ConnectionEvent reports a session state transition.
type ConnectionEvent struct {
	BaseEvent
	State  string `json:"state"`
	Reason string `json:"reason,omitempty"`
}

func (e *ConnectionEvent) GetType() Type   { return TypeConnection }
func (e *ConnectionEvent) OrderKey() int64 { return 0 }

// SubmissionEvent is emitted locally after the gateway accepted a placeOrder frame.
type SubmissionEvent struct {
	BaseEvent
	OrderID   int64  `json:"order_id"`
	Symbol    string `json:"symbol"`
	SecType   string `json:"sec_type"`
	Exchange  string `json:"exchange"`
	Currency  string `json:"currency"`
	Action    string `json:"action"`
	OrderType string `json:"order_type"`
	Quantity  int64  `json:"quantity"`
	RequestID string `json:"request_id,omitempty"`
}

func (e *SubmissionEvent) GetType() Type   { return TypeSubmission }
func (e *SubmissionEvent) OrderKey() int64 { return e.OrderID }

// OrderStatusEvent is the gateway's orderStatus callback.
type OrderStatusEvent struct {
	BaseEvent
	OrderID       int64           `json:"order_id"`
	Status        string          `json:"status"`
	Filled        decimal.Decimal `json:"filled"`
	Remaining     decimal.Decimal `json:"remaining"`
	AvgFillPrice  decimal.Decimal `json:"avg_fill_price"`
	PermID        int64           `json:"perm_id"`
	ParentID      int64           `json:"parent_id"`
	LastFillPrice decimal.Decimal `json:"last_fill_price"`
	ClientID      int             `json:"client_id"`
	WhyHeld       string          `json:"why_held,omitempty"`
	MktCapPrice   decimal.Decimal `json:"mkt_cap_price"`
}

func (e *OrderStatusEvent) GetType() Type   { return TypeOrderStatus }
func (e *OrderStatusEvent) OrderKey() int64 { return e.OrderID }

// OpenOrderEvent is the gateway's openOrder callback (order accepted).
type OpenOrderEvent struct {
	BaseEvent
	OrderID   int64           `json:"order_id"`
	Symbol    string          `json:"symbol"`
	SecType   string          `json:"sec_type"`
	Exchange  string          `json:"exchange"`
	Currency  string          `json:"currency"`
	Action    string          `json:"action"`
	OrderType string          `json:"order_type"`
	Quantity  decimal.Decimal `json:"quantity"`
	Status    string          `json:"status"`
}

func (e *OpenOrderEvent) GetType() Type   { return TypeOpenOrder }
func (e *OpenOrderEvent) OrderKey() int64 { return e.OrderID }

// ExecutionEvent is a single fill (execDetails callback).
type ExecutionEvent struct {
	BaseEvent
	ReqID      int64           `json:"req_id"`
	OrderID    int64           `json:"order_id"`
	ExecID     string          `json:"exec_id"`
	Symbol     string          `json:"symbol"`
	Side       string          `json:"side"`
	Shares     decimal.Decimal `json:"shares"`
	Price      decimal.Decimal `json:"price"`
	ExecutedAt string          `json:"executed_at"`
}

func (e *ExecutionEvent) GetType() Type   { return TypeExecution }
func (e *ExecutionEvent) OrderKey() int64 { return e.OrderID }

// GatewayErrorEvent carries an error frame. ID is the order id or -1 for session-wide notices.
type GatewayErrorEvent struct {
	BaseEvent
	ID      int64  `json:"id"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *GatewayErrorEvent) GetType() Type { return TypeGatewayError }
func (e *GatewayErrorEvent) OrderKey() int64 {
	if e.ID < 0 {
		return 0
	}
	return e.ID
}
