package ibkr

import (
	"github.com/shopspring/decimal"

	"signal_bridge/internal/domain"
)

// Frame types exchanged with the gateway. Every frame is one JSON object
// with a "type" discriminator.
const (
	msgStartAPI    = "startApi"
	msgPlaceOrder  = "placeOrder"
	msgNextValidID = "nextValidId"
	msgOrderStatus = "orderStatus"
	msgOpenOrder   = "openOrder"
	msgExecDetails = "execDetails"
	msgError       = "error"
)

type envelope struct {
	Type string `json:"type"`
}

// Outbound

type startAPIRequest struct {
	Type                 string `json:"type"`
	ClientID             int    `json:"clientId"`
	OptionalCapabilities string `json:"optionalCapabilities,omitempty"`
}

type placeOrderRequest struct {
	Type     string          `json:"type"`
	OrderID  int64           `json:"orderId"`
	Contract contractPayload `json:"contract"`
	Order    orderPayload    `json:"order"`
}

type contractPayload struct {
	Symbol   string `json:"symbol"`
	SecType  string `json:"secType"`
	Exchange string `json:"exchange"`
	Currency string `json:"currency"`
}

type orderPayload struct {
	Action        string          `json:"action"`
	OrderType     string          `json:"orderType"`
	TotalQuantity decimal.Decimal `json:"totalQuantity"`
}

func newPlaceOrderRequest(orderID int64, c domain.Contract, o domain.Order) placeOrderRequest {
	return placeOrderRequest{
		Type:    msgPlaceOrder,
		OrderID: orderID,
		Contract: contractPayload{
			Symbol:   c.Symbol,
			SecType:  c.SecType,
			Exchange: c.Exchange,
			Currency: c.Currency,
		},
		Order: orderPayload{
			Action:        o.Action,
			OrderType:     o.OrderType,
			TotalQuantity: decimal.NewFromInt(o.TotalQuantity),
		},
	}
}

// Inbound

type nextValidIDMessage struct {
	OrderID int64 `json:"orderId"`
}

type orderStatusMessage struct {
	OrderID       int64           `json:"orderId"`
	Status        string          `json:"status"`
	Filled        decimal.Decimal `json:"filled"`
	Remaining     decimal.Decimal `json:"remaining"`
	AvgFillPrice  decimal.Decimal `json:"avgFillPrice"`
	PermID        int64           `json:"permId"`
	ParentID      int64           `json:"parentId"`
	LastFillPrice decimal.Decimal `json:"lastFillPrice"`
	ClientID      int             `json:"clientId"`
	WhyHeld       string          `json:"whyHeld"`
	MktCapPrice   decimal.Decimal `json:"mktCapPrice"`
}

type openOrderMessage struct {
	OrderID    int64           `json:"orderId"`
	Contract   contractPayload `json:"contract"`
	Order      orderPayload    `json:"order"`
	OrderState struct {
		Status string `json:"status"`
	} `json:"orderState"`
}

type execDetailsMessage struct {
	ReqID     int64           `json:"reqId"`
	Contract  contractPayload `json:"contract"`
	Execution struct {
		ExecID  string          `json:"execId"`
		OrderID int64           `json:"orderId"`
		Shares  decimal.Decimal `json:"shares"`
		Price   decimal.Decimal `json:"price"`
		Time    string          `json:"time"`
		Side    string          `json:"side"`
	} `json:"execution"`
}

type errorMessage struct {
	ID      int64  `json:"id"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}
