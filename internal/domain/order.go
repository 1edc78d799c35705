package domain

import "strings"

// Contract identifies the instrument an order is placed on.
type Contract struct {
	Symbol   string `json:"symbol"`
	SecType  string `json:"secType"`
	Exchange string `json:"exchange"`
	Currency string `json:"currency"`
}

// Order is the broker-side order ticket.
// Only market orders are produced by this service.
type Order struct {
	Action        string `json:"action"`    // "BUY", "SELL" or any broker side string
	OrderType     string `json:"orderType"` // always "MKT"
	TotalQuantity int64  `json:"totalQuantity"`
}

const (
	SideBuy  = "BUY"
	SideSell = "SELL"

	OrderTypeMarket = "MKT"

	SecTypeStock    = "STK"
	ExchangeSmart   = "SMART"
	CurrencyDefault = "USD"
)

// ContractDefaults holds the venue fields every contract is stamped with.
type ContractDefaults struct {
	SecType  string
	Exchange string
	Currency string
}

// DefaultContractDefaults returns stock / SMART / USD.
func DefaultContractDefaults() ContractDefaults {
	return ContractDefaults{
		SecType:  SecTypeStock,
		Exchange: ExchangeSmart,
		Currency: CurrencyDefault,
	}
}

// NewMarketOrder builds the contract and market order for a validated signal.
func NewMarketOrder(sig TradeSignal, d ContractDefaults) (Contract, Order) {
	if d.SecType == "" {
		d.SecType = SecTypeStock
	}
	if d.Exchange == "" {
		d.Exchange = ExchangeSmart
	}
	if d.Currency == "" {
		d.Currency = CurrencyDefault
	}

	contract := Contract{
		Symbol:   sig.Ticker,
		SecType:  d.SecType,
		Exchange: d.Exchange,
		Currency: d.Currency,
	}
	order := Order{
		Action:        sig.Action,
		OrderType:     OrderTypeMarket,
		TotalQuantity: sig.Quantity,
	}
	return contract, order
}

// IsKnownSide reports whether action is BUY or SELL, ignoring case.
func IsKnownSide(action string) bool {
	switch strings.ToUpper(action) {
	case SideBuy, SideSell:
		return true
	default:
		return false
	}
}
