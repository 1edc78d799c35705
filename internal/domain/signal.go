package domain

import (
	"encoding/json"
	"strconv"
	"strings"
)

// TradeSignal is one trade instruction delivered by the webhook.
type TradeSignal struct {
	Ticker   string
	Action   string
	Quantity int64
}

// signalPayload mirrors the webhook body before coercion.
// quantity arrives as a JSON number or a numeric string depending on the alert template.
type signalPayload struct {
	Ticker   *string         `json:"ticker"`
	Action   *string         `json:"action"`
	Quantity json.RawMessage `json:"quantity"`
}

// ParseTradeSignal decodes and validates a webhook body.
// Ticker and action are taken verbatim; strict enables the BUY/SELL check.
func ParseTradeSignal(body []byte, strict bool) (TradeSignal, error) {
	var p signalPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return TradeSignal{}, &ValidationError{Field: "body", Reason: "malformed json"}
	}

	var sig TradeSignal
	if p.Ticker != nil {
		sig.Ticker = *p.Ticker
	}
	if p.Action != nil {
		sig.Action = *p.Action
	}

	qty, err := parseQuantity(p.Quantity)
	if err != nil {
		return TradeSignal{}, err
	}
	sig.Quantity = qty

	if err := sig.Validate(strict); err != nil {
		return TradeSignal{}, err
	}
	if strict {
		sig.Action = strings.ToUpper(sig.Action)
	}
	return sig, nil
}

// Validate checks the presence rules: non-empty ticker and action, positive quantity.
func (s TradeSignal) Validate(strict bool) error {
	if strings.TrimSpace(s.Ticker) == "" {
		return &ValidationError{Field: "ticker", Reason: "required"}
	}
	if strings.TrimSpace(s.Action) == "" {
		return &ValidationError{Field: "action", Reason: "required"}
	}
	if strict && !IsKnownSide(s.Action) {
		return &ValidationError{Field: "action", Reason: "must be BUY or SELL"}
	}
	if s.Quantity <= 0 {
		return &ValidationError{Field: "quantity", Reason: "must be positive"}
	}
	return nil
}

func parseQuantity(raw json.RawMessage) (int64, error) {
	text := strings.TrimSpace(string(raw))
	if text == "" || text == "null" {
		return 0, &ValidationError{Field: "quantity", Reason: "required"}
	}

	if strings.HasPrefix(text, `"`) {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, &ValidationError{Field: "quantity", Reason: "not a number"}
		}
		text = strings.TrimSpace(s)
	}

	if n, err := strconv.ParseInt(text, 10, 64); err == nil {
		return n, nil
	}

	// Integral floats ("10.0", 1e2) are accepted, fractional ones are not.
	f, err := strconv.ParseFloat(text, 64)
	if err != nil || f != float64(int64(f)) {
		return 0, &ValidationError{Field: "quantity", Reason: "not an integer"}
	}
	return int64(f), nil
}
