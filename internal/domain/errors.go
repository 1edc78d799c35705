package domain

import (
	"errors"
	"strconv"
)

// RetriableError is implemented by errors that tell the gateway
// reconnect loop whether another attempt can succeed.
type RetriableError interface {
	error
	IsRetriable() bool
}

// IsRetriable reports whether err, or any error it wraps, asks for a retry.
func IsRetriable(err error) bool {
	var re RetriableError
	if errors.As(err, &re) {
		return re.IsRetriable()
	}
	return false
}

// NetworkError is a failure talking to the broker gateway.
type NetworkError struct {
	Op        string // gateway step that failed, e.g. "dial gateway", "start api"
	Err       error
	Retriable bool // false when redialing cannot help (rejected handshake)
}

func (e *NetworkError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *NetworkError) IsRetriable() bool {
	return e.Retriable
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// NewNetworkError wraps a transient gateway failure (refused dial, dropped socket).
func NewNetworkError(op string, err error) *NetworkError {
	return &NetworkError{Op: op, Err: err, Retriable: true}
}

// NewFatalNetworkError wraps a gateway failure that needs operator action,
// such as a 4xx answer to the websocket upgrade.
func NewFatalNetworkError(op string, err error) *NetworkError {
	return &NetworkError{Op: op, Err: err, Retriable: false}
}

// ConfigError names the config field that failed validation. Never retriable.
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return "config error [" + e.Field + "]: " + e.Err.Error()
}

func (e *ConfigError) IsRetriable() bool {
	return false
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// ValidationError describes a rejected webhook field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid signal [" + e.Field + "]: " + e.Reason
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidSignal
}

// SubmissionError is returned when the gateway transport refused an order.
// The order id was not consumed.
type SubmissionError struct {
	OrderID int64
	Err     error
}

func (e *SubmissionError) Error() string {
	return "submit order " + strconv.FormatInt(e.OrderID, 10) + ": " + e.Err.Error()
}

// IsRetriable is always false: it is unknown whether the gateway saw the order.
func (e *SubmissionError) IsRetriable() bool {
	return false
}

func (e *SubmissionError) Unwrap() error {
	return e.Err
}

var (
	// ErrUnauthorized marks a request whose bearer token is missing or wrong.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInvalidSignal is the sentinel behind every ValidationError.
	ErrInvalidSignal = errors.New("invalid signal")

	// ErrNotReady is returned while the gateway has not handed out an order id.
	ErrNotReady = errors.New("gateway session not ready")

	// ErrNotConnected is returned when there is no open gateway socket.
	ErrNotConnected = errors.New("gateway not connected")
)
