package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"signal_bridge/internal/domain"
	"signal_bridge/internal/event"
	"signal_bridge/internal/infra"
)

// SubmissionRecorder receives orders accepted by the gateway.
type SubmissionRecorder interface {
	RecordSubmission(ev *event.SubmissionEvent)
}

// OrderService turns validated trade signals into gateway orders.
type OrderService struct {
	gateway  domain.GatewaySession
	recorder SubmissionRecorder
	defaults domain.ContractDefaults
	metrics  *infra.Metrics
	logger   *slog.Logger
}

// NewOrderService creates an order service. recorder may be nil.
func NewOrderService(gateway domain.GatewaySession, recorder SubmissionRecorder, defaults domain.ContractDefaults, metrics *infra.Metrics, logger *slog.Logger) *OrderService {
	if metrics == nil {
		metrics = infra.GlobalMetrics
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OrderService{
		gateway:  gateway,
		recorder: recorder,
		defaults: defaults,
		metrics:  metrics,
		logger:   logger,
	}
}

// Ready reports whether orders can be placed right now.
func (s *OrderService) Ready() bool {
	return s.gateway.IsReady()
}

// Place submits a market order for sig and returns the gateway order id.
// It returns domain.ErrNotReady without touching the gateway when the
// session has no order id yet.
func (s *OrderService) Place(ctx context.Context, sig domain.TradeSignal, requestID string) (int64, error) {
	log := s.logger.With(slog.String("request_id", requestID))

	if !s.gateway.IsReady() {
		log.Error("IBKR API not connected or nextOrderId not set.")
		return 0, domain.ErrNotReady
	}

	contract, order := domain.NewMarketOrder(sig, s.defaults)

	start := time.Now()
	orderID, err := s.gateway.Submit(ctx, contract, order)
	if err != nil {
		// a session that dropped between the check and the submit
		if errors.Is(err, domain.ErrNotReady) {
			log.Error("IBKR API not connected or nextOrderId not set.")
			return 0, err
		}
		s.metrics.RecordSubmitError()
		log.Error("Failed to place order",
			slog.String("symbol", contract.Symbol), slog.String("action", order.Action),
			slog.Int64("quantity", order.TotalQuantity), slog.Any("error", err))
		return 0, err
	}
	s.metrics.RecordSubmitted(time.Since(start))

	if s.recorder != nil {
		s.recorder.RecordSubmission(&event.SubmissionEvent{
			BaseEvent: event.NewBase(),
			OrderID:   orderID,
			Symbol:    contract.Symbol,
			SecType:   contract.SecType,
			Exchange:  contract.Exchange,
			Currency:  contract.Currency,
			Action:    order.Action,
			OrderType: order.OrderType,
			Quantity:  order.TotalQuantity,
			RequestID: requestID,
		})
	}

	return orderID, nil
}
