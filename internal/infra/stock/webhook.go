package stock

import (
	"context"
	"crypto/subtle"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"signal_bridge/internal/domain"
	"signal_bridge/internal/infra"

	"github.com/gin-gonic/gin"
)

// OrderPlacer places market orders for trade signals.
type OrderPlacer interface {
	Place(ctx context.Context, sig domain.TradeSignal, requestID string) (int64, error)
	Ready() bool
}

// WebhookHandler serves the alert webhook and its companion routes.
// Broker-agnostic: anything implementing OrderPlacer can sit behind it.
type WebhookHandler struct {
	orders       OrderPlacer
	journal      domain.OrderJournal // nil when the journal is disabled
	expectedAuth []byte
	strict       bool
	maxBodyBytes int64
	gatewayState func() string
	metrics      *infra.Metrics
	logger       *slog.Logger
}

// HandlerOption configures a WebhookHandler.
type HandlerOption func(*WebhookHandler)

// WithJournal enables GET /orders/:id.
func WithJournal(j domain.OrderJournal) HandlerOption {
	return func(h *WebhookHandler) { h.journal = j }
}

// WithStrictActions rejects actions other than BUY/SELL.
func WithStrictActions(strict bool) HandlerOption {
	return func(h *WebhookHandler) { h.strict = strict }
}

// WithMaxBodyBytes caps the webhook body size. 0 disables the cap.
func WithMaxBodyBytes(n int64) HandlerOption {
	return func(h *WebhookHandler) { h.maxBodyBytes = n }
}

// WithGatewayState reports the session state on /health.
func WithGatewayState(fn func() string) HandlerOption {
	return func(h *WebhookHandler) { h.gatewayState = fn }
}

// WithMetrics replaces infra.GlobalMetrics.
func WithMetrics(m *infra.Metrics) HandlerOption {
	return func(h *WebhookHandler) { h.metrics = m }
}

// WithLogger sets the activity logger.
func WithLogger(l *slog.Logger) HandlerOption {
	return func(h *WebhookHandler) { h.logger = l }
}

// NewWebhookHandler creates a handler authenticating with "Bearer <secretToken>".
func NewWebhookHandler(orders OrderPlacer, secretToken string, opts ...HandlerOption) *WebhookHandler {
	h := &WebhookHandler{
		orders:       orders,
		expectedAuth: []byte("Bearer " + secretToken),
		metrics:      infra.GlobalMetrics,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// authorized compares the Authorization header in constant time.
func (h *WebhookHandler) authorized(c *gin.Context) bool {
	got := []byte(c.GetHeader("Authorization"))
	return subtle.ConstantTimeCompare(got, h.expectedAuth) == 1
}

func (h *WebhookHandler) requestLogger(c *gin.Context) *slog.Logger {
	return h.logger.With(slog.String("request_id", RequestID(c)))
}

// HandleWebhook is POST /webhook.
func (h *WebhookHandler) HandleWebhook(c *gin.Context) {
	log := h.requestLogger(c)
	h.metrics.RecordSignal()

	if !h.authorized(c) {
		h.metrics.RecordRejected()
		log.Warn("Unauthorized access attempt.", slog.String("remote_addr", c.ClientIP()), slog.Any("error", domain.ErrUnauthorized))
		c.JSON(http.StatusUnauthorized, gin.H{"message": "Unauthorized"})
		return
	}

	body := c.Request.Body
	if h.maxBodyBytes > 0 {
		body = http.MaxBytesReader(c.Writer, body, h.maxBodyBytes)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		h.metrics.RecordRejected()
		log.Error("Invalid trading data received.", slog.Any("error", err))
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid data"})
		return
	}
	log.Info("Received webhook data", slog.String("data", string(data)))

	sig, err := domain.ParseTradeSignal(data, h.strict)
	if err != nil {
		h.metrics.RecordRejected()
		log.Error("Invalid trading data received.", slog.Any("error", err))
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid data"})
		return
	}

	orderID, err := h.orders.Place(c.Request.Context(), sig, RequestID(c))
	switch {
	case errors.Is(err, domain.ErrNotReady):
		c.JSON(http.StatusInternalServerError, gin.H{"message": "IBKR API not ready"})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to place order"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":  "Order placed successfully",
		"order_id": orderID,
	})
}

// HandleIndex is GET /. It answers in every session state.
func (h *WebhookHandler) HandleIndex(c *gin.Context) {
	c.String(http.StatusOK, "Automated Trading Bridge is Running.")
}

// HandleHealth is GET /health.
func (h *WebhookHandler) HandleHealth(c *gin.Context) {
	state := "UNKNOWN"
	if h.gatewayState != nil {
		state = h.gatewayState()
	}
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"gateway": state,
		"ready":   h.orders.Ready(),
	})
}

// HandleGetOrder is GET /orders/:id. It requires the same bearer token as the webhook.
func (h *WebhookHandler) HandleGetOrder(c *gin.Context) {
	log := h.requestLogger(c)

	if !h.authorized(c) {
		log.Warn("Unauthorized access attempt.", slog.String("remote_addr", c.ClientIP()), slog.Any("error", domain.ErrUnauthorized))
		c.JSON(http.StatusUnauthorized, gin.H{"message": "Unauthorized"})
		return
	}
	if h.journal == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"message": "Order journal disabled"})
		return
	}

	orderID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid order id"})
		return
	}

	ctx := c.Request.Context()
	rec, err := h.journal.GetOrder(ctx, orderID)
	if err != nil {
		log.Error("Journal lookup failed", slog.Int64("order_id", orderID), slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Journal lookup failed"})
		return
	}
	if rec == nil {
		c.JSON(http.StatusNotFound, gin.H{"message": "Order not found"})
		return
	}

	execs, err := h.journal.ListExecutions(ctx, orderID)
	if err != nil {
		log.Error("Journal lookup failed", slog.Int64("order_id", orderID), slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Journal lookup failed"})
		return
	}
	if execs == nil {
		execs = []domain.ExecutionRecord{}
	}

	c.JSON(http.StatusOK, gin.H{
		"order":      rec,
		"executions": execs,
	})
}
