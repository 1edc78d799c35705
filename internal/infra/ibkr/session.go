package ibkr

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"signal_bridge/internal/domain"
	"signal_bridge/internal/event"
	"signal_bridge/internal/infra"

	"github.com/gorilla/websocket"
)

const (
	maxRetries = 10

	defaultHandshakeTimeout = 10 * time.Second
	defaultWriteTimeout     = 10 * time.Second
)

// State is the session connection status.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	default:
		return "UNKNOWN"
	}
}

// Config locates the gateway. Zero timeouts fall back to defaults,
// except ReadTimeout and PingInterval where zero disables them.
type Config struct {
	Host             string
	Port             int
	ClientID         int
	Path             string
	TLS              bool
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	ReadTimeout      time.Duration
	PingInterval     time.Duration
}

// ConfigFrom converts the file configuration.
func ConfigFrom(g infra.GatewayConfig) Config {
	return Config{
		Host:             g.Host,
		Port:             g.Port,
		ClientID:         g.ClientID,
		Path:             g.Path,
		TLS:              g.TLS,
		HandshakeTimeout: infra.Seconds(g.HandshakeTimeoutSec),
		WriteTimeout:     infra.Seconds(g.WriteTimeoutSec),
		ReadTimeout:      infra.Seconds(g.ReadTimeoutSec),
		PingInterval:     infra.Seconds(g.PingIntervalSec),
	}
}

// URL is the websocket endpoint of the gateway.
func (c Config) URL() string {
	scheme := "ws"
	if c.TLS {
		scheme = "wss"
	}
	u := url.URL{
		Scheme: scheme,
		Host:   net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:   c.Path,
	}
	return u.String()
}

// Option customises a Session.
type Option func(*Session)

// WithMetrics replaces infra.GlobalMetrics.
func WithMetrics(m *infra.Metrics) Option {
	return func(s *Session) { s.metrics = m }
}

// WithLogger replaces the default module logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// WithBackoff replaces infra.CalculateBackoff for reconnect delays.
func WithBackoff(fn func(retry int) time.Duration) Option {
	return func(s *Session) { s.backoff = fn }
}

// Session owns the single connection to the broker gateway and the
// order id sequence the gateway hands out.
type Session struct {
	cfg     Config
	wrapper Wrapper
	metrics *infra.Metrics
	logger  *slog.Logger
	backoff func(int) time.Duration

	state atomic.Int32

	// mu guards the order id sequence and is held for a whole submission,
	// so concurrent webhooks are serialised.
	mu     sync.Mutex
	nextID int64
	seeded bool

	// ready is read without mu so health checks never wait on a slow write.
	ready atomic.Bool

	connMu  sync.RWMutex
	conn    *websocket.Conn
	writeMu sync.Mutex

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

var _ domain.GatewaySession = (*Session)(nil)

// NewSession creates a disconnected session. Call Start to connect.
func NewSession(cfg Config, wrapper Wrapper, opts ...Option) *Session {
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = defaultHandshakeTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	if wrapper == nil {
		wrapper = NopWrapper{}
	}

	s := &Session{
		cfg:     cfg,
		wrapper: wrapper,
		metrics: infra.GlobalMetrics,
		logger:  slog.Default().With("module", "ibkr_session"),
		backoff: infra.CalculateBackoff,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the current connection status.
func (s *Session) State() State {
	return State(s.state.Load())
}

// IsReady reports whether the gateway has handed out an order id on the
// current connection.
func (s *Session) IsReady() bool {
	return s.ready.Load()
}

// NextID returns the id the next submission will use.
func (s *Session) NextID() (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextID, s.ready.Load()
}

// URL is the gateway endpoint the session dials.
func (s *Session) URL() string {
	return s.cfg.URL()
}

// Start launches the background connection loop.
func (s *Session) Start(ctx context.Context) error {
	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.connectionLoop(ctx)
	return nil
}

// Stop closes the connection and waits for the background loop to exit.
func (s *Session) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.closeConnection()
	s.wg.Wait()
}

// Submit places order under the next order id. The id is consumed only
// when the placeOrder frame was written; on error the sequence is untouched.
func (s *Session) Submit(ctx context.Context, contract domain.Contract, order domain.Order) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.ready.Load() {
		return 0, domain.ErrNotReady
	}

	id := s.nextID
	if err := s.writeJSON(ctx, newPlaceOrderRequest(id, contract, order)); err != nil {
		return 0, &domain.SubmissionError{OrderID: id, Err: err}
	}
	s.nextID++
	return id, nil
}

func (s *Session) connectionLoop(ctx context.Context) {
	defer s.wg.Done()
	defer s.setState(StateDisconnected)

	retryCount := 0
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		s.setState(StateConnecting)
		conn, err := s.connect(ctx)
		if err != nil {
			s.setState(StateDisconnected)
			delay := s.backoff(retryCount)
			if domain.IsRetriable(err) {
				s.logger.Warn("Gateway connection failed",
					slog.String("url", s.cfg.URL()), slog.Any("error", err), slog.Int("retry", retryCount))
			} else {
				// keep trying at the slowest pace so a fixed gateway is picked up
				delay = s.backoff(maxRetries)
				s.logger.Error("Gateway rejected connection",
					slog.String("url", s.cfg.URL()), slog.Any("error", err))
			}
			if retryCount < maxRetries {
				retryCount++
			}
			if !sleepCtx(ctx, delay) {
				return
			}
			continue
		}

		retryCount = 0
		connCtx, connCancel := context.WithCancel(ctx)
		var pingWG sync.WaitGroup
		pingWG.Add(1)
		go func() {
			defer pingWG.Done()
			s.pingLoop(connCtx, conn)
		}()

		readErr := s.readLoop(connCtx, conn)
		connCancel()
		pingWG.Wait()
		s.dropConnection(conn, readErr)

		if ctx.Err() != nil {
			return
		}
		s.metrics.RecordReconnect()
		if !sleepCtx(ctx, s.backoff(0)) {
			return
		}
	}
}

func (s *Session) connect(ctx context.Context) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: s.cfg.HandshakeTimeout}
	conn, resp, err := dialer.DialContext(ctx, s.cfg.URL(), nil)
	if err != nil {
		// 4xx on upgrade means wrong path or credentials, not a transient outage
		if resp != nil && resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return nil, domain.NewFatalNetworkError("gateway handshake "+resp.Status, err)
		}
		return nil, domain.NewNetworkError("dial gateway", err)
	}

	if s.cfg.ReadTimeout > 0 {
		timeout := s.cfg.ReadTimeout
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(timeout))
		})
	}

	s.connMu.Lock()
	s.conn = conn
	s.connMu.Unlock()

	hello := startAPIRequest{Type: msgStartAPI, ClientID: s.cfg.ClientID}
	if err := s.writeJSON(ctx, hello); err != nil {
		s.closeConnection()
		return nil, domain.NewNetworkError("start api", err)
	}

	s.logger.Info("Gateway connected, awaiting next valid order id",
		slog.String("url", s.cfg.URL()), slog.Int("client_id", s.cfg.ClientID))
	s.wrapper.OnConnection(&event.ConnectionEvent{
		BaseEvent: event.NewBase(),
		State:     StateConnecting.String(),
		Reason:    "handshake sent",
	})
	return conn, nil
}

func (s *Session) readLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if s.cfg.ReadTimeout > 0 {
			conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		}

		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		s.handleMessage(msg)
	}
}

// pingLoop keeps the connection alive and closes it when ctx ends, which
// unblocks a pending ReadMessage.
func (s *Session) pingLoop(ctx context.Context, conn *websocket.Conn) {
	if s.cfg.PingInterval <= 0 {
		<-ctx.Done()
		conn.Close()
		return
	}

	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			conn.Close()
			return
		case <-ticker.C:
			deadline := time.Now().Add(s.cfg.WriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				s.logger.Debug("Gateway ping failed", slog.Any("error", err))
			}
		}
	}
}

func (s *Session) handleMessage(msg []byte) {
	var env envelope
	if err := json.Unmarshal(msg, &env); err != nil {
		s.logger.Warn("Malformed gateway frame", slog.Any("error", err))
		return
	}

	switch env.Type {
	case msgNextValidID:
		m, err := decode[nextValidIDMessage](msg)
		if err != nil {
			s.logger.Warn("Bad nextValidId frame", slog.Any("error", err))
			return
		}
		s.handleNextValidID(m.OrderID)

	case msgOrderStatus:
		m, err := decode[orderStatusMessage](msg)
		if err != nil {
			s.logger.Warn("Bad orderStatus frame", slog.Any("error", err))
			return
		}
		s.metrics.RecordOrderStatus()
		s.wrapper.OnOrderStatus(&event.OrderStatusEvent{
			BaseEvent:     event.NewBase(),
			OrderID:       m.OrderID,
			Status:        m.Status,
			Filled:        m.Filled,
			Remaining:     m.Remaining,
			AvgFillPrice:  m.AvgFillPrice,
			PermID:        m.PermID,
			ParentID:      m.ParentID,
			LastFillPrice: m.LastFillPrice,
			ClientID:      m.ClientID,
			WhyHeld:       m.WhyHeld,
			MktCapPrice:   m.MktCapPrice,
		})

	case msgOpenOrder:
		m, err := decode[openOrderMessage](msg)
		if err != nil {
			s.logger.Warn("Bad openOrder frame", slog.Any("error", err))
			return
		}
		s.wrapper.OnOpenOrder(&event.OpenOrderEvent{
			BaseEvent: event.NewBase(),
			OrderID:   m.OrderID,
			Symbol:    m.Contract.Symbol,
			SecType:   m.Contract.SecType,
			Exchange:  m.Contract.Exchange,
			Currency:  m.Contract.Currency,
			Action:    m.Order.Action,
			OrderType: m.Order.OrderType,
			Quantity:  m.Order.TotalQuantity,
			Status:    m.OrderState.Status,
		})

	case msgExecDetails:
		m, err := decode[execDetailsMessage](msg)
		if err != nil {
			s.logger.Warn("Bad execDetails frame", slog.Any("error", err))
			return
		}
		s.metrics.RecordExecution()
		s.wrapper.OnExecDetails(&event.ExecutionEvent{
			BaseEvent:  event.NewBase(),
			ReqID:      m.ReqID,
			OrderID:    m.Execution.OrderID,
			ExecID:     m.Execution.ExecID,
			Symbol:     m.Contract.Symbol,
			Side:       m.Execution.Side,
			Shares:     m.Execution.Shares,
			Price:      m.Execution.Price,
			ExecutedAt: m.Execution.Time,
		})

	case msgError:
		m, err := decode[errorMessage](msg)
		if err != nil {
			s.logger.Warn("Bad error frame", slog.Any("error", err))
			return
		}
		s.metrics.RecordGatewayError()
		s.wrapper.OnError(&event.GatewayErrorEvent{
			BaseEvent: event.NewBase(),
			ID:        m.ID,
			Code:      m.Code,
			Message:   m.Message,
		})

	default:
		s.logger.Debug("Ignoring gateway frame", slog.String("type", env.Type))
	}
}

// handleNextValidID arms the session. The local sequence never moves
// backwards, so ids used before a reconnect are not handed out again.
func (s *Session) handleNextValidID(id int64) {
	s.mu.Lock()
	if !s.seeded || id > s.nextID {
		s.nextID = id
		s.seeded = true
	} else if id < s.nextID {
		s.logger.Warn("Gateway order id behind local sequence, keeping local",
			slog.Int64("gateway", id), slog.Int64("local", s.nextID))
	}
	next := s.nextID
	s.ready.Store(true)
	s.mu.Unlock()

	s.setState(StateConnected)
	s.metrics.SetGatewayReady(true)
	s.wrapper.OnReady(&event.ReadyEvent{
		BaseEvent:      event.NewBase(),
		NextOrderID:    next,
		GatewayOrderID: id,
	})
}

func (s *Session) dropConnection(conn *websocket.Conn, cause error) {
	s.connMu.Lock()
	if s.conn == conn {
		s.conn = nil
	}
	s.connMu.Unlock()
	conn.Close()

	s.ready.Store(false)

	s.setState(StateDisconnected)
	s.metrics.SetGatewayReady(false)

	reason := "closed"
	if cause != nil {
		reason = cause.Error()
	}
	s.logger.Warn("Gateway connection lost", slog.String("reason", reason))
	s.wrapper.OnConnection(&event.ConnectionEvent{
		BaseEvent: event.NewBase(),
		State:     StateDisconnected.String(),
		Reason:    reason,
	})
}

func (s *Session) closeConnection() {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
}

func (s *Session) writeJSON(ctx context.Context, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	return s.threadSafeWrite(ctx, websocket.TextMessage, b)
}

func (s *Session) threadSafeWrite(ctx context.Context, msgType int, data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.connMu.RLock()
	defer s.connMu.RUnlock()

	if s.conn == nil {
		return domain.ErrNotConnected
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	deadline := time.Now().Add(s.cfg.WriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := s.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return s.conn.WriteMessage(msgType, data)
}

func (s *Session) setState(st State) {
	s.state.Store(int32(st))
}

func decode[T any](msg []byte) (T, error) {
	var v T
	err := json.Unmarshal(msg, &v)
	return v, err
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
