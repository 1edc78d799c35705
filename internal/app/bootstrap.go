package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"signal_bridge/internal/domain"
	"signal_bridge/internal/engine"
	"signal_bridge/internal/infra"
	"signal_bridge/internal/infra/ibkr"
	"signal_bridge/internal/infra/stock"
	"signal_bridge/internal/infra/storage"
	"signal_bridge/internal/infra/stream"
	"signal_bridge/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var _ ibkr.Wrapper = (*engine.Recorder)(nil)

// Bootstrap orchestrates the application startup sequence
type Bootstrap struct {
	Config    *infra.Config
	Logger    *slog.Logger
	Metrics   *infra.Metrics
	Registry  *prometheus.Registry
	Journal   *storage.Journal // nil when storage.path is empty
	Publisher *stream.Publisher
	Recorder  *engine.Recorder
	Session   *ibkr.Session
	Orders    *service.OrderService
	Router    *gin.Engine

	closers []io.Closer

	recorderCancel context.CancelFunc
	recorderDone   chan struct{}
}

// NewBootstrap creates a new Bootstrap instance
func NewBootstrap() *Bootstrap {
	return &Bootstrap{}
}

// Initialize builds every component from the config at path. Nothing is
// started: the caller runs the recorder and the session.
func (b *Bootstrap) Initialize(path string) error {
	// 1. Load Config
	cfg, err := infra.LoadConfig(path)
	if err != nil {
		return err // Let main handle the error
	}
	b.Config = cfg

	// 2. Setup Logger
	logger, logCloser := infra.NewLogger(cfg.Logging)
	slog.SetDefault(logger)
	b.Logger = logger
	b.closers = append(b.closers, logCloser)
	logger.Info("Bootstrapping signal bridge", slog.String("config", path))

	// 3. Metrics
	b.Metrics = infra.GlobalMetrics
	b.Registry = prometheus.NewRegistry()
	b.Registry.MustRegister(
		infra.NewCollector(b.Metrics),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	// 4. Order journal (optional)
	var journal engine.Journal
	var lookup domain.OrderJournal
	if cfg.Storage.Path != "" {
		j, err := storage.NewJournal(cfg.Storage.Path)
		if err != nil {
			b.Close()
			return fmt.Errorf("open order journal: %w", err)
		}
		b.Journal = j
		b.closers = append(b.closers, j)
		journal, lookup = j, j
		logger.Info("Order journal ready", slog.String("path", cfg.Storage.Path))
	}

	// 5. Event stream (optional)
	var publisher engine.Publisher
	if len(cfg.Events.Kafka.Brokers) > 0 {
		p := stream.NewPublisher(cfg.Events.Kafka.Brokers, cfg.Events.Kafka.Topic, b.Metrics, logger)
		b.Publisher = p
		b.closers = append(b.closers, p)
		publisher = p
		logger.Info("Event stream enabled",
			slog.Any("brokers", cfg.Events.Kafka.Brokers), slog.String("topic", cfg.Events.Kafka.Topic))
	}

	// 6. Recorder (activity log + journal + stream)
	b.Recorder = engine.NewRecorder(cfg.Events.InboxSize, journal, publisher, b.Metrics, logger)

	// 7. Gateway session
	b.Session = ibkr.NewSession(ibkr.ConfigFrom(cfg.Gateway), b.Recorder,
		ibkr.WithMetrics(b.Metrics), ibkr.WithLogger(logger))

	// 8. Order service
	defaults := domain.ContractDefaults{
		SecType:  cfg.Order.SecType,
		Exchange: cfg.Order.Exchange,
		Currency: cfg.Order.Currency,
	}
	b.Orders = service.NewOrderService(b.Session, b.Recorder, defaults, b.Metrics, logger)

	// 9. HTTP surface
	opts := []stock.HandlerOption{
		stock.WithStrictActions(cfg.Webhook.StrictActions),
		stock.WithMaxBodyBytes(cfg.Webhook.MaxBodyBytes),
		stock.WithGatewayState(func() string { return b.Session.State().String() }),
		stock.WithMetrics(b.Metrics),
		stock.WithLogger(logger),
	}
	if lookup != nil {
		opts = append(opts, stock.WithJournal(lookup))
	}
	handler := stock.NewWebhookHandler(b.Orders, cfg.Webhook.SecretToken, opts...)
	b.Router = stock.NewRouter(handler, b.Registry, cfg.Server.Mode)

	return nil
}

// StartRecorder runs the recorder on its own context. It is not tied to the
// shutdown signal: submissions and callbacks arriving while the server and
// the session wind down must still reach the journal.
func (b *Bootstrap) StartRecorder() {
	ctx, cancel := context.WithCancel(context.Background())
	b.recorderCancel = cancel
	b.recorderDone = make(chan struct{})
	go func() {
		defer close(b.recorderDone)
		b.Recorder.Run(ctx)
	}()
}

// StopRecorder drains the recorder and waits for it to exit.
func (b *Bootstrap) StopRecorder() {
	if b.recorderCancel == nil {
		return
	}
	b.recorderCancel()
	<-b.recorderDone
	b.recorderCancel = nil
}

// Shutdown stops the producers first, then the recorder: HTTP server
// (in-flight webhooks finish), gateway session, recorder drain.
// srv may be nil.
func (b *Bootstrap) Shutdown(ctx context.Context, srv *http.Server) error {
	var err error
	if srv != nil {
		if shutdownErr := srv.Shutdown(ctx); shutdownErr != nil {
			err = fmt.Errorf("http shutdown: %w", shutdownErr)
		}
	}
	b.Session.Stop()
	b.StopRecorder()
	return err
}

// Close releases the stream, the journal and the log file, in reverse
// order of creation.
func (b *Bootstrap) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	b.closers = nil
	return errors.Join(errs...)
}
