// Package server orchestrates all components: NATS client, state store, catalog, dispatcher, HTTP health.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	comms "github.com/nats-io/nats.go"

	"github.com/morezero/device-manager/internal/config"
	"github.com/morezero/device-manager/pkg/bootstrap"
	"github.com/morezero/device-manager/pkg/commsutil"
	"github.com/morezero/device-manager/pkg/conversation"
	"github.com/morezero/device-manager/pkg/dispatcher"
	"github.com/morezero/device-manager/pkg/events"
	"github.com/morezero/device-manager/pkg/messaging"
	"github.com/morezero/device-manager/pkg/metrics"
	"github.com/morezero/device-manager/pkg/registry"
	"github.com/morezero/device-manager/pkg/state"
)

const logPrefix = "server:server"

// shutdownTimeout bounds the graceful shutdown after a signal.
const shutdownTimeout = 15 * time.Second

// Server is the device-manager orchestrator.
type Server struct {
	cfg        *config.Config
	nc         *comms.Conn
	store      state.Store
	closeStore func()
	reg        *registry.Registry
	pending    *conversation.Pending
	disp       *dispatcher.Dispatcher
	metrics    *metrics.Metrics
	sub        *comms.Subscription
	httpServer *http.Server
	httpAddr   string

	// connected reports the transport state for /health.
	connected func() bool

	cancel    context.CancelFunc
	sweepDone chan struct{}
	fatal     chan error
	fatalOnce sync.Once
}

// SetupLogging installs the default slog logger for the given level.
func SetupLogging(level string) {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))
}

// Run starts the server, blocks until a shutdown signal or a fatal error, then cleans up.
func Run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("%s - failed to load config: %w", logPrefix, err)
	}
	SetupLogging(cfg.LogLevel)

	if err := cfg.ValidateForServe(); err != nil {
		return err
	}

	slog.Info(fmt.Sprintf("%s - Starting device-manager %s", logPrefix, cfg.Instance))

	s, err := Start(context.Background(), cfg)
	if err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	var runErr error
	select {
	case sig := <-sigCh:
		slog.Info(fmt.Sprintf("%s - Received signal %s, shutting down", logPrefix, sig))
	case runErr = <-s.Fatal():
		slog.Error(fmt.Sprintf("%s - Fatal error, shutting down: %v", logPrefix, runErr))
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.Shutdown(ctx)
	return runErr
}

// Start wires every component and begins serving. It returns once the command
// subscription and the HTTP listener are up.
func Start(ctx context.Context, cfg *config.Config) (*Server, error) {
	s := &Server{
		cfg:       cfg,
		reg:       registry.NewRegistry(),
		pending:   conversation.NewPending(),
		sweepDone: make(chan struct{}),
		fatal:     make(chan error, 1),
	}

	// Step 1: Load the device catalog
	catalog, catalogPath, err := bootstrap.LoadCatalog(cfg.CatalogFile)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to load catalog: %w", logPrefix, err)
	}

	// Step 2: Connect to NATS
	nc, err := commsutil.Connect(cfg.COMMSURL, cfg.COMMSName)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to connect to NATS: %w", logPrefix, err)
	}
	s.nc = nc
	s.connected = nc.IsConnected
	slog.Info(fmt.Sprintf("%s - Connected to NATS at %s", logPrefix, cfg.COMMSURL))

	// Step 3: Open the state store
	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		nc.Close()
		return nil, err
	}
	s.store = store
	s.closeStore = closeStore

	if cfg.CommunicationStateID != "" {
		if err := store.Ensure(ctx, cfg.CommunicationStateID, ""); err != nil {
			closeStore()
			nc.Close()
			return nil, fmt.Errorf("%s - failed to create communication state %s: %w", logPrefix, cfg.CommunicationStateID, err)
		}
		slog.Info(fmt.Sprintf("%s - Communication state %s ready", logPrefix, cfg.CommunicationStateID))
	}

	// Step 4: Create dispatcher and catalog provider
	publisher := events.NewCommsPublisher(events.NewCommsPublisherParams{
		Conn:    nc,
		Store:   store,
		Subject: cfg.StateSubject(),
	})
	s.metrics = metrics.New(cfg.COMMSName, s.pending.Len)

	var reload func() (*bootstrap.Catalog, error)
	if catalogPath != "" {
		reload = func() (*bootstrap.Catalog, error) { return bootstrap.LoadCatalogFile(catalogPath) }
	}
	provider := bootstrap.NewCatalogProvider(bootstrap.NewCatalogProviderParams{
		Catalog:              catalog,
		Store:                store,
		Publisher:            publisher,
		StatePrefix:          cfg.Instance,
		APIVersion:           cfg.APIVersion,
		CommunicationStateID: cfg.CommunicationStateID,
		Reload:               reload,
		Notify: func(ctx context.Context, cmd *events.BackendToGuiCommand) error {
			return s.disp.SendCommandToGUI(ctx, cmd)
		},
	})

	s.disp = dispatcher.NewDispatcher(dispatcher.NewDispatcherParams{
		Provider:  provider,
		Registry:  s.reg,
		Messenger: messaging.NewCommsMessenger(nc, cfg.Instance),
		Pending:   s.pending,
		Publisher: publisher,
		Metrics:   s.metrics,
		Config: dispatcher.Config{
			APIVersion:           cfg.APIVersion,
			CommunicationStateID: cfg.CommunicationStateID,
			InteractionTimeout:   cfg.InteractionTimeout,
		},
		OnFatal: s.fail,
	})

	// Step 5: Subscribe to commands and start the conversation sweeper
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	sub, err := messaging.Subscribe(runCtx, nc, cfg.CommandSubject(), s.disp.Handle)
	if err != nil {
		cancel()
		closeStore()
		nc.Close()
		return nil, err
	}
	s.sub = sub

	go func() {
		defer close(s.sweepDone)
		s.pending.RunSweeper(runCtx, sweepInterval(cfg.ConversationTTL), cfg.ConversationTTL)
	}()

	// Step 6: Start HTTP health server
	ln, err := net.Listen("tcp", cfg.HTTPAddress())
	if err != nil {
		_ = sub.Unsubscribe()
		cancel()
		closeStore()
		nc.Close()
		return nil, fmt.Errorf("%s - failed to listen on %s: %w", logPrefix, cfg.HTTPAddress(), err)
	}
	s.httpAddr = ln.Addr().String()
	s.httpServer = &http.Server{Handler: s.routes(), ReadHeaderTimeout: 10 * time.Second}
	go func() {
		slog.Info(fmt.Sprintf("%s - HTTP health server listening on %s", logPrefix, s.httpAddr))
		if err := s.httpServer.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			slog.Error(fmt.Sprintf("%s - HTTP server error: %v", logPrefix, err))
		}
	}()

	slog.Info(fmt.Sprintf("%s - Device manager is ready on %s", logPrefix, cfg.CommandSubject()))
	return s, nil
}

// sweepInterval picks how often stale conversations are looked for.
func sweepInterval(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return 0
	}
	interval := ttl / 10
	if interval < time.Second {
		interval = time.Second
	}
	return interval
}

// fail records the first fatal error and signals Run to stop.
func (s *Server) fail(err error) {
	s.fatalOnce.Do(func() {
		s.fatal <- err
	})
}

// Fatal delivers the error that made the server unusable.
func (s *Server) Fatal() <-chan error { return s.fatal }

// HTTPAddr returns the address the HTTP server listens on.
func (s *Server) HTTPAddr() string { return s.httpAddr }

// Dispatcher returns the command dispatcher.
func (s *Server) Dispatcher() *dispatcher.Dispatcher { return s.disp }

// Shutdown stops taking commands and aborts running conversations: a prompt still waiting
// for the GUI returns context.Canceled and its handler unwinds. Once every handler has
// returned, the HTTP server, the NATS connection and the store are closed.
func (s *Server) Shutdown(ctx context.Context) {
	if s.sub != nil {
		if err := s.sub.Unsubscribe(); err != nil {
			slog.Warn(fmt.Sprintf("%s - unsubscribe failed: %v", logPrefix, err))
		}
	}
	if s.cancel != nil {
		s.cancel()
		<-s.sweepDone
	}
	if s.disp != nil {
		s.disp.Wait()
	}
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			slog.Warn(fmt.Sprintf("%s - HTTP shutdown: %v", logPrefix, err))
		}
	}
	if s.nc != nil {
		if err := s.nc.Drain(); err != nil {
			slog.Warn(fmt.Sprintf("%s - NATS drain: %v", logPrefix, err))
		}
	}
	if s.closeStore != nil {
		s.closeStore()
	}

	slog.Info(fmt.Sprintf("%s - Shutdown complete", logPrefix))
}
