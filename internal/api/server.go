package api

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-access/internal/adapter"
	"github.com/nerrad567/gray-logic-access/internal/adapter/factory"
	"github.com/nerrad567/gray-logic-access/internal/audit"
	"github.com/nerrad567/gray-logic-access/internal/device"
	"github.com/nerrad567/gray-logic-access/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-access/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-access/internal/maintenance"
	"github.com/nerrad567/gray-logic-access/internal/telemetry"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// AdapterHealth is the slice of *factory.Factory the API exposes.
type AdapterHealth interface {
	CheckHealth(ctx context.Context) []factory.HealthRecord
	HealthRecords() []factory.HealthRecord
	GetRecommendedAdapterType() adapter.Type
}

// SecretSealer encrypts device passwords before they are stored.
type SecretSealer interface {
	Encrypt(plaintext string) (string, error)
}

// AuditLister pages through the audit trail.
type AuditLister interface {
	List(ctx context.Context, filter audit.Filter) (*audit.ListResult, error)
}

// ConnectionStatus reports whether an optional sink is connected.
type ConnectionStatus interface {
	IsConnected() bool
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	WS       config.WebSocketConfig
	Security config.SecurityConfig
	Logger   *logging.Logger

	Adapter     adapter.Adapter
	Factory     AdapterHealth
	Registry    *device.Registry
	Vault       SecretSealer
	Maintenance *maintenance.Service
	Audit       AuditLister
	Telemetry   *telemetry.Publisher

	// Optional, reported by /metrics.
	MQTT ConnectionStatus
	DB   *sql.DB

	// BulkLimit bounds devices synced concurrently by /users/sync.
	BulkLimit int
	Version   string
}

// Server is the HTTP API server for the access bridge.
//
// It manages the HTTP listener, routes, middleware, and websocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg         config.APIConfig
	wsCfg       config.WebSocketConfig
	secCfg      config.SecurityConfig
	logger      *logging.Logger
	adapter     adapter.Adapter
	factory     AdapterHealth
	registry    *device.Registry
	vault       SecretSealer
	maintenance *maintenance.Service
	audit       AuditLister
	telemetry   *telemetry.Publisher
	mqtt        ConnectionStatus
	db          *sql.DB
	bulkLimit   int
	version     string
	startedAt   time.Time

	server   *http.Server
	hub      *Hub
	tickets  *ticketStore
	firmware *firmwareJobs

	// jobs tracks background firmware updates so Close can wait for them.
	jobs sync.WaitGroup

	// ctx outlives requests; event subscriptions started through the API
	// run under it.
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a new API server with the given dependencies.
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Adapter == nil {
		return nil, fmt.Errorf("adapter is required")
	}
	if deps.Registry == nil {
		return nil, fmt.Errorf("device registry is required")
	}
	if deps.Security.JWT.Secret == "" {
		return nil, fmt.Errorf("jwt secret is required")
	}
	if deps.Telemetry == nil {
		deps.Telemetry = telemetry.New(telemetry.Options{Logger: deps.Logger})
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:         deps.Config,
		wsCfg:       deps.WS,
		secCfg:      deps.Security,
		logger:      deps.Logger,
		adapter:     deps.Adapter,
		factory:     deps.Factory,
		registry:    deps.Registry,
		vault:       deps.Vault,
		maintenance: deps.Maintenance,
		audit:       deps.Audit,
		telemetry:   deps.Telemetry,
		mqtt:        deps.MQTT,
		db:          deps.DB,
		bulkLimit:   deps.BulkLimit,
		version:     deps.Version,
		startedAt:   time.Now(),
		hub:         NewHub(deps.WS, deps.Logger),
		tickets:     newTicketStore(),
		firmware:    newFirmwareJobs(),
		ctx:         ctx,
		cancel:      cancel,
	}
	s.telemetry.SetHub(s.hub)
	return s, nil
}

// Hub returns the websocket hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start launches the websocket hub, the ticket cleaner and the HTTP
// listener in background goroutines. Stop it with Close().
func (s *Server) Start(ctx context.Context) error {
	go func() {
		select {
		case <-ctx.Done():
			s.cancel()
		case <-s.ctx.Done():
		}
	}()
	go s.hub.Run(s.ctx)
	go s.cleanTicketsLoop(s.ctx)

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", s.server.Addr,
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", s.server.Addr)
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections. Background firmware
// jobs are cancelled and awaited.
func (s *Server) Close() error {
	s.cancel()
	defer s.jobs.Wait()
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}
