package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/zombieplant/hydrocore/internal/controller"
	"github.com/zombieplant/hydrocore/internal/infrastructure/config"
	"github.com/zombieplant/hydrocore/internal/infrastructure/logging"
	"github.com/zombieplant/hydrocore/internal/jobs"
	"github.com/zombieplant/hydrocore/internal/metrics"
	"github.com/zombieplant/hydrocore/internal/timelapse"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config     config.APIConfig
	WS         config.WebSocketConfig
	Security   config.SecurityConfig
	Procedures config.ProceduresConfig
	Logger     *logging.Logger
	Controller *controller.Controller
	Jobs       *jobs.Manager
	Timelapse  *timelapse.Service // optional; /timelapse routes answer 404 when nil
	Metrics    *metrics.Recorder  // optional; /metrics answers 404 when nil
	// ExternalHub is used instead of creating a hub, so the job manager can
	// broadcast through the same hub the server upgrades clients onto.
	ExternalHub *Hub
	Version     string
}

// Server is the HTTP API server for HydroCore.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg         config.APIConfig
	wsCfg       config.WebSocketConfig
	secCfg      config.SecurityConfig
	procCfg     config.ProceduresConfig
	logger      *logging.Logger
	control     *controller.Controller
	jobs        *jobs.Manager
	timelapse   *timelapse.Service
	metrics     *metrics.Recorder
	version     string
	tickets     *ticketStore
	server      *http.Server
	hub         *Hub
	externalHub bool
	cancel      context.CancelFunc
	// inflight counts running handlers. Close waits on it so a direct
	// procedure has switched its actuators off before the caller tears
	// down the hardware transport.
	inflight sync.WaitGroup
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Parameters:
//   - deps: Required dependencies (logger, controller, job manager)
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Controller == nil {
		return nil, fmt.Errorf("controller is required")
	}
	if deps.Jobs == nil {
		return nil, fmt.Errorf("job manager is required")
	}

	s := &Server{
		cfg:       deps.Config,
		wsCfg:     deps.WS,
		secCfg:    deps.Security,
		procCfg:   deps.Procedures,
		logger:    deps.Logger,
		control:   deps.Controller,
		jobs:      deps.Jobs,
		timelapse: deps.Timelapse,
		metrics:   deps.Metrics,
		version:   deps.Version,
		tickets:   newTicketStore(),
	}
	if deps.ExternalHub != nil {
		s.hub = deps.ExternalHub
		s.externalHub = true
	}
	return s, nil
}

// Hub returns the WebSocket hub, or nil before Start when none was injected.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start begins listening for HTTP connections.
//
// It starts the WebSocket hub (unless injected), builds the router and
// launches the HTTP listener in a background goroutine. The server can be
// stopped with Close().
//
// Parameters:
//   - ctx: Parent context for the hub and ticket cleanup goroutines
//
// Returns:
//   - error: Always nil; listener errors are logged
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	if s.hub == nil {
		s.hub = NewHub(s.wsCfg, s.logger)
		go s.hub.Run(srvCtx)
	}
	go s.cleanTicketsLoop(srvCtx)

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
		// Requests inherit srvCtx, so shutdown cancels direct procedures.
		BaseContext: func(net.Listener) context.Context { return srvCtx },
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

// Close shuts down the API server.
//
// It cancels the context of every in-flight request, so running procedures
// unwind and deactivate their actuators, then waits up to 10 seconds for
// the handlers to return.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}
	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	err := s.server.Shutdown(ctx)

	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn("API handlers still running after shutdown timeout")
	}

	if err != nil {
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
