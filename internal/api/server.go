package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/nerrad567/gray-logic-watchdog/internal/attribute"
	"github.com/nerrad567/gray-logic-watchdog/internal/audit"
	"github.com/nerrad567/gray-logic-watchdog/internal/fleet"
	"github.com/nerrad567/gray-logic-watchdog/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-watchdog/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-watchdog/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-watchdog/internal/monitor"
	"github.com/nerrad567/gray-logic-watchdog/internal/process"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// AttributeStore is the published attribute surface.
type AttributeStore interface {
	List() []attribute.Value
	Read(name string) (attribute.Value, error)
	Write(ctx context.Context, name string, value any) error
}

// FleetView exposes the fleet sets.
type FleetView interface {
	Snapshot() fleet.Snapshot
}

// DeviceView exposes the monitored devices.
type DeviceView interface {
	Devices() []monitor.Snapshot
	Device(name string) (monitor.Snapshot, bool)
}

// DigestFlusher sends the pending digest on demand.
type DigestFlusher interface {
	Flush(ctx context.Context) (bool, error)
}

// InstanceView lists supervised device-server instances.
type InstanceView interface {
	Instances() []process.Stats
}

// AuditLog records operator actions.
type AuditLog interface {
	Create(ctx context.Context, e *audit.Entry) error
	List(ctx context.Context, filter audit.Filter) (*audit.ListResult, error)
}

// HealthChecker reports whether a backing service is usable.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// BusStatus is the broker connection as seen by health and metrics.
// *mqtt.Client satisfies it.
type BusStatus interface {
	HealthChecker
	Stats() mqtt.Stats
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config     config.APIConfig
	WS         config.WebSocketConfig
	Security   config.SecurityConfig
	Logger     *logging.Logger
	Attributes AttributeStore
	Fleet      FleetView
	Devices    DeviceView
	Digest     DigestFlusher // optional
	Instances  InstanceView  // optional
	Audit      AuditLog      // optional
	Bus        BusStatus
	Telemetry  HealthChecker // optional
	Version    string
}

// Server is the HTTP API server of the watchdog.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg        config.APIConfig
	wsCfg      config.WebSocketConfig
	secCfg     config.SecurityConfig
	logger     *logging.Logger
	attributes AttributeStore
	fleet      FleetView
	devices    DeviceView
	digest     DigestFlusher
	instances  InstanceView
	audit      AuditLog
	bus        BusStatus
	telemetry  HealthChecker
	version    string
	startTime  time.Time
	server     *http.Server
	hub        *Hub
	cancel     context.CancelFunc // cancels background goroutines on Close()
}

// New creates a new API server with the given dependencies.
//
// The WebSocket hub exists from construction so it can be registered as an
// attribute sink before the first value is published. The server is not
// started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Attributes == nil {
		return nil, fmt.Errorf("attribute store is required")
	}
	if deps.Fleet == nil {
		return nil, fmt.Errorf("fleet view is required")
	}
	if deps.Devices == nil {
		return nil, fmt.Errorf("device view is required")
	}

	return &Server{
		cfg:        deps.Config,
		wsCfg:      deps.WS,
		secCfg:     deps.Security,
		logger:     deps.Logger,
		attributes: deps.Attributes,
		fleet:      deps.Fleet,
		devices:    deps.Devices,
		digest:     deps.Digest,
		instances:  deps.Instances,
		audit:      deps.Audit,
		bus:        deps.Bus,
		telemetry:  deps.Telemetry,
		version:    deps.Version,
		startTime:  time.Now(),
		hub:        NewHub(deps.WS, deps.Logger),
	}, nil
}

// Hub returns the WebSocket hub. It is an attribute.Sink.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start begins listening for HTTP connections.
//
// It starts the WebSocket hub and launches the HTTP listener in a background
// goroutine. The server can be stopped with Close().
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	go s.hub.Run(srvCtx)

	s.server = &http.Server{
		Addr:              net.JoinHostPort(s.cfg.Host, fmt.Sprint(s.cfg.Port)),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		s.cancel()
		return fmt.Errorf("listening on %s: %w", s.server.Addr, err)
	}

	s.logger.Info("API server starting", "address", ln.Addr().String())
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
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
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running and responsive.
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
