// Package gateway provides the REST API in front of the loader, the SPARQL
// query wrapper and the SHACL validator. Handlers only decode requests,
// check that required fields are present, call the wrappers and encode the
// outcome into the JSON envelope.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360studio/semstreams/component"
	"golang.org/x/net/netutil"

	"github.com/c360studio/ontogate/events"
	"github.com/c360studio/ontogate/fuseki"
	"github.com/c360studio/ontogate/loader"
	"github.com/c360studio/ontogate/sparql"
	"github.com/c360studio/ontogate/validation"
)

// Config configures the HTTP server.
type Config struct {
	// Addr is the listen address (host:port).
	Addr string
	// MaxConnections caps concurrent connections. Zero means unlimited.
	MaxConnections int
	// CORSOrigins lists allowed origins. "*" allows any.
	CORSOrigins []string
	// Gzip enables response compression.
	Gzip            bool
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// BackendHealth reports the engine endpoint state.
type BackendHealth interface {
	Health() fuseki.EndpointHealth
}

// Dependencies are the wrappers served by the gateway. A nil wrapper makes
// its endpoints answer with an InitializationError.
type Dependencies struct {
	Loader    *loader.Loader
	Engine    *sparql.Engine
	Validator *validation.Validator
	Events    *events.Emitter
	Backend   BackendHealth
	Metrics   *Metrics
	// ReportDir, when set, receives a JSON copy of every report produced
	// by POST /validate with "export": true.
	ReportDir string
}

// Component is the REST gateway.
type Component struct {
	name   string
	config Config
	logger *slog.Logger

	loader    *loader.Loader
	engine    *sparql.Engine
	validator *validation.Validator
	emitter   *events.Emitter
	backend   BackendHealth
	metrics   *Metrics
	reportDir string

	// Lifecycle state machine
	// States: 0=stopped, 1=starting, 2=running, 3=stopping
	state     atomic.Int32
	startTime time.Time
	mu        sync.RWMutex
	server    *http.Server
	listener  net.Listener
	served    chan error
}

const (
	stateStopped  = 0
	stateStarting = 1
	stateRunning  = 2
	stateStopping = 3
)

// NewComponent creates a gateway. A nil logger uses slog.Default.
func NewComponent(cfg Config, deps Dependencies, logger *slog.Logger) *Component {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 15 * time.Second
	}
	return &Component{
		name:      "ontogate-gateway",
		config:    cfg,
		logger:    logger,
		loader:    deps.Loader,
		engine:    deps.Engine,
		validator: deps.Validator,
		emitter:   deps.Events,
		backend:   deps.Backend,
		metrics:   deps.Metrics,
		reportDir: deps.ReportDir,
	}
}

// Handler returns the full middleware chain around the route table.
func (c *Component) Handler() http.Handler {
	mux := http.NewServeMux()
	c.RegisterHTTPHandlers("", mux)

	var h http.Handler = mux
	h = withRecovery(c.logger, h)
	h = withInstrumentation(c.logger, c.metrics, h)
	h = withRequestID(h)
	h = withCORS(c.config.CORSOrigins, h)
	h = withGzip(c.config.Gzip, h)
	return h
}

// Start listens on the configured address and serves in the background.
func (c *Component) Start(ctx context.Context) error {
	if !c.state.CompareAndSwap(stateStopped, stateStarting) {
		currentState := c.state.Load()
		if currentState == stateRunning || currentState == stateStarting {
			return fmt.Errorf("component already running or starting")
		}
		return fmt.Errorf("component in invalid state: %d", currentState)
	}
	// Ensure we transition to stopped if setup fails
	defer func() {
		if c.state.Load() == stateStarting {
			c.state.Store(stateStopped)
		}
	}()

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", c.config.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", c.config.Addr, err)
	}
	if c.config.MaxConnections > 0 {
		ln = netutil.LimitListener(ln, c.config.MaxConnections)
	}

	srv := &http.Server{
		Handler:           c.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       c.config.ReadTimeout,
		WriteTimeout:      c.config.WriteTimeout,
		ErrorLog:          slog.NewLogLogger(c.logger.Handler(), slog.LevelWarn),
	}
	served := make(chan error, 1)

	c.mu.Lock()
	c.server = srv
	c.listener = ln
	c.served = served
	c.startTime = time.Now()
	c.mu.Unlock()

	go func() {
		err := srv.Serve(ln)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		served <- err
		close(served)
	}()

	c.state.Store(stateRunning)
	c.logger.Info("Gateway listening",
		"addr", ln.Addr().String(),
		"max_connections", c.config.MaxConnections,
		"gzip", c.config.Gzip)
	return nil
}

// Addr returns the bound listen address, or "" when not running.
func (c *Component) Addr() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.listener == nil {
		return ""
	}
	return c.listener.Addr().String()
}

// Done returns a channel that yields the server's terminal error (nil on
// a clean shutdown) and is then closed.
func (c *Component) Done() <-chan error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.served
}

// Stop shuts the server down, waiting up to timeout for in-flight
// requests. A non-positive timeout uses the configured shutdown timeout.
func (c *Component) Stop(timeout time.Duration) error {
	if !c.state.CompareAndSwap(stateRunning, stateStopping) {
		currentState := c.state.Load()
		if currentState == stateStopped || currentState == stateStopping {
			return nil
		}
		return fmt.Errorf("component in unexpected state: %d", currentState)
	}
	if timeout <= 0 {
		timeout = c.config.ShutdownTimeout
	}

	c.mu.Lock()
	srv := c.server
	c.server = nil
	c.listener = nil
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var err error
	if srv != nil {
		if err = srv.Shutdown(ctx); err != nil {
			c.logger.Warn("Graceful shutdown incomplete, closing connections", "error", err)
			_ = srv.Close()
		}
	}

	c.state.Store(stateStopped)
	c.logger.Info("Gateway stopped")
	return err
}

// Meta returns component metadata.
func (c *Component) Meta() component.Metadata {
	return component.Metadata{
		Name:        c.name,
		Type:        "gateway",
		Description: "REST gateway for RDF loading, SPARQL queries and SHACL validation",
		Version:     "0.1.0",
	}
}

// Health returns the current health status.
func (c *Component) Health() component.HealthStatus {
	state := c.state.Load()
	running := state == stateRunning

	c.mu.RLock()
	startTime := c.startTime
	c.mu.RUnlock()

	status := "stopped"
	switch state {
	case stateStarting:
		status = "starting"
	case stateRunning:
		status = "running"
	case stateStopping:
		status = "stopping"
	}

	var uptime time.Duration
	if running {
		uptime = time.Since(startTime)
	}
	return component.HealthStatus{
		Healthy:   running,
		LastCheck: time.Now(),
		Uptime:    uptime,
		Status:    status,
	}
}
