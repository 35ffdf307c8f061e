package main

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/c360studio/ontogate/config"
	"github.com/c360studio/ontogate/events"
	"github.com/c360studio/ontogate/fuseki"
	"github.com/c360studio/ontogate/gateway"
	"github.com/c360studio/ontogate/loader"
	"github.com/c360studio/ontogate/sparql"
	"github.com/c360studio/ontogate/startup"
	"github.com/c360studio/ontogate/store"
	"github.com/c360studio/ontogate/validation"
	"github.com/c360studio/ontogate/watch"
)

// App wires the wrappers together over one Fuseki dataset.
type App struct {
	cfg    *config.Config
	logger *slog.Logger

	client    *fuseki.Client
	store     *store.Store
	loader    *loader.Loader
	engine    *sparql.Engine
	validator *validation.Validator
	emitter   *events.Emitter
}

// NewApp builds the wrapper stack. Event publishing is enabled when
// cfg.NATS.URL is set; a failed NATS connection is logged and events stay
// disabled.
func NewApp(cfg *config.Config, logger *slog.Logger) *App {
	client := fuseki.NewClient(fuseki.Config{
		URL:      cfg.Fuseki.URL,
		Dataset:  cfg.Fuseki.Dataset,
		Username: cfg.Fuseki.Username,
		Password: cfg.Fuseki.Password,
		Timeout:  cfg.Fuseki.Timeout,
		Health: fuseki.HealthConfig{
			FailureThreshold: cfg.Fuseki.FailureThreshold,
			RecoveryTimeout:  cfg.Fuseki.RecoveryTimeout,
		},
	}, logger.With("component", "fuseki"))

	st := store.New(client, logger.With("component", "store"))
	l := loader.New(st, loader.Config{
		BaseDir:        cfg.Loader.BaseDir,
		RestrictToBase: cfg.Loader.RestrictToBase,
	}, logger.With("component", "loader"))
	engine := sparql.NewEngine(st, sparql.TimeoutPolicy{
		Default:  cfg.Query.DefaultTimeout,
		Max:      cfg.Query.MaxTimeout,
		Adaptive: cfg.Query.AdaptiveTimeout,
	}, logger.With("component", "query"))
	v := validation.New(st, l, logger.With("component", "validator"))

	app := &App{
		cfg:       cfg,
		logger:    logger,
		client:    client,
		store:     st,
		loader:    l,
		engine:    engine,
		validator: v,
	}

	if cfg.NATS.URL != "" {
		emitter, err := events.Connect(cfg.NATS.URL, cfg.NATS.SubjectPrefix, logger.With("component", "events"))
		if err != nil {
			logger.Warn("Event publishing disabled", "url", cfg.NATS.URL, "error", err)
		} else {
			logger.Info("Publishing events", "url", cfg.NATS.URL, "prefix", cfg.NATS.SubjectPrefix)
			app.emitter = emitter
			l.SetObserver(emitter)
			v.SetObserver(emitter)
		}
	}
	return app
}

// Close releases the event connection.
func (a *App) Close() {
	if err := a.emitter.Close(); err != nil {
		a.logger.Warn("Failed to close event connection", "error", err)
	}
}

// reportDir resolves the export directory against the base directory.
func (a *App) reportDir() string {
	dir := a.cfg.Validation.ReportDir
	if dir == "" || filepath.IsAbs(dir) {
		return dir
	}
	abs, err := a.loader.Resolve(dir)
	if err != nil {
		return ""
	}
	return abs
}

// Gateway creates the REST gateway over the app's wrappers.
func (a *App) Gateway(metrics *gateway.Metrics) *gateway.Component {
	s := a.cfg.Server
	return gateway.NewComponent(gateway.Config{
		Addr:            s.Addr(),
		MaxConnections:  s.MaxConnections,
		CORSOrigins:     s.CORSOrigins,
		Gzip:            s.Gzip,
		ReadTimeout:     s.ReadTimeout,
		WriteTimeout:    s.WriteTimeout,
		ShutdownTimeout: s.ShutdownTimeout,
	}, gateway.Dependencies{
		Loader:    a.loader,
		Engine:    a.engine,
		Validator: a.validator,
		Events:    a.emitter,
		Backend:   a.client,
		Metrics:   metrics,
		ReportDir: a.reportDir(),
	}, a.logger.With("component", "gateway"))
}

// Boot runs the startup loading sequence.
func (a *App) Boot(ctx context.Context) startup.Summary {
	return startup.Run(ctx, a.cfg.Startup, a.loader, a.validator, a.logger.With("component", "startup"))
}

// StartWatcher watches the configured directories and reloads changed
// files. It returns a stop function.
func (a *App) StartWatcher(ctx context.Context) (func(), error) {
	wcfg := a.cfg.Watch
	dirs := make([]string, 0, len(wcfg.Dirs))
	for _, d := range wcfg.Dirs {
		abs, err := a.loader.Resolve(d)
		if err != nil {
			return nil, fmt.Errorf("resolve watch dir %s: %w", d, err)
		}
		dirs = append(dirs, abs)
	}
	wcfg.Dirs = dirs

	w, err := watch.NewWatcher(wcfg, a.logger.With("component", "watcher"))
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	r := watch.NewReloader(a.loader, a.logger.With("component", "reloader"))
	r.Seed(w)
	if err := w.Start(ctx); err != nil {
		_ = w.Stop()
		return nil, fmt.Errorf("start watcher: %w", err)
	}
	go r.Run(ctx, w.Events())

	return func() {
		if err := w.Stop(); err != nil {
			a.logger.Warn("Failed to stop watcher", "error", err)
		}
		a.logger.Info("File watcher stopped", "reloads", r.Reloads())
	}, nil
}

// waitForBackend blocks until Fuseki answers or the configured wait
// timeout passes.
func (a *App) waitForBackend(ctx context.Context) error {
	timeout := a.cfg.Startup.WaitTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return startup.WaitForBackend(ctx, a.store, timeout, a.cfg.Startup.PollInterval, a.logger)
}
