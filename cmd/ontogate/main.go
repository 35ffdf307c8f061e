// Package main provides the ontogate binary entry point.
// Ontogate is a REST gateway in front of an Apache Jena Fuseki dataset that
// loads RDF files, executes SPARQL queries and reports SHACL validation.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/c360studio/ontogate/config"
	"github.com/c360studio/ontogate/gateway"
)

const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "ontogate"
)

func main() {
	// Add panic recovery
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	logLevel   string
	logFormat  string
}

func rootCmd() *cobra.Command {
	g := &globalFlags{}
	serve := &serveFlags{}

	cmd := &cobra.Command{
		Use:   appName,
		Short: "RDF ontology gateway for Apache Jena Fuseki",
		Long: `Ontogate fronts an Apache Jena Fuseki dataset with a small REST API.

It provides:
- Turtle and N-Triples loading with syntax checks and change detection
- SPARQL query execution with timeouts and result formatting
- SHACL validation with structured, grouped and rendered reports

Without a subcommand it runs the HTTP server (same as "ontogate serve").`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), g, serve)
		},
	}

	cmd.PersistentFlags().StringVarP(&g.configPath, "config", "c", "", "Config file path (YAML, JSON or JSONC)")
	cmd.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&g.logFormat, "log-format", "", "Log format (text, json)")
	serve.bind(cmd)

	cmd.AddCommand(
		serveCmd(g),
		loadCmd(g),
		queryCmd(g),
		validateCmd(g),
		statusCmd(g),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Printf("%s version %s (build: %s)\n", appName, Version, BuildTime)
			},
		},
	)
	return cmd
}

// newLogger builds the process logger.
func newLogger(w io.Writer, level, format string) *slog.Logger {
	lvl := slog.LevelInfo
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if strings.ToLower(format) == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// setup loads configuration and configures logging. Flags override the
// config file and environment.
func setup(g *globalFlags) (*config.Config, *slog.Logger, error) {
	bootstrap := newLogger(os.Stderr, g.logLevel, g.logFormat)
	cfg, err := config.NewLoader(bootstrap).Load(g.configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if g.logLevel != "" {
		cfg.Log.Level = g.logLevel
	}
	if g.logFormat != "" {
		cfg.Log.Format = g.logFormat
	}
	logger := newLogger(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)
	return cfg, logger, nil
}

// serveFlags control the server run.
type serveFlags struct {
	noBoot bool
	watch  bool
	port   int
}

func (f *serveFlags) bind(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&f.noBoot, "no-boot", false, "Skip boot-time loading of ontology and shapes")
	cmd.Flags().BoolVar(&f.watch, "watch", false, "Reload ontology files when they change on disk")
	cmd.Flags().IntVar(&f.port, "port", 0, "Listen port (overrides config)")
}

func serveCmd(g *globalFlags) *cobra.Command {
	f := &serveFlags{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), g, f)
		},
	}
	f.bind(cmd)
	return cmd
}

func runServe(ctx context.Context, g *globalFlags, f *serveFlags) error {
	cfg, logger, err := setup(g)
	if err != nil {
		return err
	}
	if f.port != 0 {
		cfg.Server.Port = f.port
	}
	if f.watch {
		cfg.Watch.Enabled = true
	}
	if ctx == nil {
		ctx = context.Background()
	}

	printBanner()

	app := NewApp(cfg, logger)
	defer app.Close()

	signalCtx, signalCancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer signalCancel()

	gw := app.Gateway(gateway.NewMetrics())
	if err := gw.Start(signalCtx); err != nil {
		return fmt.Errorf("start gateway: %w", err)
	}

	// Boot loading runs after the listener is up so /health answers
	// (degraded) while Fuseki is still starting.
	if !f.noBoot {
		go app.Boot(signalCtx)
	}

	if cfg.Watch.Enabled {
		stop, err := app.StartWatcher(signalCtx)
		if err != nil {
			logger.Warn("File watching disabled", "error", err)
		} else {
			defer stop()
		}
	}

	slog.Info("Ontogate ready",
		"version", Version,
		"addr", gw.Addr(),
		"fuseki", cfg.Fuseki.URL,
		"dataset", cfg.Fuseki.Dataset,
		"base_dir", cfg.Loader.BaseDir)

	var serveErr error
	select {
	case <-signalCtx.Done():
		slog.Info("Received shutdown signal")
	case serveErr = <-gw.Done():
		if serveErr != nil {
			slog.Error("Gateway stopped unexpectedly", "error", serveErr)
		}
	}

	if err := gw.Stop(cfg.Server.ShutdownTimeout); err != nil {
		slog.Error("Error stopping gateway", "error", err)
	}
	slog.Info("Ontogate shutdown complete")
	return serveErr
}

func printBanner() {
	fmt.Println("╔═══════════════════════════════════════════════╗")
	fmt.Println("║             Ontogate v" + Version + "                   ║")
	fmt.Println("║      RDF Ontology Gateway for Fuseki          ║")
	fmt.Println("╚═══════════════════════════════════════════════╝")
}
