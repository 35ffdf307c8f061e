// Package startup performs boot-time loading: it waits for the engine, then
// loads the core ontology, its extensions and the SHACL shapes in order.
// Nothing here aborts the service; problems are logged and summarized.
package startup

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"time"

	"github.com/c360studio/ontogate/loader"
	"github.com/c360studio/ontogate/validation"
)

// Config lists what to load at boot. Relative paths resolve through the
// loader's base directory.
type Config struct {
	WaitTimeout   time.Duration `yaml:"wait_timeout" json:"wait_timeout"`
	PollInterval  time.Duration `yaml:"poll_interval" json:"poll_interval"`
	OntologyFiles []string      `yaml:"ontology_files" json:"ontology_files"`
	ShapeFiles    []string      `yaml:"shape_files" json:"shape_files"`
	DataDirs      []string      `yaml:"data_dirs" json:"data_dirs"`
}

// DefaultConfig returns the standard boot sequence.
func DefaultConfig() Config {
	return Config{
		WaitTimeout:   60 * time.Second,
		PollInterval:  2 * time.Second,
		OntologyFiles: []string{"ontology/core.ttl", "ontology/extensions.ttl"},
		ShapeFiles:    []string{"validation/shapes.ttl"},
	}
}

// Summary reports what boot loading did.
type Summary struct {
	BackendReady bool              `json:"backend_ready"`
	Loaded       []string          `json:"loaded"`
	Skipped      []string          `json:"skipped,omitempty"`
	Failed       map[string]string `json:"failed,omitempty"`
	ShapesLoaded []string          `json:"shapes_loaded"`
	Triples      int               `json:"triples"`
	Duration     time.Duration     `json:"duration"`
}

// Pinger checks the engine.
type Pinger interface {
	Ping(ctx context.Context) error
}

// WaitForBackend polls p until it answers, ctx ends, or timeout passes.
func WaitForBackend(ctx context.Context, p Pinger, timeout, interval time.Duration, logger *slog.Logger) error {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	attempt := 0
	for {
		attempt++
		err := p.Ping(ctx)
		if err == nil {
			logger.Info("Backend is ready", "attempts", attempt)
			return nil
		}
		logger.Debug("Backend not ready", "attempt", attempt, "error", err)

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.Join(ctx.Err(), err)
		case <-timer.C:
		}
	}
}

// Run performs the boot sequence. Shapes are loaded only when v is non-nil.
func Run(ctx context.Context, cfg Config, l *loader.Loader, v *validation.Validator, logger *slog.Logger) Summary {
	if logger == nil {
		logger = slog.Default()
	}
	start := time.Now()
	sum := Summary{Failed: make(map[string]string)}

	logger.Info("Waiting for backend", "timeout", cfg.WaitTimeout)
	if err := WaitForBackend(ctx, l.Store(), cfg.WaitTimeout, cfg.PollInterval, logger); err != nil {
		logger.Warn("Backend did not become ready, skipping boot loading", "error", err)
		sum.Duration = time.Since(start)
		return sum
	}
	sum.BackendReady = true

	for _, f := range cfg.OntologyFiles {
		if !exists(l, f) {
			logger.Warn("Ontology file not found, skipping", "file", f)
			sum.Skipped = append(sum.Skipped, f)
			continue
		}
		res, err := l.LoadFile(ctx, f, loader.DefaultOptions())
		if err != nil {
			logger.Warn("Failed to load ontology file", "file", f, "error", err)
			sum.Failed[f] = err.Error()
			continue
		}
		sum.Loaded = append(sum.Loaded, f)
		sum.Triples += res.Triples
	}

	for _, dir := range cfg.DataDirs {
		outcome := l.LoadOntology(ctx, []string{dir}, loader.DefaultOptions())
		sum.Loaded = append(sum.Loaded, outcome.SuccessfulPaths()...)
		sum.Triples += outcome.Triples()
		for path, msg := range outcome.Errors() {
			sum.Failed[path] = msg
		}
	}

	if v != nil {
		for _, f := range cfg.ShapeFiles {
			if !exists(l, f) {
				logger.Warn("Shapes file not found, skipping", "file", f)
				sum.Skipped = append(sum.Skipped, f)
				continue
			}
			if err := v.LoadShapes(f); err != nil {
				logger.Warn("Failed to load shapes", "file", f, "error", err)
				sum.Failed[f] = err.Error()
				continue
			}
			sum.ShapesLoaded = append(sum.ShapesLoaded, f)
		}
	}

	sum.Duration = time.Since(start)
	logger.Info("Boot loading complete",
		"loaded", len(sum.Loaded),
		"skipped", len(sum.Skipped),
		"failed", len(sum.Failed),
		"shapes", len(sum.ShapesLoaded),
		"triples", sum.Triples,
		"duration", sum.Duration)
	return sum
}

func exists(l *loader.Loader, path string) bool {
	abs, err := l.Resolve(path)
	if err != nil {
		return false
	}
	info, err := os.Stat(abs)
	return err == nil && info.Mode().IsRegular()
}
