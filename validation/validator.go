package validation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360studio/ontogate/fuseki"
	"github.com/c360studio/ontogate/loader"
	"github.com/c360studio/ontogate/rdfterm"
	"github.com/c360studio/ontogate/store"
	"github.com/c360studio/ontogate/turtle"
)

// PathResolver maps a requested shapes path to an absolute path.
type PathResolver interface {
	Resolve(path string) (string, error)
}

// Observer is notified of each completed validation.
type Observer interface {
	ValidationCompleted(ctx context.Context, report *Report)
}

type shapeFile struct {
	path     string
	ntriples string
	triples  int
	loaded   time.Time
}

// Validator runs SHACL shapes against the store through the engine's
// validation service.
type Validator struct {
	store    *store.Store
	resolver PathResolver
	logger   *slog.Logger
	observer Observer

	mu     sync.RWMutex
	shapes []shapeFile
	seq    int

	validations atomic.Int64
	failures    atomic.Int64
	lastReport  atomic.Pointer[Report]
}

// New creates a validator. A nil resolver resolves paths against the
// working directory. A nil logger uses slog.Default.
func New(st *store.Store, resolver PathResolver, logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{store: st, resolver: resolver, logger: logger}
}

// SetObserver registers an observer. Nil disables notifications.
func (v *Validator) SetObserver(o Observer) {
	v.observer = o
}

func (v *Validator) resolve(path string) (string, error) {
	if v.resolver != nil {
		return v.resolver.Resolve(path)
	}
	return filepath.Abs(path)
}

// LoadShapes parses a Turtle shapes file and adds it to the shape set.
// Reloading a path replaces its earlier shapes.
func (v *Validator) LoadShapes(path string) error {
	abs, err := v.resolve(path)
	if err != nil {
		return &ShapeLoadError{File: path, Err: err}
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &ShapeLoadError{File: path, Err: fmt.Errorf("file not found")}
		}
		return &ShapeLoadError{File: path, Err: err}
	}
	triples, err := turtle.ParseBytes(data, loader.FormatFor(abs))
	if err != nil {
		return &ShapeLoadError{File: path, Err: err}
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	v.seq++
	relabel(triples, fmt.Sprintf("s%d_", v.seq))
	sf := shapeFile{
		path:     abs,
		ntriples: rdfterm.NTriples(triples),
		triples:  len(triples),
		loaded:   time.Now().UTC(),
	}
	for i, existing := range v.shapes {
		if existing.path == abs {
			v.shapes[i] = sf
			v.logger.Info("Reloaded SHACL shapes", "file", abs, "triples", len(triples))
			return nil
		}
	}
	v.shapes = append(v.shapes, sf)
	v.logger.Info("Loaded SHACL shapes", "file", abs, "triples", len(triples))
	return nil
}

// relabel prefixes blank node labels so that shapes from different files
// never share a blank node once merged.
func relabel(triples []rdfterm.Triple, prefix string) {
	for i := range triples {
		if triples[i].Subject.IsBlank() {
			triples[i].Subject.Value = prefix + triples[i].Subject.Value
		}
		if triples[i].Object.IsBlank() {
			triples[i].Object.Value = prefix + triples[i].Object.Value
		}
	}
}

// LoadShapesDirectory loads every shapes file under dir matching pattern.
// Failures are collected per file.
func (v *Validator) LoadShapesDirectory(dir, pattern string) ([]string, map[string]error) {
	failed := make(map[string]error)
	abs, err := v.resolve(dir)
	if err != nil {
		failed[dir] = err
		return nil, failed
	}
	files, err := loader.Glob(abs, pattern, true)
	if err != nil {
		failed[dir] = err
		return nil, failed
	}

	var loaded []string
	for _, f := range files {
		if err := v.LoadShapes(f); err != nil {
			failed[f] = err
			continue
		}
		loaded = append(loaded, f)
	}
	return loaded, failed
}

// ClearShapes drops every loaded shape.
func (v *Validator) ClearShapes() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.shapes = nil
}

// LoadedShapes returns the loaded shape files in load order.
func (v *Validator) LoadedShapes() []string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make([]string, len(v.shapes))
	for i, s := range v.shapes {
		out[i] = s.path
	}
	return out
}

// HasShapes reports whether any shapes are loaded.
func (v *Validator) HasShapes() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.shapes) > 0
}

func (v *Validator) mergedShapes() ([]byte, []string) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	var sb strings.Builder
	paths := make([]string, 0, len(v.shapes))
	for _, s := range v.shapes {
		sb.WriteString(s.ntriples)
		paths = append(paths, s.path)
	}
	return []byte(sb.String()), paths
}

// Validate validates the whole store against the loaded shapes. An empty
// store yields an empty conforming report without calling the engine.
func (v *Validator) Validate(ctx context.Context) (*Report, error) {
	if !v.HasShapes() {
		return nil, ErrNoShapes
	}
	shapes, shapePaths := v.mergedShapes()

	var (
		body  []byte
		empty bool
	)
	err := v.store.View(func(b store.Backend) error {
		n, err := b.Count(ctx)
		if err != nil {
			return err
		}
		if n == 0 {
			empty = true
			return nil
		}
		body, err = b.Validate(ctx, shapes, fuseki.MediaNTriples)
		return err
	})
	if err != nil {
		v.failures.Add(1)
		return nil, &ExecutionError{Err: err}
	}

	opts := []Option{WithShapes(shapePaths), WithDataSources(v.store.FilePaths())}
	var report *Report
	if empty {
		v.logger.Debug("Store is empty, skipping validation engine")
		report = NewReport(nil, opts...)
	} else {
		parsed, err := ParseTurtle(body)
		if err != nil {
			v.failures.Add(1)
			return nil, &ExecutionError{Err: err}
		}
		for _, iri := range parsed.UnknownSeverities {
			v.logger.Warn("Unknown SHACL severity treated as Violation", "severity", iri)
		}
		report = NewReport(parsed.Results, opts...)
		if parsed.HasConforms && parsed.Conforms != report.Conforms() {
			v.logger.Warn("Engine conformance disagrees with results",
				"engine_conforms", parsed.Conforms, "derived_conforms", report.Conforms())
		}
	}

	v.validations.Add(1)
	v.lastReport.Store(report)
	s := report.Summary()
	v.logger.Info("Validation complete",
		"report", report.ID(),
		"conforms", report.Conforms(),
		"violations", s.ViolationCount,
		"warnings", s.WarningCount,
		"infos", s.InfoCount)

	if v.observer != nil {
		v.observer.ValidationCompleted(ctx, report)
	}
	return report, nil
}

// ValidateNode validates the store and keeps only results whose focus node
// is node. A non-empty shape further restricts results to that source shape.
// Prefixed names resolve against the store prefixes.
func (v *Validator) ValidateNode(ctx context.Context, node, shape string) (*Report, error) {
	focus, err := v.store.Resolve(node)
	if err != nil {
		return nil, err
	}
	var shapeIRI string
	if shape != "" {
		if shapeIRI, err = v.store.Resolve(shape); err != nil {
			return nil, err
		}
	}

	report, err := v.Validate(ctx)
	if err != nil {
		return nil, err
	}
	return report.Filter(func(r Result) bool {
		if r.FocusNode != focus {
			return false
		}
		return shapeIRI == "" || r.SourceShape == shapeIRI
	}), nil
}

// Export renders a report and writes it to path. An empty format is
// inferred from the file extension.
func Export(report *Report, path string, format Format) error {
	if format == "" {
		f, err := ParseFormat(strings.TrimPrefix(filepath.Ext(path), "."))
		if err != nil {
			f = FormatJSON
		}
		format = f
	}
	out, err := report.Render(format)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create report dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(out), 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

// Stats describes validator activity.
type Stats struct {
	ShapesLoaded   int       `json:"shapes_loaded"`
	ShapeFiles     []string  `json:"shape_files"`
	ShapeTriples   int       `json:"shape_triples"`
	Validations    int64     `json:"validations"`
	Failures       int64     `json:"failures"`
	LastReportID   string    `json:"last_report_id,omitempty"`
	LastConforms   *bool     `json:"last_conforms,omitempty"`
	LastValidation time.Time `json:"last_validation,omitempty"`
}

// Stats returns validator counters.
func (v *Validator) Stats() Stats {
	v.mu.RLock()
	s := Stats{ShapesLoaded: len(v.shapes), ShapeFiles: make([]string, 0, len(v.shapes))}
	for _, sf := range v.shapes {
		s.ShapeFiles = append(s.ShapeFiles, sf.path)
		s.ShapeTriples += sf.triples
	}
	v.mu.RUnlock()

	s.Validations = v.validations.Load()
	s.Failures = v.failures.Load()
	if last := v.lastReport.Load(); last != nil {
		conforms := last.Conforms()
		s.LastReportID = last.ID()
		s.LastConforms = &conforms
		s.LastValidation = last.Timestamp()
	}
	return s
}
