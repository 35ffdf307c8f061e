// Package loader reads RDF files from disk, checks their syntax and forwards
// them to the store.
package loader

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/c360studio/ontogate/store"
	"github.com/c360studio/ontogate/turtle"
)

// DefaultPattern matches Turtle files in any subdirectory.
const DefaultPattern = "**/*.ttl"

// Config configures a Loader.
type Config struct {
	// BaseDir resolves relative paths. Empty means the working directory.
	BaseDir string
	// RestrictToBase rejects paths that resolve outside BaseDir.
	RestrictToBase bool
}

// Options controls one load call.
type Options struct {
	// Validate runs the syntax check before uploading.
	Validate bool
	// ContinueOnError keeps loading after a file fails.
	ContinueOnError bool
	// Force re-uploads files whose content is unchanged.
	Force bool
}

// DefaultOptions validates and stops at the first failure.
func DefaultOptions() Options {
	return Options{Validate: true}
}

// FileResult describes one successfully loaded file.
type FileResult struct {
	Path    string `json:"path"`
	AbsPath string `json:"abs_path"`
	Triples int    `json:"triples"`
	Skipped bool   `json:"skipped,omitempty"`
}

// Failure pairs a requested path with its error.
type Failure struct {
	Path string `json:"path"`
	Err  error  `json:"-"`
}

// Outcome lists the successful and failed files of a multi-file load.
type Outcome struct {
	Successful []FileResult
	Failed     []Failure
}

// SuccessfulPaths returns the requested paths that loaded.
func (o Outcome) SuccessfulPaths() []string {
	out := make([]string, 0, len(o.Successful))
	for _, r := range o.Successful {
		out = append(out, r.Path)
	}
	return out
}

// FailedPaths returns the requested paths that failed.
func (o Outcome) FailedPaths() []string {
	out := make([]string, 0, len(o.Failed))
	for _, f := range o.Failed {
		out = append(out, f.Path)
	}
	return out
}

// Errors maps each failed path to its error message.
func (o Outcome) Errors() map[string]string {
	out := make(map[string]string, len(o.Failed))
	for _, f := range o.Failed {
		out[f.Path] = f.Err.Error()
	}
	return out
}

// Triples sums the triple counts of the successful files.
func (o Outcome) Triples() int {
	n := 0
	for _, r := range o.Successful {
		n += r.Triples
	}
	return n
}

func (o *Outcome) merge(other Outcome) {
	o.Successful = append(o.Successful, other.Successful...)
	o.Failed = append(o.Failed, other.Failed...)
}

// Observer is told about completed loads and clears.
type Observer interface {
	FilesLoaded(ctx context.Context, outcome Outcome)
	StoreCleared(ctx context.Context, files int)
}

// Loader loads RDF files into a store.
type Loader struct {
	store    *store.Store
	config   Config
	logger   *slog.Logger
	observer Observer
}

// New creates a loader. A nil logger uses slog.Default.
func New(st *store.Store, cfg Config, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{store: st, config: cfg, logger: logger}
}

// SetObserver registers an observer. Nil disables notifications.
func (l *Loader) SetObserver(o Observer) {
	l.observer = o
}

// Store returns the underlying store.
func (l *Loader) Store() *store.Store { return l.store }

// Resolve maps a requested path to an absolute path, enforcing the base
// directory restriction.
func (l *Loader) Resolve(path string) (string, error) {
	p := path
	if !filepath.IsAbs(p) && l.config.BaseDir != "" {
		p = filepath.Join(l.config.BaseDir, p)
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", &LoadError{Path: path, Kind: KindRead, Err: err}
	}

	if l.config.RestrictToBase && l.config.BaseDir != "" {
		base, err := filepath.Abs(l.config.BaseDir)
		if err != nil {
			return "", &LoadError{Path: path, Kind: KindRead, Err: err}
		}
		rel, err := filepath.Rel(base, abs)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return "", &LoadError{Path: path, Kind: KindOutsideRoot}
		}
	}
	return abs, nil
}

// LoadFile loads one file.
func (l *Loader) LoadFile(ctx context.Context, path string, opts Options) (FileResult, error) {
	abs, err := l.Resolve(path)
	if err != nil {
		return FileResult{}, err
	}

	info, err := os.Stat(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return FileResult{}, &LoadError{Path: path, Kind: KindNotFound, Err: err}
		}
		return FileResult{}, &LoadError{Path: path, Kind: KindRead, Err: err}
	}
	if !info.Mode().IsRegular() {
		return FileResult{}, &LoadError{Path: path, Kind: KindNotFile}
	}

	content, err := os.ReadFile(abs)
	if err != nil {
		return FileResult{}, &LoadError{Path: path, Kind: KindRead, Err: err}
	}

	format := FormatFor(abs)
	triples := 0
	if opts.Validate {
		n, err := turtle.Check(content, format)
		if err != nil {
			var se *turtle.SyntaxError
			if errors.As(err, &se) {
				se.File = filepath.Base(abs)
			}
			return FileResult{}, &LoadError{Path: path, Kind: KindSyntax, Err: err}
		}
		triples = n
	}

	res, err := l.store.Load(ctx, store.Document{
		Path:     abs,
		Content:  content,
		Format:   format,
		Prefixes: turtle.ExtractPrefixes(content),
		Triples:  triples,
	}, opts.Force)
	if err != nil {
		return FileResult{}, &LoadError{Path: path, Kind: KindBackend, Err: err}
	}

	l.logger.Info("Loaded RDF file",
		"path", abs,
		"triples", res.Entry.Triples,
		"skipped", res.Skipped)

	return FileResult{
		Path:    path,
		AbsPath: abs,
		Triples: res.Entry.Triples,
		Skipped: res.Skipped,
	}, nil
}

// LoadFiles loads files in order. Without ContinueOnError it stops at the
// first failure and returns that error alongside the partial outcome.
func (l *Loader) LoadFiles(ctx context.Context, paths []string, opts Options) (Outcome, error) {
	if len(paths) == 0 {
		return Outcome{}, ErrNoFiles
	}

	var outcome Outcome
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return outcome, err
		}
		res, err := l.LoadFile(ctx, p, opts)
		if err != nil {
			outcome.Failed = append(outcome.Failed, Failure{Path: p, Err: err})
			l.logger.Warn("Failed to load RDF file", "path", p, "error", err)
			if !opts.ContinueOnError {
				l.notifyLoaded(ctx, outcome)
				return outcome, err
			}
			continue
		}
		outcome.Successful = append(outcome.Successful, res)
	}

	l.notifyLoaded(ctx, outcome)
	return outcome, nil
}

// LoadDirectory loads every file under dir matching pattern. When recursive
// is set, a pattern without "**" is matched in all subdirectories. Failures
// never stop the walk.
func (l *Loader) LoadDirectory(ctx context.Context, dir, pattern string, recursive bool, opts Options) (Outcome, error) {
	abs, err := l.Resolve(dir)
	if err != nil {
		return Outcome{}, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return Outcome{}, &LoadError{Path: dir, Kind: KindNotFound, Err: err}
	}
	if !info.IsDir() {
		return Outcome{}, fmt.Errorf("not a directory: %s", dir)
	}

	files, err := Glob(abs, pattern, recursive)
	if err != nil {
		return Outcome{}, err
	}
	if len(files) == 0 {
		l.logger.Debug("No RDF files matched", "dir", abs, "pattern", pattern)
		return Outcome{}, nil
	}

	opts.ContinueOnError = true
	return l.LoadFiles(ctx, files, opts)
}

// LoadOntology loads "*.ttl" from each existing directory in order. Missing
// directories are skipped.
func (l *Loader) LoadOntology(ctx context.Context, dirs []string, opts Options) Outcome {
	var total Outcome
	for _, dir := range dirs {
		abs, err := l.Resolve(dir)
		if err != nil {
			continue
		}
		if info, err := os.Stat(abs); err != nil || !info.IsDir() {
			l.logger.Debug("Skipping missing ontology directory", "dir", abs)
			continue
		}
		outcome, err := l.LoadDirectory(ctx, dir, "*.ttl", false, opts)
		if err != nil {
			l.logger.Warn("Failed to load ontology directory", "dir", dir, "error", err)
			continue
		}
		total.merge(outcome)
	}
	return total
}

// Clear empties the store and the registry.
func (l *Loader) Clear(ctx context.Context) (int, error) {
	n, err := l.store.Clear(ctx)
	if err != nil {
		return 0, err
	}
	l.logger.Info("Cleared store", "files", n)
	if l.observer != nil {
		l.observer.StoreCleared(ctx, n)
	}
	return n, nil
}

// Stats summarizes the loaded state.
type Stats struct {
	LoadedFiles []string          `json:"loaded_files"`
	FileCount   int               `json:"file_count"`
	Namespaces  map[string]string `json:"namespaces"`
	Triples     int               `json:"total_triples"`
}

// Stats returns the loaded files, merged prefixes and backend triple count.
// A backend error leaves Triples at -1.
func (l *Loader) Stats(ctx context.Context) Stats {
	files := l.store.FilePaths()
	n, err := l.store.Count(ctx)
	if err != nil {
		n = -1
	}
	return Stats{
		LoadedFiles: files,
		FileCount:   len(files),
		Namespaces:  l.store.Prefixes(),
		Triples:     n,
	}
}

// ResolveURI expands a prefixed name against the merged prefixes.
func (l *Loader) ResolveURI(name string) (string, error) {
	return l.store.Resolve(name)
}

func (l *Loader) notifyLoaded(ctx context.Context, outcome Outcome) {
	if l.observer != nil && (len(outcome.Successful) > 0 || len(outcome.Failed) > 0) {
		l.observer.FilesLoaded(ctx, outcome)
	}
}

// FormatFor picks the parser from the file extension.
func FormatFor(path string) turtle.Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".nt":
		return turtle.FormatNTriples
	default:
		return turtle.FormatTurtle
	}
}

// Glob returns the sorted files under dir matching pattern.
func Glob(dir, pattern string, recursive bool) ([]string, error) {
	if pattern == "" {
		pattern = DefaultPattern
	}
	if recursive && !strings.Contains(pattern, "**") {
		pattern = "**/" + pattern
	}
	matches, err := doublestar.FilepathGlob(filepath.Join(dir, pattern))
	if err != nil {
		return nil, fmt.Errorf("glob %s: %w", pattern, err)
	}

	files := matches[:0]
	for _, m := range matches {
		if info, err := os.Stat(m); err == nil && info.Mode().IsRegular() {
			files = append(files, m)
		}
	}
	sort.Strings(files)
	return files, nil
}
