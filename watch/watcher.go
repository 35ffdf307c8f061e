// Package watch reloads RDF files into the store when they change on disk.
package watch

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/c360studio/ontogate/store"
)

const (
	// eventChannelBuffer is the size of the watch event channel.
	eventChannelBuffer = 500
)

// Config configures file watching.
type Config struct {
	// Enabled controls whether file watching is active.
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Dirs lists the directories to watch recursively.
	Dirs []string `yaml:"dirs" json:"dirs"`

	// DebounceDelay is how long to wait for more changes before processing.
	DebounceDelay string `yaml:"debounce_delay" json:"debounce_delay"`

	// FileExtensions lists file extensions to watch.
	FileExtensions []string `yaml:"file_extensions" json:"file_extensions"`

	// ExcludeDirs lists directory names to skip.
	ExcludeDirs []string `yaml:"exclude_dirs" json:"exclude_dirs"`
}

// DefaultConfig returns the default watch configuration.
func DefaultConfig() Config {
	return Config{
		Enabled:        false,
		Dirs:           []string{"ontology", "data"},
		DebounceDelay:  "500ms",
		FileExtensions: []string{".ttl", ".nt"},
		ExcludeDirs:    []string{".git", "node_modules"},
	}
}

// GetDebounceDelay returns the debounce delay as a duration.
func (c *Config) GetDebounceDelay() time.Duration {
	if c.DebounceDelay == "" {
		return 500 * time.Millisecond
	}
	d, err := time.ParseDuration(c.DebounceDelay)
	if err != nil || d <= 0 {
		return 500 * time.Millisecond
	}
	return d
}

// Operation indicates the type of file change.
type Operation string

// OpCreate, OpModify, and OpDelete enumerate the change types.
const (
	OpCreate Operation = "create"
	OpModify Operation = "modify"
	OpDelete Operation = "delete"
)

// Event is a debounced RDF file change.
type Event struct {
	// Path is the absolute file path.
	Path      string
	Operation Operation
}

// Watcher watches directories for RDF file changes and emits debounced
// events. Files whose content digest is unchanged produce no event.
type Watcher struct {
	config     Config
	watcher    *fsnotify.Watcher
	logger     *slog.Logger
	extensions map[string]bool
	excludes   map[string]bool

	pendingMu sync.Mutex
	pending   map[string]fsnotify.Op

	hashMu sync.RWMutex
	hashes map[string]string

	events chan Event

	droppedEvents atomic.Int64
}

// NewWatcher creates a watcher. Call Start to begin watching.
func NewWatcher(config Config, logger *slog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	extensions := make(map[string]bool)
	exts := config.FileExtensions
	if len(exts) == 0 {
		exts = DefaultConfig().FileExtensions
	}
	for _, ext := range exts {
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		extensions[strings.ToLower(ext)] = true
	}

	excludes := make(map[string]bool)
	for _, dir := range config.ExcludeDirs {
		excludes[dir] = true
	}

	return &Watcher{
		config:     config,
		watcher:    fsw,
		logger:     logger,
		extensions: extensions,
		excludes:   excludes,
		pending:    make(map[string]fsnotify.Op),
		hashes:     make(map[string]string),
		events:     make(chan Event, eventChannelBuffer),
	}, nil
}

// Events returns the channel of watch events. It is closed when the
// watcher stops.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Start adds recursive watches for every configured directory and begins
// processing. Missing directories are skipped with a warning.
func (w *Watcher) Start(ctx context.Context) error {
	for _, dir := range w.config.Dirs {
		abs, err := filepath.Abs(dir)
		if err != nil {
			return err
		}
		if info, err := os.Stat(abs); err != nil || !info.IsDir() {
			w.logger.Warn("Watch directory not found, skipping", "dir", abs)
			continue
		}
		if err := w.addWatchesRecursive(abs); err != nil {
			return err
		}
	}

	go w.processEvents(ctx)

	w.logger.Info("File watcher started",
		"dirs", w.config.Dirs,
		"debounce", w.config.GetDebounceDelay())
	return nil
}

// Stop stops the watcher. The events channel is closed by processEvents
// when it exits.
func (w *Watcher) Stop() error {
	return w.watcher.Close()
}

// SetHash records the content digest of a file, typically after an
// initial load.
func (w *Watcher) SetHash(path, hash string) {
	w.hashMu.Lock()
	defer w.hashMu.Unlock()
	w.hashes[path] = hash
}

// GetHash returns the recorded digest for a file.
func (w *Watcher) GetHash(path string) (string, bool) {
	w.hashMu.RLock()
	defer w.hashMu.RUnlock()
	hash, ok := w.hashes[path]
	return hash, ok
}

// DroppedEvents returns the number of events dropped due to channel overflow.
func (w *Watcher) DroppedEvents() int64 {
	return w.droppedEvents.Load()
}

func (w *Watcher) addWatchesRecursive(root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return nil
		}
		base := filepath.Base(path)
		if path != root && (w.excludes[base] || strings.HasPrefix(base, ".")) {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			w.logger.Warn("Failed to watch directory", "path", path, "error", err)
		} else {
			w.logger.Debug("Watching directory", "path", path)
		}
		return nil
	})
}

func (w *Watcher) processEvents(ctx context.Context) {
	defer close(w.events)
	ticker := time.NewTicker(w.config.GetDebounceDelay())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleFSEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("Watcher error", "error", err)

		case <-ticker.C:
			w.flushPending(ctx)
		}
	}
}

func (w *Watcher) handleFSEvent(event fsnotify.Event) {
	path := event.Name

	if !w.extensions[strings.ToLower(filepath.Ext(path))] {
		if event.Has(fsnotify.Create) {
			if info, err := os.Stat(path); err == nil && info.IsDir() {
				w.handleNewDirectory(path)
			}
		}
		return
	}

	w.pendingMu.Lock()
	w.pending[path] |= event.Op
	w.pendingMu.Unlock()

	w.logger.Debug("RDF file change detected", "path", path, "op", event.Op.String())
}

func (w *Watcher) handleNewDirectory(path string) {
	base := filepath.Base(path)
	if w.excludes[base] || strings.HasPrefix(base, ".") {
		return
	}
	if err := w.addWatchesRecursive(path); err != nil {
		w.logger.Warn("Failed to watch new directory", "path", path, "error", err)
	}
}

func (w *Watcher) flushPending(ctx context.Context) {
	w.pendingMu.Lock()
	if len(w.pending) == 0 {
		w.pendingMu.Unlock()
		return
	}
	toProcess := w.pending
	w.pending = make(map[string]fsnotify.Op)
	w.pendingMu.Unlock()

	for path, op := range toProcess {
		if ctx.Err() != nil {
			return
		}

		content, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				w.hashMu.Lock()
				_, known := w.hashes[path]
				delete(w.hashes, path)
				w.hashMu.Unlock()
				if known || op.Has(fsnotify.Remove) || op.Has(fsnotify.Rename) {
					w.sendEvent(Event{Path: path, Operation: OpDelete})
				}
				continue
			}
			w.logger.Warn("Failed to read file for hash check", "path", path, "error", err)
			continue
		}

		newHash := store.Digest(content)
		oldHash, hadHash := w.GetHash(path)
		if hadHash && oldHash == newHash {
			continue
		}
		w.SetHash(path, newHash)

		if hadHash {
			w.sendEvent(Event{Path: path, Operation: OpModify})
		} else {
			w.sendEvent(Event{Path: path, Operation: OpCreate})
		}
	}
}

func (w *Watcher) sendEvent(event Event) {
	select {
	case w.events <- event:
		w.logger.Debug("Sent watch event", "path", event.Path, "op", event.Operation)
	default:
		dropped := w.droppedEvents.Add(1)
		w.logger.Warn("Event channel full, dropping event",
			"path", event.Path,
			"total_dropped", dropped)
	}
}
