// Package store owns the RDF store that every other component reads and
// writes through. It pairs the backend engine with the loaded-file registry
// and the merged prefix table.
//
// Writes (load, insert, delete, clear) hold an exclusive lock. Reads (query,
// validate, count) share it. The lock orders operations issued through this
// process only; the backend's own transactions are not visible to it.
package store

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/zeebo/blake3"

	"github.com/c360studio/ontogate/rdfterm"
	"github.com/c360studio/ontogate/turtle"
)

// Backend is the triple store engine.
type Backend interface {
	Ping(ctx context.Context) error
	Insert(ctx context.Context, data []byte, contentType string) error
	Update(ctx context.Context, update string) error
	Clear(ctx context.Context) error
	Count(ctx context.Context) (int, error)
	Query(ctx context.Context, query, accept string, timeout time.Duration) ([]byte, error)
	Validate(ctx context.Context, shapes []byte, contentType string) ([]byte, error)
}

// Document is a parsed RDF file ready to load.
type Document struct {
	// Path is the absolute file path, used as the registry key.
	Path     string
	Content  []byte
	Format   turtle.Format
	Prefixes []turtle.Prefix
	// Triples is the statement count from the syntax check, or zero when
	// the check was skipped.
	Triples int
}

// LoadResult describes one Load call.
type LoadResult struct {
	Entry FileEntry `json:"entry"`
	// Skipped is true when the file was already loaded with the same digest.
	Skipped   bool             `json:"skipped"`
	Conflicts []PrefixConflict `json:"conflicts,omitempty"`
}

// Store is the single owned store object.
type Store struct {
	backend Backend
	logger  *slog.Logger
	now     func() time.Time

	mu       sync.RWMutex
	registry *Registry
	prefixes *PrefixTable
}

// New creates a store over backend. A nil logger uses slog.Default.
func New(backend Backend, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		backend:  backend,
		logger:   logger,
		now:      time.Now,
		registry: NewRegistry(),
		prefixes: NewPrefixTable(),
	}
}

// Digest returns the hex BLAKE3-256 digest of data.
func Digest(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Load forwards a document to the backend and records it in the registry.
// A file already registered with the same digest is not uploaded again
// unless force is set.
func (s *Store) Load(ctx context.Context, doc Document, force bool) (LoadResult, error) {
	if s.backend == nil {
		return LoadResult{}, ErrNotReady
	}
	digest := Digest(doc.Content)

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if prev, ok := s.registry.Get(doc.Path); ok && prev.Digest == digest && !force {
		entry, _ := s.registry.Touch(doc.Path, now)
		s.logger.Debug("File unchanged, skipping upload", "path", doc.Path, "digest", digest[:12])
		return LoadResult{Entry: entry, Skipped: true}, nil
	}

	if err := s.backend.Insert(ctx, doc.Content, doc.Format.MIMEType()); err != nil {
		return LoadResult{}, fmt.Errorf("insert %s: %w", doc.Path, err)
	}

	conflicts := s.prefixes.Merge(doc.Prefixes, doc.Path, now)
	for _, c := range conflicts {
		s.logger.Warn("Prefix rebound to a different namespace",
			"prefix", c.Prefix,
			"old", c.Old,
			"new", c.New,
			"file", doc.Path)
	}

	entry := s.registry.Record(doc.Path, digest, doc.Triples, doc.Prefixes, now)
	return LoadResult{Entry: entry, Conflicts: conflicts}, nil
}

// Insert adds statements that do not come from a registered file.
func (s *Store) Insert(ctx context.Context, data []byte, format turtle.Format, prefixes []turtle.Prefix) error {
	if s.backend == nil {
		return ErrNotReady
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.backend.Insert(ctx, data, format.MIMEType()); err != nil {
		return fmt.Errorf("insert triples: %w", err)
	}
	s.prefixes.Merge(prefixes, "request", s.now())
	return nil
}

// InsertTriples adds explicit statements.
func (s *Store) InsertTriples(ctx context.Context, triples []rdfterm.Triple) error {
	if len(triples) == 0 {
		return ErrNoTriples
	}
	if err := validateTriples(triples); err != nil {
		return err
	}
	return s.Insert(ctx, []byte(rdfterm.NTriples(triples)), turtle.FormatNTriples, nil)
}

// DeleteTriples removes explicit ground statements.
func (s *Store) DeleteTriples(ctx context.Context, triples []rdfterm.Triple) error {
	if s.backend == nil {
		return ErrNotReady
	}
	if len(triples) == 0 {
		return ErrNoTriples
	}
	for _, tr := range triples {
		if tr.Subject.IsBlank() || tr.Object.IsBlank() {
			return ErrBlankNodeDelete
		}
	}
	if err := validateTriples(triples); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	update := "DELETE DATA {\n" + rdfterm.NTriples(triples) + "}"
	if err := s.backend.Update(ctx, update); err != nil {
		return fmt.Errorf("delete triples: %w", err)
	}
	return nil
}

func validateTriples(triples []rdfterm.Triple) error {
	for i, tr := range triples {
		if err := tr.Validate(); err != nil {
			return fmt.Errorf("triple %d: %w", i, err)
		}
	}
	return nil
}

// Clear empties the backend, the registry and the prefix table. It returns
// the number of files that were registered.
func (s *Store) Clear(ctx context.Context) (int, error) {
	if s.backend == nil {
		return 0, ErrNotReady
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.backend.Clear(ctx); err != nil {
		return 0, fmt.Errorf("clear store: %w", err)
	}
	n := s.registry.Len()
	s.registry.Reset()
	s.prefixes.Reset()
	return n, nil
}

// Count returns the number of triples in the backend.
func (s *Store) Count(ctx context.Context) (int, error) {
	if s.backend == nil {
		return 0, ErrNotReady
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.backend.Count(ctx)
}

// Query runs a SPARQL query under the shared lock.
func (s *Store) Query(ctx context.Context, query, accept string, timeout time.Duration) ([]byte, error) {
	if s.backend == nil {
		return nil, ErrNotReady
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.backend.Query(ctx, query, accept, timeout)
}

// View runs fn under the shared lock so that several reads observe the
// same store state.
func (s *Store) View(fn func(Backend) error) error {
	if s.backend == nil {
		return ErrNotReady
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(s.backend)
}

// Ping checks the backend.
func (s *Store) Ping(ctx context.Context) error {
	if s.backend == nil {
		return ErrNotReady
	}
	return s.backend.Ping(ctx)
}

// Ready reports whether the store has a backend.
func (s *Store) Ready() bool { return s.backend != nil }

// Files returns the registered files in first-load order.
func (s *Store) Files() []FileEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.registry.Entries()
}

// File returns the registry entry for an absolute path.
func (s *Store) File(path string) (FileEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.registry.Get(path)
}

// FilePaths returns the registered paths in first-load order.
func (s *Store) FilePaths() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.registry.Paths()
}

// Prefixes returns a copy of the merged prefix bindings.
func (s *Store) Prefixes() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.prefixes.Map()
}

// PrefixList returns the merged prefixes in first-declared order.
func (s *Store) PrefixList() []turtle.Prefix {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.prefixes.List()
}

// PrefixConflicts returns every recorded prefix rebinding.
func (s *Store) PrefixConflicts() []PrefixConflict {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.prefixes.Conflicts()
}

// Resolve expands a prefixed name using the merged prefix table.
func (s *Store) Resolve(name string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.prefixes.Resolve(name)
}
