package store

import (
	"fmt"
	"strings"
	"time"

	"github.com/c360studio/ontogate/turtle"
)

// FileEntry records one loaded file.
type FileEntry struct {
	Path        string          `json:"path"`
	Digest      string          `json:"digest"`
	Triples     int             `json:"triples"`
	Prefixes    []turtle.Prefix `json:"prefixes,omitempty"`
	FirstLoaded time.Time       `json:"first_loaded"`
	LastLoaded  time.Time       `json:"last_loaded"`
	LoadCount   int             `json:"load_count"`
}

// Registry is the loaded-file registry, keyed by absolute path and kept in
// first-load order. It is not safe for concurrent use; Store guards it.
type Registry struct {
	entries map[string]*FileEntry
	order   []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*FileEntry)}
}

// Get returns a copy of the entry for path.
func (r *Registry) Get(path string) (FileEntry, bool) {
	e, ok := r.entries[path]
	if !ok {
		return FileEntry{}, false
	}
	return *e, true
}

// Record adds or refreshes the entry for path.
func (r *Registry) Record(path, digest string, triples int, prefixes []turtle.Prefix, at time.Time) FileEntry {
	e, ok := r.entries[path]
	if !ok {
		e = &FileEntry{Path: path, FirstLoaded: at}
		r.entries[path] = e
		r.order = append(r.order, path)
	}
	e.Digest = digest
	e.Triples = triples
	e.Prefixes = prefixes
	e.LastLoaded = at
	e.LoadCount++
	return *e
}

// Touch bumps the load time and count of an existing entry.
func (r *Registry) Touch(path string, at time.Time) (FileEntry, bool) {
	e, ok := r.entries[path]
	if !ok {
		return FileEntry{}, false
	}
	e.LastLoaded = at
	e.LoadCount++
	return *e, true
}

// Entries returns copies of all entries in first-load order.
func (r *Registry) Entries() []FileEntry {
	out := make([]FileEntry, 0, len(r.order))
	for _, p := range r.order {
		out = append(out, *r.entries[p])
	}
	return out
}

// Paths returns the registered paths in first-load order.
func (r *Registry) Paths() []string {
	return append([]string(nil), r.order...)
}

// Len returns the number of registered files.
func (r *Registry) Len() int { return len(r.order) }

// Reset empties the registry.
func (r *Registry) Reset() {
	r.entries = make(map[string]*FileEntry)
	r.order = nil
}

// PrefixConflict records a prefix rebound to a different namespace.
type PrefixConflict struct {
	Prefix string    `json:"prefix"`
	Old    string    `json:"old"`
	New    string    `json:"new"`
	Source string    `json:"source"`
	At     time.Time `json:"at"`
}

// PrefixTable merges namespace prefixes across loaded documents. The last
// binding wins; rebinding to a different namespace is recorded as a conflict.
type PrefixTable struct {
	bindings  map[string]string
	order     []string
	conflicts []PrefixConflict
}

// NewPrefixTable creates an empty table.
func NewPrefixTable() *PrefixTable {
	return &PrefixTable{bindings: make(map[string]string)}
}

// Merge binds each prefix and returns the conflicts it introduced.
func (t *PrefixTable) Merge(prefixes []turtle.Prefix, source string, at time.Time) []PrefixConflict {
	var introduced []PrefixConflict
	for _, p := range prefixes {
		old, ok := t.bindings[p.Name]
		if !ok {
			t.order = append(t.order, p.Name)
		} else if old != p.IRI {
			c := PrefixConflict{Prefix: p.Name, Old: old, New: p.IRI, Source: source, At: at}
			t.conflicts = append(t.conflicts, c)
			introduced = append(introduced, c)
		}
		t.bindings[p.Name] = p.IRI
	}
	return introduced
}

// Map returns a copy of the current bindings.
func (t *PrefixTable) Map() map[string]string {
	out := make(map[string]string, len(t.bindings))
	for k, v := range t.bindings {
		out[k] = v
	}
	return out
}

// List returns the bindings in first-declared order.
func (t *PrefixTable) List() []turtle.Prefix {
	out := make([]turtle.Prefix, 0, len(t.order))
	for _, name := range t.order {
		out = append(out, turtle.Prefix{Name: name, IRI: t.bindings[name]})
	}
	return out
}

// Conflicts returns all recorded conflicts.
func (t *PrefixTable) Conflicts() []PrefixConflict {
	return append([]PrefixConflict(nil), t.conflicts...)
}

// Len returns the number of bound prefixes.
func (t *PrefixTable) Len() int { return len(t.order) }

// Reset empties the table.
func (t *PrefixTable) Reset() {
	t.bindings = make(map[string]string)
	t.order = nil
	t.conflicts = nil
}

// Resolve expands "prefix:local" to a full IRI. Absolute IRIs (containing
// "://"), "<iri>" forms, "_:label" blank nodes and strings without a colon
// are returned unchanged.
func (t *PrefixTable) Resolve(name string) (string, error) {
	if strings.HasPrefix(name, "_:") {
		return name, nil
	}
	if strings.HasPrefix(name, "<") && strings.HasSuffix(name, ">") {
		return name[1 : len(name)-1], nil
	}
	if strings.Contains(name, "://") || strings.HasPrefix(name, "urn:") {
		return name, nil
	}
	prefix, local, ok := strings.Cut(name, ":")
	if !ok {
		return name, nil
	}
	ns, bound := t.bindings[prefix]
	if !bound {
		return "", fmt.Errorf("%w: %q", ErrUndefinedPrefix, prefix)
	}
	return ns + local, nil
}
