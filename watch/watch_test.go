package watch_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/ontogate/fuseki"
	"github.com/c360studio/ontogate/fuseki/fusekitest"
	"github.com/c360studio/ontogate/loader"
	"github.com/c360studio/ontogate/store"
	"github.com/c360studio/ontogate/watch"
)

const (
	coreTTL = `@prefix ex: <http://example.org/> .
ex:alice ex:knows ex:bob .
`
	coreTTLv2 = `@prefix ex: <http://example.org/> .
ex:alice ex:knows ex:carol .
ex:carol ex:name "Carol" .
`
	extraTTL = `@prefix ex: <http://example.org/> .
ex:dave ex:knows ex:erin .
`
)

func TestConfig_GetDebounceDelay(t *testing.T) {
	tests := []struct {
		name   string
		delay  string
		expect time.Duration
	}{
		{"valid duration", "100ms", 100 * time.Millisecond},
		{"empty string uses default", "", 500 * time.Millisecond},
		{"invalid duration uses default", "soon", 500 * time.Millisecond},
		{"negative uses default", "-1s", 500 * time.Millisecond},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := watch.Config{DebounceDelay: tt.delay}
			assert.Equal(t, tt.expect, cfg.GetDebounceDelay())
		})
	}
}

// waitFor returns the first event with operation op, skipping others.
// Editors and os.WriteFile may produce several raw events per write.
func waitFor(t *testing.T, ch <-chan watch.Event, op watch.Operation) watch.Event {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			require.True(t, ok, "events channel closed")
			if ev.Operation == op {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s event", op)
			return watch.Event{}
		}
	}
}

func TestWatcher_Events(t *testing.T) {
	dir := t.TempDir()
	w, err := watch.NewWatcher(watch.Config{
		Dirs:          []string{dir},
		DebounceDelay: "50ms",
	}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	path := filepath.Join(dir, "core.ttl")
	require.NoError(t, os.WriteFile(path, []byte(coreTTL), 0644))
	ev := waitFor(t, w.Events(), watch.OpCreate)
	assert.Equal(t, path, ev.Path)

	require.NoError(t, os.WriteFile(path, []byte(coreTTLv2), 0644))
	ev = waitFor(t, w.Events(), watch.OpModify)
	assert.Equal(t, path, ev.Path)

	// Files with other extensions are ignored.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.md"), []byte("x"), 0644))

	require.NoError(t, os.Remove(path))
	ev = waitFor(t, w.Events(), watch.OpDelete)
	assert.Equal(t, path, ev.Path)
}

func TestWatcher_UnchangedContentIsSilent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "core.ttl")
	require.NoError(t, os.WriteFile(path, []byte(coreTTL), 0644))

	w, err := watch.NewWatcher(watch.Config{Dirs: []string{dir}, DebounceDelay: "50ms"}, nil)
	require.NoError(t, err)
	w.SetHash(path, store.Digest([]byte(coreTTL)))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	require.NoError(t, os.WriteFile(path, []byte(coreTTL), 0644))
	select {
	case ev := <-w.Events():
		t.Fatalf("unexpected event %+v", ev)
	case <-time.After(300 * time.Millisecond):
	}
}

func setupReloader(t *testing.T) (*watch.Reloader, *loader.Loader, *fusekitest.Server, string) {
	t.Helper()
	srv := fusekitest.NewServer(t, "ontology")
	client := fuseki.NewClient(fuseki.Config{URL: srv.URL, Dataset: "ontology", Timeout: 5 * time.Second}, nil)
	dir := t.TempDir()
	l := loader.New(store.New(client, nil), loader.Config{BaseDir: dir}, nil)
	return watch.NewReloader(l, nil), l, srv, dir
}

func TestReloader_Handle(t *testing.T) {
	r, l, srv, dir := setupReloader(t)
	ctx := context.Background()

	core := filepath.Join(dir, "core.ttl")
	extra := filepath.Join(dir, "extra.ttl")
	require.NoError(t, os.WriteFile(core, []byte(coreTTL), 0644))
	require.NoError(t, os.WriteFile(extra, []byte(extraTTL), 0644))

	require.NoError(t, r.Handle(ctx, watch.Event{Path: core, Operation: watch.OpCreate}))
	require.NoError(t, r.Handle(ctx, watch.Event{Path: extra, Operation: watch.OpCreate}))
	assert.Equal(t, 2, srv.Len())
	assert.Len(t, l.Store().FilePaths(), 2)

	// A modified file replaces its old triples.
	require.NoError(t, os.WriteFile(core, []byte(coreTTLv2), 0644))
	require.NoError(t, r.Handle(ctx, watch.Event{Path: core, Operation: watch.OpModify}))
	assert.Equal(t, 3, srv.Len())
	assert.Len(t, l.Store().FilePaths(), 2)

	// A removed file drops out of the store.
	require.NoError(t, os.Remove(extra))
	require.NoError(t, r.Handle(ctx, watch.Event{Path: extra, Operation: watch.OpDelete}))
	assert.Equal(t, 2, srv.Len())
	assert.Equal(t, []string{core}, l.Store().FilePaths())

	// Removing an unknown file is a no-op.
	require.NoError(t, r.Handle(ctx, watch.Event{Path: filepath.Join(dir, "gone.ttl"), Operation: watch.OpDelete}))
	assert.Equal(t, int64(4), r.Reloads())
}

func TestReloader_Seed(t *testing.T) {
	r, l, _, dir := setupReloader(t)
	core := filepath.Join(dir, "core.ttl")
	require.NoError(t, os.WriteFile(core, []byte(coreTTL), 0644))
	_, err := l.LoadFile(context.Background(), core, loader.DefaultOptions())
	require.NoError(t, err)

	w, err := watch.NewWatcher(watch.DefaultConfig(), nil)
	require.NoError(t, err)
	defer w.Stop()

	r.Seed(w)
	hash, ok := w.GetHash(core)
	require.True(t, ok)
	assert.Equal(t, store.Digest([]byte(coreTTL)), hash)
}
