package loader_test

import (
	"context"
	"errors"
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
)

const validTTL = `@prefix ex: <http://example.org/> .
ex:alice ex:knows ex:bob .
ex:bob ex:name "Bob" .
`

type recordingObserver struct {
	loads  []loader.Outcome
	clears []int
}

func (r *recordingObserver) FilesLoaded(_ context.Context, o loader.Outcome) { r.loads = append(r.loads, o) }
func (r *recordingObserver) StoreCleared(_ context.Context, n int)           { r.clears = append(r.clears, n) }

func setupLoader(t *testing.T, cfg loader.Config) (*loader.Loader, *fusekitest.Server, string) {
	t.Helper()
	srv := fusekitest.NewServer(t, "ontology")
	client := fuseki.NewClient(fuseki.Config{URL: srv.URL, Dataset: "ontology", Timeout: 5 * time.Second}, nil)
	dir := t.TempDir()
	if cfg.BaseDir == "" {
		cfg.BaseDir = dir
	}
	return loader.New(store.New(client, nil), cfg, nil), srv, dir
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadFile(t *testing.T) {
	l, srv, dir := setupLoader(t, loader.Config{})
	writeFile(t, dir, "core.ttl", validTTL)

	res, err := l.LoadFile(context.Background(), "core.ttl", loader.DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Triples)
	assert.Equal(t, filepath.Join(dir, "core.ttl"), res.AbsPath)
	assert.Equal(t, 2, srv.Len())
	assert.Equal(t, "http://example.org/", l.Store().Prefixes()["ex"])
}

func TestLoadFile_Errors(t *testing.T) {
	l, srv, dir := setupLoader(t, loader.Config{RestrictToBase: true})
	writeFile(t, dir, "bad.ttl", "@prefix ex: <http://example.org/> .\nex:a ex:b .\n")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0755))

	tests := []struct {
		name string
		path string
		kind loader.ErrKind
	}{
		{"missing", "missing.ttl", loader.KindNotFound},
		{"directory", "sub", loader.KindNotFile},
		{"syntax", "bad.ttl", loader.KindSyntax},
		{"escape", "../outside.ttl", loader.KindOutsideRoot},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := l.LoadFile(context.Background(), tt.path, loader.DefaultOptions())
			var le *loader.LoadError
			require.True(t, errors.As(err, &le), "got %v", err)
			assert.Equal(t, tt.kind, le.Kind)
		})
	}
	assert.Zero(t, srv.Len())
}

func TestLoadFile_TwiceLeavesStoreUnchanged(t *testing.T) {
	l, srv, dir := setupLoader(t, loader.Config{})
	writeFile(t, dir, "core.ttl", validTTL)
	ctx := context.Background()

	_, err := l.LoadFile(ctx, "core.ttl", loader.DefaultOptions())
	require.NoError(t, err)
	before := srv.Triples()

	res, err := l.LoadFile(ctx, "core.ttl", loader.DefaultOptions())
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.Equal(t, before, srv.Triples())
	assert.Len(t, l.Store().Files(), 1)
}

func TestLoadFiles_FailFast(t *testing.T) {
	l, srv, dir := setupLoader(t, loader.Config{})
	writeFile(t, dir, "a.ttl", validTTL)
	writeFile(t, dir, "c.ttl", "@prefix ex: <http://example.org/> .\nex:c ex:d ex:e .\n")

	outcome, err := l.LoadFiles(context.Background(), []string{"a.ttl", "missing.ttl", "c.ttl"}, loader.DefaultOptions())
	require.Error(t, err)
	assert.Equal(t, []string{"a.ttl"}, outcome.SuccessfulPaths())
	assert.Equal(t, []string{"missing.ttl"}, outcome.FailedPaths())
	assert.Equal(t, 2, srv.Len())
}

func TestLoadFiles_ContinueOnError(t *testing.T) {
	l, _, dir := setupLoader(t, loader.Config{})
	writeFile(t, dir, "a.ttl", validTTL)
	obs := &recordingObserver{}
	l.SetObserver(obs)

	opts := loader.DefaultOptions()
	opts.ContinueOnError = true
	outcome, err := l.LoadFiles(context.Background(), []string{"a.ttl", "missing.ttl"}, opts)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.ttl"}, outcome.SuccessfulPaths())
	assert.Equal(t, []string{"missing.ttl"}, outcome.FailedPaths())
	assert.Contains(t, outcome.Errors()["missing.ttl"], "file not found")
	require.Len(t, obs.loads, 1)
}

func TestLoadFiles_Empty(t *testing.T) {
	l, _, _ := setupLoader(t, loader.Config{})
	_, err := l.LoadFiles(context.Background(), nil, loader.DefaultOptions())
	assert.ErrorIs(t, err, loader.ErrNoFiles)
}

func TestLoadDirectory(t *testing.T) {
	l, _, dir := setupLoader(t, loader.Config{})
	writeFile(t, dir, "onto/b.ttl", validTTL)
	writeFile(t, dir, "onto/a.ttl", "@prefix ex: <http://example.org/> .\nex:x ex:y ex:z .\n")
	writeFile(t, dir, "onto/nested/c.ttl", "@prefix ex: <http://example.org/> .\nex:n ex:m ex:o .\n")
	writeFile(t, dir, "onto/broken.ttl", "not turtle at all {")
	writeFile(t, dir, "onto/readme.md", "# notes")

	outcome, err := l.LoadDirectory(context.Background(), "onto", "*.ttl", false, loader.DefaultOptions())
	require.NoError(t, err)
	assert.Len(t, outcome.Successful, 2)
	assert.Len(t, outcome.Failed, 1)
	assert.Equal(t, filepath.Join(dir, "onto", "a.ttl"), outcome.Successful[0].Path)

	outcome, err = l.LoadDirectory(context.Background(), "onto", "*.ttl", true, loader.DefaultOptions())
	require.NoError(t, err)
	assert.Len(t, outcome.Successful, 3)
}

func TestLoadOntology_SkipsMissingDirs(t *testing.T) {
	l, _, dir := setupLoader(t, loader.Config{})
	writeFile(t, dir, "ontology/core.ttl", validTTL)

	outcome := l.LoadOntology(context.Background(), []string{"ontology", "validation", "data"}, loader.DefaultOptions())
	assert.Len(t, outcome.Successful, 1)
	assert.Empty(t, outcome.Failed)
	assert.Equal(t, 2, outcome.Triples())
}

func TestClear(t *testing.T) {
	l, srv, dir := setupLoader(t, loader.Config{})
	writeFile(t, dir, "core.ttl", validTTL)
	obs := &recordingObserver{}
	l.SetObserver(obs)

	_, err := l.LoadFile(context.Background(), "core.ttl", loader.DefaultOptions())
	require.NoError(t, err)

	n, err := l.Clear(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Zero(t, srv.Len())
	assert.Equal(t, []int{1}, obs.clears)

	stats := l.Stats(context.Background())
	assert.Zero(t, stats.FileCount)
	assert.Zero(t, stats.Triples)
}

func TestFormatFor(t *testing.T) {
	assert.Equal(t, "ntriples", string(loader.FormatFor("x.NT")))
	assert.Equal(t, "turtle", string(loader.FormatFor("x.ttl")))
}
