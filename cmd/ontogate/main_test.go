package main

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/ontogate/config"
	"github.com/c360studio/ontogate/fuseki/fusekitest"
	"github.com/c360studio/ontogate/gateway"
	"github.com/c360studio/ontogate/rdfterm"
)

const ontologyTTL = `@prefix owl: <http://www.w3.org/2002/07/owl#> .
@prefix ex: <http://e/> .

ex:Person a owl:Class .
ex:Place a owl:Class .
`

func testConfig(t *testing.T, srv *fusekitest.Server) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Fuseki.URL = srv.URL
	cfg.Fuseki.Timeout = 5 * time.Second
	cfg.Loader.BaseDir = t.TempDir()
	cfg.Startup.WaitTimeout = 2 * time.Second
	cfg.Startup.PollInterval = 50 * time.Millisecond
	return cfg
}

func quietLogger() *slog.Logger {
	return newLogger(&bytes.Buffer{}, "error", "text")
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "warn", "json")
	logger.Info("hidden")
	logger.Warn("shown", "k", "v")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"msg":"shown"`)
}

func TestApp_BootAndGateway(t *testing.T) {
	srv := fusekitest.NewServer(t, "ontology")
	cfg := testConfig(t, srv)
	require.NoError(t, os.MkdirAll(filepath.Join(cfg.Loader.BaseDir, "ontology"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(cfg.Loader.BaseDir, "ontology", "core.ttl"), []byte(ontologyTTL), 0644))

	app := NewApp(cfg, quietLogger())
	defer app.Close()

	sum := app.Boot(context.Background())
	assert.True(t, sum.BackendReady)
	assert.Equal(t, []string{"ontology/core.ttl"}, sum.Loaded)
	assert.Contains(t, sum.Skipped, "ontology/extensions.ttl")
	assert.Equal(t, 2, srv.Len())

	ts := httptest.NewServer(app.Gateway(gateway.NewMetrics()).Handler())
	defer ts.Close()

	p := &prober{api: ts.URL, client: ts.Client()}
	ctx := context.Background()

	msg, err := p.health(ctx)
	require.NoError(t, err)
	assert.Contains(t, msg, "1 files")

	_, err = p.sparqlFormat(ctx)
	assert.NoError(t, err)

	msg, err = p.cors(ctx)
	require.NoError(t, err)
	assert.Equal(t, "allows origin *", msg)
}

func TestProber_OWLClasses(t *testing.T) {
	srv := fusekitest.NewServer(t, "ontology")
	srv.Add(rdfterm.Triple{
		Subject:   rdfterm.IRI("http://e/Person"),
		Predicate: rdfterm.IRI("http://www.w3.org/1999/02/22-rdf-syntax-ns#type"),
		Object:    rdfterm.IRI("http://www.w3.org/2002/07/owl#Class"),
	})
	app := NewApp(testConfig(t, srv), quietLogger())
	ts := httptest.NewServer(app.Gateway(nil).Handler())
	defer ts.Close()

	p := &prober{api: ts.URL, client: ts.Client()}
	msg, err := p.owlClasses(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "1 classes", msg)
}

func TestProber_Unreachable(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer ts.Close()

	p := &prober{api: ts.URL, client: ts.Client()}
	_, err := p.health(context.Background())
	assert.Error(t, err)
	_, err = p.reachable(context.Background(), ts.URL)
	assert.ErrorContains(t, err, "502")
}

func TestReadQuery(t *testing.T) {
	q, err := readQuery([]string{"ASK {}"}, "", nil)
	require.NoError(t, err)
	assert.Equal(t, "ASK {}", q)

	q, err = readQuery(nil, "-", strings.NewReader("SELECT * WHERE {}"))
	require.NoError(t, err)
	assert.Equal(t, "SELECT * WHERE {}", q)

	path := filepath.Join(t.TempDir(), "q.rq")
	require.NoError(t, os.WriteFile(path, []byte("DESCRIBE <http://e/a>"), 0644))
	q, err = readQuery(nil, path, nil)
	require.NoError(t, err)
	assert.Equal(t, "DESCRIBE <http://e/a>", q)

	_, err = readQuery(nil, "", nil)
	assert.Error(t, err)
}

func TestRootCmd_Subcommands(t *testing.T) {
	cmd := rootCmd()
	names := make([]string, 0)
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"serve", "load", "query", "validate", "status", "version"} {
		assert.Contains(t, names, want)
	}
	assert.NotNil(t, cmd.PersistentFlags().Lookup("log-level"))
	assert.NotNil(t, cmd.Flags().Lookup("watch"))
}
