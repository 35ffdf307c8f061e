package fuseki_test

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/ontogate/fuseki"
	"github.com/c360studio/ontogate/fuseki/fusekitest"
)

const sampleData = `@prefix ex: <http://example.org/> .
ex:alice ex:knows ex:bob .
ex:bob ex:name "Bob" .
`

func newClient(srv *fusekitest.Server) *fuseki.Client {
	return fuseki.NewClient(fuseki.Config{
		URL:     srv.URL,
		Dataset: "ontology",
		Timeout: 5 * time.Second,
	}, nil)
}

func TestClient_PingInsertCount(t *testing.T) {
	srv := fusekitest.NewServer(t, "ontology")
	c := newClient(srv)
	ctx := context.Background()

	require.NoError(t, c.Ping(ctx))
	require.NoError(t, c.Insert(ctx, []byte(sampleData), fuseki.MediaTurtle))

	n, err := c.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, srv.Len())

	require.NoError(t, c.Clear(ctx))
	n, err = c.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestClient_UpdateInsertDeleteData(t *testing.T) {
	srv := fusekitest.NewServer(t, "ontology")
	c := newClient(srv)
	ctx := context.Background()

	require.NoError(t, c.Update(ctx, "INSERT DATA {\n<http://e/s> <http://e/p> \"o\" .\n}"))
	assert.Equal(t, 1, srv.Len())

	require.NoError(t, c.Update(ctx, "DELETE DATA {\n<http://e/s> <http://e/p> \"o\" .\n}"))
	assert.Zero(t, srv.Len())
}

func TestClient_QueryStatusError(t *testing.T) {
	srv := fusekitest.NewServer(t, "ontology")
	srv.SetQueryHandler(func(string) fusekitest.Response {
		return fusekitest.Response{Status: http.StatusBadRequest, Body: "Parse error: line 1, column 8"}
	})
	c := newClient(srv)

	_, err := c.Query(context.Background(), "SELECT", fuseki.MediaSPARQLJSON, time.Second)
	require.Error(t, err)

	var se *fuseki.StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusBadRequest, se.StatusCode)
	assert.True(t, se.IsClientError())
	assert.False(t, se.IsTimeout())
	assert.Contains(t, se.Body, "line 1, column 8")

	// An HTTP answer is not a transport failure.
	assert.True(t, c.Health().Available)
}

func TestClient_QueryPassesTimeout(t *testing.T) {
	srv := fusekitest.NewServer(t, "ontology")
	c := newClient(srv)

	body, err := c.Query(context.Background(), "ASK { ?s ?p ?o }", fuseki.MediaSPARQLJSON, 1500*time.Millisecond)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), `"boolean":false`))
	assert.Equal(t, []string{"ASK { ?s ?p ?o }"}, srv.Queries())
}

func TestClient_ResponseTooLarge(t *testing.T) {
	srv := fusekitest.NewServer(t, "ontology")
	body := `{"head":{"vars":["s"]},"results":{"bindings":[]}}`
	srv.SetQueryHandler(func(string) fusekitest.Response {
		return fusekitest.Response{ContentType: fuseki.MediaSPARQLJSON, Body: body}
	})

	exact := fuseki.NewClient(fuseki.Config{URL: srv.URL, Dataset: "ontology", MaxResponseSize: int64(len(body))}, nil)
	got, err := exact.Query(context.Background(), "SELECT ?s WHERE { ?s ?p ?o }", fuseki.MediaSPARQLJSON, 0)
	require.NoError(t, err)
	assert.Equal(t, body, string(got))

	small := fuseki.NewClient(fuseki.Config{URL: srv.URL, Dataset: "ontology", MaxResponseSize: int64(len(body)) - 1}, nil)
	_, err = small.Query(context.Background(), "SELECT ?s WHERE { ?s ?p ?o }", fuseki.MediaSPARQLJSON, 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, fuseki.ErrResponseTooLarge)
	assert.Len(t, srv.Queries(), 2)
}

func TestClient_Validate(t *testing.T) {
	srv := fusekitest.NewServer(t, "ontology")
	c := newClient(srv)

	report, err := c.Validate(context.Background(), []byte("<http://e/s> <http://e/p> <http://e/o> ."), fuseki.MediaNTriples)
	require.NoError(t, err)
	assert.Contains(t, string(report), "sh:ValidationReport")
	assert.Equal(t, 1, srv.Calls("shacl"))
	assert.NotEmpty(t, srv.LastShapes())
}

func TestClient_UnreachableMarksFailure(t *testing.T) {
	c := fuseki.NewClient(fuseki.Config{
		URL:     "http://127.0.0.1:1",
		Dataset: "ontology",
		Timeout: 200 * time.Millisecond,
		Health:  fuseki.HealthConfig{FailureThreshold: 1, RecoveryTimeout: time.Hour},
	}, nil)

	err := c.Insert(context.Background(), []byte(sampleData), fuseki.MediaTurtle)
	require.Error(t, err)

	h := c.Health()
	assert.False(t, h.Available)
	assert.True(t, h.CircuitOpen)

	err = c.Insert(context.Background(), []byte(sampleData), fuseki.MediaTurtle)
	assert.ErrorIs(t, err, fuseki.ErrCircuitOpen)
}
