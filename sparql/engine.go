// Package sparql wraps SPARQL query execution against the store: it detects
// the query form, pre-checks syntax, picks the execution timeout and
// reshapes engine results into the supported output formats.
package sparql

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/c360studio/ontogate/fuseki"
	"github.com/c360studio/ontogate/rdfterm"
	"github.com/c360studio/ontogate/store"
)

// timeoutGrace lets the engine report its own timeout before the client
// gives up on the connection.
const timeoutGrace = 2 * time.Second

// Request is one query execution request.
type Request struct {
	Query string
	// Timeout overrides the policy when positive.
	Timeout time.Duration
	// Bindings are substituted into the query before execution.
	Bindings map[string]string
}

// Stats are cumulative query statistics.
type Stats struct {
	TotalQueries   int64         `json:"total_queries"`
	FailedQueries  int64         `json:"failed_queries"`
	TotalTime      time.Duration `json:"total_time"`
	AverageTime    time.Duration `json:"average_time"`
	DefaultTimeout time.Duration `json:"default_timeout"`
}

// Engine executes SPARQL queries through the store.
type Engine struct {
	store  *store.Store
	policy TimeoutPolicy
	logger *slog.Logger

	mu    sync.Mutex
	stats Stats
}

// NewEngine creates an engine. A nil logger uses slog.Default.
func NewEngine(st *store.Store, policy TimeoutPolicy, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{store: st, policy: policy, logger: logger}
}

// Policy returns the timeout policy.
func (e *Engine) Policy() TimeoutPolicy { return e.policy }

// Execute checks, runs and decodes a query.
func (e *Engine) Execute(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	res, err := e.execute(ctx, req)
	e.record(time.Since(start), err)
	if err != nil {
		e.logger.Debug("Query failed", "error", err, "duration", time.Since(start))
		return nil, err
	}
	res.Duration = time.Since(start)
	e.logger.Debug("Query executed",
		"form", res.Form,
		"results", res.Len(),
		"duration", res.Duration,
		"timeout", res.Timeout)
	return res, nil
}

func (e *Engine) execute(ctx context.Context, req Request) (*Result, error) {
	query, err := ApplyBindings(req.Query, req.Bindings)
	if err != nil {
		return nil, err
	}
	form, err := Check(query)
	if err != nil {
		return nil, err
	}

	count := -1
	if req.Timeout <= 0 && e.policy.Adaptive {
		if n, err := e.store.Count(ctx); err == nil {
			count = n
		}
	}
	timeout := e.policy.Decide(req.Timeout, count)

	accept := fuseki.MediaSPARQLJSON
	if form.IsGraph() {
		accept = fuseki.MediaTurtle
	}

	qctx, cancel := context.WithTimeout(ctx, timeout+timeoutGrace)
	defer cancel()

	body, err := e.store.Query(qctx, query, accept, timeout)
	if err != nil {
		return nil, classify(ctx, qctx, err, timeout)
	}

	res := &Result{Form: form, Timeout: timeout}
	if form.IsGraph() {
		err = res.decodeGraph(body)
	} else {
		err = res.decodeSolutions(body)
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

// classify maps an execution failure to SyntaxError, TimeoutError or
// QueryError.
func classify(parent, qctx context.Context, err error, timeout time.Duration) error {
	if errors.Is(qctx.Err(), context.DeadlineExceeded) && parent.Err() == nil {
		return &TimeoutError{Timeout: timeout}
	}
	var se *fuseki.StatusError
	if errors.As(err, &se) {
		switch {
		case se.IsTimeout():
			return &TimeoutError{Timeout: timeout}
		case se.StatusCode == http.StatusBadRequest:
			return syntaxErrorFromEngine(se.Body)
		}
	}
	return &QueryError{Msg: "query execution failed", Err: err}
}

// Describe returns the description of a resource given as an IRI or a
// prefixed name.
func (e *Engine) Describe(ctx context.Context, resource string) (*Result, error) {
	iri, err := e.store.Resolve(strings.TrimSpace(resource))
	if err != nil {
		return nil, &QueryError{Msg: "resolve resource", Err: err}
	}
	if strings.HasPrefix(iri, "_:") || rdfterm.ValidIRI(iri) != nil {
		return nil, &QueryError{Msg: fmt.Sprintf("invalid resource %q", resource)}
	}
	return e.Execute(ctx, Request{Query: "DESCRIBE <" + iri + ">"})
}

// ExecuteWithBindings substitutes bindings into req.Query and runs it.
// Bindings already on req are overridden by the same variable in bindings.
func (e *Engine) ExecuteWithBindings(ctx context.Context, req Request, bindings map[string]string) (*Result, error) {
	merged := make(map[string]string, len(req.Bindings)+len(bindings))
	for k, v := range req.Bindings {
		merged[k] = v
	}
	for k, v := range bindings {
		merged[k] = v
	}
	req.Bindings = merged
	return e.Execute(ctx, req)
}

// Validate checks a query without running it.
func (e *Engine) Validate(query string) ValidationResult {
	return Validate(query)
}

// Stats returns a snapshot of the cumulative statistics.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.stats
	if s.TotalQueries > 0 {
		s.AverageTime = s.TotalTime / time.Duration(s.TotalQueries)
	}
	s.DefaultTimeout = e.policy.Default
	return s
}

// ResetStats clears the cumulative statistics.
func (e *Engine) ResetStats() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stats = Stats{}
}

func (e *Engine) record(d time.Duration, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stats.TotalQueries++
	e.stats.TotalTime += d
	if err != nil {
		e.stats.FailedQueries++
	}
}

var supportedFeatures = map[string]bool{
	"select": true, "construct": true, "ask": true, "describe": true,
	"optional": true, "union": true, "filter": true, "bind": true,
	"values": true, "subqueries": true, "aggregation": true, "group_by": true,
	"order_by": true, "limit": true, "offset": true, "distinct": true,
	"property_paths": true, "minus": true, "exists": true, "not_exists": true,
	"named_graphs": true, "federated": true, "rdfs_inference": false,
	"update": false,
}

// SupportsFeature reports whether a SPARQL feature is available through
// the query endpoint. Updates go through the store's write operations.
func SupportsFeature(name string) bool {
	return supportedFeatures[strings.ToLower(strings.TrimSpace(name))]
}
