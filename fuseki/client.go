// Package fuseki is an HTTP client for Apache Jena Fuseki. It covers the
// ping, Graph Store Protocol, SPARQL query and update, and SHACL endpoints
// of a single dataset.
package fuseki

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/c360studio/semstreams/pkg/retry"
)

const (
	// maxErrorBodySize limits the size of error response bodies.
	maxErrorBodySize = 4096

	// defaultMaxResponseSize limits query and report bodies.
	defaultMaxResponseSize = 64 << 20
)

// Media types exchanged with Fuseki.
const (
	MediaSPARQLJSON = "application/sparql-results+json"
	MediaTurtle     = "text/turtle"
	MediaNTriples   = "application/n-triples"
)

// Config configures a Client.
type Config struct {
	// URL is the Fuseki server base URL (e.g. http://fuseki:3030).
	URL string
	// Dataset is the dataset name without slashes.
	Dataset string
	// Username and Password enable basic auth when set.
	Username string
	Password string
	// Timeout bounds every HTTP request.
	Timeout time.Duration
	// Health configures the circuit breaker.
	Health HealthConfig
	// MaxResponseSize caps successful response bodies in bytes. Zero uses
	// 64 MiB.
	MaxResponseSize int64
}

// Client talks to one Fuseki dataset.
type Client struct {
	baseURL    string
	dataset    string
	username   string
	password   string
	httpClient *http.Client
	maxBody    int64
	health     *healthTracker
	logger     *slog.Logger
}

// NewClient creates a client. A nil logger uses slog.Default.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	maxBody := cfg.MaxResponseSize
	if maxBody <= 0 {
		maxBody = defaultMaxResponseSize
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.URL, "/"),
		maxBody:    maxBody,
		dataset:    strings.Trim(cfg.Dataset, "/"),
		username:   cfg.Username,
		password:   cfg.Password,
		httpClient: &http.Client{Timeout: timeout},
		health:     newHealthTracker(cfg.Health),
		logger:     logger,
	}
}

// BaseURL returns the server base URL.
func (c *Client) BaseURL() string { return c.baseURL }

// Dataset returns the dataset name.
func (c *Client) Dataset() string { return c.dataset }

// Health returns a snapshot of the endpoint health.
func (c *Client) Health() EndpointHealth { return c.health.snapshot() }

// Ping checks that the server answers. Transient failures are retried.
func (c *Client) Ping(ctx context.Context) error {
	var lastErr error
	err := retry.Do(ctx, retry.DefaultConfig(), func() error {
		_, err := c.do(ctx, "ping", http.MethodGet, c.baseURL+"/$/ping", nil, "", "")
		lastErr = err
		return retryable(err)
	})
	if err != nil && lastErr != nil {
		return lastErr
	}
	return err
}

// Insert adds RDF content to the default graph via the Graph Store Protocol.
func (c *Client) Insert(ctx context.Context, data []byte, contentType string) error {
	_, err := c.do(ctx, "insert", http.MethodPost, c.datasetURL("data")+"?default", bytes.NewReader(data), contentType, "")
	return err
}

// Update executes a SPARQL update.
func (c *Client) Update(ctx context.Context, update string) error {
	form := url.Values{"update": {update}}
	_, err := c.do(ctx, "update", http.MethodPost, c.datasetURL("update"),
		strings.NewReader(form.Encode()), "application/x-www-form-urlencoded", "")
	return err
}

// Clear removes every triple from the default graph.
func (c *Client) Clear(ctx context.Context) error {
	return c.Update(ctx, "CLEAR DEFAULT")
}

// Query executes a SPARQL query and returns the raw response body in the
// requested media type. A positive timeout is passed to Fuseki as its
// query timeout in seconds.
func (c *Client) Query(ctx context.Context, query, accept string, timeout time.Duration) ([]byte, error) {
	form := url.Values{"query": {query}}
	if timeout > 0 {
		form.Set("timeout", strconv.FormatFloat(timeout.Seconds(), 'f', -1, 64))
	}
	return c.do(ctx, "query", http.MethodPost, c.datasetURL("sparql"),
		strings.NewReader(form.Encode()), "application/x-www-form-urlencoded", accept)
}

// Count returns the number of triples in the default graph.
func (c *Client) Count(ctx context.Context) (int, error) {
	var body []byte
	var lastErr error
	err := retry.Do(ctx, retry.DefaultConfig(), func() error {
		b, err := c.Query(ctx, "SELECT (COUNT(*) AS ?count) WHERE { ?s ?p ?o }", MediaSPARQLJSON, 0)
		body, lastErr = b, err
		return retryable(err)
	})
	if err != nil {
		if lastErr != nil {
			return 0, fmt.Errorf("count triples: %w", lastErr)
		}
		return 0, fmt.Errorf("count triples: %w", err)
	}

	var res struct {
		Results struct {
			Bindings []map[string]struct {
				Value string `json:"value"`
			} `json:"bindings"`
		} `json:"results"`
	}
	if err := json.Unmarshal(body, &res); err != nil {
		return 0, fmt.Errorf("%w: decode count: %v", ErrUnexpectedResponse, err)
	}
	if len(res.Results.Bindings) == 0 {
		return 0, nil
	}
	n, err := strconv.Atoi(res.Results.Bindings[0]["count"].Value)
	if err != nil {
		return 0, fmt.Errorf("%w: count value: %v", ErrUnexpectedResponse, err)
	}
	return n, nil
}

// Validate runs the SHACL service against the default graph. shapes is the
// shapes graph in the given media type; the report is returned as Turtle.
func (c *Client) Validate(ctx context.Context, shapes []byte, contentType string) ([]byte, error) {
	return c.do(ctx, "shacl", http.MethodPost, c.datasetURL("shacl")+"?graph=default",
		bytes.NewReader(shapes), contentType, MediaTurtle)
}

func (c *Client) datasetURL(service string) string {
	return c.baseURL + "/" + c.dataset + "/" + service
}

// do performs a request and returns the response body. Transport failures
// count against endpoint health; HTTP error statuses become *StatusError.
func (c *Client) do(ctx context.Context, op, method, target string, body io.Reader, contentType, accept string) ([]byte, error) {
	if !c.health.available() {
		return nil, fmt.Errorf("%s: %w", op, ErrCircuitOpen)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("create %s request: %w", op, err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		// A caller cancelling is not an endpoint failure.
		if ctx.Err() == nil {
			c.health.markFailure(err)
		}
		return nil, fmt.Errorf("execute %s request: %w", op, err)
	}
	defer resp.Body.Close()
	c.health.markSuccess()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		c.logger.Debug("Fuseki request rejected",
			"op", op,
			"status", resp.StatusCode,
			"duration", time.Since(start))
		return nil, &StatusError{Op: op, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", op, err)
	}
	if int64(len(data)) > c.maxBody {
		return nil, fmt.Errorf("%s: %w (limit %d bytes)", op, ErrResponseTooLarge, c.maxBody)
	}
	c.logger.Debug("Fuseki request completed", "op", op, "duration", time.Since(start))
	return data, nil
}

// retryable marks answers that will not change on retry as non-retryable.
func retryable(err error) error {
	if err == nil {
		return nil
	}
	var se *StatusError
	if errors.As(err, &se) && se.IsClientError() {
		return retry.NonRetryable(err)
	}
	if errors.Is(err, ErrCircuitOpen) || errors.Is(err, ErrResponseTooLarge) || errors.Is(err, context.Canceled) {
		return retry.NonRetryable(err)
	}
	return err
}
