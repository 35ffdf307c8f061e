package gateway

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/c360studio/ontogate/sparql"
)

// querySource names the request shape a query arrived in.
type querySource string

const (
	sourceURL    querySource = "url"
	sourceForm   querySource = "form"
	sourceSPARQL querySource = "sparql-query"
	sourceJSON   querySource = "json"
)

// queryInput is the single decoded form of every accepted /query request.
type queryInput struct {
	Source   querySource
	Query    string
	Timeout  time.Duration
	Format   sparql.OutputFormat
	Bindings map[string]string
}

// jsonQueryRequest is the application/json body of POST /query. Timeout is
// in seconds.
type jsonQueryRequest struct {
	Query        string            `json:"query"`
	Timeout      float64           `json:"timeout,omitempty"`
	OutputFormat string            `json:"output_format,omitempty"`
	Bindings     map[string]string `json:"bindings,omitempty"`
}

// parseQueryInput decodes a /query request. GET reads the URL; POST is
// dispatched on Content-Type. Unknown content types are tried as a form
// first and as a raw query otherwise.
func parseQueryInput(w http.ResponseWriter, r *http.Request) (queryInput, *APIError) {
	var (
		in  queryInput
		err *APIError
	)
	switch r.Method {
	case http.MethodGet:
		in, err = fromValues(r.URL.Query(), sourceURL)
	case http.MethodPost:
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
		switch mediaType {
		case "application/json":
			in, err = fromJSON(r)
		case "application/x-www-form-urlencoded":
			in, err = fromForm(r)
		case "application/sparql-query":
			in, err = fromRawBody(r)
		default:
			in, err = fromForm(r)
			if err == nil && in.Query == "" {
				in, err = fromRawBody(r)
			}
		}
	default:
		return queryInput{}, methodNotAllowed(r.Method, http.MethodGet, http.MethodPost)
	}
	if err != nil {
		return queryInput{}, err
	}

	in.Query = strings.TrimSpace(in.Query)
	if in.Query == "" {
		return queryInput{}, badRequest("Query is required", nil)
	}
	return in, nil
}

func fromJSON(r *http.Request) (queryInput, *APIError) {
	var req jsonQueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err == io.EOF {
			return queryInput{}, badRequest("Request body is required", nil)
		}
		return queryInput{}, badRequest("Invalid request body", err.Error())
	}
	if req.Timeout < 0 {
		return queryInput{}, badRequest("Timeout must not be negative", req.Timeout)
	}
	var timeout time.Duration
	if req.Timeout != 0 {
		var err error
		if timeout, err = secondsToDuration(req.Timeout); err != nil {
			return queryInput{}, badRequest("Invalid timeout", err.Error())
		}
	}
	format, err := sparql.ParseOutputFormat(req.OutputFormat)
	if err != nil {
		return queryInput{}, badRequest("Invalid output_format", err.Error())
	}
	return queryInput{
		Source:   sourceJSON,
		Query:    req.Query,
		Timeout:  timeout,
		Format:   format,
		Bindings: req.Bindings,
	}, nil
}

func fromForm(r *http.Request) (queryInput, *APIError) {
	if err := r.ParseForm(); err != nil {
		return queryInput{}, badRequest("Invalid form body", err.Error())
	}
	return fromValues(r.Form, sourceForm)
}

// fromRawBody reads the whole body as the query. Options come from the URL.
func fromRawBody(r *http.Request) (queryInput, *APIError) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return queryInput{}, badRequest("Failed to read request body", err.Error())
	}
	in, apiErr := fromValues(r.URL.Query(), sourceSPARQL)
	if apiErr != nil {
		return queryInput{}, apiErr
	}
	in.Query = string(body)
	return in, nil
}

// fromValues reads query, timeout (seconds) and output_format.
func fromValues(v url.Values, source querySource) (queryInput, *APIError) {
	in := queryInput{Source: source, Query: v.Get("query")}

	if t := v.Get("timeout"); t != "" {
		secs, err := strconv.ParseFloat(t, 64)
		if err == nil {
			in.Timeout, err = secondsToDuration(secs)
		}
		if err != nil {
			return queryInput{}, badRequest("Invalid timeout", fmt.Sprintf("timeout must be a positive number of seconds, got %q", t))
		}
	}

	format, err := sparql.ParseOutputFormat(v.Get("output_format"))
	if err != nil {
		return queryInput{}, badRequest("Invalid output_format", err.Error())
	}
	in.Format = format
	return in, nil
}

// maxTimeoutSeconds is the largest timeout that still fits in a Duration.
// Larger requests saturate here and are then capped by the engine policy.
const maxTimeoutSeconds = float64(math.MaxInt64) / float64(time.Second)

// secondsToDuration converts a requested timeout in seconds. Non-finite and
// non-positive values are rejected.
func secondsToDuration(secs float64) (time.Duration, error) {
	switch {
	case math.IsNaN(secs) || math.IsInf(secs, 0):
		return 0, fmt.Errorf("timeout must be finite")
	case secs <= 0:
		return 0, fmt.Errorf("timeout must be positive")
	case secs >= maxTimeoutSeconds:
		return time.Duration(math.MaxInt64), nil
	}
	return time.Duration(secs * float64(time.Second)), nil
}
