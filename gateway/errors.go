package gateway

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/c360studio/ontogate/fuseki"
	"github.com/c360studio/ontogate/loader"
	"github.com/c360studio/ontogate/rdfterm"
	"github.com/c360studio/ontogate/sparql"
	"github.com/c360studio/ontogate/store"
	"github.com/c360studio/ontogate/turtle"
	"github.com/c360studio/ontogate/validation"
)

// ErrorType is the stable "type" string of an error envelope.
type ErrorType string

// Error types surfaced to API clients.
const (
	TypeValidation          ErrorType = "ValidationError"
	TypeInitialization      ErrorType = "InitializationError"
	TypeLoad                ErrorType = "LoadError"
	TypeShapeLoad           ErrorType = "ShapeLoadError"
	TypeQuery               ErrorType = "QueryError"
	TypeQuerySyntax         ErrorType = "QuerySyntaxError"
	TypeQueryTimeout        ErrorType = "QueryTimeoutError"
	TypeValidationExecution ErrorType = "ValidationExecutionError"
	TypeBackend             ErrorType = "BackendError"
	TypeNotFound            ErrorType = "NotFoundError"
	TypeMethodNotAllowed    ErrorType = "MethodNotAllowedError"
	TypeInternal            ErrorType = "InternalServerError"
)

// APIError is an error already mapped to a status code and type.
type APIError struct {
	Type    ErrorType
	Status  int
	Message string
	Details any
}

func (e *APIError) Error() string {
	if e.Details != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Type, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func badRequest(msg string, details any) *APIError {
	return &APIError{Type: TypeValidation, Status: http.StatusBadRequest, Message: msg, Details: details}
}

func notInitialized(name string) *APIError {
	return &APIError{Type: TypeInitialization, Status: http.StatusInternalServerError, Message: name + " not initialized"}
}

func methodNotAllowed(method string, allowed ...string) *APIError {
	return &APIError{
		Type:    TypeMethodNotAllowed,
		Status:  http.StatusMethodNotAllowed,
		Message: "Method not allowed",
		Details: map[string]any{"method": method, "allowed": allowed},
	}
}

// mapError converts a wrapper error into its API form. msg is the
// operation-level message ("Failed to execute query"); the error text
// becomes the details.
func mapError(err error, msg string) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	out := &APIError{Message: msg, Details: err.Error()}

	var (
		loadErr  *loader.LoadError
		shapeErr *validation.ShapeLoadError
		execErr  *validation.ExecutionError
		synErr   *sparql.SyntaxError
		toErr    *sparql.TimeoutError
		qErr     *sparql.QueryError
		ttlErr   *turtle.SyntaxError
	)

	switch {
	case errors.As(err, &shapeErr):
		out.Type, out.Status = TypeShapeLoad, http.StatusBadRequest
		out.Details = map[string]any{"file": shapeErr.File, "error": shapeErr.Err.Error()}
	case errors.As(err, &loadErr):
		if loadErr.Kind == loader.KindBackend {
			out.Type, out.Status = TypeBackend, http.StatusInternalServerError
		} else {
			out.Type, out.Status = TypeLoad, http.StatusBadRequest
		}
		out.Details = map[string]any{"file": loadErr.Path, "kind": loadErr.Kind, "error": loadErr.Error()}
	case errors.As(err, &execErr):
		out.Type, out.Status = TypeValidationExecution, http.StatusInternalServerError
	case errors.As(err, &ttlErr):
		out.Type, out.Status = TypeValidation, http.StatusBadRequest
		out.Details = map[string]any{"line": ttlErr.Line, "column": ttlErr.Column, "error": ttlErr.Error()}
	case errors.As(err, &synErr):
		out.Type, out.Status = TypeQuerySyntax, http.StatusBadRequest
		out.Details = map[string]any{"line": synErr.Line, "column": synErr.Column, "error": synErr.Error()}
	case errors.As(err, &toErr):
		out.Type, out.Status = TypeQueryTimeout, http.StatusBadRequest
		out.Details = map[string]any{"timeout_seconds": toErr.Timeout.Seconds(), "error": toErr.Error()}
	case isBackendDown(err):
		out.Type, out.Status = TypeBackend, http.StatusInternalServerError
	case errors.As(err, &qErr), errors.Is(err, sparql.ErrEmptyQuery):
		out.Type, out.Status = TypeQuery, http.StatusBadRequest
	case errors.Is(err, validation.ErrNoShapes),
		errors.Is(err, loader.ErrNoFiles),
		errors.Is(err, store.ErrUndefinedPrefix),
		errors.Is(err, store.ErrNoTriples),
		errors.Is(err, store.ErrBlankNodeDelete),
		errors.Is(err, rdfterm.ErrInvalidTriple):
		out.Type, out.Status = TypeValidation, http.StatusBadRequest
	case isStatusError(err):
		out.Type, out.Status = TypeBackend, http.StatusInternalServerError
	default:
		out.Type, out.Status = TypeInternal, http.StatusInternalServerError
	}
	return out
}

// isBackendDown reports failures that mean the engine is unusable, as
// opposed to the engine rejecting one request.
func isBackendDown(err error) bool {
	if errors.Is(err, store.ErrNotReady) || errors.Is(err, fuseki.ErrCircuitOpen) {
		return true
	}
	var se *fuseki.StatusError
	return errors.As(err, &se) && se.StatusCode >= http.StatusInternalServerError && !se.IsTimeout()
}

func isStatusError(err error) bool {
	var se *fuseki.StatusError
	return errors.As(err, &se)
}
