package fuseki

import (
	"errors"
	"fmt"
	"net/http"
)

// Common client errors.
var (
	// ErrCircuitOpen is returned while the endpoint is marked unavailable.
	ErrCircuitOpen = errors.New("fuseki endpoint unavailable")

	// ErrUnexpectedResponse is returned when a response body cannot be read
	// as the expected format.
	ErrUnexpectedResponse = errors.New("unexpected fuseki response")

	// ErrResponseTooLarge is returned when a response body exceeds the
	// configured size limit.
	ErrResponseTooLarge = errors.New("fuseki response too large")
)

// StatusError is returned when Fuseki answers with a non-2xx status.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("fuseki %s returned %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("fuseki %s returned %d: %s", e.Op, e.StatusCode, e.Body)
}

// IsClientError reports whether the request itself was rejected.
func (e *StatusError) IsClientError() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500
}

// IsTimeout reports whether Fuseki cancelled the request after its timeout.
func (e *StatusError) IsTimeout() bool {
	return e.StatusCode == http.StatusServiceUnavailable || e.StatusCode == http.StatusGatewayTimeout
}
