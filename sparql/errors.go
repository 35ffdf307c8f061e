package sparql

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// ErrEmptyQuery is returned for a blank query string.
var ErrEmptyQuery = errors.New("query is empty")

// SyntaxError reports a malformed query. Line and Column are 1-based and
// zero when unknown.
type SyntaxError struct {
	Line   int
	Column int
	Msg    string
}

func (e *SyntaxError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("SPARQL syntax error at line %d, column %d: %s", e.Line, e.Column, e.Msg)
	}
	return "SPARQL syntax error: " + e.Msg
}

// TimeoutError reports a query that ran past its execution window.
type TimeoutError struct {
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("query exceeded timeout of %s", e.Timeout)
}

// QueryError reports any other query failure.
type QueryError struct {
	Msg string
	Err error
}

func (e *QueryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *QueryError) Unwrap() error { return e.Err }

var enginePositionPattern = regexp.MustCompile(`line (\d+), column (\d+)`)

// syntaxErrorFromEngine builds a SyntaxError from an engine parse message.
func syntaxErrorFromEngine(body string) *SyntaxError {
	se := &SyntaxError{Msg: body}
	if m := enginePositionPattern.FindStringSubmatch(body); m != nil {
		se.Line, _ = strconv.Atoi(m[1])
		se.Column, _ = strconv.Atoi(m[2])
	}
	return se
}
