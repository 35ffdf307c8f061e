// Package turtle parses and writes the RDF text formats ontogate handles:
// Turtle for ontology, data and shapes files, and N-Triples for the
// statements it forwards to the store.
package turtle

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"

	"github.com/knakk/rdf"

	"github.com/c360studio/ontogate/rdfterm"
)

// Format selects the input syntax.
type Format string

const (
	// FormatTurtle is Terse RDF Triple Language.
	FormatTurtle Format = "turtle"
	// FormatNTriples is the line-based N-Triples syntax.
	FormatNTriples Format = "ntriples"
)

// MIMEType returns the media type used when posting the format to the store.
func (f Format) MIMEType() string {
	if f == FormatNTriples {
		return "application/n-triples"
	}
	return "text/turtle"
}

// SyntaxError reports a parse failure. Line and Column are 1-based and zero
// when the parser did not report a position.
type SyntaxError struct {
	File   string
	Line   int
	Column int
	Msg    string
}

func (e *SyntaxError) Error() string {
	prefix := "turtle"
	if e.File != "" {
		prefix = e.File
	}
	if e.Line > 0 {
		return fmt.Sprintf("%s: line %d, column %d: %s", prefix, e.Line, e.Column, e.Msg)
	}
	return fmt.Sprintf("%s: %s", prefix, e.Msg)
}

var positionPattern = regexp.MustCompile(`^(\d+):(\d+):\s*`)

// Parse decodes all triples from r. Any failure is returned as a *SyntaxError.
func Parse(r io.Reader, format Format) (triples []rdfterm.Triple, err error) {
	rdfFormat := rdf.Turtle
	if format == FormatNTriples {
		rdfFormat = rdf.NTriples
	}

	// The decoder panics on a few malformed inputs instead of returning an error.
	defer func() {
		if rec := recover(); rec != nil {
			triples = nil
			err = &SyntaxError{Msg: fmt.Sprintf("malformed input: %v", rec)}
		}
	}()

	dec := rdf.NewTripleDecoder(r, rdfFormat)
	for {
		tr, decErr := dec.Decode()
		if errors.Is(decErr, io.EOF) {
			break
		}
		if decErr != nil {
			return nil, newSyntaxError(decErr)
		}
		triples = append(triples, rdfterm.FromRDFTriple(tr))
	}
	return triples, nil
}

// ParseBytes is Parse over an in-memory document.
func ParseBytes(data []byte, format Format) ([]rdfterm.Triple, error) {
	return Parse(bytes.NewReader(data), format)
}

// Check parses data and returns the number of triples it holds.
func Check(data []byte, format Format) (int, error) {
	triples, err := ParseBytes(data, format)
	if err != nil {
		return 0, err
	}
	return len(triples), nil
}

func newSyntaxError(err error) *SyntaxError {
	msg := err.Error()
	se := &SyntaxError{Msg: msg}
	if m := positionPattern.FindStringSubmatch(msg); m != nil {
		se.Line, _ = strconv.Atoi(m[1])
		se.Column, _ = strconv.Atoi(m[2])
		se.Msg = msg[len(m[0]):]
	}
	return se
}
