// Package rdfterm defines the RDF term and triple values shared by the loader,
// query wrapper, and validation report model.
package rdfterm

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/knakk/rdf"

	"github.com/c360studio/ontogate/vocabulary/shacl"
)

// ErrInvalidTriple is returned when a triple holds a term that cannot be
// written as N-Triples.
var ErrInvalidTriple = errors.New("invalid triple")

// iriForbidden lists the characters an IRIREF may not contain.
const iriForbidden = "<>\"{}|\\^`"

var langTag = regexp.MustCompile(`^[a-zA-Z]+(-[a-zA-Z0-9]+)*$`)

// Type is the kind of an RDF term. Values match the SPARQL JSON results format.
type Type string

// Term kinds.
const (
	TypeURI     Type = "uri"
	TypeLiteral Type = "literal"
	TypeBNode   Type = "bnode"
)

// Term is a single RDF term. Blank node values carry the label without the
// "_:" prefix.
type Term struct {
	Type     Type   `json:"type"`
	Value    string `json:"value"`
	Lang     string `json:"xml:lang,omitempty"`
	Datatype string `json:"datatype,omitempty"`
}

// Triple is a subject, predicate, object statement.
type Triple struct {
	Subject   Term `json:"subject"`
	Predicate Term `json:"predicate"`
	Object    Term `json:"object"`
}

// IRI returns an IRI term.
func IRI(value string) Term {
	return Term{Type: TypeURI, Value: value}
}

// Blank returns a blank node term. A leading "_:" is stripped.
func Blank(label string) Term {
	return Term{Type: TypeBNode, Value: strings.TrimPrefix(label, "_:")}
}

// Literal returns a plain string literal.
func Literal(value string) Term {
	return Term{Type: TypeLiteral, Value: value}
}

// LangLiteral returns a language-tagged literal.
func LangLiteral(value, lang string) Term {
	return Term{Type: TypeLiteral, Value: value, Lang: lang}
}

// TypedLiteral returns a literal with an explicit datatype. xsd:string is
// normalised to a plain literal.
func TypedLiteral(value, datatype string) Term {
	if datatype == shacl.XSDString {
		datatype = ""
	}
	return Term{Type: TypeLiteral, Value: value, Datatype: datatype}
}

// ParseNode interprets a node reference as written in API requests and
// reports: "_:label" is a blank node, "<iri>" or anything else is an IRI.
func ParseNode(s string) Term {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "_:") {
		return Blank(s)
	}
	if strings.HasPrefix(s, "<") && strings.HasSuffix(s, ">") {
		return IRI(s[1 : len(s)-1])
	}
	return IRI(s)
}

// IsZero reports whether t is the zero term.
func (t Term) IsZero() bool {
	return t.Type == "" && t.Value == ""
}

// IsIRI reports whether t is an IRI.
func (t Term) IsIRI() bool { return t.Type == TypeURI }

// IsBlank reports whether t is a blank node.
func (t Term) IsBlank() bool { return t.Type == TypeBNode }

// IsLiteral reports whether t is a literal.
func (t Term) IsLiteral() bool { return t.Type == TypeLiteral }

// Key returns the compact node reference used for grouping and display:
// the bare IRI, "_:label" for blank nodes, or the lexical form for literals.
func (t Term) Key() string {
	if t.Type == TypeBNode {
		return "_:" + t.Value
	}
	return t.Value
}

// String returns the N-Triples form of the term.
func (t Term) String() string {
	switch t.Type {
	case TypeURI:
		return "<" + t.Value + ">"
	case TypeBNode:
		return "_:" + t.Value
	case TypeLiteral:
		s := `"` + EscapeString(t.Value) + `"`
		if t.Lang != "" {
			return s + "@" + t.Lang
		}
		if t.Datatype != "" && t.Datatype != shacl.XSDString {
			return s + "^^<" + t.Datatype + ">"
		}
		return s
	default:
		return ""
	}
}

// String returns the triple as a single N-Triples statement.
func (tr Triple) String() string {
	return fmt.Sprintf("%s %s %s .", tr.Subject, tr.Predicate, tr.Object)
}

// Validate checks the triple positions: the subject must be an IRI or blank
// node and the predicate must be an IRI. Every term must also serialize to
// well-formed N-Triples. Failures wrap ErrInvalidTriple.
func (tr Triple) Validate() error {
	if tr.Subject.IsLiteral() || tr.Subject.Value == "" {
		return fmt.Errorf("%w: subject must be an IRI or blank node", ErrInvalidTriple)
	}
	if !tr.Predicate.IsIRI() || tr.Predicate.Value == "" {
		return fmt.Errorf("%w: predicate must be an IRI", ErrInvalidTriple)
	}
	if tr.Object.Type == "" {
		return fmt.Errorf("%w: object is required", ErrInvalidTriple)
	}
	for _, pos := range []struct {
		name string
		term Term
	}{{"subject", tr.Subject}, {"predicate", tr.Predicate}, {"object", tr.Object}} {
		if err := pos.term.Validate(); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidTriple, pos.name, err)
		}
	}
	return nil
}

// Validate checks that the term can be written verbatim into N-Triples or
// a SPARQL data block.
func (t Term) Validate() error {
	switch t.Type {
	case TypeURI:
		return ValidIRI(t.Value)
	case TypeBNode:
		return validBlankLabel(t.Value)
	case TypeLiteral:
		if t.Lang != "" && !langTag.MatchString(t.Lang) {
			return fmt.Errorf("invalid language tag %q", t.Lang)
		}
		if t.Datatype != "" {
			if err := ValidIRI(t.Datatype); err != nil {
				return fmt.Errorf("datatype: %w", err)
			}
		}
		return nil
	default:
		return fmt.Errorf("unknown term type %q", t.Type)
	}
}

// ValidIRI reports an error when iri is not absolute or contains a
// character that would end an IRIREF early.
func ValidIRI(iri string) error {
	if iri == "" || !strings.Contains(iri, ":") {
		return fmt.Errorf("invalid IRI %q", iri)
	}
	for _, r := range iri {
		if r <= 0x20 || strings.ContainsRune(iriForbidden, r) {
			return fmt.Errorf("invalid IRI %q", iri)
		}
	}
	return nil
}

func validBlankLabel(label string) error {
	if label == "" || strings.HasSuffix(label, ".") || strings.HasPrefix(label, "-") || strings.HasPrefix(label, ".") {
		return fmt.Errorf("invalid blank node label %q", label)
	}
	for _, r := range label {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' && r != '-' && r != '.' {
			return fmt.Errorf("invalid blank node label %q", label)
		}
	}
	return nil
}

// EscapeString escapes a literal's lexical form for Turtle and N-Triples.
func EscapeString(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "\"", "\\\"")
	s = strings.ReplaceAll(s, "\n", "\\n")
	s = strings.ReplaceAll(s, "\r", "\\r")
	s = strings.ReplaceAll(s, "\t", "\\t")
	return s
}

// FromRDF converts a decoded knakk/rdf term.
func FromRDF(t rdf.Term) Term {
	switch v := t.(type) {
	case rdf.IRI:
		return IRI(v.String())
	case rdf.Blank:
		return Blank(v.String())
	case rdf.Literal:
		if lang := v.Lang(); lang != "" {
			return LangLiteral(v.String(), lang)
		}
		dt := v.DataType.String()
		if dt == shacl.LangString {
			dt = ""
		}
		return TypedLiteral(v.String(), dt)
	default:
		return Literal(t.String())
	}
}

// FromRDFTriple converts a decoded knakk/rdf triple.
func FromRDFTriple(tr rdf.Triple) Triple {
	return Triple{
		Subject:   FromRDF(tr.Subj),
		Predicate: FromRDF(tr.Pred),
		Object:    FromRDF(tr.Obj),
	}
}

// NTriples serializes triples one statement per line.
func NTriples(triples []Triple) string {
	var sb strings.Builder
	for _, tr := range triples {
		sb.WriteString(tr.String())
		sb.WriteByte('\n')
	}
	return sb.String()
}
