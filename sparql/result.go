package sparql

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/c360studio/ontogate/rdfterm"
	"github.com/c360studio/ontogate/turtle"
)

// OutputFormat selects how a result is rendered.
type OutputFormat string

// Output formats.
const (
	OutputSPARQLJSON OutputFormat = "sparql_json"
	OutputJSON       OutputFormat = "json"
	OutputTurtle     OutputFormat = "turtle"
)

// ParseOutputFormat validates a requested format. Empty means sparql_json.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(s) {
	case "":
		return OutputSPARQLJSON, nil
	case OutputSPARQLJSON, OutputJSON, OutputTurtle:
		return OutputFormat(s), nil
	default:
		return "", &QueryError{Msg: fmt.Sprintf("unsupported output format %q (use sparql_json, json or turtle)", s)}
	}
}

// Result holds the outcome of one query. Exactly one of the variant fields
// is populated, chosen by Form: Vars/Bindings for SELECT, Boolean for ASK,
// Triples/Graph for CONSTRUCT and DESCRIBE.
type Result struct {
	Form     Form
	Vars     []string
	Bindings []map[string]rdfterm.Term
	Boolean  bool
	Triples  []rdfterm.Triple
	// Graph is the engine's Turtle serialization of a graph result.
	Graph    []byte
	Duration time.Duration
	Timeout  time.Duration
}

// Len returns the number of rows, triples, or 1 for ASK.
func (r *Result) Len() int {
	switch {
	case r.Form == FormAsk:
		return 1
	case r.Form.IsGraph():
		return len(r.Triples)
	default:
		return len(r.Bindings)
	}
}

// SPARQLJSON is the W3C SPARQL 1.1 query results JSON document.
type SPARQLJSON struct {
	Head    SPARQLHead     `json:"head"`
	Results *SPARQLResults `json:"results,omitempty"`
	Boolean *bool          `json:"boolean,omitempty"`
}

// SPARQLHead lists the projected variables. A nil Vars marshals as an
// empty head, which is the ASK form; SELECT heads always carry "vars".
type SPARQLHead struct {
	Vars []string `json:"vars"`
}

// MarshalJSON implements json.Marshaler.
func (h SPARQLHead) MarshalJSON() ([]byte, error) {
	if h.Vars == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(struct {
		Vars []string `json:"vars"`
	}{h.Vars})
}

// SPARQLResults holds solution bindings.
type SPARQLResults struct {
	Bindings []map[string]rdfterm.Term `json:"bindings"`
}

// ToSPARQLJSON renders the standard results document. Graph results are
// presented as subject/predicate/object bindings.
func (r *Result) ToSPARQLJSON() SPARQLJSON {
	switch {
	case r.Form == FormAsk:
		b := r.Boolean
		return SPARQLJSON{Boolean: &b}
	case r.Form.IsGraph():
		bindings := make([]map[string]rdfterm.Term, 0, len(r.Triples))
		for _, tr := range r.Triples {
			bindings = append(bindings, map[string]rdfterm.Term{
				"subject":   tr.Subject,
				"predicate": tr.Predicate,
				"object":    tr.Object,
			})
		}
		return SPARQLJSON{
			Head:    SPARQLHead{Vars: []string{"subject", "predicate", "object"}},
			Results: &SPARQLResults{Bindings: bindings},
		}
	default:
		bindings := r.Bindings
		if bindings == nil {
			bindings = []map[string]rdfterm.Term{}
		}
		vars := r.Vars
		if vars == nil {
			vars = []string{}
		}
		return SPARQLJSON{
			Head:    SPARQLHead{Vars: vars},
			Results: &SPARQLResults{Bindings: bindings},
		}
	}
}

// JSONTriple is a triple in the custom JSON format.
type JSONTriple struct {
	Subject   string `json:"subject"`
	Predicate string `json:"predicate"`
	Object    string `json:"object"`
}

// JSONResult is the custom JSON result document.
type JSONResult struct {
	Type      string              `json:"type"`
	Variables []string            `json:"variables,omitempty"`
	Results   []map[string]string `json:"results,omitempty"`
	Boolean   *bool               `json:"result,omitempty"`
	Triples   []JSONTriple        `json:"triples,omitempty"`
	Count     int                 `json:"count"`
}

// ToJSON renders the custom JSON format with plain string values.
func (r *Result) ToJSON() JSONResult {
	out := JSONResult{Type: r.Form.Lower(), Count: r.Len()}
	switch {
	case r.Form == FormAsk:
		b := r.Boolean
		out.Boolean = &b
	case r.Form.IsGraph():
		out.Triples = make([]JSONTriple, 0, len(r.Triples))
		for _, tr := range r.Triples {
			out.Triples = append(out.Triples, JSONTriple{
				Subject:   tr.Subject.Key(),
				Predicate: tr.Predicate.Key(),
				Object:    tr.Object.Key(),
			})
		}
	default:
		out.Variables = r.Vars
		out.Results = make([]map[string]string, 0, len(r.Bindings))
		for _, b := range r.Bindings {
			row := make(map[string]string, len(b))
			for k, v := range b {
				row[k] = v.Key()
			}
			out.Results = append(out.Results, row)
		}
	}
	return out
}

// ToTurtle returns the Turtle serialization of a graph result.
func (r *Result) ToTurtle(prefixes map[string]string) (string, error) {
	if !r.Form.IsGraph() {
		return "", &QueryError{Msg: fmt.Sprintf("turtle output requires a CONSTRUCT or DESCRIBE query, got %s", r.Form)}
	}
	if len(prefixes) == 0 && len(r.Graph) > 0 {
		return string(r.Graph), nil
	}
	return turtle.Write(prefixes, r.Triples), nil
}

// Render produces the response payload for format.
func (r *Result) Render(format OutputFormat, prefixes map[string]string) (any, error) {
	switch format {
	case OutputSPARQLJSON, "":
		return r.ToSPARQLJSON(), nil
	case OutputJSON:
		return r.ToJSON(), nil
	case OutputTurtle:
		return r.ToTurtle(prefixes)
	default:
		return nil, &QueryError{Msg: fmt.Sprintf("unsupported output format %q", format)}
	}
}

// decodeSolutions parses a SPARQL JSON results body into r.
func (r *Result) decodeSolutions(body []byte) error {
	var doc struct {
		Head struct {
			Vars []string `json:"vars"`
		} `json:"head"`
		Results *struct {
			Bindings []map[string]rdfterm.Term `json:"bindings"`
		} `json:"results"`
		Boolean *bool `json:"boolean"`
	}
	if err := json.Unmarshal(body, &doc); err != nil {
		return &QueryError{Msg: "decode SPARQL results", Err: err}
	}
	if r.Form == FormAsk {
		if doc.Boolean == nil {
			return &QueryError{Msg: "ASK response carried no boolean"}
		}
		r.Boolean = *doc.Boolean
		return nil
	}
	r.Vars = doc.Head.Vars
	if doc.Results != nil {
		r.Bindings = doc.Results.Bindings
		for _, b := range r.Bindings {
			for k, v := range b {
				// SPARQL 1.0 servers may still emit "typed-literal".
				if v.Type == "typed-literal" {
					v.Type = rdfterm.TypeLiteral
					b[k] = v
				}
			}
		}
	}
	if r.Bindings == nil {
		r.Bindings = []map[string]rdfterm.Term{}
	}
	return nil
}

// decodeGraph parses a Turtle graph body into r.
func (r *Result) decodeGraph(body []byte) error {
	triples, err := turtle.ParseBytes(body, turtle.FormatTurtle)
	if err != nil {
		return &QueryError{Msg: "decode graph result", Err: err}
	}
	r.Triples = triples
	r.Graph = body
	return nil
}
